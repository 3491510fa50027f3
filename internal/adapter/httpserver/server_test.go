package httpserver

import (
	"context"
	"errors"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/livepoll/internal/broadcast"
	"github.com/pscheid92/livepoll/internal/domain"
	"github.com/pscheid92/livepoll/internal/platform/config"
)

const testRemoteAddr = "1.2.3.4:1234"

type mockPollService struct {
	createPollFn func(ctx context.Context, question string, options []string) (domain.PollSnapshot, error)
	castVoteFn   func(ctx context.Context, pollID, option string) (domain.PollSnapshot, error)
	getPollFn    func(ctx context.Context, pollID string) (domain.PollSnapshot, error)
}

func (m *mockPollService) CreatePoll(ctx context.Context, question string, options []string) (domain.PollSnapshot, error) {
	if m.createPollFn != nil {
		return m.createPollFn(ctx, question, options)
	}
	return domain.PollSnapshot{}, errors.New("not implemented")
}

func (m *mockPollService) CastVote(ctx context.Context, pollID, option string) (domain.PollSnapshot, error) {
	if m.castVoteFn != nil {
		return m.castVoteFn(ctx, pollID, option)
	}
	return domain.PollSnapshot{}, errors.New("not implemented")
}

func (m *mockPollService) GetPoll(ctx context.Context, pollID string) (domain.PollSnapshot, error) {
	if m.getPollFn != nil {
		return m.getPollFn(ctx, pollID)
	}
	return domain.PollSnapshot{}, domain.ErrPollNotFound
}

// LoadPoll shares getPollFn; the mock has no cache to bypass.
func (m *mockPollService) LoadPoll(ctx context.Context, pollID string) (domain.PollSnapshot, error) {
	return m.GetPoll(ctx, pollID)
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:                  "test",
		Port:                    "0",
		MaxWebSocketConnections: 100,
		MaxConnectionsPerIP:     100,
		ConnectionsPerSecond:    1000,
		ConnectionBurst:         1000,
		VotesPerSecond:          1000,
		VoteBurst:               1000,
	}
}

type serverOption func(*config.Config, *[]HealthCheck)

func withHealthChecks(checks ...HealthCheck) serverOption {
	return func(_ *config.Config, hc *[]HealthCheck) {
		*hc = append(*hc, checks...)
	}
}

func withConfig(mutate func(*config.Config)) serverOption {
	return func(cfg *config.Config, _ *[]HealthCheck) {
		mutate(cfg)
	}
}

// newTestServer builds a fully routed server. sessions may be nil for tests that never upgrade.
func newTestServer(t *testing.T, polls pollService, sessions liveSessions, opts ...serverOption) *Server {
	t.Helper()

	cfg := testConfig()
	var checks []HealthCheck
	for _, opt := range opts {
		opt(cfg, &checks)
	}
	if sessions == nil {
		sessions = broadcast.NewBroadcaster(clockwork.NewRealClock(), 0, 0)
	}
	return NewServer(cfg, polls, sessions, checks)
}
