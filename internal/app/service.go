package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pscheid92/livepoll/internal/domain"
	"github.com/pscheid92/livepoll/internal/metrics"
	"github.com/pscheid92/livepoll/internal/platform/keylock"
	"golang.org/x/sync/singleflight"
)

const publishTimeout = 2 * time.Second

// Service is the application layer. It owns validation, per-poll sequencing and the read
// cache; storage and fan-out are injected.
type Service struct {
	polls     domain.PollRepository
	publisher domain.SnapshotPublisher
	locks     *keylock.KeyLock
	reads     singleflight.Group

	cacheMu sync.Mutex
	cache   *expirable.LRU[string, domain.PollSnapshot]
}

// NewService creates the application layer service. cacheSize and cacheTTL bound the GetPoll
// snapshot cache.
func NewService(polls domain.PollRepository, publisher domain.SnapshotPublisher, cacheSize int, cacheTTL time.Duration) *Service {
	return &Service{
		polls:     polls,
		publisher: publisher,
		locks:     keylock.New(),
		cache:     expirable.NewLRU[string, domain.PollSnapshot](cacheSize, nil, cacheTTL),
	}
}

// CreatePoll validates and stores a new poll with every count at zero.
func (s *Service) CreatePoll(ctx context.Context, question string, options []string) (domain.PollSnapshot, error) {
	newPoll, err := domain.NormalizeNewPoll(question, options)
	if err != nil {
		return domain.PollSnapshot{}, err
	}

	id := uuid.NewString()
	unlock := s.locks.Lock(id)
	defer unlock()

	snapshot, err := s.polls.Create(ctx, id, newPoll)
	if err != nil {
		return domain.PollSnapshot{}, fmt.Errorf("create poll: %w", err)
	}

	metrics.PollsCreatedTotal.Inc()
	s.remember(*snapshot)
	s.publish(ctx, *snapshot)

	slog.InfoContext(ctx, "Poll created", "poll_id", id, "options", len(newPoll.Options))
	return snapshot.Clone(), nil
}

// CastVote adds one vote to option and publishes the updated snapshot. Unknown polls and
// options fail with domain.ErrPollNotFound and domain.ErrInvalidOption without side effects.
func (s *Service) CastVote(ctx context.Context, pollID, option string) (domain.PollSnapshot, error) {
	option = strings.TrimSpace(option)
	if option == "" {
		metrics.VotesTotal.WithLabelValues("invalid_option").Inc()
		return domain.PollSnapshot{}, fmt.Errorf("%w: option cannot be empty", domain.ErrInvalidOption)
	}

	unlock := s.locks.Lock(pollID)
	defer unlock()

	snapshot, err := s.polls.CastVote(ctx, pollID, option)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrPollNotFound):
			metrics.VotesTotal.WithLabelValues("not_found").Inc()
		case errors.Is(err, domain.ErrInvalidOption):
			metrics.VotesTotal.WithLabelValues("invalid_option").Inc()
		default:
			metrics.VotesTotal.WithLabelValues("error").Inc()
			return domain.PollSnapshot{}, fmt.Errorf("cast vote: %w", err)
		}
		return domain.PollSnapshot{}, err
	}

	metrics.VotesTotal.WithLabelValues("applied").Inc()
	s.remember(*snapshot)
	s.publish(ctx, *snapshot)

	slog.DebugContext(ctx, "Vote recorded", "poll_id", pollID, "version", snapshot.Version)
	return snapshot.Clone(), nil
}

// GetPoll returns the current snapshot of a poll. Concurrent misses for the same poll share
// one storage read.
func (s *Service) GetPoll(ctx context.Context, pollID string) (domain.PollSnapshot, error) {
	s.cacheMu.Lock()
	cached, ok := s.cache.Get(pollID)
	s.cacheMu.Unlock()
	if ok {
		metrics.SnapshotCacheTotal.WithLabelValues("hit").Inc()
		return cached.Clone(), nil
	}
	metrics.SnapshotCacheTotal.WithLabelValues("miss").Inc()

	v, err, _ := s.reads.Do(pollID, func() (any, error) {
		snapshot, err := s.polls.Get(ctx, pollID)
		if err != nil {
			return nil, err
		}
		s.remember(*snapshot)
		return *snapshot, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrPollNotFound) {
			return domain.PollSnapshot{}, err
		}
		return domain.PollSnapshot{}, fmt.Errorf("get poll: %w", err)
	}

	return v.(domain.PollSnapshot).Clone(), nil
}

// LoadPoll reads the poll from storage, skipping the cache, and refreshes the cache with the
// result. Another instance may have changed the poll since it was cached here.
func (s *Service) LoadPoll(ctx context.Context, pollID string) (domain.PollSnapshot, error) {
	snapshot, err := s.polls.Get(ctx, pollID)
	if err != nil {
		if errors.Is(err, domain.ErrPollNotFound) {
			return domain.PollSnapshot{}, err
		}
		return domain.PollSnapshot{}, fmt.Errorf("load poll: %w", err)
	}

	s.remember(*snapshot)
	return snapshot.Clone(), nil
}

// Observe records a snapshot produced by another instance so GetPoll does not serve an older
// cached version.
func (s *Service) Observe(snapshot domain.PollSnapshot) {
	s.remember(snapshot)
}

// Ping checks that storage is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.polls.Ping(ctx)
}

// remember caches snapshot unless a newer version is already cached.
func (s *Service) remember(snapshot domain.PollSnapshot) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	if existing, ok := s.cache.Peek(snapshot.ID); ok && existing.Version > snapshot.Version {
		return
	}
	s.cache.Add(snapshot.ID, snapshot.Clone())
}

// publish runs under the poll lock. The mutation is already durable, so a failed publish is
// logged and the caller still succeeds.
func (s *Service) publish(ctx context.Context, snapshot domain.PollSnapshot) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.publisher.PublishSnapshot(ctx, snapshot); err != nil {
		slog.WarnContext(ctx, "Failed to publish poll snapshot", "poll_id", snapshot.ID, "version", snapshot.Version, "error", err)
	}
}
