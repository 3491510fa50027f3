package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/livepoll/internal/domain"
	"github.com/pscheid92/livepoll/internal/metrics"
	"github.com/pscheid92/livepoll/internal/platform/keylock"
	"golang.org/x/sync/errgroup"
)

const shutdownReason = "server shutting down"

// Eviction reasons, used as the reason label.
const (
	evictQueueFull   = "queue_full"
	evictClosed      = "closed"
	evictWriteFailed = "write_failed"
	evictPingFailed  = "ping_failed"
)

type deliveryResult int

const (
	delivered deliveryResult = iota
	dropped
	stale
)

// Broadcaster delivers poll snapshots to the sessions in its Registry. Publish calls for the
// same poll are serialized; different polls proceed independently.
type Broadcaster struct {
	registry     *Registry
	locks        *keylock.KeyLock
	clock        clockwork.Clock
	queueSize    int
	writeTimeout time.Duration

	mu      sync.RWMutex
	stopped bool
}

// NewBroadcaster creates a broadcaster. queueSize bounds each session's pending messages and
// writeTimeout bounds each socket write; zero values select the defaults (16 and 5s).
func NewBroadcaster(clock clockwork.Clock, queueSize int, writeTimeout time.Duration) *Broadcaster {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &Broadcaster{
		registry:     NewRegistry(),
		locks:        keylock.New(),
		clock:        clock,
		queueSize:    queueSize,
		writeTimeout: writeTimeout,
	}
}

// Registry exposes the subscription registry for inspection.
func (b *Broadcaster) Registry() *Registry {
	return b.registry
}

// OnSessionOpened starts a writer for sink and subscribes it to pollID.
func (b *Broadcaster) OnSessionOpened(pollID string, sink Sink) (*Session, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.stopped {
		return nil, domain.ErrBroadcasterStopped
	}

	s := &Session{
		id:          uuid.New(),
		pollID:      pollID,
		openedAt:    b.clock.Now(),
		lastVersion: -1,
	}
	s.writer = newClientWriter(sink, b.clock, b.queueSize, b.writeTimeout, func(reason string) {
		b.evict(s, reason)
	})

	b.registry.Subscribe(pollID, s)
	s.activate()
	b.updateGauges()

	slog.Debug("Session opened", "poll_id", pollID, "session_id", s.id.String())
	return s, nil
}

// OnSessionClosed unsubscribes the session and waits for its writer to exit. Safe to call more
// than once and after the session was already evicted.
func (b *Broadcaster) OnSessionClosed(s *Session) {
	if s == nil {
		return
	}
	if b.registry.Unsubscribe(s.pollID, s) {
		b.updateGauges()
	}
	s.markClosed()
	s.writer.stop()

	slog.Debug("Session closed", "poll_id", s.pollID, "session_id", s.id.String())
}

// OnMutation publishes snapshot to the sessions of its poll.
func (b *Broadcaster) OnMutation(snapshot domain.PollSnapshot) int {
	return b.Publish(snapshot.ID, snapshot)
}

// PublishSnapshot implements domain.SnapshotPublisher.
func (b *Broadcaster) PublishSnapshot(_ context.Context, snapshot domain.PollSnapshot) error {
	b.mu.RLock()
	stopped := b.stopped
	b.mu.RUnlock()

	if stopped {
		return domain.ErrBroadcasterStopped
	}
	b.OnMutation(snapshot)
	return nil
}

// Publish hands snapshot to every session subscribed to pollID and returns how many accepted
// it. Sessions that cannot accept it are evicted; their failure is never returned.
func (b *Broadcaster) Publish(pollID string, snapshot domain.PollSnapshot) int {
	unlock := b.locks.Lock(pollID)
	defer unlock()

	subscribers := b.registry.SnapshotSubscribers(pollID)
	if len(subscribers) == 0 {
		return 0
	}

	start := b.clock.Now()
	defer func() {
		metrics.BroadcasterPublishDuration.Observe(b.clock.Since(start).Seconds())
	}()

	data, err := json.Marshal(snapshot)
	if err != nil {
		slog.Error("Failed to marshal poll snapshot", "poll_id", pollID, "error", err)
		return 0
	}

	count := 0
	for _, s := range subscribers {
		if b.deliver(s, snapshot.Version, data) == delivered {
			count++
		}
	}
	return count
}

// Prime queues snapshot for a single session, typically the current state right after it
// opened. It goes through the same per-poll lock and version check as Publish.
func (b *Broadcaster) Prime(s *Session, snapshot domain.PollSnapshot) bool {
	unlock := b.locks.Lock(s.pollID)
	defer unlock()

	data, err := json.Marshal(snapshot)
	if err != nil {
		slog.Error("Failed to marshal poll snapshot", "poll_id", s.pollID, "error", err)
		return false
	}
	return b.deliver(s, snapshot.Version, data) == delivered
}

// deliver requires the per-poll lock for s.pollID.
func (b *Broadcaster) deliver(s *Session, version int64, data []byte) deliveryResult {
	if version <= s.lastVersion {
		metrics.BroadcasterDeliveriesTotal.WithLabelValues("stale").Inc()
		return stale
	}

	if s.State() == StateClosed {
		metrics.BroadcasterDeliveriesTotal.WithLabelValues("dropped").Inc()
		b.evict(s, evictClosed)
		return dropped
	}

	if !s.writer.enqueue(data) {
		metrics.BroadcasterDeliveriesTotal.WithLabelValues("dropped").Inc()
		b.evict(s, evictQueueFull)
		return dropped
	}

	s.lastVersion = version
	metrics.BroadcasterDeliveriesTotal.WithLabelValues("delivered").Inc()
	return delivered
}

// evict removes a session whose delivery failed and closes its connection. It may run on the
// session's own writer goroutine, so it never waits for the writer.
func (b *Broadcaster) evict(s *Session, reason string) {
	removed := b.registry.Unsubscribe(s.pollID, s)
	s.markClosed()
	s.writer.terminate()

	if removed {
		b.updateGauges()
		metrics.BroadcasterEvictionsTotal.WithLabelValues(reason).Inc()
		slog.Warn("Evicted session", "poll_id", s.pollID, "session_id", s.id.String(), "reason", reason)
	}
}

// Stop rejects new sessions, closes every open session concurrently with a normal-closure
// frame and clears the registry. Blocks until all writers have exited.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	sessions := b.registry.Drain()
	b.mu.Unlock()

	slog.Info("Broadcaster shutting down", "sessions", len(sessions))

	var g errgroup.Group
	for _, s := range sessions {
		g.Go(func() error {
			s.markClosed()
			s.writer.stopGraceful(shutdownReason)
			return nil
		})
	}
	_ = g.Wait()

	b.updateGauges()
	slog.Info("Broadcaster shutdown complete", "disconnected_sessions", len(sessions))
}

func (b *Broadcaster) updateGauges() {
	polls, sessions := b.registry.Stats()
	metrics.BroadcasterActivePolls.Set(float64(polls))
	metrics.BroadcasterLiveSessions.Set(float64(sessions))
}
