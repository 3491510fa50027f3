package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/pscheid92/livepoll/internal/domain"
	"github.com/pscheid92/livepoll/internal/metrics"
	goredis "github.com/redis/go-redis/v9"
)

const channelPrefix = "poll:"

func pollChannel(pollID string) string {
	return channelPrefix + pollID
}

// LocalPublisher delivers a snapshot to the sessions connected to this instance.
type LocalPublisher interface {
	Publish(pollID string, snapshot domain.PollSnapshot) int
}

// SnapshotObserver is told about every snapshot that arrives from another instance.
type SnapshotObserver interface {
	Observe(snapshot domain.PollSnapshot)
}

// envelope is the Pub/Sub payload. Origin lets an instance skip its own messages, which it
// already delivered locally.
type envelope struct {
	Origin string              `json:"origin"`
	Poll   domain.PollSnapshot `json:"poll"`
}

// Relay publishes snapshots to every livepoll instance. Local sessions are always served
// directly, so a Redis outage only affects sessions connected to other instances.
type Relay struct {
	rdb    *goredis.Client
	local    LocalPublisher
	observer SnapshotObserver
	origin   string
}

var _ domain.SnapshotPublisher = (*Relay)(nil)

func NewRelay(rdb *goredis.Client, local LocalPublisher) *Relay {
	return &Relay{rdb: rdb, local: local, origin: uuid.NewString()}
}

// SetObserver registers o for remote snapshots. Call it before Run.
func (r *Relay) SetObserver(o SnapshotObserver) {
	r.observer = o
}

// PublishSnapshot delivers locally and then fans the snapshot out through Redis.
func (r *Relay) PublishSnapshot(ctx context.Context, snapshot domain.PollSnapshot) error {
	r.local.Publish(snapshot.ID, snapshot)

	data, err := json.Marshal(envelope{Origin: r.origin, Poll: snapshot})
	if err != nil {
		metrics.RelayMessagesTotal.WithLabelValues("out", "error").Inc()
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := r.rdb.Publish(ctx, pollChannel(snapshot.ID), data).Err(); err != nil {
		metrics.RelayMessagesTotal.WithLabelValues("out", "error").Inc()
		return fmt.Errorf("failed to relay snapshot for poll %s: %w", snapshot.ID, err)
	}

	metrics.RelayMessagesTotal.WithLabelValues("out", "ok").Inc()
	return nil
}

// Run receives snapshots from other instances until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to poll channels: %w", err)
	}
	slog.Info("Snapshot relay subscribed", "pattern", channelPrefix+"*")

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.handle(msg)
		}
	}
}

func (r *Relay) handle(msg *goredis.Message) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		metrics.RelayMessagesTotal.WithLabelValues("in", "invalid").Inc()
		slog.Warn("Dropping malformed relay message", "channel", msg.Channel, "error", err)
		return
	}

	if env.Origin == r.origin {
		metrics.RelayMessagesTotal.WithLabelValues("in", "own").Inc()
		return
	}

	pollID := strings.TrimPrefix(msg.Channel, channelPrefix)
	if env.Poll.ID != pollID {
		metrics.RelayMessagesTotal.WithLabelValues("in", "invalid").Inc()
		slog.Warn("Dropping relay message for mismatched poll", "channel", msg.Channel, "poll_id", env.Poll.ID)
		return
	}

	// Observe first: a session subscribing after the local publish reads the cache.
	if r.observer != nil {
		r.observer.Observe(env.Poll)
	}
	r.local.Publish(pollID, env.Poll)
	metrics.RelayMessagesTotal.WithLabelValues("in", "ok").Inc()
}

func (r *Relay) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}
