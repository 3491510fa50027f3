package domain

import "context"

// SnapshotPublisher fans a poll snapshot out to live sessions. Implementations must not
// return per-session delivery failures; an error means the snapshot could not be handed off.
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, snapshot PollSnapshot) error
}
