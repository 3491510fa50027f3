package broadcast

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Sink is the outbound half of a live connection. *websocket.Conn satisfies it.
type Sink interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one client's live subscription to a single poll.
type Session struct {
	id       uuid.UUID
	pollID   string
	openedAt time.Time
	writer   *clientWriter
	state    atomic.Int32

	// lastVersion is the newest snapshot version queued for this session.
	// Only touched while holding the broadcaster's lock for pollID.
	lastVersion int64
}

func (s *Session) ID() uuid.UUID { return s.id }
func (s *Session) PollID() string { return s.pollID }
func (s *Session) State() State { return State(s.state.Load()) }
func (s *Session) OpenedAt() time.Time { return s.openedAt }

// Done is closed once the session stops delivering, whatever the cause.
func (s *Session) Done() <-chan struct{} {
	return s.writer.doneChannel
}

func (s *Session) activate() bool {
	return s.state.CompareAndSwap(int32(StateConnecting), int32(StateActive))
}

// markClosed moves the session to Closed and reports whether this call did it.
func (s *Session) markClosed() bool {
	return State(s.state.Swap(int32(StateClosed))) != StateClosed
}
