package broadcast

import "sync"

// Registry tracks which sessions are subscribed to which poll. A poll key exists only while it
// has at least one session, and a session is subscribed to at most one poll at a time.
type Registry struct {
	mu        sync.Mutex
	polls     map[string]map[*Session]struct{}
	bySession map[*Session]string
}

func NewRegistry() *Registry {
	return &Registry{
		polls:     make(map[string]map[*Session]struct{}),
		bySession: make(map[*Session]string),
	}
}

// Subscribe registers session under pollID. A session already subscribed elsewhere is moved.
func (r *Registry) Subscribe(pollID string, session *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.bySession[session]; ok {
		if current == pollID {
			return
		}
		r.removeLocked(current, session)
	}

	sessions, ok := r.polls[pollID]
	if !ok {
		sessions = make(map[*Session]struct{})
		r.polls[pollID] = sessions
	}
	sessions[session] = struct{}{}
	r.bySession[session] = pollID
}

// Unsubscribe removes session from pollID. Returns false when it was not subscribed there.
func (r *Registry) Unsubscribe(pollID string, session *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.bySession[session]; !ok || current != pollID {
		return false
	}
	r.removeLocked(pollID, session)
	return true
}

func (r *Registry) removeLocked(pollID string, session *Session) {
	delete(r.bySession, session)

	sessions := r.polls[pollID]
	delete(sessions, session)
	if len(sessions) == 0 {
		delete(r.polls, pollID)
	}
}

// SnapshotSubscribers returns a copy of the sessions subscribed to pollID, or nil if none.
func (r *Registry) SnapshotSubscribers(pollID string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := r.polls[pollID]
	if len(sessions) == 0 {
		return nil
	}

	out := make([]*Session, 0, len(sessions))
	for s := range sessions {
		out = append(out, s)
	}
	return out
}

// count returns the number of sessions subscribed to pollID.
func (r *Registry) count(pollID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.polls[pollID])
}

// has reports whether pollID currently has an entry.
func (r *Registry) has(pollID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.polls[pollID]
	return ok
}

// Stats returns the number of polls with subscribers and the total number of sessions.
func (r *Registry) Stats() (polls, sessions int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.polls), len(r.bySession)
}

// Drain removes every subscription and returns the sessions that were registered.
func (r *Registry) Drain() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.bySession))
	for s := range r.bySession {
		out = append(out, s)
	}
	clear(r.polls)
	clear(r.bySession)
	return out
}
