package broadcast

import (
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBareSession(pollID string) *Session {
	return &Session{id: uuid.New(), pollID: pollID}
}

func TestRegistry_SubscribeCreatesEntry(t *testing.T) {
	r := NewRegistry()
	s := newBareSession("p1")

	assert.False(t, r.has("p1"))
	r.Subscribe("p1", s)

	assert.True(t, r.has("p1"))
	assert.Equal(t, 1, r.count("p1"))
	assert.Equal(t, []*Session{s}, r.SnapshotSubscribers("p1"))
}

func TestRegistry_SubscribeKeepsOthers(t *testing.T) {
	r := NewRegistry()
	a, b := newBareSession("p1"), newBareSession("p1")

	r.Subscribe("p1", a)
	r.Subscribe("p1", b)
	r.Subscribe("p1", a)

	assert.ElementsMatch(t, []*Session{a, b}, r.SnapshotSubscribers("p1"))
}

func TestRegistry_UnsubscribeRemovesEmptyEntry(t *testing.T) {
	r := NewRegistry()
	s := newBareSession("p1")
	r.Subscribe("p1", s)

	assert.True(t, r.Unsubscribe("p1", s))
	assert.False(t, r.has("p1"), "empty entries must not linger")
	assert.Empty(t, r.SnapshotSubscribers("p1"))
}

func TestRegistry_DoubleUnsubscribeIsNoop(t *testing.T) {
	r := NewRegistry()
	a, b := newBareSession("p1"), newBareSession("p1")
	r.Subscribe("p1", a)
	r.Subscribe("p1", b)

	assert.True(t, r.Unsubscribe("p1", a))
	assert.NotPanics(t, func() {
		assert.False(t, r.Unsubscribe("p1", a))
		assert.False(t, r.Unsubscribe("unknown", a))
	})
	assert.Equal(t, []*Session{b}, r.SnapshotSubscribers("p1"))
}

func TestRegistry_UnsubscribeWrongPollIsNoop(t *testing.T) {
	r := NewRegistry()
	s := newBareSession("p1")
	r.Subscribe("p1", s)

	assert.False(t, r.Unsubscribe("p2", s))
	assert.Equal(t, 1, r.count("p1"))
}

func TestRegistry_SessionInAtMostOnePoll(t *testing.T) {
	r := NewRegistry()
	s := newBareSession("p1")

	r.Subscribe("p1", s)
	r.Subscribe("p2", s)

	assert.False(t, r.has("p1"))
	assert.Equal(t, []*Session{s}, r.SnapshotSubscribers("p2"))
	polls, sessions := r.Stats()
	assert.Equal(t, 1, polls)
	assert.Equal(t, 1, sessions)
}

func TestRegistry_SnapshotIsCopy(t *testing.T) {
	r := NewRegistry()
	a, b := newBareSession("p1"), newBareSession("p1")
	r.Subscribe("p1", a)

	snapshot := r.SnapshotSubscribers("p1")
	r.Subscribe("p1", b)
	r.Unsubscribe("p1", a)

	assert.Equal(t, []*Session{a}, snapshot, "copy must not observe later changes")
}

func TestRegistry_EntryExistsIffSubscribed(t *testing.T) {
	polls := []string{"p1", "p2", "p3"}
	sessions := make([]*Session, 12)
	for i := range sessions {
		sessions[i] = newBareSession("")
	}

	rng := rand.New(rand.NewPCG(1, 2))
	r := NewRegistry()
	model := map[*Session]string{}

	for range 5000 {
		s := sessions[rng.IntN(len(sessions))]
		p := polls[rng.IntN(len(polls))]

		if rng.IntN(2) == 0 {
			r.Subscribe(p, s)
			model[s] = p
		} else {
			removed := r.Unsubscribe(p, s)
			assert.Equal(t, model[s] == p, removed)
			if model[s] == p {
				delete(model, s)
			}
		}

		for _, poll := range polls {
			want := 0
			for _, owner := range model {
				if owner == poll {
					want++
				}
			}
			require.Equal(t, want, r.count(poll))
			require.Equal(t, want > 0, r.has(poll), "entry for %s must exist iff it has subscribers", poll)
		}
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pollID := []string{"p1", "p2"}[i%2]
			for range 200 {
				s := newBareSession(pollID)
				r.Subscribe(pollID, s)
				_ = r.SnapshotSubscribers(pollID)
				r.Unsubscribe(pollID, s)
				r.Unsubscribe(pollID, s)
			}
		}()
	}
	wg.Wait()

	polls, sessions := r.Stats()
	assert.Zero(t, polls)
	assert.Zero(t, sessions)
}

func TestRegistry_Drain(t *testing.T) {
	r := NewRegistry()
	a, b := newBareSession("p1"), newBareSession("p2")
	r.Subscribe("p1", a)
	r.Subscribe("p2", b)

	drained := r.Drain()

	assert.ElementsMatch(t, []*Session{a, b}, drained)
	assert.False(t, r.has("p1"))
	assert.False(t, r.has("p2"))
	assert.False(t, r.Unsubscribe("p1", a))
}
