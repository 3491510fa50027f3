package postgres

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/pscheid92/livepoll/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestPoll(t *testing.T, repo *PollRepo, options ...string) *domain.PollSnapshot {
	t.Helper()
	poll, err := repo.Create(context.Background(), uuid.NewString(), domain.NewPoll{Question: "Best editor?", Options: options})
	require.NoError(t, err)
	return poll
}

func TestPollRepo_CreateAndGet(t *testing.T) {
	repo := NewPollRepo(setupTestDB(t))
	ctx := context.Background()

	created := createTestPoll(t, repo, "vim", "emacs", "nano")
	assert.Equal(t, map[string]int{"vim": 0, "emacs": 0, "nano": 0}, created.Options)
	assert.EqualValues(t, 0, created.Version)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Question, got.Question)
	assert.Equal(t, created.Options, got.Options)
}

func TestPollRepo_GetNotFound(t *testing.T) {
	repo := NewPollRepo(setupTestDB(t))

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrPollNotFound)
}

func TestPollRepo_CastVote(t *testing.T) {
	repo := NewPollRepo(setupTestDB(t))
	ctx := context.Background()
	poll := createTestPoll(t, repo, "A", "B")

	snap, err := repo.CastVote(ctx, poll.ID, "A")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 1, "B": 0}, snap.Options)
	assert.EqualValues(t, 1, snap.Version)

	snap, err = repo.CastVote(ctx, poll.ID, "B")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 1, "B": 1}, snap.Options)
	assert.EqualValues(t, 2, snap.Version)
}

func TestPollRepo_CastVoteFailuresMutateNothing(t *testing.T) {
	repo := NewPollRepo(setupTestDB(t))
	ctx := context.Background()
	poll := createTestPoll(t, repo, "A", "B")

	_, err := repo.CastVote(ctx, "missing", "A")
	assert.ErrorIs(t, err, domain.ErrPollNotFound)

	_, err = repo.CastVote(ctx, poll.ID, "C")
	assert.ErrorIs(t, err, domain.ErrInvalidOption)

	got, err := repo.Get(ctx, poll.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, got.Version, "rolled back vote must not bump the version")
	assert.Equal(t, map[string]int{"A": 0, "B": 0}, got.Options)
}

func TestPollRepo_ConcurrentVotes(t *testing.T) {
	repo := NewPollRepo(setupTestDB(t))
	ctx := context.Background()
	poll := createTestPoll(t, repo, "A", "B")

	var wg sync.WaitGroup
	for i := range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.CastVote(ctx, poll.ID, []string{"A", "B"}[i%2])
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repo.Get(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 20, "B": 20}, got.Options)
	assert.EqualValues(t, 40, got.Version)
}

func TestPollRepo_Ping(t *testing.T) {
	repo := NewPollRepo(setupTestDB(t))
	assert.NoError(t, repo.Ping(context.Background()))
}
