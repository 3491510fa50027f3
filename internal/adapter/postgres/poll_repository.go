package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/livepoll/internal/domain"
)

type PollRepo struct {
	pool *pgxpool.Pool
}

var _ domain.PollRepository = (*PollRepo)(nil)

func NewPollRepo(pool *pgxpool.Pool) *PollRepo {
	return &PollRepo{pool: pool}
}

func (r *PollRepo) Create(ctx context.Context, id string, poll domain.NewPoll) (*domain.PollSnapshot, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var createdAt time.Time
	err = tx.QueryRow(ctx,
		`INSERT INTO polls (id, question) VALUES ($1, $2) RETURNING created_at`,
		id, poll.Question,
	).Scan(&createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert poll: %w", err)
	}

	batch := &pgx.Batch{}
	for i, label := range poll.Options {
		batch.Queue(`INSERT INTO poll_options (poll_id, position, label) VALUES ($1, $2, $3)`, id, i, label)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, fmt.Errorf("failed to insert poll options: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit poll: %w", err)
	}

	options := make(map[string]int, len(poll.Options))
	for _, label := range poll.Options {
		options[label] = 0
	}
	return &domain.PollSnapshot{
		ID:        id,
		Question:  poll.Question,
		Options:   options,
		CreatedAt: createdAt,
	}, nil
}

func (r *PollRepo) Get(ctx context.Context, id string) (*domain.PollSnapshot, error) {
	snapshot := &domain.PollSnapshot{ID: id}
	err := r.pool.QueryRow(ctx,
		`SELECT question, version, created_at FROM polls WHERE id = $1`, id,
	).Scan(&snapshot.Question, &snapshot.Version, &snapshot.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPollNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get poll: %w", err)
	}

	if snapshot.Options, err = loadOptions(ctx, r.pool, id); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// CastVote bumps the poll version first, which row-locks the poll and serializes concurrent
// votes on it. An unknown option rolls both updates back.
func (r *PollRepo) CastVote(ctx context.Context, id, option string) (*domain.PollSnapshot, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	snapshot := &domain.PollSnapshot{ID: id}
	err = tx.QueryRow(ctx,
		`UPDATE polls SET version = version + 1 WHERE id = $1 RETURNING question, version, created_at`, id,
	).Scan(&snapshot.Question, &snapshot.Version, &snapshot.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPollNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to bump poll version: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE poll_options SET votes = votes + 1 WHERE poll_id = $1 AND label = $2`, id, option,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to increment option: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrInvalidOption
	}

	if snapshot.Options, err = loadOptions(ctx, tx, id); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit vote: %w", err)
	}
	return snapshot, nil
}

func (r *PollRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadOptions(ctx context.Context, q querier, id string) (map[string]int, error) {
	rows, err := q.Query(ctx, `SELECT label, votes FROM poll_options WHERE poll_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query poll options: %w", err)
	}

	options := make(map[string]int)
	var label string
	var votes int
	_, err = pgx.ForEachRow(rows, []any{&label, &votes}, func() error {
		options[label] = votes
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read poll options: %w", err)
	}
	return options, nil
}
