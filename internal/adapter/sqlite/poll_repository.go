package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/livepoll/internal/domain"
)

type PollRepo struct {
	db    *sql.DB
	clock clockwork.Clock
}

var _ domain.PollRepository = (*PollRepo)(nil)

func NewPollRepo(db *sql.DB, clock clockwork.Clock) *PollRepo {
	return &PollRepo{db: db, clock: clock}
}

func (r *PollRepo) Create(ctx context.Context, id string, poll domain.NewPoll) (*domain.PollSnapshot, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	createdAt := r.clock.Now().UTC().Truncate(time.Millisecond)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO polls (id, question, created_at) VALUES (?, ?, ?)`,
		id, poll.Question, createdAt.UnixMilli(),
	); err != nil {
		return nil, fmt.Errorf("failed to insert poll: %w", err)
	}

	for i, label := range poll.Options {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO poll_options (poll_id, position, label) VALUES (?, ?, ?)`,
			id, i, label,
		); err != nil {
			return nil, fmt.Errorf("failed to insert poll option: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit poll: %w", err)
	}

	options := make(map[string]int, len(poll.Options))
	for _, label := range poll.Options {
		options[label] = 0
	}
	return &domain.PollSnapshot{ID: id, Question: poll.Question, Options: options, CreatedAt: createdAt}, nil
}

func (r *PollRepo) Get(ctx context.Context, id string) (*domain.PollSnapshot, error) {
	snapshot, err := scanPoll(r.db.QueryRowContext(ctx,
		`SELECT question, version, created_at FROM polls WHERE id = ?`, id,
	), id)
	if err != nil {
		return nil, err
	}

	if snapshot.Options, err = loadOptions(ctx, r.db, id); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// CastVote bumps the version and the option inside one transaction. An unknown option rolls
// the version bump back.
func (r *PollRepo) CastVote(ctx context.Context, id, option string) (*domain.PollSnapshot, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	snapshot, err := scanPoll(tx.QueryRowContext(ctx,
		`UPDATE polls SET version = version + 1 WHERE id = ? RETURNING question, version, created_at`, id,
	), id)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE poll_options SET votes = votes + 1 WHERE poll_id = ? AND label = ?`, id, option,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to increment option: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	} else if n == 0 {
		return nil, domain.ErrInvalidOption
	}

	if snapshot.Options, err = loadOptions(ctx, tx, id); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit vote: %w", err)
	}
	return snapshot, nil
}

func (r *PollRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func scanPoll(row *sql.Row, id string) (*domain.PollSnapshot, error) {
	snapshot := &domain.PollSnapshot{ID: id}
	var createdAt int64
	err := row.Scan(&snapshot.Question, &snapshot.Version, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPollNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read poll: %w", err)
	}
	snapshot.CreatedAt = time.UnixMilli(createdAt).UTC()
	return snapshot, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadOptions(ctx context.Context, q querier, id string) (map[string]int, error) {
	rows, err := q.QueryContext(ctx, `SELECT label, votes FROM poll_options WHERE poll_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query poll options: %w", err)
	}
	defer rows.Close()

	options := make(map[string]int)
	for rows.Next() {
		var label string
		var votes int
		if err := rows.Scan(&label, &votes); err != nil {
			return nil, fmt.Errorf("failed to scan poll option: %w", err)
		}
		options[label] = votes
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read poll options: %w", err)
	}
	return options, nil
}
