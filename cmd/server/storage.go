package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/livepoll/internal/adapter/postgres"
	"github.com/pscheid92/livepoll/internal/adapter/sqlite"
	"github.com/pscheid92/livepoll/internal/domain"
	"github.com/pscheid92/livepoll/internal/platform/config"
	"github.com/pscheid92/livepoll/internal/platform/retry"
)

const storageConnectTimeout = 30 * time.Second

// openStorage connects the store selected by DATABASE_URL and brings its schema up to date.
// The returned close func releases the connection.
func openStorage(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (domain.PollRepository, func(), error) {
	ctx, cancel := context.WithTimeout(ctx, storageConnectTimeout)
	defer cancel()

	if !cfg.UsesPostgres() {
		db, err := sqlite.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewPollRepo(db, clock), func() { _ = db.Close() }, nil
	}

	policy := retry.Startup
	policy.Clock = clock
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Database not ready, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	}
	pool, err := retry.Do(ctx, policy, func(ctx context.Context) (*pgxpool.Pool, error) {
		return postgres.Connect(ctx, cfg.DatabaseURL)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return postgres.NewPollRepo(pool), pool.Close, nil
}
