package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/livepoll/internal/adapter/httpserver"
	"github.com/pscheid92/livepoll/internal/adapter/redis"
	"github.com/pscheid92/livepoll/internal/app"
	"github.com/pscheid92/livepoll/internal/broadcast"
	"github.com/pscheid92/livepoll/internal/domain"
	"github.com/pscheid92/livepoll/internal/platform/config"
	"github.com/pscheid92/livepoll/internal/platform/logging"
	"github.com/pscheid92/livepoll/internal/platform/version"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket server",
	Long: `Run the poll API and the live WebSocket endpoint until SIGINT or SIGTERM.

On shutdown the server stops accepting requests, stops the Redis relay and
closes every live session with a normal-closure frame.`,
	RunE: runServe,
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Get().Version)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	polls, closeStorage, err := openStorage(ctx, cfg, clock)
	if err != nil {
		return err
	}
	defer closeStorage()

	broadcaster := broadcast.NewBroadcaster(clock, cfg.SessionQueueSize, cfg.WriteTimeout)

	var publisher domain.SnapshotPublisher = broadcaster
	healthChecks := []httpserver.HealthCheck{{Name: "storage", Check: polls.Ping}}

	var relay *redis.Relay
	if cfg.RedisURL != "" {
		rdb, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer func() { _ = rdb.Close() }()

		relay = redis.NewRelay(rdb, broadcaster)
		publisher = relay
		healthChecks = append(healthChecks, httpserver.HealthCheck{Name: "redis", Check: relay.Ping})
	}

	service := app.NewService(polls, publisher, cfg.SnapshotCacheSize, cfg.SnapshotCacheTTL)
	if relay != nil {
		relay.SetObserver(service)
	}
	srv := httpserver.NewServer(cfg, service, broadcaster, healthChecks)

	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if relay != nil {
		g.Go(func() error {
			return relay.Run(relayCtx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		stopRelay()
		broadcaster.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Shutdown complete")
	return nil
}
