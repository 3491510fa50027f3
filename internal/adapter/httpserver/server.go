// Package httpserver exposes the poll API, the live WebSocket endpoint and operational routes.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/livepoll/internal/broadcast"
	"github.com/pscheid92/livepoll/internal/domain"
	"github.com/pscheid92/livepoll/internal/platform/config"
)

type pollService interface {
	CreatePoll(ctx context.Context, question string, options []string) (domain.PollSnapshot, error)
	CastVote(ctx context.Context, pollID, option string) (domain.PollSnapshot, error)
	GetPoll(ctx context.Context, pollID string) (domain.PollSnapshot, error)
	LoadPoll(ctx context.Context, pollID string) (domain.PollSnapshot, error)
}

type liveSessions interface {
	OnSessionOpened(pollID string, sink broadcast.Sink) (*broadcast.Session, error)
	OnSessionClosed(s *broadcast.Session)
	Prime(s *broadcast.Session, snapshot domain.PollSnapshot) bool
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	polls    pollService
	sessions liveSessions
	limits   *ConnectionLimits

	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, polls pollService, sessions liveSessions, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		polls:        polls,
		sessions:     sessions,
		limits:       NewConnectionLimits(int64(cfg.MaxWebSocketConnections), cfg.MaxConnectionsPerIP, cfg.ConnectionsPerSecond, cfg.ConnectionBurst),
		healthChecks: healthChecks,
		startTime:    time.Now(),
	}

	srv.registerRoutes()

	return srv
}

// Handler exposes the router, mainly for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests. Hijacked WebSocket
// connections are not tracked by echo; they end when the broadcaster stops.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
