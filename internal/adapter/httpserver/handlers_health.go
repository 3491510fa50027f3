package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/livepoll/internal/platform/version"
	"golang.org/x/sync/errgroup"
)

const readinessProbeTimeout = 5 * time.Second

// HealthCheck is a named health check function.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleLiveness(c echo.Context) error {
	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).Seconds(),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

type checkResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type readinessResponse struct {
	Status string                 `json:"status"`
	Checks map[string]checkResult `json:"checks"`
}

// handleReadiness runs every check concurrently and reports each result. Any failure makes the
// instance unready.
func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessProbeTimeout)
	defer cancel()

	results := make([]checkResult, len(s.healthChecks))
	var g errgroup.Group
	for i, hc := range s.healthChecks {
		g.Go(func() error {
			if err := hc.Check(ctx); err != nil {
				results[i] = checkResult{Status: "down", Error: err.Error()}
				return nil
			}
			results[i] = checkResult{Status: "up"}
			return nil
		})
	}
	_ = g.Wait()

	response := readinessResponse{Status: "ready", Checks: make(map[string]checkResult, len(results))}
	code := http.StatusOK
	for i, hc := range s.healthChecks {
		response.Checks[hc.Name] = results[i]
		if results[i].Status == "down" {
			response.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}

	if err := c.JSON(code, response); err != nil {
		return fmt.Errorf("failed to send readiness response: %w", err)
	}
	return nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
