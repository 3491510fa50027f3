package httpserver

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pscheid92/livepoll/internal/metrics"
	apperrors "github.com/pscheid92/livepoll/internal/platform/errors"
	"golang.org/x/time/rate"
)

const rateLimiterExpiry = 5 * time.Minute

// newVoteLimiter gives every client IP a token bucket per poll, so heavy voting on one poll
// does not lock the client out of another.
func newVoteLimiter(ratePerSecond float64, burst int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP() + "|" + c.Param("id"), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			metrics.VotesTotal.WithLabelValues("rate_limited").Inc()
			return apperrors.RateLimitedError("rate limit exceeded").
				WithField("remote_ip", c.RealIP()).
				WithField("poll_id", c.Param("id"))
		},
	})
}
