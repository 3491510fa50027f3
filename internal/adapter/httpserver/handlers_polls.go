package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/livepoll/internal/domain"
	apperrors "github.com/pscheid92/livepoll/internal/platform/errors"
)

type createPollRequest struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

type voteRequest struct {
	Option string `json:"option"`
}

type voteResponse struct {
	Message string              `json:"message"`
	Poll    domain.PollSnapshot `json:"poll"`
}

func (s *Server) registerPollRoutes() {
	s.echo.POST("/polls", s.handleCreatePoll)
	s.echo.GET("/polls/:id", s.handleGetPoll)
	s.echo.POST("/polls/:id/vote", s.handleVote, newVoteLimiter(s.config.VotesPerSecond, s.config.VoteBurst))
}

func (s *Server) handleCreatePoll(c echo.Context) error {
	var req createPollRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body", err)
	}

	snapshot, err := s.polls.CreatePoll(c.Request().Context(), req.Question, req.Options)
	if err != nil {
		return pollError(err, "")
	}

	if err := c.JSON(http.StatusCreated, snapshot); err != nil {
		return fmt.Errorf("failed to write poll response: %w", err)
	}
	return nil
}

func (s *Server) handleGetPoll(c echo.Context) error {
	pollID := c.Param("id")

	snapshot, err := s.polls.GetPoll(c.Request().Context(), pollID)
	if err != nil {
		return pollError(err, pollID)
	}

	if err := c.JSON(http.StatusOK, snapshot); err != nil {
		return fmt.Errorf("failed to write poll response: %w", err)
	}
	return nil
}

func (s *Server) handleVote(c echo.Context) error {
	pollID := c.Param("id")

	var req voteRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body", err).WithField("poll_id", pollID)
	}

	snapshot, err := s.polls.CastVote(c.Request().Context(), pollID, req.Option)
	if err != nil {
		return pollError(err, pollID).WithField("option", req.Option)
	}

	resp := voteResponse{Message: "Vote recorded successfully.", Poll: snapshot}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write vote response: %w", err)
	}
	return nil
}

// pollError maps domain errors onto structured HTTP errors.
func pollError(err error, pollID string) *apperrors.Error {
	var mapped *apperrors.Error
	switch {
	case errors.Is(err, domain.ErrPollNotFound):
		mapped = apperrors.NotFoundError("Poll not found", err)
	case errors.Is(err, domain.ErrInvalidOption):
		mapped = apperrors.ValidationError("Invalid option", err)
	case errors.Is(err, domain.ErrInvalidPoll):
		mapped = apperrors.ValidationError(err.Error(), err)
	default:
		mapped = apperrors.InternalError("internal server error", err)
	}
	if pollID != "" {
		mapped = mapped.WithField("poll_id", pollID)
	}
	return mapped
}
