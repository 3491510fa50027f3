package httpserver

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/livepoll/internal/domain"
	"github.com/pscheid92/livepoll/internal/metrics"
	apperrors "github.com/pscheid92/livepoll/internal/platform/errors"
)

const (
	// pongWait must exceed the broadcaster's ping interval.
	pongWait       = 60 * time.Second
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // poll pages may be embedded anywhere
	},
}

func (s *Server) handleWebSocket(c echo.Context) error {
	ctx := c.Request().Context()
	pollID := c.Param("id")

	if _, err := s.polls.GetPoll(ctx, pollID); err != nil {
		return pollError(err, pollID)
	}

	ip := c.RealIP()
	if ok, reason := s.limits.Acquire(ip); !ok {
		metrics.WebSocketConnectionsRejected.WithLabelValues(string(reason)).Inc()
		return apperrors.UnavailableError("too many connections").
			WithField("reason", string(reason)).
			WithField("poll_id", pollID)
	}
	defer s.limits.Release(ip)

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already answered the request.
		slog.DebugContext(ctx, "WebSocket upgrade failed", "poll_id", pollID, "remote_ip", ip, "error", err)
		return nil
	}

	session, err := s.sessions.OnSessionOpened(pollID, conn)
	if err != nil {
		if errors.Is(err, domain.ErrBroadcasterStopped) {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
		}
		_ = conn.Close()
		return nil
	}
	defer s.sessions.OnSessionClosed(session)

	logger := slog.With("poll_id", pollID, "session_id", session.ID().String(), "remote_ip", ip)
	logger.DebugContext(ctx, "WebSocket session opened")

	// Read the snapshot only after subscribing so no mutation falls in between. A concurrent
	// publish may still overtake it; the session drops whichever version arrives second.
	// Storage is read directly since the cache may lag behind other instances.
	if snapshot, err := s.polls.LoadPoll(ctx, pollID); err != nil {
		logger.WarnContext(ctx, "Failed to load initial snapshot", "error", err)
	} else {
		s.sessions.Prime(session, snapshot)
	}

	readUntilClosed(conn)

	metrics.WebSocketConnectionDuration.Observe(time.Since(session.OpenedAt()).Seconds())
	logger.DebugContext(ctx, "WebSocket session closed")
	return nil
}

// readUntilClosed keeps the read deadline fresh on pongs and discards anything the client sends.
// It returns once the connection fails or is closed from either side.
func readUntilClosed(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
