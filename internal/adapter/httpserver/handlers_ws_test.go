package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/livepoll/internal/adapter/sqlite"
	"github.com/pscheid92/livepoll/internal/app"
	"github.com/pscheid92/livepoll/internal/broadcast"
	"github.com/pscheid92/livepoll/internal/domain"
	"github.com/pscheid92/livepoll/internal/platform/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type liveStack struct {
	server      *httptest.Server
	repo        domain.PollRepository
	service     *app.Service
	broadcaster *broadcast.Broadcaster
}

// newLiveStack wires the real service, SQLite storage and broadcaster behind an HTTP server.
func newLiveStack(t *testing.T, opts ...serverOption) *liveStack {
	t.Helper()

	db, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := clockwork.NewRealClock()
	broadcaster := broadcast.NewBroadcaster(clock, 16, time.Second)
	repo := sqlite.NewPollRepo(db, clock)
	service := app.NewService(repo, broadcaster, 64, time.Minute)

	ts := httptest.NewServer(newTestServer(t, service, broadcaster, opts...).Handler())
	t.Cleanup(func() {
		broadcaster.Stop()
		ts.Close()
	})

	return &liveStack{server: ts, repo: repo, service: service, broadcaster: broadcaster}
}

func (l *liveStack) dial(t *testing.T, pollID string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(l.server.URL, "http") + "/ws/polls/" + pollID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func readSnapshot(t *testing.T, conn *websocket.Conn) domain.PollSnapshot {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, messageType)

	var snapshot domain.PollSnapshot
	require.NoError(t, json.Unmarshal(data, &snapshot))
	return snapshot
}

func (l *liveStack) createPoll(t *testing.T) domain.PollSnapshot {
	t.Helper()
	poll, err := l.service.CreatePoll(context.Background(), "Lunch?", []string{"pizza", "sushi"})
	require.NoError(t, err)
	return poll
}

func (l *liveStack) vote(t *testing.T, pollID, option string) {
	t.Helper()
	resp, err := http.Post(l.server.URL+"/polls/"+pollID+"/vote", "application/json", strings.NewReader(`{"option":"`+option+`"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebSocket_ReceivesCurrentSnapshotThenUpdates(t *testing.T) {
	stack := newLiveStack(t)
	poll := stack.createPoll(t)
	_, err := stack.service.CastVote(context.Background(), poll.ID, "sushi")
	require.NoError(t, err)

	conn, _, err := stack.dial(t, poll.ID)
	require.NoError(t, err)

	initial := readSnapshot(t, conn)
	assert.Equal(t, map[string]int{"pizza": 0, "sushi": 1}, initial.Options)
	assert.EqualValues(t, 1, initial.Version)

	stack.vote(t, poll.ID, "pizza")
	stack.vote(t, poll.ID, "pizza")

	first := readSnapshot(t, conn)
	second := readSnapshot(t, conn)
	assert.Equal(t, map[string]int{"pizza": 1, "sushi": 1}, first.Options)
	assert.Equal(t, map[string]int{"pizza": 2, "sushi": 1}, second.Options)
	assert.Equal(t, poll.ID, second.ID)
	assert.Equal(t, "Lunch?", second.Question)
}

func TestWebSocket_InitialSnapshotIncludesVotesFromOtherInstances(t *testing.T) {
	stack := newLiveStack(t)
	poll := stack.createPoll(t)

	cached, err := stack.service.GetPoll(context.Background(), poll.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, cached.Version)

	// A second instance sharing storage; its publishes never reach this one.
	otherBroadcaster := broadcast.NewBroadcaster(clockwork.NewRealClock(), 0, 0)
	t.Cleanup(otherBroadcaster.Stop)
	other := app.NewService(stack.repo, otherBroadcaster, 64, time.Minute)
	_, err = other.CastVote(context.Background(), poll.ID, "sushi")
	require.NoError(t, err)

	conn, _, err := stack.dial(t, poll.ID)
	require.NoError(t, err)

	initial := readSnapshot(t, conn)
	assert.EqualValues(t, 1, initial.Version)
	assert.Equal(t, map[string]int{"pizza": 0, "sushi": 1}, initial.Options)

	resp, err := http.Get(stack.server.URL + "/polls/" + poll.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	var fetched domain.PollSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fetched))
	assert.EqualValues(t, 1, fetched.Version, "priming refreshes the read cache")
}

func TestWebSocket_AllSessionsOfAPollReceiveUpdates(t *testing.T) {
	stack := newLiveStack(t)
	poll := stack.createPoll(t)
	other := stack.createPoll(t)

	connA, _, err := stack.dial(t, poll.ID)
	require.NoError(t, err)
	connB, _, err := stack.dial(t, poll.ID)
	require.NoError(t, err)
	connOther, _, err := stack.dial(t, other.ID)
	require.NoError(t, err)

	readSnapshot(t, connA)
	readSnapshot(t, connB)
	readSnapshot(t, connOther)

	stack.vote(t, poll.ID, "pizza")

	assert.Equal(t, 1, readSnapshot(t, connA).Options["pizza"])
	assert.Equal(t, 1, readSnapshot(t, connB).Options["pizza"])

	require.NoError(t, connOther.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = connOther.ReadMessage()
	assert.Error(t, err, "sessions of other polls receive nothing")
}

func TestWebSocket_UnknownPoll(t *testing.T) {
	stack := newLiveStack(t)

	_, resp, err := stack.dial(t, "does-not-exist")

	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocket_ConnectionLimit(t *testing.T) {
	stack := newLiveStack(t, withConfig(func(cfg *config.Config) {
		cfg.MaxConnectionsPerIP = 1
	}))
	poll := stack.createPoll(t)

	conn, _, err := stack.dial(t, poll.ID)
	require.NoError(t, err)
	readSnapshot(t, conn)

	_, resp, err := stack.dial(t, poll.ID)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	conn.Close()
	require.Eventually(t, func() bool {
		_, sessions := stack.broadcaster.Registry().Stats()
		return sessions == 0
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		c, _, err := stack.dial(t, poll.ID)
		if err != nil {
			return false
		}
		c.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond, "slot is released when the client disconnects")
}

func TestWebSocket_ClientDisconnectUnsubscribes(t *testing.T) {
	stack := newLiveStack(t)
	poll := stack.createPoll(t)

	conn, _, err := stack.dial(t, poll.ID)
	require.NoError(t, err)
	readSnapshot(t, conn)
	polls, sessions := stack.broadcaster.Registry().Stats()
	require.Equal(t, 1, polls)
	require.Equal(t, 1, sessions)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ignored")))
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))

	require.Eventually(t, func() bool {
		polls, _ := stack.broadcaster.Registry().Stats()
		return polls == 0
	}, 2*time.Second, 10*time.Millisecond)

	// Votes after the disconnect still succeed.
	stack.vote(t, poll.ID, "pizza")
}

func TestWebSocket_ShutdownSendsCloseFrame(t *testing.T) {
	stack := newLiveStack(t)
	poll := stack.createPoll(t)

	conn, _, err := stack.dial(t, poll.ID)
	require.NoError(t, err)
	readSnapshot(t, conn)

	stack.broadcaster.Stop()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	assert.Equal(t, "server shutting down", closeErr.Text)

	late, _, err := stack.dial(t, poll.ID)
	require.NoError(t, err)
	require.NoError(t, late.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = late.ReadMessage()
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code, "sessions opened after shutdown are refused")
}
