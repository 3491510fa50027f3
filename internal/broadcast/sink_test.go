package broadcast

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var errSinkClosed = errors.New("sink closed")

// fakeSink records text messages. It can be told to fail every write or to block writes until
// it is closed.
type fakeSink struct {
	mu        sync.Mutex
	messages  [][]byte
	deadlines []time.Time
	closed    bool
	fail      bool
	block     bool
	writing   bool
	closeCh   chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{closeCh: make(chan struct{})}
}

func (f *fakeSink) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return errSinkClosed
	}
	if messageType != ws.TextMessage {
		f.mu.Unlock()
		return nil
	}
	if f.fail {
		f.mu.Unlock()
		return errors.New("broken pipe")
	}
	if f.block {
		f.writing = true
		f.mu.Unlock()
		<-f.closeCh
		return errSinkClosed
	}
	f.messages = append(f.messages, append([]byte(nil), data...))
	f.mu.Unlock()
	return nil
}

func (f *fakeSink) SetWriteDeadline(t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadlines = append(f.deadlines, t)
	return nil
}

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.closeCh)
	}
	return nil
}

func (f *fakeSink) Messages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.messages...)
}

func (f *fakeSink) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSink) IsWriting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writing
}

func newTestConnPair(t *testing.T) (server *ws.Conn, client *ws.Conn) {
	t.Helper()
	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	ready := make(chan *ws.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		ready <- conn
	}))
	t.Cleanup(func() { srv.Close() })

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close() })

	serverConn := <-ready
	t.Cleanup(func() { serverConn.Close() })

	return serverConn, clientConn
}
