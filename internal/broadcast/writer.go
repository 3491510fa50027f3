package broadcast

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/livepoll/internal/metrics"
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultQueueSize    = 16
	pingInterval        = 30 * time.Second
)

type clientWriter struct {
	sink         Sink
	clock        clockwork.Clock
	writeTimeout time.Duration
	sendChannel  chan []byte
	doneChannel  chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	onFailure    func(reason string)
}

func newClientWriter(sink Sink, clock clockwork.Clock, queueSize int, writeTimeout time.Duration, onFailure func(reason string)) *clientWriter {
	cw := &clientWriter{
		sink:         sink,
		clock:        clock,
		writeTimeout: writeTimeout,
		sendChannel:  make(chan []byte, queueSize),
		doneChannel:  make(chan struct{}),
		onFailure:    onFailure,
	}
	cw.wg.Add(1)
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cw.wg.Done()

	for {
		select {
		case msg := <-cw.sendChannel:
			start := cw.clock.Now()
			cw.updateWriteDeadline()
			if err := cw.sink.WriteMessage(websocket.TextMessage, msg); err != nil {
				cw.fail(evictWriteFailed)
				return
			}
			metrics.WebSocketMessageSendDuration.Observe(cw.clock.Since(start).Seconds())
		case <-ticker.Chan():
			cw.updateWriteDeadline()
			if err := cw.sink.WriteMessage(websocket.PingMessage, nil); err != nil {
				// Ping failed - client likely disconnected
				metrics.WebSocketPingFailures.Inc()
				cw.fail(evictPingFailed)
				return
			}
		case <-cw.doneChannel:
			return
		}
	}
}

// fail runs on the writer goroutine, so the callback must not wait for it.
func (cw *clientWriter) fail(reason string) {
	select {
	case <-cw.doneChannel:
		return
	default:
	}
	if cw.onFailure != nil {
		cw.onFailure(reason)
	}
}

// enqueue hands msg to the writer without blocking. Returns false if the queue is full or
// the writer has stopped.
func (cw *clientWriter) enqueue(msg []byte) bool {
	select {
	case <-cw.doneChannel:
		return false
	default:
	}

	select {
	case cw.sendChannel <- msg:
		return true
	default:
		return false
	}
}

// terminate signals the writer and closes the sink without waiting. Closing the sink unblocks
// any in-flight write.
func (cw *clientWriter) terminate() {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)
		_ = cw.sink.Close()
	})
}

func (cw *clientWriter) stop() {
	cw.terminate()
	cw.wg.Wait()
}

// stopGraceful sends a WebSocket close frame with reason before closing. The close frame is
// only written if no other stop path got there first.
func (cw *clientWriter) stopGraceful(reason string) {
	first := false
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)
		first = true
	})

	// Wait for run goroutine to exit before writing close frame
	// This prevents concurrent writes to the WebSocket connection
	cw.wg.Wait()
	if !first {
		return
	}

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	cw.updateWriteDeadline()
	_ = cw.sink.WriteMessage(websocket.CloseMessage, closeMsg)
	_ = cw.sink.Close()
}

func (cw *clientWriter) updateWriteDeadline() {
	_ = cw.sink.SetWriteDeadline(cw.clock.Now().Add(cw.writeTimeout))
}
