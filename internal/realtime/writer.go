package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeDeadline     = 5 * time.Second
	messageBufferSize = 16
)

// connWriter serializes all writes to one socket through a single goroutine.
// gorilla/websocket allows at most one concurrent writer per connection, so
// broadcasts and heartbeat pings both funnel through here.
type connWriter struct {
	sock     *websocket.Conn
	sendCh   chan []byte
	pingCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	failOnce sync.Once
	onFail   func()
	wg       sync.WaitGroup
}

// newConnWriter starts the write goroutine. onFail is invoked at most once,
// asynchronously, when a write or ping fails; the hub uses it to evict the
// connection without waiting for the next heartbeat sweep.
func newConnWriter(sock *websocket.Conn, onFail func()) *connWriter {
	cw := &connWriter{
		sock:   sock,
		sendCh: make(chan []byte, messageBufferSize),
		pingCh: make(chan struct{}, 1),
		doneCh: make(chan struct{}),
		onFail: onFail,
	}
	cw.wg.Add(1)
	go cw.run()
	return cw
}

func (cw *connWriter) run() {
	defer cw.wg.Done()

	for {
		select {
		case msg, ok := <-cw.sendCh:
			if !ok {
				return
			}
			_ = cw.sock.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := cw.sock.WriteMessage(websocket.TextMessage, msg); err != nil {
				cw.fail()
				return
			}
		case <-cw.pingCh:
			_ = cw.sock.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := cw.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				cw.fail()
				return
			}
		case <-cw.doneCh:
			return
		}
	}
}

func (cw *connWriter) fail() {
	cw.failOnce.Do(func() {
		if cw.onFail != nil {
			go cw.onFail()
		}
	})
}

// enqueue hands a serialized frame to the write goroutine. Returns false
// when the buffer is full (slow client) or the writer has stopped.
func (cw *connWriter) enqueue(msg []byte) bool {
	select {
	case cw.sendCh <- msg:
		return true
	case <-cw.doneCh:
		return false
	default:
		return false
	}
}

// ping schedules a liveness probe. A probe already in flight is enough, so
// a full ping channel is not an error.
func (cw *connWriter) ping() {
	select {
	case cw.pingCh <- struct{}{}:
	case <-cw.doneCh:
	default:
	}
}

// stop terminates the socket without a close frame (dead-peer eviction).
func (cw *connWriter) stop() {
	cw.stopOnce.Do(func() {
		close(cw.doneCh)
		_ = cw.sock.Close()
	})
	cw.wg.Wait()
}

// stopGraceful sends a close frame before closing, so well-behaved clients
// treat the shutdown as intentional and do not reconnect.
func (cw *connWriter) stopGraceful(code int, reason string) {
	cw.stopOnce.Do(func() {
		close(cw.doneCh)
		// The run goroutine must exit before another goroutine may write.
		cw.wg.Wait()

		msg := websocket.FormatCloseMessage(code, reason)
		_ = cw.sock.SetWriteDeadline(time.Now().Add(writeDeadline))
		_ = cw.sock.WriteMessage(websocket.CloseMessage, msg)
		_ = cw.sock.Close()
	})
	cw.wg.Wait()
}
