package client

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innkeep/innkeep/internal/realtime"
)

// newWSServer runs a WebSocket endpoint whose per-connection behavior is
// supplied by the test. Returns the ws:// URL and a counter of upgrade
// attempts.
func newWSServer(t *testing.T, onConn func(sock *ws.Conn)) (string, *atomic.Int32) {
	t.Helper()
	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	var dials atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		sock, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		onConn(sock)
	}))
	t.Cleanup(func() { srv.Close() })

	return "ws" + strings.TrimPrefix(srv.URL, "http"), &dials
}

// holdOpen reads until the peer goes away, answering pings implicitly.
func holdOpen(sock *ws.Conn) {
	for {
		if _, _, err := sock.ReadMessage(); err != nil {
			return
		}
	}
}

func TestController_DispatchesInvalidations(t *testing.T) {
	url, _ := newWSServer(t, func(sock *ws.Conn) {
		// Wait for the handshake, then push one known, one malformed, and
		// one unknown-domain event.
		_, _, _ = sock.ReadMessage()
		_ = sock.WriteJSON(realtime.NewEnvelope(realtime.DomainRooms, time.Now()))
		_ = sock.WriteMessage(ws.TextMessage, []byte(`{broken json`))
		_ = sock.WriteJSON(realtime.NewEnvelope(realtime.Domain("mystery"), time.Now()))
		holdOpen(sock)
	})

	inv := &fakeInvalidator{}
	ctrl := New(Config{URL: url, UserID: "u1", BranchID: "b1"}, inv, clockwork.NewRealClock())
	t.Cleanup(ctrl.Close)
	ctrl.Start()

	require.Eventually(t, func() bool {
		keys, all := inv.calls()
		return len(keys) == 1 && all == 1
	}, 2*time.Second, 5*time.Millisecond)

	keys, _ := inv.calls()
	assert.Equal(t, []string{"rooms", "dashboard-metrics"}, keys[0],
		"malformed frames must be skipped without breaking dispatch")
}

func TestController_SendsHandshakeOnOpen(t *testing.T) {
	received := make(chan realtime.Handshake, 1)
	url, _ := newWSServer(t, func(sock *ws.Conn) {
		_, data, err := sock.ReadMessage()
		if err != nil {
			return
		}
		if hs, ok := realtime.ParseHandshake(data); ok {
			received <- hs
		}
		holdOpen(sock)
	})

	ctrl := New(Config{URL: url, UserID: "front-desk", BranchID: "branch-2"}, &fakeInvalidator{}, clockwork.NewRealClock())
	t.Cleanup(ctrl.Close)
	ctrl.Start()

	select {
	case hs := <-received:
		assert.Equal(t, "front-desk", hs.UserID)
		assert.Equal(t, "branch-2", hs.BranchID)
	case <-time.After(2 * time.Second):
		t.Fatal("handshake never arrived")
	}
}

func TestController_NormalClosureSuppressesReconnect(t *testing.T) {
	url, dials := newWSServer(t, func(sock *ws.Conn) {
		msg := ws.FormatCloseMessage(ws.CloseNormalClosure, "done")
		_ = sock.WriteControl(ws.CloseMessage, msg, time.Now().Add(time.Second))
		_, _, _ = sock.ReadMessage() // wait for the close echo
		_ = sock.Close()
	})

	clock := clockwork.NewFakeClock()
	ctrl := New(Config{URL: url}, &fakeInvalidator{}, clock)
	t.Cleanup(ctrl.Close)
	ctrl.Start()

	require.Eventually(t, func() bool { return ctrl.State() == StateClosed },
		2*time.Second, 5*time.Millisecond)

	// No timer exists, so even a huge advance produces no second dial.
	clock.Advance(time.Hour)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), dials.Load())
}

func TestController_AbnormalCloseReconnectsAfterTransportDelay(t *testing.T) {
	url, dials := newWSServer(t, func(sock *ws.Conn) {
		msg := ws.FormatCloseMessage(ws.CloseInternalServerErr, "boom")
		_ = sock.WriteControl(ws.CloseMessage, msg, time.Now().Add(time.Second))
		_ = sock.Close()
	})

	clock := clockwork.NewFakeClock()
	ctrl := New(Config{URL: url}, &fakeInvalidator{}, clock)
	t.Cleanup(ctrl.Close)
	ctrl.Start()

	// The reconnect timer appears once the close is processed.
	clock.BlockUntil(1)
	assert.Equal(t, int32(1), dials.Load())

	// 2s in: still inside the 3s transport delay.
	clock.Advance(2 * time.Second)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), dials.Load())

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return dials.Load() == 2 },
		2*time.Second, 5*time.Millisecond)
}

func TestController_SetupFailureRetriesAfterLongerDelay(t *testing.T) {
	// A server that never upgrades makes every dial a setup failure.
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "no websocket here", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	clock := clockwork.NewFakeClock()
	ctrl := New(Config{URL: url}, &fakeInvalidator{}, clock)
	t.Cleanup(ctrl.Close)
	ctrl.Start()

	clock.BlockUntil(1)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, StateClosed, ctrl.State(),
		"a failed dial must land in closed, not linger in connecting")

	// 4s in: inside the 5s setup delay, no retry yet.
	clock.Advance(4 * time.Second)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), hits.Load())

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return hits.Load() == 2 },
		2*time.Second, 5*time.Millisecond)
}

func TestController_CloseCancelsPendingReconnect(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	clock := clockwork.NewFakeClock()
	ctrl := New(Config{URL: url}, &fakeInvalidator{}, clock)
	ctrl.Start()

	clock.BlockUntil(1)
	ctrl.Close()

	clock.Advance(time.Hour)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), hits.Load(), "no timer may fire after teardown")
}

func TestController_RapidReschedulesCollapseToOneAttempt(t *testing.T) {
	url, dials := newWSServer(t, holdOpen)

	clock := clockwork.NewFakeClock()
	ctrl := New(Config{URL: url}, &fakeInvalidator{}, clock)
	t.Cleanup(ctrl.Close)

	// Two close events in quick succession schedule twice; the second
	// must replace the first.
	ctrl.scheduleReconnect(transportRetryDelay, "transport")
	ctrl.scheduleReconnect(transportRetryDelay, "transport")

	clock.BlockUntil(1)
	clock.Advance(transportRetryDelay)

	require.Eventually(t, func() bool { return dials.Load() == 1 },
		2*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), dials.Load(), "exactly one pending attempt is allowed")
}

func TestController_DisabledNeverConnects(t *testing.T) {
	url, dials := newWSServer(t, holdOpen)

	ctrl := New(Config{URL: url, Disabled: true}, &fakeInvalidator{}, clockwork.NewRealClock())
	t.Cleanup(ctrl.Close)
	ctrl.Start()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), dials.Load())
	assert.Equal(t, StateIdle, ctrl.State())
}

func TestController_CloseSendsNormalClosure(t *testing.T) {
	codes := make(chan int, 1)
	url, _ := newWSServer(t, func(sock *ws.Conn) {
		for {
			if _, _, err := sock.ReadMessage(); err != nil {
				if closeErr, ok := err.(*ws.CloseError); ok {
					codes <- closeErr.Code
				}
				return
			}
		}
	})

	ctrl := New(Config{URL: url}, &fakeInvalidator{}, clockwork.NewRealClock())
	ctrl.Start()

	require.Eventually(t, func() bool { return ctrl.State() == StateOpen },
		2*time.Second, 5*time.Millisecond)
	ctrl.Close()

	select {
	case code := <-codes:
		assert.Equal(t, ws.CloseNormalClosure, code,
			"teardown must look intentional to the server")
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw a close frame")
	}
}
