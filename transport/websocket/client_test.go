package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// newTestServer starts an upgrading server that hands every connection to handle.
func newTestServer(t *testing.T, handle func(conn *websocket.Conn)) string {
	t.Helper()

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// drain keeps a server-side connection open until the client goes away.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// startClient builds a client and returns a func that starts it; the
// client is stopped when the test ends.
func startClient(t *testing.T, opts Options) (*Client, func()) {
	t.Helper()

	client := NewClient(opts)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return client, func() {
		client.Start(ctx)
	}
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// signal returns a listener that ticks ch without blocking.
func signal(ch chan struct{}) Listener {
	return func(Envelope) {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

type fakeConn struct {
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	written [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, errors.New("fake connection closed")
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, data)
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(Options{URL: "ws://localhost:3000"})

	if client.URL() != "ws://localhost:3000" {
		t.Errorf("Expected URL ws://localhost:3000, got %s", client.URL())
	}
	if client.reconnectDelay != defaultReconnectDelay {
		t.Errorf("Expected reconnect delay %v, got %v", defaultReconnectDelay, client.reconnectDelay)
	}
	if client.heartbeatInterval != defaultHeartbeatInterval {
		t.Errorf("Expected heartbeat interval %v, got %v", defaultHeartbeatInterval, client.heartbeatInterval)
	}
	if client.dial == nil {
		t.Error("Expected default dialer to be set")
	}
	if client.Connected() {
		t.Error("New client should not be connected")
	}
}

func TestClientEmitsConnected(t *testing.T) {
	url := newTestServer(t, drain)

	client, start := startClient(t, Options{URL: url})
	connected := make(chan struct{}, 1)
	client.On(EventConnected, signal(connected))
	start()

	waitFor(t, connected, "connected event")
	if !client.Connected() {
		t.Error("Client should report connected after the connected event")
	}
}

func TestOnConnectedWhileOpenFiresImmediately(t *testing.T) {
	url := newTestServer(t, drain)

	client, start := startClient(t, Options{URL: url})
	connected := make(chan struct{}, 1)
	client.On(EventConnected, signal(connected))
	start()
	waitFor(t, connected, "connected event")

	called := false
	client.On(EventConnected, func(e Envelope) {
		if e.Action != EventConnected {
			t.Errorf("Expected action %s, got %s", EventConnected, e.Action)
		}
		called = true
	})

	if !called {
		t.Error("Late connected listener should run before On returns")
	}
}

func TestLoginResponseDispatchOrder(t *testing.T) {
	t.Run("ok status", func(t *testing.T) {
		url := newTestServer(t, func(conn *websocket.Conn) {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"login_response","status":"ok"}`))
			drain(conn)
		})

		client, start := startClient(t, Options{URL: url})

		var mu sync.Mutex
		var order []string
		record := func(name string) Listener {
			return func(Envelope) {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
			}
		}
		done := make(chan struct{}, 1)

		client.On(ActionLoginResponse, record("login_response#1"))
		client.On(ActionLoginResponse, record("login_response#2"))
		client.On(EventLoginError, record("login_error"))
		client.On(EventLoginSuccess, record("login_success"))
		client.On(EventLoginSuccess, signal(done))
		start()

		waitFor(t, done, "login_success")

		mu.Lock()
		defer mu.Unlock()
		expected := []string{"login_response#1", "login_response#2", "login_success"}
		if strings.Join(order, ",") != strings.Join(expected, ",") {
			t.Errorf("Expected dispatch order %v, got %v", expected, order)
		}
	})

	t.Run("rejected status", func(t *testing.T) {
		url := newTestServer(t, func(conn *websocket.Conn) {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"login_response","status":"error","message":"bad key"}`))
			drain(conn)
		})

		client, start := startClient(t, Options{URL: url})
		failed := make(chan LoginResponse, 1)
		Handle(client, EventLoginError, func(r LoginResponse) {
			failed <- r
		})
		var succeeded atomic.Bool
		client.On(EventLoginSuccess, func(Envelope) { succeeded.Store(true) })
		start()

		select {
		case resp := <-failed:
			if resp.Message != "bad key" {
				t.Errorf("Expected message 'bad key', got %q", resp.Message)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for login_error")
		}
		if succeeded.Load() {
			t.Error("login_success should not fire for a rejected login")
		}
	})
}

func TestInboundFiltering(t *testing.T) {
	url := newTestServer(t, func(conn *websocket.Conn) {
		frames := []string{
			`not json at all`,
			`{"action":"pong"}`,
			`{"action":"mystery"}`,
			`{"status":"ok"}`,
			`{"action":"number_drawn","number":"seven"}`,
			`{"action":"number_drawn","number":42}`,
		}
		for _, f := range frames {
			conn.WriteMessage(websocket.TextMessage, []byte(f))
		}
		drain(conn)
	})

	client, start := startClient(t, Options{URL: url})

	var pongs, disconnects atomic.Int32
	client.On(ActionPong, func(Envelope) { pongs.Add(1) })
	client.On(EventDisconnected, func(Envelope) { disconnects.Add(1) })

	drawn := make(chan int, 4)
	Handle(client, ActionNumberDrawn, func(n NumberDrawn) {
		drawn <- n.Number
	})
	start()

	select {
	case n := <-drawn:
		if n != 42 {
			t.Errorf("Expected first valid draw to be 42, got %d", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for number_drawn")
	}

	if pongs.Load() != 0 {
		t.Errorf("pong should be swallowed, listener ran %d times", pongs.Load())
	}
	if disconnects.Load() != 0 {
		t.Error("Malformed frames must not drop the connection")
	}
	if !client.Connected() {
		t.Error("Client should still be connected")
	}
}

func TestSendValidation(t *testing.T) {
	client := NewClient(Options{URL: "ws://127.0.0.1:1"})

	if err := client.Send(ActionPing, nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
	if err := client.Login("abc"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected from Login, got %v", err)
	}
	if err := client.Send(EventConnected, nil); !errors.Is(err, ErrLocalAction) {
		t.Errorf("Expected ErrLocalAction, got %v", err)
	}
	if err := client.Send(ActionNumberDrawn, nil); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("Expected ErrUnknownAction for a server-only action, got %v", err)
	}
	for _, n := range []int{0, -3, MaxBall + 1} {
		if err := client.DrawNumber(n); !errors.Is(err, ErrInvalidNumber) {
			t.Errorf("DrawNumber(%d): expected ErrInvalidNumber, got %v", n, err)
		}
	}
	if err := client.DrawNumber(MaxBall); !errors.Is(err, ErrNotConnected) {
		t.Errorf("DrawNumber(%d): expected ErrNotConnected, got %v", MaxBall, err)
	}
}

func TestSendFlattensPayload(t *testing.T) {
	received := make(chan map[string]any, 4)
	url := newTestServer(t, func(conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg map[string]any
			if err := json.Unmarshal(data, &msg); err == nil {
				received <- msg
			}
		}
	})

	client, start := startClient(t, Options{URL: url})
	connected := make(chan struct{}, 1)
	client.On(EventConnected, signal(connected))
	start()
	waitFor(t, connected, "connected event")

	if err := client.Login("key-123"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := client.RegisterRandom(0); err != nil {
		t.Fatalf("RegisterRandom failed: %v", err)
	}

	expect := []map[string]any{
		{"action": "login", "key": "key-123"},
		{"action": "register_random", "count": float64(10)},
	}
	for _, want := range expect {
		select {
		case got := <-received:
			for k, v := range want {
				if got[k] != v {
					t.Errorf("Expected %s=%v, got %v (message %v)", k, v, got[k], got)
				}
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %v", want)
		}
	}
}

func TestHeartbeatSendsPing(t *testing.T) {
	pinged := make(chan struct{}, 1)
	url := newTestServer(t, func(conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == `{"action":"ping"}` {
				select {
				case pinged <- struct{}{}:
				default:
				}
			}
		}
	})

	_, start := startClient(t, Options{URL: url, HeartbeatInterval: 20 * time.Millisecond})
	start()

	waitFor(t, pinged, "heartbeat ping")
}

func TestHeartbeatStopsOnDisconnect(t *testing.T) {
	fc := newFakeConn()
	client := NewClient(Options{
		URL:               "ws://fake",
		HeartbeatInterval: 5 * time.Millisecond,
		ReconnectDelay:    time.Hour,
		Dial: func(ctx context.Context, url string) (Conn, error) {
			return fc, nil
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connected := make(chan struct{}, 1)
	disconnected := make(chan struct{}, 1)
	client.On(EventConnected, signal(connected))
	client.On(EventDisconnected, signal(disconnected))
	client.Start(ctx)
	waitFor(t, connected, "connected event")

	time.Sleep(30 * time.Millisecond)
	fc.Close()
	waitFor(t, disconnected, "disconnected event")
	// let a tick that passed the connected check finish its write
	time.Sleep(10 * time.Millisecond)

	fc.mu.Lock()
	before := len(fc.written)
	fc.mu.Unlock()
	if before == 0 {
		t.Fatal("Expected pings while connected")
	}

	time.Sleep(50 * time.Millisecond)

	fc.mu.Lock()
	after := len(fc.written)
	fc.mu.Unlock()
	if after != before {
		t.Errorf("Expected no pings after disconnect, went from %d to %d", before, after)
	}
	if client.Connected() {
		t.Error("Client should not be connected")
	}
}

func TestReconnectAfterServerClose(t *testing.T) {
	var accepted atomic.Int32
	url := newTestServer(t, func(conn *websocket.Conn) {
		if accepted.Add(1) == 1 {
			return
		}
		drain(conn)
	})

	client, start := startClient(t, Options{URL: url, ReconnectDelay: 30 * time.Millisecond})

	var connects, disconnects atomic.Int32
	reconnected := make(chan struct{}, 1)
	client.On(EventDisconnected, func(Envelope) { disconnects.Add(1) })
	client.On(EventConnected, func(Envelope) {
		if connects.Add(1) == 2 {
			reconnected <- struct{}{}
		}
	})
	start()

	waitFor(t, reconnected, "second connection")

	if disconnects.Load() != 1 {
		t.Errorf("Expected 1 disconnected event, got %d", disconnects.Load())
	}
	if accepted.Load() != 2 {
		t.Errorf("Expected server to accept 2 connections, got %d", accepted.Load())
	}
}

func TestRepeatedClosesScheduleOneReconnect(t *testing.T) {
	var dials atomic.Int32
	client := NewClient(Options{
		URL:            "ws://fake",
		ReconnectDelay: 40 * time.Millisecond,
		Dial: func(ctx context.Context, url string) (Conn, error) {
			dials.Add(1)
			return newFakeConn(), nil
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var disconnects atomic.Int32
	client.On(EventDisconnected, func(Envelope) { disconnects.Add(1) })

	client.handleClose(ctx, nil)
	client.handleClose(ctx, nil)
	client.handleClose(ctx, nil)

	client.mu.Lock()
	pending := client.reconnect != nil
	client.mu.Unlock()
	if !pending {
		t.Fatal("Expected a pending reconnect timer")
	}

	time.Sleep(200 * time.Millisecond)

	if dials.Load() != 1 {
		t.Errorf("Expected exactly 1 reconnect dial, got %d", dials.Load())
	}
	if disconnects.Load() != 3 {
		t.Errorf("Expected 3 disconnected events, got %d", disconnects.Load())
	}
	if !client.Connected() {
		t.Error("Client should be connected after the reconnect")
	}
}

func TestStaleCloseIgnored(t *testing.T) {
	current := newFakeConn()
	client := NewClient(Options{
		URL: "ws://fake",
		Dial: func(ctx context.Context, url string) (Conn, error) {
			return current, nil
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connected := make(chan struct{}, 1)
	client.On(EventConnected, signal(connected))
	client.Start(ctx)
	waitFor(t, connected, "connected event")

	client.handleClose(ctx, newFakeConn())

	if !client.Connected() {
		t.Error("Close of a superseded connection should not affect the current one")
	}
	client.mu.Lock()
	pending := client.reconnect != nil
	client.mu.Unlock()
	if pending {
		t.Error("Stale close should not arm a reconnect")
	}
}

func TestShutdownStopsReconnecting(t *testing.T) {
	var dials atomic.Int32
	client := NewClient(Options{
		URL:            "ws://fake",
		ReconnectDelay: 20 * time.Millisecond,
		Dial: func(ctx context.Context, url string) (Conn, error) {
			dials.Add(1)
			return nil, errors.New("connection refused")
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	client.Start(ctx)

	time.Sleep(70 * time.Millisecond)
	cancel()
	time.Sleep(30 * time.Millisecond)
	settled := dials.Load()
	time.Sleep(100 * time.Millisecond)

	if settled < 2 {
		t.Errorf("Expected failed dials to be retried, got %d attempts", settled)
	}
	if dials.Load() != settled {
		t.Errorf("Expected no dials after cancel, went from %d to %d", settled, dials.Load())
	}
	if client.Connected() {
		t.Error("Client should not be connected")
	}
}

func TestEmitRecoversListenerPanic(t *testing.T) {
	client := NewClient(Options{})

	var calls []string
	client.On(ActionGameStarted, func(Envelope) { calls = append(calls, "first") })
	client.On(ActionGameStarted, func(Envelope) { panic("listener bug") })
	client.On(ActionGameStarted, func(Envelope) { calls = append(calls, "third") })

	client.Emit(ActionGameStarted, Envelope{})

	if strings.Join(calls, ",") != "first,third" {
		t.Errorf("Expected siblings of a failing listener to run, got %v", calls)
	}
}

func TestHandleIgnoresMismatchedPayload(t *testing.T) {
	client := NewClient(Options{})

	called := false
	Handle(client, ActionNumberDrawn, func(NumberDrawn) { called = true })
	client.Emit(ActionNumberDrawn, Envelope{Payload: &SalesCleared{}})

	if called {
		t.Error("Typed handler should not run for a different payload type")
	}

	client.Emit(ActionNumberDrawn, Envelope{Payload: &NumberDrawn{Number: 7}})
	if !called {
		t.Error("Typed handler should run for its payload type")
	}
}
