package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the peer.
	defaultWriteWait = 10 * time.Second

	// Wait before redialing once the connection is gone.
	defaultReconnectDelay = 3 * time.Second

	// Send ping envelopes with this period while connected.
	defaultHeartbeatInterval = 25 * time.Second

	// Maximum message size accepted from the server.
	maxMessageSize = 1 << 20

	// Longest inbound payload echoed into a log line.
	maxLoggedPayload = 256
)

// Conn is the subset of *websocket.Conn the client relies on.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// DialFunc opens a transport connection to url.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// DefaultDial dials with the gorilla default dialer.
func DefaultDial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxMessageSize)
	return conn, nil
}

// Listener receives dispatched envelopes.
type Listener func(Envelope)

// Options configures a Client. Zero durations fall back to the defaults.
type Options struct {
	URL               string
	ReconnectDelay    time.Duration
	HeartbeatInterval time.Duration
	WriteWait         time.Duration
	Dial              DialFunc
	Logger            *zerolog.Logger
}

// Client owns a single server connection, redials it whenever it drops and
// fans inbound envelopes out to registered listeners.
type Client struct {
	url               string
	dial              DialFunc
	reconnectDelay    time.Duration
	heartbeatInterval time.Duration
	writeWait         time.Duration
	logger            zerolog.Logger

	mu        sync.Mutex
	started   bool
	conn      Conn
	connected bool
	reconnect *time.Timer
	heartbeat chan struct{}
	listeners map[Action][]Listener

	// gorilla connections support one concurrent writer
	writeMu sync.Mutex
}

// NewClient creates a client. Nothing is dialed until Start.
func NewClient(opts Options) *Client {
	c := &Client{
		url:               opts.URL,
		dial:              opts.Dial,
		reconnectDelay:    opts.ReconnectDelay,
		heartbeatInterval: opts.HeartbeatInterval,
		writeWait:         opts.WriteWait,
		listeners:         make(map[Action][]Listener),
	}
	if c.dial == nil {
		c.dial = DefaultDial
	}
	if c.reconnectDelay <= 0 {
		c.reconnectDelay = defaultReconnectDelay
	}
	if c.heartbeatInterval <= 0 {
		c.heartbeatInterval = defaultHeartbeatInterval
	}
	if c.writeWait <= 0 {
		c.writeWait = defaultWriteWait
	}
	if opts.Logger != nil {
		c.logger = opts.Logger.With().Str("component", "websocket").Logger()
	} else {
		c.logger = zerolog.Nop()
	}
	return c
}

// URL returns the server address the client dials.
func (c *Client) URL() string {
	return c.url
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Start opens the first connection in the background and keeps reconnecting
// until ctx is cancelled. Calling Start more than once has no effect.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.shutdown()
	}()
	go c.connect(ctx)
}

// Run starts the client and blocks until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	c.Start(ctx)
	<-ctx.Done()
	return nil
}

// connect dials once and, on success, serves the connection until it drops.
func (c *Client) connect(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	c.logger.Info().Str("url", c.url).Msg("connecting")
	conn, err := c.dial(ctx, c.url)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Error().Err(err).Str("url", c.url).Msg("dial failed")
		c.handleClose(ctx, nil)
		return
	}

	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.stopHeartbeatLocked()
	c.conn = conn
	c.connected = true
	stop := make(chan struct{})
	c.heartbeat = stop
	// Snapshot under the lock so a listener registered right after is
	// invoked by On, not twice.
	onConnected := append([]Listener(nil), c.listeners[EventConnected]...)
	c.mu.Unlock()

	c.logger.Info().Str("url", c.url).Msg("connected")
	go c.heartbeatLoop(stop)
	c.dispatch(EventConnected, onConnected, Envelope{Action: EventConnected})

	c.readLoop(ctx, conn)
}

func (c *Client) readLoop(ctx context.Context, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info().Msg("connection closed by server")
			} else {
				c.logger.Warn().Err(err).Msg("connection read failed")
			}
			c.handleClose(ctx, conn)
			return
		}
		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	env, err := Parse(data)
	if err != nil {
		c.logger.Warn().Err(err).Str("payload", truncate(data)).Msg("dropping inbound message")
		return
	}
	if env.Action == ActionPong {
		return
	}

	c.logger.Debug().Str("action", string(env.Action)).Msg("received")
	c.Emit(env.Action, env)

	if env.Action == ActionLoginResponse {
		next := EventLoginError
		if resp, ok := As[LoginResponse](env); ok && resp.OK() {
			next = EventLoginSuccess
		}
		c.Emit(next, Envelope{Action: next, Payload: env.Payload, Raw: env.Raw})
	}
}

// handleClose tears down conn and schedules a redial. conn is nil when the
// dial itself failed. Notifications for a connection that is no longer the
// current one are ignored.
func (c *Client) handleClose(ctx context.Context, conn Conn) {
	c.mu.Lock()
	if conn != nil && c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connected = false
	c.stopHeartbeatLocked()
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	c.logger.Warn().Dur("retry_in", c.reconnectDelay).Msg("disconnected")
	c.Emit(EventDisconnected, Envelope{Action: EventDisconnected})
	c.scheduleReconnect(ctx)
}

// scheduleReconnect arms at most one redial timer at a time.
func (c *Client) scheduleReconnect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ctx.Err() != nil || c.reconnect != nil {
		return
	}
	c.reconnect = time.AfterFunc(c.reconnectDelay, func() {
		c.mu.Lock()
		c.reconnect = nil
		open := c.connected
		c.mu.Unlock()

		if !open {
			c.connect(ctx)
		}
	})
}

func (c *Client) shutdown() {
	c.mu.Lock()
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.stopHeartbeatLocked()
	conn := c.conn
	wasConnected := c.connected
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(c.writeWait))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client shutting down"))
		c.writeMu.Unlock()
		conn.Close()
	}

	c.logger.Info().Msg("stopped")
	if wasConnected {
		c.Emit(EventDisconnected, Envelope{Action: EventDisconnected})
	}
}

func (c *Client) heartbeatLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := c.Send(ActionPing, nil); err != nil {
				c.logger.Debug().Err(err).Msg("heartbeat not sent")
			}
		}
	}
}

func (c *Client) stopHeartbeatLocked() {
	if c.heartbeat != nil {
		close(c.heartbeat)
		c.heartbeat = nil
	}
}

// Send writes {action, ...payload} to the server. While disconnected the
// message is dropped, not queued, and ErrNotConnected is returned.
func (c *Client) Send(action Action, payload any) error {
	if action.IsLocal() {
		return fmt.Errorf("%w: %s", ErrLocalAction, action)
	}
	if !action.IsOutbound() {
		return fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.logger.Debug().Str("action", string(action)).Msg("dropped while disconnected")
		return ErrNotConnected
	}

	data, err := encode(action, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Warn().Err(err).Str("action", string(action)).Msg("write failed")
		return fmt.Errorf("failed to send %s: %w", action, err)
	}
	return nil
}

// On registers l for action. A connected listener added while the client is
// already open is invoked immediately.
func (c *Client) On(action Action, l Listener) {
	if l == nil {
		return
	}

	c.mu.Lock()
	c.listeners[action] = append(c.listeners[action], l)
	fireNow := action == EventConnected && c.connected
	c.mu.Unlock()

	if fireNow {
		c.invoke(action, l, Envelope{Action: EventConnected})
	}
}

// Handle registers a listener that only sees payloads of type T.
func Handle[T any](c *Client, action Action, fn func(T)) {
	c.On(action, func(e Envelope) {
		v, ok := As[T](e)
		if !ok {
			c.logger.Warn().Str("action", string(action)).Msgf("payload is %T", e.Payload)
			return
		}
		fn(v)
	})
}

// Emit invokes every listener registered for action, in registration order.
func (c *Client) Emit(action Action, e Envelope) {
	if e.Action == "" {
		e.Action = action
	}

	c.mu.Lock()
	listeners := append([]Listener(nil), c.listeners[action]...)
	c.mu.Unlock()

	c.dispatch(action, listeners, e)
}

func (c *Client) dispatch(action Action, listeners []Listener, e Envelope) {
	for _, l := range listeners {
		c.invoke(action, l, e)
	}
}

// invoke runs one listener; a panic is logged and does not reach siblings.
func (c *Client) invoke(action Action, l Listener, e Envelope) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Str("action", string(action)).Interface("panic", r).Msg("listener failed")
		}
	}()
	l(e)
}

// Login sends the stored credential to the server.
func (c *Client) Login(key string) error {
	return c.Send(ActionLogin, LoginRequest{Key: key})
}

func (c *Client) StartGame() error {
	return c.Send(ActionStartGame, nil)
}

// DrawNumber announces ball n. Numbers outside 1..MaxBall are rejected
// before anything is sent.
func (c *Client) DrawNumber(n int) error {
	if n < 1 || n > MaxBall {
		return fmt.Errorf("%w: %d", ErrInvalidNumber, n)
	}
	return c.Send(ActionDrawNumber, DrawNumber{Number: n})
}

func (c *Client) UndoLast() error {
	return c.Send(ActionUndoLast, nil)
}

func (c *Client) RegisterTicket(barcode int) error {
	return c.Send(ActionRegisterTicket, RegisterTicket{Barcode: barcode})
}

// RegisterRandom asks the server to mark count random tickets as sold. The
// server treats a non-positive count as 10.
func (c *Client) RegisterRandom(count int) error {
	if count <= 0 {
		count = 10
	}
	return c.Send(ActionRegisterRandom, RegisterRandom{Count: count})
}

func (c *Client) ClearSales() error {
	return c.Send(ActionClearSales, nil)
}

func truncate(data []byte) string {
	if len(data) <= maxLoggedPayload {
		return string(data)
	}
	return string(data[:maxLoggedPayload]) + "..."
}
