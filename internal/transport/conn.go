package transport

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Logger defines the logging interface used by the connection.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

// String returns the state name for logging and the UI facade.
func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Status is a snapshot of the connection for observability.
type Status struct {
	State    State         `json:"state"`
	Attempts int           `json:"attempts"`
	Delay    time.Duration `json:"next_delay"`
	Terminal bool          `json:"terminal"`
}

// MarshalText lets Status.State render as its name in JSON responses.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// FrameHandler receives every raw inbound frame, unmodified. Parse failures
// inside the handler must not feed back into the connection.
type FrameHandler func(raw []byte)

// TokenFunc supplies the session token used to authenticate the channel.
type TokenFunc func(ctx context.Context) (string, error)

// Dialer abstracts websocket dialing so tests can substitute a local server.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader map[string][]string) (*websocket.Conn, error)
}

// gorillaDialer adapts websocket.Dialer to the local interface.
type gorillaDialer struct{ d *websocket.Dialer }

func (g gorillaDialer) DialContext(ctx context.Context, urlStr string, header map[string][]string) (*websocket.Conn, error) {
	conn, _, err := g.d.DialContext(ctx, urlStr, header)
	return conn, err
}

// Options configures a Conn.
type Options struct {
	// URL is the push-channel endpoint, e.g. "ws://host/ws/devices".
	URL string

	// Token supplies the auth token appended as a query parameter.
	Token TokenFunc

	// Handler receives every inbound frame.
	Handler FrameHandler

	// InitialDelay is the base backoff delay (default 1s).
	InitialDelay time.Duration

	// MaxDelay caps the backoff delay (default 30s).
	MaxDelay time.Duration

	// MaxAttempts bounds automatic reconnects before the connection is
	// surfaced as terminally disconnected (default 5).
	MaxAttempts int

	// ShouldReconnect gates automatic reconnection. When it returns false
	// after an unexpected closure, no timer is scheduled; Retry restarts
	// the cycle. Nil means always reconnect.
	ShouldReconnect func() bool

	// OnOpen fires after each successful open; first is true on the first
	// open of the process (the roster-fetch trigger).
	OnOpen func(first bool)

	// OnStateChange fires on every state transition with a status snapshot.
	OnStateChange func(Status)

	// Dialer overrides the websocket dialer. Nil uses the default.
	Dialer Dialer

	Logger Logger
}

// Conn owns exactly one push-channel connection per session.
//
// The lifecycle is an explicit state machine: Disconnected, Connecting,
// Connected. Unexpected closures schedule a reconnect with exponential
// backoff, `min(initial * 2^attempts, max)`, up to MaxAttempts; after that
// the connection is terminal until Retry. Disconnect cancels any pending
// reconnect timer so a stale timer can never fire after an intentional
// teardown.
type Conn struct {
	opts Options

	mu       sync.Mutex
	state    State
	attempts int
	terminal bool
	ws       *websocket.Conn
	timer    *time.Timer
	opened   bool // at least one successful open this process
	ctx      context.Context
	cancel   context.CancelFunc

	logger Logger
}

// NewConn creates a connection in the Disconnected state. Nothing is dialed
// until Connect.
func NewConn(opts Options) *Conn {
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Dialer == nil {
		opts.Dialer = gorillaDialer{d: websocket.DefaultDialer}
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Conn{opts: opts, logger: logger}
}

// Connect opens the channel. It is a no-op if the connection is already open
// or opening. The dial itself runs on the calling goroutine; the read loop
// runs on its own goroutine until closure.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		return nil
	}
	c.stopTimerLocked()
	c.setStateLocked(Connecting)
	connCtx, cancel := context.WithCancel(ctx)
	c.ctx, c.cancel = connCtx, cancel
	c.mu.Unlock()

	return c.dial(connCtx)
}

// dial performs the handshake and starts the read loop. On failure the
// closure path runs, so dial errors consume a reconnect attempt like any
// unexpected drop.
func (c *Conn) dial(ctx context.Context) error {
	endpoint, err := c.endpoint(ctx)
	if err != nil {
		c.handleClosure(err)
		return err
	}

	ws, err := c.opts.Dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrDialFailed, err)
		c.handleClosure(err)
		return err
	}

	c.mu.Lock()
	if ctx.Err() != nil {
		// Disconnect raced the handshake.
		c.mu.Unlock()
		ws.Close() //nolint:errcheck // already torn down
		return ctx.Err()
	}
	c.ws = ws
	c.attempts = 0
	c.terminal = false
	first := !c.opened
	c.opened = true
	c.setStateLocked(Connected)
	c.mu.Unlock()

	c.logger.Info("push channel open", "first", first)
	if c.opts.OnOpen != nil {
		c.opts.OnOpen(first)
	}

	go c.readLoop(ctx, ws)
	return nil
}

// endpoint builds the dial URL with the session token query parameter.
func (c *Conn) endpoint(ctx context.Context) (string, error) {
	if c.opts.Token == nil {
		return c.opts.URL, nil
	}
	token, err := c.opts.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoToken, err)
	}
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return "", fmt.Errorf("%w: bad url: %v", ErrDialFailed, err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// readLoop delivers every inbound frame to the handler until the channel
// closes, then runs the reconnect logic.
func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn) {
	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			intentional := c.ws != ws // Disconnect already detached us
			c.mu.Unlock()
			if intentional || ctx.Err() != nil {
				return
			}
			c.logger.Warn("push channel closed", "error", err)
			c.handleClosure(err)
			return
		}
		c.opts.Handler(frame)
	}
}

// handleClosure runs after an unexpected drop: schedule a backoff reconnect
// while attempts remain and the gate allows, otherwise go terminal.
func (c *Conn) handleClosure(cause error) {
	c.mu.Lock()
	c.closeSocketLocked()

	if c.attempts >= c.opts.MaxAttempts {
		c.terminal = true
		c.setStateLocked(Disconnected)
		c.mu.Unlock()
		c.logger.Error("reconnect budget exhausted", "attempts", c.opts.MaxAttempts, "cause", cause)
		return
	}

	if c.opts.ShouldReconnect != nil && !c.opts.ShouldReconnect() {
		// Nobody is watching; stay down until Retry.
		c.setStateLocked(Disconnected)
		c.mu.Unlock()
		c.logger.Debug("reconnect suppressed, no observers")
		return
	}

	delay := backoffDelay(c.attempts, c.opts.InitialDelay, c.opts.MaxDelay)
	c.attempts++
	attempt := c.attempts
	ctx := c.ctx
	c.setStateLocked(Connecting)
	c.timer = time.AfterFunc(delay, func() {
		if ctx.Err() != nil {
			return
		}
		c.logger.Info("reconnecting", "attempt", attempt)
		c.dial(ctx) //nolint:errcheck // failures loop back through handleClosure
	})
	c.mu.Unlock()

	c.logger.Warn("push channel reconnect scheduled", "delay", delay, "attempt", attempt)
}

// Disconnect closes the channel, cancels any pending reconnect timer, and
// resets the attempt counter. Safe to call in any state.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.stopTimerLocked()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.closeSocketLocked()
	c.attempts = 0
	c.terminal = false
	c.setStateLocked(Disconnected)
	c.mu.Unlock()
	c.logger.Info("push channel closed intentionally")
}

// Retry restarts a down connection with a fresh attempt budget. Called when
// a device is observed again after the connection went terminal. No-op while
// the connection is up or opening.
func (c *Conn) Retry(ctx context.Context) {
	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		return
	}
	c.attempts = 0
	c.terminal = false
	c.mu.Unlock()

	c.Connect(ctx) //nolint:errcheck // failures surface via status
}

// Status returns a snapshot of the connection state.
func (c *Conn) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Conn) statusLocked() Status {
	return Status{
		State:    c.state,
		Attempts: c.attempts,
		Delay:    backoffDelay(c.attempts, c.opts.InitialDelay, c.opts.MaxDelay),
		Terminal: c.terminal,
	}
}

// setStateLocked transitions the state and notifies outside the lock via a
// goroutine only when the state actually changed.
func (c *Conn) setStateLocked(next State) {
	if c.state == next {
		return
	}
	c.state = next
	if c.opts.OnStateChange != nil {
		status := c.statusLocked()
		go c.opts.OnStateChange(status)
	}
}

func (c *Conn) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Conn) closeSocketLocked() {
	if c.ws != nil {
		c.ws.Close() //nolint:errcheck // best-effort close
		c.ws = nil
	}
}

// backoffDelay computes min(initial * 2^attempts, max).
func backoffDelay(attempts int, initial, max time.Duration) time.Duration {
	delay := initial << uint(attempts)
	if delay > max || delay <= 0 {
		return max
	}
	return delay
}
