package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lantern-c2/lantern/internal/observability"
)

var (
	// ErrNotConnected is returned by sends attempted while the connection is
	// not open. Nothing is queued.
	ErrNotConnected = errors.New("realtime: not connected")

	// ErrDisconnected is returned to Connect callers whose attempt was
	// abandoned by Disconnect.
	ErrDisconnected = errors.New("realtime: disconnected")
)

// Defaults applied to zero Config fields.
const (
	DefaultHeartbeatInterval  = 30 * time.Second
	DefaultReconnectBaseDelay = time.Second
	// DefaultUnlimitedMaxDelay caps the backoff when attempts are unlimited
	// and no ceiling is configured. A finite attempt cap has no default
	// ceiling, so every delay follows base·2^(k-1).
	DefaultUnlimitedMaxDelay    = 5 * time.Minute
	DefaultMaxReconnectAttempts = 10
	DefaultDialTimeout          = 10 * time.Second
	DefaultWriteTimeout         = 10 * time.Second
)

const closeGrace = time.Second

// Config controls the connection lifecycle.
type Config struct {
	// ServerURL is the http(s) base URL of the server.
	ServerURL string

	HeartbeatInterval  time.Duration
	ReconnectBaseDelay time.Duration
	// ReconnectMaxDelay caps a single backoff delay. Zero means no
	// ceiling, except with unlimited attempts where DefaultUnlimitedMaxDelay
	// applies.
	ReconnectMaxDelay time.Duration

	// MaxReconnectAttempts caps consecutive automatic attempts. Negative
	// means unlimited.
	MaxReconnectAttempts int

	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// WithDefaults fills zero fields with the package defaults.
func (c Config) WithDefaults() Config {
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}

	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}

	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}

	if c.ReconnectMaxDelay < 0 {
		c.ReconnectMaxDelay = 0
	}

	if c.ReconnectMaxDelay == 0 && c.MaxReconnectAttempts < 0 {
		c.ReconnectMaxDelay = DefaultUnlimitedMaxDelay
	}

	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}

	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}

	return c
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. The client adds component=realtime.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock replaces the wall clock used for heartbeat and reconnect timers.
func WithClock(clock Clock) Option {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithDialer replaces the websocket dialer.
func WithDialer(dialer Dialer) Option {
	return func(c *Client) {
		if dialer != nil {
			c.dialer = dialer
		}
	}
}

// WithDispatcher shares an existing dispatcher with the client.
func WithDispatcher(d *Dispatcher) Option {
	return func(c *Client) {
		if d != nil {
			c.dispatcher = d
		}
	}
}

// OnStateChange registers fn to observe every status transition. Hooks run
// outside the client's locks, in transition order, and may call back into
// the client.
func OnStateChange(fn func(Status)) Option {
	return func(c *Client) {
		if fn != nil {
			c.hooks = append(c.hooks, fn)
		}
	}
}

// Client owns the websocket connection to the server.
type Client struct {
	cfg        Config
	logger     *slog.Logger
	clock      Clock
	dialer     Dialer
	dispatcher *Dispatcher
	hooks      []func(Status)

	mu         sync.Mutex
	state      State
	credential string
	userClosed bool
	attempt    int
	exhausted  bool
	epoch      uint64
	gen        uint64
	lastErr    error
	conn       Conn
	dialCancel context.CancelFunc
	reconnect  Timer
	heartbeat  Timer
	waiters    []chan error
	backoff    *backoff.ExponentialBackOff
	pending    []Status
	notifying  bool

	writeMu sync.Mutex
}

// New creates an idle client. Nothing is dialed until Connect.
func New(cfg Config, opts ...Option) *Client {
	cfg = cfg.WithDefaults()

	c := &Client{
		cfg:    cfg,
		logger: slog.Default(),
		clock:  systemClock{},
		state:  StateIdle,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With(slog.String("component", "realtime"))

	if c.dialer == nil {
		c.dialer = &WebsocketDialer{HandshakeTimeout: cfg.DialTimeout}
	}

	if c.dispatcher == nil {
		c.dispatcher = NewDispatcher(c.logger)
	}

	c.backoff = newBackoff(cfg.ReconnectBaseDelay, cfg.ReconnectMaxDelay)

	return c
}

// Dispatcher returns the dispatcher inbound envelopes are published to.
func (c *Client) Dispatcher() *Dispatcher {
	return c.dispatcher
}

// Subscribe is shorthand for c.Dispatcher().Subscribe.
func (c *Client) Subscribe(msgType string, handler Handler) Unsubscribe {
	return c.dispatcher.Subscribe(msgType, handler)
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Status returns a snapshot of the lifecycle.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.statusLocked()
}

// Connect opens the connection with credential and waits until it is open or
// the attempt fails. A call made while an attempt is in flight waits for that
// attempt instead of starting another. ctx bounds only the wait.
//
// A failed attempt is returned to the caller and automatic reconnection
// continues in the background.
func (c *Client) Connect(ctx context.Context, credential string) error {
	c.mu.Lock()

	switch c.state {
	case StateOpen:
		c.mu.Unlock()
		return nil
	case StateConnecting:
		ch := c.addWaiterLocked()
		c.mu.Unlock()

		return c.await(ctx, ch)
	}

	c.credential = credential
	c.userClosed = false
	c.attempt = 0
	c.exhausted = false
	c.backoff.Reset()
	stopTimer(&c.reconnect)

	ch := c.addWaiterLocked()
	c.startDialLocked()
	c.mu.Unlock()
	c.notify()

	return c.await(ctx, ch)
}

// Reconnect calls Connect with the credential of the last Connect.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	credential := c.credential
	c.mu.Unlock()

	return c.Connect(ctx, credential)
}

// Disconnect closes the connection and cancels any pending dial, heartbeat
// or reconnect. It is safe to call in any state. Subscriptions are kept.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.userClosed = true
	c.gen++
	gen := c.gen

	stopTimer(&c.reconnect)
	stopTimer(&c.heartbeat)

	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}

	conn := c.conn
	c.conn = nil
	waiters := c.takeWaitersLocked()

	if c.state == StateOpen || c.state == StateConnecting {
		c.setStateLocked(StateClosing)
	}
	c.mu.Unlock()

	resolve(waiters, ErrDisconnected)
	c.notify()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(closeGrace))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		_ = conn.Close()
	}

	c.mu.Lock()
	if c.gen == gen && c.state == StateClosing {
		c.setStateLocked(StateClosed)
	}
	c.mu.Unlock()
	c.notify()

	c.logger.Debug("disconnected")
}

// Send encodes payload as an envelope of msgType and writes it if the
// connection is open. Otherwise it returns ErrNotConnected.
func (c *Client) Send(ctx context.Context, msgType string, payload any) error {
	env, err := NewEnvelope(msgType, payload)
	if err != nil {
		return err
	}

	return c.SendEnvelope(ctx, env)
}

// SendEnvelope writes env if the connection is open.
func (c *Client) SendEnvelope(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := env.Encode()
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if state != StateOpen || conn == nil {
		c.logger.Warn("send dropped",
			slog.String("type", env.Type),
			slog.String("state", state.String()),
		)

		return fmt.Errorf("%w: %s dropped", ErrNotConnected, env.Type)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	_ = conn.SetWriteDeadline(deadline)

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", env.Type, err)
	}

	return nil
}

func (c *Client) addWaiterLocked() chan error {
	ch := make(chan error, 1)
	c.waiters = append(c.waiters, ch)

	return ch
}

func (c *Client) takeWaitersLocked() []chan error {
	waiters := c.waiters
	c.waiters = nil

	return waiters
}

func resolve(waiters []chan error, err error) {
	for _, ch := range waiters {
		ch <- err
	}
}

func (c *Client) await(ctx context.Context, ch chan error) error {
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startDialLocked begins one attempt against the stored credential.
func (c *Client) startDialLocked() {
	c.gen++
	gen := c.gen

	endpoint, err := EndpointURL(c.cfg.ServerURL, c.credential)
	if err != nil {
		c.lastErr = err
		c.setStateLocked(StateClosed)
		resolve(c.takeWaitersLocked(), err)

		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DialTimeout)
	c.dialCancel = cancel
	c.setStateLocked(StateConnecting)

	go c.dial(ctx, cancel, gen, endpoint, c.attempt)
}

func (c *Client) dial(ctx context.Context, cancel context.CancelFunc, gen uint64, endpoint string, attempt int) {
	defer cancel()

	ctx, span := observability.Tracer("realtime").Start(ctx, "realtime.connect",
		trace.WithAttributes(
			attribute.Int("realtime.attempt", attempt),
			attribute.Bool("realtime.automatic", attempt > 0),
		),
	)

	c.logger.DebugContext(ctx, "dialing",
		slog.String("endpoint", redactEndpoint(endpoint)),
		slog.Int("attempt", attempt),
	)

	conn, err := c.dialer.Dial(ctx, endpoint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
	}

	span.End()

	c.mu.Lock()

	if gen != c.gen || c.state != StateConnecting {
		c.mu.Unlock()

		if conn != nil {
			_ = conn.Close()
		}

		return
	}

	c.dialCancel = nil

	if err != nil {
		c.lastErr = err
		waiters := c.takeWaitersLocked()
		c.scheduleReconnectLocked()
		c.setStateLocked(StateClosed)
		c.mu.Unlock()

		c.logger.WarnContext(ctx, "connect failed", slog.Int("attempt", attempt), slog.String("error", err.Error()))
		resolve(waiters, fmt.Errorf("connect: %w", err))
		c.notify()

		return
	}

	c.conn = conn
	c.epoch++
	c.attempt = 0
	c.exhausted = false
	c.lastErr = nil
	c.backoff.Reset()
	c.armHeartbeatLocked(gen)
	c.setStateLocked(StateOpen)
	epoch := c.epoch
	waiters := c.takeWaitersLocked()
	c.mu.Unlock()

	c.logger.Info("connected", slog.Uint64("epoch", epoch))
	resolve(waiters, nil)
	c.notify()

	c.readLoop(gen, conn)
}

// readLoop decodes and publishes frames until the connection fails. It is
// the only reader of conn, so envelopes of one epoch publish in receipt order.
func (c *Client) readLoop(gen uint64, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.connectionLost(gen, conn, err)
			return
		}

		env, err := DecodeEnvelope(data)
		if err != nil {
			c.logger.Warn("dropping malformed message", slog.String("error", err.Error()))
			continue
		}

		if !c.current(gen) {
			return
		}

		c.dispatcher.Publish(env)
	}
}

func (c *Client) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.gen == gen && c.state == StateOpen
}

func (c *Client) connectionLost(gen uint64, conn Conn, err error) {
	c.mu.Lock()

	if gen != c.gen || c.conn != conn {
		c.mu.Unlock()
		return
	}

	c.conn = nil
	stopTimer(&c.heartbeat)

	if !isCleanClose(err) {
		c.lastErr = err
	}

	c.scheduleReconnectLocked()
	c.setStateLocked(StateClosed)
	c.mu.Unlock()

	_ = conn.Close()

	c.logger.Warn("connection lost", slog.String("error", err.Error()))
	c.notify()
}

// scheduleReconnectLocked arms the next automatic attempt, or marks the
// client exhausted once the cap is reached.
func (c *Client) scheduleReconnectLocked() {
	if c.userClosed {
		return
	}

	if limit := c.cfg.MaxReconnectAttempts; limit > 0 && c.attempt >= limit {
		c.exhausted = true
		c.logger.Warn("reconnect attempts exhausted", slog.Int("attempts", c.attempt))

		return
	}

	c.attempt++
	delay := c.backoff.NextBackOff()
	gen := c.gen

	c.logger.Info("reconnect scheduled",
		slog.Int("attempt", c.attempt),
		slog.Duration("delay", delay),
	)

	c.reconnect = c.clock.AfterFunc(delay, func() {
		c.reconnectFired(gen)
	})
}

func (c *Client) reconnectFired(gen uint64) {
	c.mu.Lock()

	if gen != c.gen || c.state != StateClosed || c.userClosed {
		c.mu.Unlock()
		return
	}

	c.reconnect = nil
	c.startDialLocked()
	c.mu.Unlock()
	c.notify()
}

func (c *Client) statusLocked() Status {
	s := Status{
		State:     c.state,
		Attempt:   c.attempt,
		Exhausted: c.exhausted,
		Epoch:     c.epoch,
	}

	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}

	return s
}

func (c *Client) setStateLocked(state State) {
	c.state = state

	if len(c.hooks) > 0 {
		c.pending = append(c.pending, c.statusLocked())
	}
}

// notify drains queued status changes to the hooks. Only one goroutine
// drains at a time; hooks that re-enter the client enqueue and return.
func (c *Client) notify() {
	c.mu.Lock()
	if c.notifying || len(c.pending) == 0 {
		c.mu.Unlock()
		return
	}
	c.notifying = true

	for len(c.pending) > 0 {
		s := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()

		for _, hook := range c.hooks {
			hook(s)
		}

		c.mu.Lock()
	}

	c.notifying = false
	c.mu.Unlock()
}

func stopTimer(t *Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
