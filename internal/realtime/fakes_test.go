package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lantern-c2/lantern/internal/testutil"
)

var errConnDropped = errors.New("connection dropped")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTimer{clock: c, at: c.now.Add(d), delay: d, f: f}
	c.timers = append(c.timers, t)

	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.stopped || t.fired {
		return false
	}

	t.stopped = true

	return true
}

// Advance moves time forward and runs every timer that became due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)

	var due []*fakeTimer

	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })

	for _, t := range due {
		t.f()
	}
}

// pending returns the delays of timers that are armed.
func (c *fakeClock) pending() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []time.Duration

	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t.delay)
		}
	}

	return out
}

type written struct {
	frameType int
	data      []byte
}

// fakeConn is an in-memory Conn. Frames pushed to in are read by the client.
type fakeConn struct {
	in        chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	writes []written
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.in:
		return websocket.TextMessage, data, nil
	case <-f.closed:
		return 0, nil, errConnDropped
	}
}

func (f *fakeConn) WriteMessage(frameType int, data []byte) error {
	select {
	case <-f.closed:
		return errConnDropped
	default:
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.writes = append(f.writes, written{frameType: frameType, data: append([]byte(nil), data...)})

	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// drop simulates the server going away.
func (f *fakeConn) drop() { _ = f.Close() }

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// envelopes decodes the text frames written by the client.
func (f *fakeConn) envelopes(t *testing.T) []Envelope {
	t.Helper()

	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Envelope

	for _, w := range f.writes {
		if w.frameType != websocket.TextMessage {
			continue
		}

		var env Envelope
		if err := json.Unmarshal(w.data, &env); err != nil {
			t.Fatalf("client wrote invalid JSON %q: %v", w.data, err)
		}

		out = append(out, env)
	}

	return out
}

func (f *fakeConn) sawCloseFrame() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, w := range f.writes {
		if w.frameType == websocket.CloseMessage {
			return true
		}
	}

	return false
}

// fakeDialer hands out fakeConns, optionally failing or blocking.
type fakeDialer struct {
	mu        sync.Mutex
	failures  []error
	failAll   error
	block     chan struct{}
	endpoints []string
	conns     []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	d.mu.Lock()
	d.endpoints = append(d.endpoints, endpoint)
	block := d.block

	var fail error
	if len(d.failures) > 0 {
		fail = d.failures[0]
		d.failures = d.failures[1:]
	} else if d.failAll != nil {
		fail = d.failAll
	}
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if fail != nil {
		return nil, fail
	}

	conn := newFakeConn()

	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()

	return conn, nil
}

func (d *fakeDialer) setFailAll(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.failAll = err
}

func (d *fakeDialer) setBlock(ch chan struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.block = ch
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.endpoints)
}

func (d *fakeDialer) lastConn(t *testing.T) *fakeConn {
	t.Helper()

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.conns) == 0 {
		t.Fatal("no connection was dialed")
	}

	return d.conns[len(d.conns)-1]
}

type fixture struct {
	client *Client
	clock  *fakeClock
	dialer *fakeDialer
}

func newFixture(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()

	if cfg.ServerURL == "" {
		cfg.ServerURL = "https://c2.example.test"
	}

	f := &fixture{clock: newFakeClock(), dialer: &fakeDialer{}}

	opts = append([]Option{
		WithLogger(discardLogger()),
		WithClock(f.clock),
		WithDialer(f.dialer),
	}, opts...)

	f.client = New(cfg, opts...)
	t.Cleanup(f.client.Disconnect)

	return f
}

func (f *fixture) waitState(t *testing.T, want State) {
	t.Helper()

	testutil.Eventually(t, func() bool { return f.client.State() == want }, "state %s (have %s)", want, f.client.State())
}

func (f *fixture) waitPending(t *testing.T, want ...time.Duration) {
	t.Helper()

	testutil.Eventually(t, func() bool {
		got := f.clock.pending()
		if len(got) != len(want) {
			return false
		}

		for i := range got {
			if got[i] != want[i] {
				return false
			}
		}

		return true
	}, "pending timers %v (have %v)", want, f.clock.pending())
}
