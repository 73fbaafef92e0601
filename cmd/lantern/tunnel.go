package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/lantern-c2/lantern/internal/ansi"
	clierrors "github.com/lantern-c2/lantern/internal/errors"
	"github.com/lantern-c2/lantern/internal/realtime"
	"github.com/lantern-c2/lantern/internal/transcript"
)

// detachKey ends the local side of a shell (Ctrl+]).
const detachKey = 0x1d

const stopTimeout = 2 * time.Second

// abandonGrace is how long an interrupted start waits for the tunnel id so
// the tunnel can still be stopped.
const abandonGrace = 2 * time.Second

var errSessionGone = errors.New("session disconnected")

// tunnel drives one interactive shell: it opens the tunnel, adopts the tunnel
// id from the first output for the session, and pumps input and output until
// the operator detaches or the connection or session goes away.
type tunnel struct {
	shell     *realtime.Shell
	events    realtime.Subscriber
	recorder  *transcript.Recorder
	sessionID string
	usePty    bool
	path      string

	in  io.Reader
	out io.Writer
	// sanitize strips escape sequences from output that is not going to a
	// local terminal in raw mode.
	sanitize bool

	startTimeout time.Duration
	// lost receives when the realtime connection drops.
	lost   <-chan error
	logger *slog.Logger
}

func (t *tunnel) run(ctx context.Context, onStart func(tunnelID int)) error {
	outputs := make(chan realtime.ShellOutput, eventBuffer)
	done := make(chan struct{})

	defer close(done)

	unsub := t.shell.OnOutput(func(o realtime.ShellOutput) {
		if o.SessionID != t.sessionID {
			return
		}

		select {
		case outputs <- o:
		case <-done:
		}
	})
	defer unsub()

	gone := make(chan struct{})

	var goneOnce sync.Once

	unsubGone := t.events.Subscribe(realtime.TypeSessionDisconnected, func(env realtime.Envelope) error {
		var p struct {
			ID        string `json:"id"`
			SessionID string `json:"sessionId"`
		}

		if err := env.DecodePayload(&p); err != nil {
			return err
		}

		if p.ID == t.sessionID || p.SessionID == t.sessionID {
			goneOnce.Do(func() { close(gone) })
		}

		return nil
	})
	defer unsubGone()

	if err := t.shell.Start(ctx, t.sessionID, t.usePty, t.path); err != nil {
		if errors.Is(err, realtime.ErrNotConnected) {
			return clierrors.NotConnected(err)
		}

		return err
	}

	timer := time.NewTimer(t.startTimeout)
	defer timer.Stop()

	var first realtime.ShellOutput

	select {
	case first = <-outputs:
	case <-timer.C:
		return clierrors.ShellStartTimedOut(t.sessionID, t.startTimeout.String())
	case err := <-t.lost:
		return clierrors.TunnelClosed(t.sessionID, err)
	case <-gone:
		return clierrors.TunnelClosed(t.sessionID, errSessionGone)
	case <-ctx.Done():
		t.abandon(outputs)
		return nil
	}

	tunnelID := first.TunnelID
	t.logger.Info("shell tunnel open", slog.String("session.id", t.sessionID), slog.Int("tunnel.id", tunnelID))

	if t.recorder != nil {
		defer func() {
			if err := t.recorder.CloseTunnel(t.sessionID, tunnelID); err != nil {
				t.logger.Warn("close transcript", slog.String("error", err.Error()))
			}
		}()
	}

	if onStart != nil {
		onStart(tunnelID)
	}

	t.deliver(first)

	detached := make(chan struct{})
	inputErrs := make(chan error, 1)

	go t.pumpInput(ctx, tunnelID, detached, inputErrs)

	for {
		select {
		case o := <-outputs:
			if o.TunnelID == tunnelID {
				t.deliver(o)
			}

		case err := <-inputErrs:
			t.notice("input dropped: " + err.Error())

		case <-detached:
			t.stop(tunnelID)
			return nil

		case err := <-t.lost:
			t.notice("connection lost")
			return clierrors.TunnelClosed(t.sessionID, err)

		case <-gone:
			t.notice("session disconnected")
			return clierrors.TunnelClosed(t.sessionID, errSessionGone)

		case <-ctx.Done():
			t.stop(tunnelID)
			return nil
		}
	}
}

// pumpInput forwards local input until the detach key or end of input.
// Input that cannot be sent is reported and dropped, never replayed.
func (t *tunnel) pumpInput(ctx context.Context, tunnelID int, detached chan<- struct{}, errs chan<- error) {
	defer close(detached)

	buf := make([]byte, 4096)

	for {
		n, err := t.in.Read(buf)

		if n > 0 {
			data := buf[:n]

			stop := false
			if i := bytes.IndexByte(data, detachKey); i >= 0 {
				data, stop = data[:i], true
			}

			if len(data) > 0 {
				t.send(ctx, tunnelID, data, errs)
			}

			if stop {
				return
			}
		}

		if err != nil || ctx.Err() != nil {
			return
		}
	}
}

func (t *tunnel) send(ctx context.Context, tunnelID int, data []byte, errs chan<- error) {
	if err := t.shell.Input(ctx, t.sessionID, tunnelID, string(data)); err != nil {
		select {
		case errs <- err:
		default:
		}

		return
	}

	if t.recorder != nil {
		t.recorder.Input(t.sessionID, tunnelID, data)
	}
}

func (t *tunnel) stop(tunnelID int) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	if err := t.shell.Stop(ctx, t.sessionID, tunnelID); err != nil {
		t.logger.Debug("shell stop not sent", slog.String("error", err.Error()))
	}
}

// abandon stops a tunnel whose start was interrupted before its first
// output. Without an id within abandonGrace the tunnel is left to the server.
func (t *tunnel) abandon(outputs <-chan realtime.ShellOutput) {
	timer := time.NewTimer(min(abandonGrace, t.startTimeout))
	defer timer.Stop()

	select {
	case o := <-outputs:
		t.logger.Info("shell tunnel stopped before it opened",
			slog.String("session.id", t.sessionID),
			slog.Int("tunnel.id", o.TunnelID),
		)
		t.stop(o.TunnelID)
	case <-timer.C:
		t.logger.Warn("shell tunnel abandoned before its id was known", slog.String("session.id", t.sessionID))
	}
}

// deliver prints output of the adopted tunnel and records it.
func (t *tunnel) deliver(o realtime.ShellOutput) {
	if t.recorder != nil {
		t.recorder.Output(o)
	}

	t.write(o.Data)
}

func (t *tunnel) write(data string) {
	if t.sanitize {
		data = ansi.Sanitize(data)
	}

	_, _ = io.WriteString(t.out, data)
}

func (t *tunnel) notice(msg string) {
	_, _ = io.WriteString(t.out, "\r\n[lantern] "+msg+"\r\n")
}
