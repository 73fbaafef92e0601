package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrInvalidTunnel is returned when a tunnel operation has no session id.
var ErrInvalidTunnel = errors.New("realtime: invalid tunnel address")

// Sender writes envelopes through the send gate. *Client implements it.
type Sender interface {
	Send(ctx context.Context, msgType string, payload any) error
}

// Subscriber registers dispatcher handlers. *Client and *Dispatcher
// implement it.
type Subscriber interface {
	Subscribe(msgType string, handler Handler) Unsubscribe
}

// ShellStart requests a new tunnel in a session.
type ShellStart struct {
	SessionID string `json:"sessionId"`
	UsePty    bool   `json:"usePty"`
	Path      string `json:"path,omitempty"`
}

// ShellInput carries operator keystrokes to a tunnel.
type ShellInput struct {
	SessionID string `json:"sessionId"`
	TunnelID  int    `json:"tunnelId"`
	Data      string `json:"data"`
}

// ShellResize changes the remote pty size.
type ShellResize struct {
	SessionID string `json:"sessionId"`
	TunnelID  int    `json:"tunnelId"`
	Cols      int    `json:"cols"`
	Rows      int    `json:"rows"`
}

// ShellStop closes a tunnel.
type ShellStop struct {
	SessionID string `json:"sessionId"`
	TunnelID  int    `json:"tunnelId"`
}

// ShellOutput is one chunk of remote output.
type ShellOutput struct {
	SessionID string `json:"sessionId"`
	TunnelID  int    `json:"tunnelId"`
	Data      string `json:"data"`
}

// Shell frames tunnel operations over a shared connection. It keeps no
// tunnel state: callers match output to the tunnels they opened.
type Shell struct {
	sender Sender
	subs   Subscriber
	logger *slog.Logger
}

// NewShell builds a Shell over c.
func NewShell(c *Client) *Shell {
	return NewShellWith(c, c, c.logger)
}

// NewShellWith builds a Shell from an arbitrary sender and subscriber.
func NewShellWith(sender Sender, subs Subscriber, logger *slog.Logger) *Shell {
	if logger == nil {
		logger = slog.Default()
	}

	return &Shell{sender: sender, subs: subs, logger: logger}
}

// Start asks the server to open a tunnel. The tunnel id arrives with the
// first shell_output for the session.
func (s *Shell) Start(ctx context.Context, sessionID string, usePty bool, path string) error {
	if sessionID == "" {
		return fmt.Errorf("%w: empty session id", ErrInvalidTunnel)
	}

	return s.sender.Send(ctx, TypeShellStart, ShellStart{SessionID: sessionID, UsePty: usePty, Path: path})
}

// Input sends data to a tunnel.
func (s *Shell) Input(ctx context.Context, sessionID string, tunnelID int, data string) error {
	if sessionID == "" {
		return fmt.Errorf("%w: empty session id", ErrInvalidTunnel)
	}

	return s.sender.Send(ctx, TypeShellInput, ShellInput{SessionID: sessionID, TunnelID: tunnelID, Data: data})
}

// Resize updates the remote terminal size.
func (s *Shell) Resize(ctx context.Context, sessionID string, tunnelID, cols, rows int) error {
	if sessionID == "" {
		return fmt.Errorf("%w: empty session id", ErrInvalidTunnel)
	}

	if cols <= 0 || rows <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidTunnel, cols, rows)
	}

	return s.sender.Send(ctx, TypeShellResize, ShellResize{
		SessionID: sessionID,
		TunnelID:  tunnelID,
		Cols:      cols,
		Rows:      rows,
	})
}

// Stop closes a tunnel.
func (s *Shell) Stop(ctx context.Context, sessionID string, tunnelID int) error {
	if sessionID == "" {
		return fmt.Errorf("%w: empty session id", ErrInvalidTunnel)
	}

	return s.sender.Send(ctx, TypeShellStop, ShellStop{SessionID: sessionID, TunnelID: tunnelID})
}

// OnOutput delivers every decoded shell_output to handler.
func (s *Shell) OnOutput(handler func(ShellOutput)) Unsubscribe {
	return s.subs.Subscribe(TypeShellOutput, func(env Envelope) error {
		var out ShellOutput
		if err := env.DecodePayload(&out); err != nil {
			s.logger.Warn("dropping shell output", slog.String("error", err.Error()))
			return nil
		}

		if out.SessionID == "" {
			s.logger.Warn("dropping shell output without session id")
			return nil
		}

		handler(out)

		return nil
	})
}
