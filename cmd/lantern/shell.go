package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	clierrors "github.com/lantern-c2/lantern/internal/errors"
	"github.com/lantern-c2/lantern/internal/observability"
	"github.com/lantern-c2/lantern/internal/output"
	"github.com/lantern-c2/lantern/internal/prompt"
	"github.com/lantern-c2/lantern/internal/realtime"
	"github.com/lantern-c2/lantern/internal/terminal"
	"github.com/lantern-c2/lantern/internal/transcript"
)

func newShellCmd() *cobra.Command {
	var (
		noPty    bool
		path     string
		noRecord bool
	)

	cmd := &cobra.Command{
		Use:   "shell [session-id]",
		Short: "Open an interactive shell on a session",
		Long: `Open an interactive shell tunnel on a live session over the realtime
channel. The local terminal is switched to raw mode and its size follows
window resizes. Press Ctrl+] to detach.

Without a session id you are asked to pick one of the live sessions. Input
typed while the connection is down is dropped, not replayed. Shell traffic
is recorded to the transcript history unless history is disabled.`,
		Example: `  lantern shell 3f9c2a
  lantern shell 3f9c2a --path /bin/bash
  lantern shell --no-pty 3f9c2a`,
		Args: usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			logger := observability.FromContext(cmd.Context())

			env, err := loadServerEnv()
			if err != nil {
				return err
			}

			sessionID, err := resolveSessionArg(cmd.Context(), out, env, args)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGHUP)
			defer stop()

			lost := make(chan error, 1)

			var opened atomic.Bool

			rt := env.realtimeClient(ctx, realtime.OnStateChange(func(s realtime.Status) {
				if s.State == realtime.StateOpen {
					opened.Store(true)
					return
				}

				if opened.Load() && s.State == realtime.StateClosed {
					reason := errors.New("connection closed")
					if s.LastError != "" {
						reason = errors.New(s.LastError)
					}

					select {
					case lost <- reason:
					default:
					}
				}
			}))
			defer rt.Disconnect()

			if err := env.connect(ctx, out, rt); err != nil {
				return err
			}

			shell := realtime.NewShell(rt)

			var recorder *transcript.Recorder
			if env.cfg.HistoryEnabled() && !noRecord {
				recorder = transcript.NewRecorder(env.cfg.HistoryDir(), path, logger)

				defer func() {
					reportTranscripts(out, recorder)

					if err := recorder.Close(); err != nil {
						logger.Warn("close transcripts", "error", err.Error())
					}
				}()
			}

			interactive := out.Terminal().FullScreen()

			t := &tunnel{
				shell:        shell,
				events:       rt,
				recorder:     recorder,
				sessionID:    sessionID,
				usePty:       !noPty,
				path:         path,
				in:           os.Stdin,
				out:          os.Stdout,
				sanitize:     noPty || !interactive,
				startTimeout: env.cfg.ShellStartTimeout(),
				lost:         lost,
				logger:       logger,
			}

			if !out.Quiet {
				out.Info("Opening shell on session %s (Ctrl+] to detach)", sessionID)
			}

			var (
				restore    func()
				stopResize func()
			)

			defer func() {
				if stopResize != nil {
					stopResize()
				}

				if restore != nil {
					restore()
				}
			}()

			return t.run(ctx, func(tunnelID int) {
				if !interactive {
					return
				}

				var err error
				if restore, err = terminal.MakeRaw(os.Stdin); err != nil {
					logger.Warn("raw mode unavailable", "error", err.Error())
				}

				if t.usePty {
					stopResize = watchResize(ctx, os.Stdin, func(cols, rows int) {
						if err := shell.Resize(ctx, sessionID, tunnelID, cols, rows); err != nil {
							logger.Debug("resize not sent", "error", err.Error())
						}
					})
				}
			})
		},
	}

	cmd.Flags().BoolVar(&noPty, "no-pty", false, "Run the remote command without a pty")
	cmd.Flags().StringVar(&path, "path", "", "Remote shell binary (server default when empty)")
	cmd.Flags().BoolVar(&noRecord, "no-record", false, "Do not record a transcript")

	return cmd
}

// resolveSessionArg returns the session from args or asks the operator to
// pick a live one.
func resolveSessionArg(ctx context.Context, out *output.Writer, env *serverEnv, args []string) (string, error) {
	if len(args) == 1 && args[0] != "" {
		return args[0], nil
	}

	prompter := prompt.New(out)
	if !prompter.CanPrompt() {
		return "", clierrors.SessionRequired()
	}

	sessions, err := env.apiClient().ListSessions(ctx)
	if err != nil {
		return "", apiError(err)
	}

	selected, err := prompter.SelectSession(sessions)
	if err != nil {
		if prompt.IsCanceled(err) {
			return "", clierrors.SessionRequired()
		}

		return "", clierrors.Wrap(clierrors.ExitSession, "No session selected", err).
			WithHint("Run 'lantern sessions --all' to see every session")
	}

	return selected.ID, nil
}

func reportTranscripts(out *output.Writer, recorder *transcript.Recorder) {
	for _, meta := range recorder.Transcripts() {
		out.Muted("%s", fmt.Sprintf("Transcript saved: lantern history view %s", meta.ID))
	}
}
