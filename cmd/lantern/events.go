package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lantern-c2/lantern/internal/config"
	clierrors "github.com/lantern-c2/lantern/internal/errors"
	"github.com/lantern-c2/lantern/internal/notify"
	"github.com/lantern-c2/lantern/internal/observability"
	"github.com/lantern-c2/lantern/internal/output"
	"github.com/lantern-c2/lantern/internal/realtime"
)

const eventBuffer = 256

func newEventsCmd() *cobra.Command {
	var types []string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Stream server events as notifications",
		Long: `Open the realtime channel and print server events as they arrive, until
interrupted. Events are rendered with the notification rules; with --json
every inbound envelope is written as one JSON object per line instead.

The connection is retried automatically with exponential backoff. The
command exits when the reconnect attempts are exhausted.`,
		Example: `  lantern events
  lantern events --type canary_triggered --type session_connected
  lantern events --json | jq .payload`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			for _, t := range types {
				if !slices.Contains(realtime.InboundTypes(), t) {
					return &clierrors.CLIError{
						Message: fmt.Sprintf("Unknown event type: %s", t),
						Hint:    "Known types: " + fmt.Sprint(realtime.InboundTypes()),
						Code:    clierrors.ExitUsage,
					}
				}
			}

			env, err := loadServerEnv()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return streamEvents(ctx, out, env, types)
		},
	}

	cmd.Flags().StringSliceVarP(&types, "type", "t", nil, "Only show these event types (repeatable)")

	return cmd
}

func loadRules(cfg *config.Config) (notify.Rules, error) {
	path := cfg.NotificationRules()

	rules, err := notify.LoadRules(path)
	if err != nil {
		return nil, clierrors.InvalidRules(path, err)
	}

	return rules, nil
}

func streamEvents(ctx context.Context, out *output.Writer, env *serverEnv, types []string) error {
	logger := observability.FromContext(ctx)

	wanted := func(msgType string) bool {
		return len(types) == 0 || slices.Contains(types, msgType)
	}

	statuses := make(chan realtime.Status, eventBuffer)
	rt := env.realtimeClient(ctx, realtime.OnStateChange(func(s realtime.Status) {
		select {
		case statuses <- s:
		default:
		}
	}))
	defer rt.Disconnect()

	envelopes := make(chan realtime.Envelope, eventBuffer)
	notes := make(chan notify.Notification, eventBuffer)

	if out.JSON {
		unsub := rt.Subscribe(realtime.Wildcard, func(e realtime.Envelope) error {
			if !wanted(e.Type) {
				return nil
			}

			select {
			case envelopes <- e:
			case <-ctx.Done():
			}

			return nil
		})
		defer unsub()
	} else {
		rules, err := loadRules(env.cfg)
		if err != nil {
			return err
		}

		store := notify.NewStore(env.cfg.NotificationLimit())
		unbind := notify.Bind(rt, store, rules, time.Now)
		defer unbind()

		unwatch := store.Watch(func(n notify.Notification) {
			if !wanted(n.Type) {
				return
			}

			select {
			case notes <- n:
			case <-ctx.Done():
			}
		})
		defer unwatch()
	}

	if err := env.connect(ctx, out, rt); err != nil {
		var cliErr *clierrors.CLIError
		if clierrors.As(err, &cliErr) && cliErr.Code != clierrors.ExitNetwork && cliErr.Code != clierrors.ExitTimeout {
			return err
		}

		if ctx.Err() != nil {
			return nil
		}

		out.Warning("Initial connection failed, retrying in the background")
		logger.Warn("initial connect failed", slog.String("error", err.Error()))
	} else if !out.JSON {
		out.Success("Connected to %s, waiting for events (Ctrl+C to stop)", env.url)
	}

	lastLabel := rt.Status().Label()

	for {
		select {
		case <-ctx.Done():
			return nil

		case e := <-envelopes:
			if err := out.PrintJSONLine(e); err != nil {
				return err
			}

		case n := <-notes:
			out.Print("%s\n", formatNotification(n))

		case s := <-statuses:
			if s.Exhausted {
				return clierrors.ReconnectExhausted(s.Attempt)
			}

			if label := s.Label(); label != lastLabel && !out.JSON {
				lastLabel = label
				out.Muted("%s connection: %s", time.Now().Format(time.TimeOnly), label)
			}
		}
	}
}

// formatNotification renders one event line for the stream.
func formatNotification(n notify.Notification) string {
	line := fmt.Sprintf("%s %s %s", n.ReceivedAt.Local().Format(time.TimeOnly), levelMark(n.Level), n.Title)
	if n.Message != "" {
		line += ": " + n.Message
	}

	return line
}

func levelMark(l notify.Level) string {
	switch l {
	case notify.LevelSuccess:
		return output.CheckMark
	case notify.LevelWarning:
		return output.WarningMark
	case notify.LevelError:
		return output.XMark
	default:
		return output.InfoMark
	}
}
