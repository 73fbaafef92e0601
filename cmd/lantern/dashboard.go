package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lantern-c2/lantern/internal/dashboard"
	clierrors "github.com/lantern-c2/lantern/internal/errors"
	"github.com/lantern-c2/lantern/internal/notify"
	"github.com/lantern-c2/lantern/internal/observability"
	"github.com/lantern-c2/lantern/internal/output"
	"github.com/lantern-c2/lantern/internal/realtime"
)

func newDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Open the live operator dashboard",
		Long: `Open a full-screen view of the realtime channel: the connection status,
the live sessions, and a feed of notifications rendered from server events.

The connection is retried with exponential backoff. Once the attempts are
exhausted the dashboard stays open and 'r' starts a fresh reconnect.`,
		Example: `  lantern dashboard
  lantern --server https://c2.example.test dashboard`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			logger := observability.FromContext(cmd.Context())

			if !out.Terminal().FullScreen() {
				return &clierrors.CLIError{
					Message: "The dashboard needs an interactive terminal",
					Hint:    "Use 'lantern events' to stream notifications instead",
					Code:    clierrors.ExitUsage,
				}
			}

			env, err := loadServerEnv()
			if err != nil {
				return err
			}

			rules, err := loadRules(env.cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			feed := dashboard.NewFeed()

			rt := env.realtimeClient(ctx, realtime.OnStateChange(feed.Status))
			defer rt.Disconnect()

			store := notify.NewStore(env.cfg.NotificationLimit())
			unbind := notify.Bind(rt, store, rules, time.Now)
			defer unbind()

			if err := env.connect(ctx, out, rt); err != nil {
				var cliErr *clierrors.CLIError
				if clierrors.As(err, &cliErr) && cliErr.Code == clierrors.ExitAuth {
					return err
				}

				logger.Warn("initial connect failed", slog.String("error", err.Error()))
			}

			api := env.apiClient()

			return dashboard.Run(ctx, dashboard.Options{
				Controller: rt,
				Store:      store,
				Feed:       feed,
				Sessions:   api.ListSessions,
				ServerURL:  env.url,
				Now:        time.Now,
			})
		},
	}
}
