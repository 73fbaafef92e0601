package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lantern-c2/lantern/internal/observability"
	"github.com/lantern-c2/lantern/internal/output"
)

const telemetryShutdownTimeout = 5 * time.Second

// app is the state one invocation shares between the root command's hooks.
type app struct {
	out     *output.Writer
	flags   globalFlags
	updates sync.WaitGroup

	mu      sync.Mutex
	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

func newApp() *app {
	return &app{out: output.Default()}
}

// onClose registers fn to run when the invocation ends. Closers run in
// reverse registration order.
func (a *app) onClose(name string, fn func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// close runs and forgets every registered closer. A second call is a no-op.
func (a *app) close() error {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	var errs []error

	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].fn(); err != nil {
			errs = append(errs, fmt.Errorf("cleanup %s: %w", closers[i].name, err))
		}
	}

	return errors.Join(errs...)
}

// setup runs before every command. It applies the global flags, installs the
// logger and tracer, and starts the background update check.
func (a *app) setup(cmd *cobra.Command) error {
	if err := a.flags.applyServer(); err != nil {
		return err
	}

	a.flags.applyOutput(a.out)

	logCfg := a.flags.loggerConfig(cmd.CommandPath(), a.out.Terminal().IsTTY)
	logCfg.RunID = uuid.NewString()

	logger, cleanup, err := observability.NewLogger(logCfg)
	if err != nil {
		return invalidLogging(err)
	}

	if cleanup != nil {
		a.onClose("logger resources", cleanup)
	}

	slog.SetDefault(logger)

	ctx := observability.WithLogger(a.out.WithContext(cmd.Context()), logger)
	cmd.SetContext(ctx)

	shutdown, err := observability.SetupTelemetry(ctx, observability.TelemetryFromEnv(version, commit, os.Getenv(serverURLEnv)))
	if err != nil {
		logger.Warn("telemetry initialization failed", slog.String("error", err.Error()))
	}

	if shutdown != nil {
		a.onClose("telemetry resources", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
			defer cancel()

			return shutdown(ctx)
		})
	}

	if wantsUpdateCheck(cmd, version, a.out.Quiet, a.out.JSON) {
		a.updates.Go(func() { backgroundUpdateCheck(version) })
	}

	return nil
}

// finish runs after a command succeeds.
func (a *app) finish(cmd *cobra.Command) error {
	a.updates.Wait()

	if wantsUpdateCheck(cmd, version, a.out.Quiet, a.out.JSON) {
		showUpdateNotice(a.out, version)
	}

	return a.close()
}
