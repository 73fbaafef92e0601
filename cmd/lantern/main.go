// Package main is the entry point for the lantern operator console.
package main

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lantern-c2/lantern/internal/buildinfo"
	clierrors "github.com/lantern-c2/lantern/internal/errors"
	"github.com/lantern-c2/lantern/internal/output"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// serverURLEnv is read by the config layer as server.url.
const serverURLEnv = "LANTERN_SERVER_URL"

func main() {
	os.Exit(run())
}

func run() (exitCode int) {
	// Restore cursor visibility and cooked mode output on panic
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprint(os.Stderr, "\033[?25h")
			panic(r)
		}
	}()

	buildinfo.Version = version

	a := newApp()

	err := a.rootCmd().Execute()
	if closeErr := a.close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return handleError(a.out, err)
	}

	return 0
}

// handleError prints err and returns the process exit code.
func handleError(out *output.Writer, err error) int {
	cliErr := classifyError(err)

	out.Failure("%s", cliErr.Message)

	if cliErr.Hint != "" {
		out.Info("%s", cliErr.Hint)
	}

	return cliErr.Code
}

// classifyError maps errors that cobra raises before a command runs onto
// usage errors. Anything else that is not already a CLIError is general.
func classifyError(err error) *clierrors.CLIError {
	var cliErr *clierrors.CLIError
	if clierrors.As(err, &cliErr) {
		return cliErr
	}

	msg := err.Error()

	switch {
	case strings.HasPrefix(msg, "unknown command"):
		hint := "Run 'lantern --help' for usage"
		if strings.Contains(msg, "--help") {
			hint = ""
		}

		return &clierrors.CLIError{Message: msg, Hint: hint, Code: clierrors.ExitUsage}
	case strings.HasPrefix(msg, "unknown flag"),
		strings.HasPrefix(msg, "unknown shorthand flag"),
		strings.Contains(msg, "required flag"):
		return &clierrors.CLIError{Message: msg, Hint: "Run 'lantern --help' for usage", Code: clierrors.ExitUsage}
	default:
		return &clierrors.CLIError{Message: msg, Code: clierrors.ExitGeneral}
	}
}

func newRootCmd() *cobra.Command {
	return newApp().rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lantern",
		Short: "Lantern - operator console for the C2 server",
		Long: `Lantern is the operator console for a C2 server. It keeps a realtime
channel open to the server, turns server events into notifications, and
opens interactive shells on live sessions.

Get started:
  lantern config set server.url https://c2.example.com
  lantern auth login     Store your operator token
  lantern sessions       List sessions
  lantern dashboard      Watch connection state and events live
  lantern shell <id>     Open a shell on a session
  lantern doctor         Diagnose common issues`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.finish(cmd)
		},
	}

	a.flags.register(rootCmd.PersistentFlags())

	rootCmd.SuggestionsMinimumDistance = 2

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &clierrors.CLIError{
			Message: err.Error(),
			Hint:    fmt.Sprintf("Run '%s --help' for available flags", cmd.CommandPath()),
			Code:    clierrors.ExitUsage,
		}
	})

	rootCmd.AddGroup(
		&cobra.Group{ID: "live", Title: "Live Commands:"},
		&cobra.Group{ID: "server", Title: "Server Resources:"},
		&cobra.Group{ID: "local", Title: "Local State:"},
	)

	for group, cmds := range map[string][]*cobra.Command{
		"live":   {newDashboardCmd(), newEventsCmd(), newShellCmd()},
		"server": {newSessionsCmd(), newOperatorsCmd(), newLicensesCmd()},
		"local":  {newAuthCmd(), newConfigCmd(), newHistoryCmd()},
	} {
		for _, cmd := range cmds {
			cmd.GroupID = group
			rootCmd.AddCommand(cmd)
		}
	}

	rootCmd.AddCommand(newDoctorCmd(), newPathsCmd(), newUpdateCmd(), newVersionCmd(), newCompletionCmd())

	return rootCmd
}

// validateServerURL checks that raw is an absolute http(s) URL and returns it
// without surrounding spaces or a trailing slash.
func validateServerURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("empty URL")
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", err
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if u.Host == "" {
		return "", fmt.Errorf("missing host")
	}

	return strings.TrimRight(trimmed, "/"), nil
}

// noArgs rejects positional arguments. cobra.NoArgs would report them as
// an unknown command.
func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return &clierrors.CLIError{
			Message: fmt.Sprintf("'%s' accepts no arguments", cmd.CommandPath()),
			Hint:    fmt.Sprintf("Run '%s --help' for usage", cmd.CommandPath()),
			Code:    clierrors.ExitUsage,
		}
	}

	return nil
}

// usageArgs turns a failing cobra validator into a usage error that shows
// the command's Use line.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return &clierrors.CLIError{
				Message: fmt.Sprintf("'%s': %v", cmd.CommandPath(), err),
				Hint:    fmt.Sprintf("Usage: %s", cmd.UseLine()),
				Code:    clierrors.ExitUsage,
			}
		}

		return nil
	}
}
