package main

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	clierrors "github.com/lantern-c2/lantern/internal/errors"
	"github.com/lantern-c2/lantern/internal/observability"
	"github.com/lantern-c2/lantern/internal/output"
)

// globalFlags are the persistent flags every command accepts. Each falls
// back to a LANTERN_ environment variable when unset.
type globalFlags struct {
	json    bool
	quiet   bool
	noColor bool
	noInput bool
	server  string

	logLevel  string
	logFormat string
	logFile   string
	logStderr string
}

func (g *globalFlags) register(fs *pflag.FlagSet) {
	fs.BoolVar(&g.json, "json", false, "Output in JSON format")
	fs.BoolVar(&g.quiet, "quiet", false, "Minimal output (for CI)")
	fs.BoolVar(&g.noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&g.noInput, "no-input", false, "Disable interactive prompts")
	fs.StringVar(&g.server, "server", "", "Server base URL (overrides server.url)")
	fs.StringVar(&g.logLevel, "log-level", "", "Log level: error, warn, info, debug")
	fs.StringVar(&g.logFormat, "log-format", "", "Log format: json, text")
	fs.StringVar(&g.logFile, "log-file", "", "Optional structured log file path")
	fs.StringVar(&g.logStderr, "log-stderr", "", "Structured logging to stderr: auto, on, off")
}

// applyServer validates --server and exports it as LANTERN_SERVER_URL so the
// config layer picks it up with env precedence.
func (g *globalFlags) applyServer() error {
	if g.server == "" {
		return nil
	}

	normalized, err := validateServerURL(g.server)
	if err != nil {
		return &clierrors.CLIError{
			Message: fmt.Sprintf("Invalid server URL: %v", err),
			Hint:    "Use an absolute http:// or https:// URL, for example --server https://c2.example.com",
			Code:    clierrors.ExitUsage,
		}
	}

	if err := os.Setenv(serverURLEnv, normalized); err != nil {
		return fmt.Errorf("set %s: %w", serverURLEnv, err)
	}

	return nil
}

func (g *globalFlags) applyOutput(out *output.Writer) {
	out.JSON = g.json || envBool("LANTERN_JSON")
	out.Quiet = g.quiet || envBool("LANTERN_QUIET")
	out.NoInput = g.noInput || envBool("LANTERN_NO_INPUT") || envBool("CI")

	if g.noColor {
		out.SetNoColor(true)

		color.NoColor = true
	}
}

func (g *globalFlags) loggerConfig(commandPath string, tty bool) *observability.Config {
	return &observability.Config{
		Level:          flagOrEnv(g.logLevel, "LANTERN_LOG_LEVEL", "info"),
		Format:         flagOrEnv(g.logFormat, "LANTERN_LOG_FORMAT", "json"),
		LogFile:        flagOrEnv(g.logFile, "LANTERN_LOG_FILE", ""),
		StderrMode:     flagOrEnv(g.logStderr, "LANTERN_LOG_STDERR", "auto"),
		InteractiveTTY: tty && isInteractiveCommand(commandPath),
		CommandPath:    commandPath,
		Version:        version,
		Commit:         commit,
	}
}

func invalidLogging(err error) error {
	return &clierrors.CLIError{
		Message: fmt.Sprintf("Invalid logging configuration: %v", err),
		Hint:    "Use --log-level (error|warn|info|debug), --log-format (json|text), --log-stderr (auto|on|off), and/or --log-file",
		Code:    clierrors.ExitUsage,
	}
}

var truthy = []string{"1", "true", "yes", "on"}

// envBool reports whether key is set to a truthy value.
func envBool(key string) bool {
	return slices.Contains(truthy, strings.ToLower(strings.TrimSpace(os.Getenv(key))))
}

func flagOrEnv(flagValue, envKey, fallback string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}

	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		return v
	}

	return fallback
}

// isInteractiveCommand reports whether the command owns the terminal, in
// which case logs must not go to stderr.
func isInteractiveCommand(path string) bool {
	for _, name := range []string{"lantern shell", "lantern dashboard"} {
		if path == name || strings.HasPrefix(path, name+" ") {
			return true
		}
	}

	return false
}
