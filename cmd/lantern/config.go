package main

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lantern-c2/lantern/internal/config"
	clierrors "github.com/lantern-c2/lantern/internal/errors"
	"github.com/lantern-c2/lantern/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  `View and modify lantern configuration settings.`,
	}

	cmd.AddCommand(newConfigListCmd())
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		Long: `Display every configuration setting with its effective value, after
environment variables, the config file, and defaults are applied.`,
		Example: `  lantern config list
  lantern config list --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			cfg := config.Load()

			if out.JSON {
				settings := make(map[string]any, len(config.Keys))
				for _, key := range config.Keys {
					settings[key] = cfg.Get(key)
				}

				return out.PrintJSON(settings)
			}

			for _, key := range config.Keys {
				out.Print("%s = %s\n", key, displayValue(cfg.Get(key)))
			}

			return nil
		},
	}
}

const notSet = "(not set)"

func displayValue(value any) string {
	if value == nil {
		return notSet
	}

	s := fmt.Sprintf("%v", value)
	if strings.TrimSpace(s) == "" {
		return notSet
	}

	return s
}

// configEntry is the JSON form of 'config get'.
type configEntry struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
	Set   bool   `json:"set"`
}

func unknownConfigKey(key string) error {
	return &clierrors.CLIError{
		Message: fmt.Sprintf("Unknown configuration key: %s", key),
		Hint:    "Run 'lantern config list' to see available keys",
		Code:    clierrors.ExitUsage,
	}
}

// completeConfigKeys offers the documented keys for the first argument.
func completeConfigKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	return config.Keys, cobra.ShellCompDirectiveNoFileComp
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Long: `Print the effective value of one configuration key. Unknown keys are
rejected; known keys without a value print a notice instead.`,
		Example: `  lantern config get server.url
  lantern config get realtime.heartbeat_interval --json`,
		Args:              usageArgs(cobra.ExactArgs(1)),
		ValidArgsFunction: completeConfigKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			key := args[0]

			if !slices.Contains(config.Keys, key) {
				return unknownConfigKey(key)
			}

			value := config.Load().Get(key)
			shown := displayValue(value)
			isSet := shown != notSet

			if out.JSON {
				return out.PrintJSON(configEntry{Key: key, Value: value, Set: isSet})
			}

			if !isSet {
				out.Muted("%s is not set", key)
				return nil
			}

			out.Print("%s = %s\n", key, shown)

			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration key to the given value. The value is persisted to the config file.

Reconnect delays double from realtime.reconnect_base_delay on every attempt.
realtime.reconnect_max_delay caps one delay; 0 means no cap, except that
unlimited attempts (realtime.reconnect_max_attempts -1) are capped at 5m.
realtime.reconnect_max_attempts must be a positive count or -1.`,
		Example: `  lantern config set server.url https://c2.example.com
  lantern config set realtime.reconnect_max_attempts -1`,
		Args:              usageArgs(cobra.ExactArgs(2)),
		ValidArgsFunction: completeConfigKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			key, value := args[0], args[1]

			parsed, err := config.Parse(key, value)
			if err != nil {
				if errors.Is(err, config.ErrUnknownKey) {
					return unknownConfigKey(key)
				}

				return &clierrors.CLIError{
					Message: fmt.Sprintf("Invalid value for %s: %v", key, err),
					Hint:    "Durations use Go syntax such as 30s or 168h",
					Code:    clierrors.ExitUsage,
				}
			}

			if key == "server.url" {
				normalized, err := validateServerURL(value)
				if err != nil {
					return &clierrors.CLIError{
						Message: fmt.Sprintf("Invalid server URL: %v", err),
						Hint:    "Use an absolute http:// or https:// URL",
						Code:    clierrors.ExitUsage,
					}
				}

				parsed = normalized
			}

			cfg := config.Load()
			if err := cfg.Set(key, parsed); err != nil {
				return clierrors.ConfigFailed("set config", err)
			}

			out.Success("Set %s = %v", key, parsed)

			return nil
		},
	}
}
