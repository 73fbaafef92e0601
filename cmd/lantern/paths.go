package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lantern-c2/lantern/internal/auth"
	"github.com/lantern-c2/lantern/internal/config"
	"github.com/lantern-c2/lantern/internal/output"
	"github.com/lantern-c2/lantern/internal/paths"
)

// PathsInfo holds all resolved paths for JSON output.
type PathsInfo struct {
	ConfigRoot        string `json:"config_root"`
	StateRoot         string `json:"state_root"`
	CacheRoot         string `json:"cache_root"`
	ConfigFile        string `json:"config_file"`
	Credentials       string `json:"credentials"`
	LogFile           string `json:"log_file"`
	HistoryDir        string `json:"history_dir"`
	NotificationRules string `json:"notification_rules"`
	UpdateState       string `json:"update_state"`
	ServerURL         string `json:"server_url"`
	AuthSource        string `json:"auth_source"`
}

func newPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Show where Lantern stores files",
		Long: `Display all file and directory paths used by Lantern.

Useful for debugging, scripting, and understanding where configuration,
state, transcripts, and credential files are stored on this system.

LANTERN_HOME, when set to an absolute path, moves every root under it:
config, state and cache become subdirectories of that path.`,
		Example: `  lantern paths
  lantern paths --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			info := resolvePathsInfo(config.Load())

			if out.JSON {
				return out.PrintJSON(info)
			}

			out.Print("Config root:    %s\n", info.ConfigRoot)
			out.Print("State root:     %s\n", info.StateRoot)
			out.Print("Cache root:     %s\n", info.CacheRoot)
			out.Print("\n")
			out.Print("Config file:    %s\n", info.ConfigFile)
			out.Print("Credentials:    %s\n", info.Credentials)
			out.Print("Log file:       %s\n", info.LogFile)
			out.Print("History dir:    %s\n", info.HistoryDir)
			out.Print("Rules file:     %s\n", info.NotificationRules)
			out.Print("Update state:   %s\n", info.UpdateState)
			out.Print("\n")
			out.Print("Server URL:     %s\n", orNotSet(info.ServerURL))
			out.Print("Auth source:    %s\n", info.AuthSource)

			return nil
		},
	}
}

func resolvePathsInfo(cfg *config.Config) PathsInfo {
	info := PathsInfo{
		ConfigRoot:  resolveOrError(paths.ConfigRoot),
		StateRoot:   resolveOrError(paths.StateRoot),
		CacheRoot:   resolveOrError(paths.CacheRoot),
		ConfigFile:  resolveOrError(paths.ConfigFile),
		Credentials: resolveOrError(paths.CredentialsFile),
		LogFile:     resolveOrError(paths.DefaultLogFile),
		UpdateState: resolveOrError(paths.UpdateStateFile),
	}

	info.HistoryDir = cfg.HistoryDir()
	info.NotificationRules = cfg.NotificationRules()
	info.ServerURL = cfg.ServerURL()

	info.AuthSource = "none"

	if info.ServerURL != "" {
		if source, _ := auth.GetCredentials(info.ServerURL); source != auth.SourceNone {
			info.AuthSource = string(source)
		}
	}

	return info
}

func resolveOrError(fn func() (string, error)) string {
	val, err := fn()
	if err != nil {
		return fmt.Sprintf("<error: %v>", err)
	}

	return val
}

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}

	return s
}
