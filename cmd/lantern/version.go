package main

import (
	"github.com/spf13/cobra"

	"github.com/lantern-c2/lantern/internal/output"
)

// VersionInfo is the JSON form of 'lantern version'.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display the lantern binary version, git commit, and build date.`,
		Example: `  lantern version
  lantern version --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			info := VersionInfo{Version: version, Commit: commit, Date: date}

			if out.JSON {
				return out.PrintJSON(info)
			}

			out.Print("lantern %s (commit %s, built %s)\n", info.Version, info.Commit, info.Date)

			return nil
		},
	}
}

var completionShells = map[string]func(cmd *cobra.Command) error{
	"bash":       func(cmd *cobra.Command) error { return cmd.Root().GenBashCompletionV2(cmd.OutOrStdout(), true) },
	"zsh":        func(cmd *cobra.Command) error { return cmd.Root().GenZshCompletion(cmd.OutOrStdout()) },
	"fish":       func(cmd *cobra.Command) error { return cmd.Root().GenFishCompletion(cmd.OutOrStdout(), true) },
	"powershell": func(cmd *cobra.Command) error { return cmd.Root().GenPowerShellCompletionWithDesc(cmd.OutOrStdout()) },
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion <bash|zsh|fish|powershell>",
		Short: "Generate shell completion scripts",
		Long: `Generate a completion script for your shell and write it to stdout.
Source it from your shell profile to complete lantern commands and flags.`,
		Example: `  lantern completion bash > /etc/bash_completion.d/lantern
  lantern completion zsh > "${fpath[1]}/_lantern"`,
		Args:      usageArgs(cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs)),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return completionShells[args[0]](cmd)
		},
	}
}
