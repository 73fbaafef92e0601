package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	selfupdate "github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"

	"github.com/lantern-c2/lantern/internal/buildinfo"
	clierrors "github.com/lantern-c2/lantern/internal/errors"
	"github.com/lantern-c2/lantern/internal/output"
	"github.com/lantern-c2/lantern/internal/update"
)

const releasesURL = "https://github.com/lantern-c2/lantern/releases"

func newUpdateCmd() *cobra.Command {
	var (
		targetVersion string
		force         bool
		checkOnly     bool
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update lantern to the latest release",
		Long: `Update lantern from GitHub Releases.

The new binary is checksum-verified before it replaces the running
executable. When the executable is not writable the update is re-run
under sudo.

Set ` + update.DisableEnvVar + `=1 to disable update checks.`,
		Example: `  lantern update
  lantern update --check
  lantern update --version 0.4.2`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			if update.IsDisabled() {
				out.Warning("Updates are disabled (%s is set)", update.DisableEnvVar)
				return nil
			}

			updater, err := update.NewUpdater()
			if err != nil {
				return clierrors.Wrap(clierrors.ExitGeneral, "Failed to initialize updater", err)
			}

			if targetVersion != "" {
				return installVersion(cmd.Context(), out, updater, strings.TrimPrefix(targetVersion, "v"))
			}

			return updateLatest(cmd.Context(), out, updater, force, checkOnly)
		},
	}

	cmd.Flags().StringVar(&targetVersion, "version", "", "Install a specific version (e.g. 1.2.3)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Reinstall even when already up to date")
	cmd.Flags().BoolVar(&checkOnly, "check", false, "Only report whether an update is available")

	return cmd
}

func updateLatest(ctx context.Context, out *output.Writer, updater *update.Updater, force, checkOnly bool) error {
	current := buildinfo.Version

	if current == "dev" {
		out.Warning("Development build, the current version is unknown")
		out.Info("Install a release build: %s", releasesURL)

		return nil
	}

	spin := out.Spinner("Checking for updates")
	spin.Start()

	info, err := updater.CheckLatest(ctx, current)
	if err != nil {
		spin.StopWithFailure("Update check failed")

		if strings.Contains(err.Error(), "403") {
			out.Info("Set GITHUB_TOKEN to avoid rate limits")
		}

		return clierrors.Wrap(clierrors.ExitNetwork, "Update check failed", err)
	}

	saveCheckState(info)

	if out.JSON {
		spin.Stop()
		return out.PrintJSON(info)
	}

	switch {
	case checkOnly && info.UpdateAvailable:
		spin.StopWithWarning(fmt.Sprintf("Update available: v%s -> v%s", current, info.LatestVersion))
		out.Muted("Run 'lantern update' to install it")

		return nil
	case !info.UpdateAvailable && (checkOnly || !force):
		spin.StopWithSuccess(fmt.Sprintf("Already up to date (v%s)", current))
		return nil
	case info.Release == nil:
		spin.StopWithFailure("No release found for this platform")
		return clierrors.New(clierrors.ExitGeneral, "No release found for this platform")
	case info.UpdateAvailable:
		spin.StopWithSuccess(fmt.Sprintf("Update available: v%s -> v%s", current, info.LatestVersion))
	default:
		spin.StopWithSuccess(fmt.Sprintf("Reinstalling v%s", info.LatestVersion))
	}

	if elevated, err := elevateIfNeeded(); elevated || err != nil {
		return err
	}

	spin = out.Spinner(fmt.Sprintf("Downloading v%s", info.LatestVersion))
	spin.Start()

	if err := updater.Apply(ctx, info.Release); err != nil {
		spin.StopWithFailure("Update failed")
		return clierrors.Wrap(clierrors.ExitGeneral, "Update failed", err)
	}

	spin.StopWithSuccess(fmt.Sprintf("Updated to v%s", info.LatestVersion))

	if info.ReleaseURL != "" {
		out.Muted("Release notes: %s", info.ReleaseURL)
	}

	return nil
}

func installVersion(ctx context.Context, out *output.Writer, updater *update.Updater, version string) error {
	if elevated, err := elevateIfNeeded(); elevated || err != nil {
		return err
	}

	spin := out.Spinner(fmt.Sprintf("Installing v%s", version))
	spin.Start()

	release, err := updater.ApplyVersion(ctx, version)
	if err != nil {
		spin.StopWithFailure(fmt.Sprintf("Failed to install v%s", version))

		if errors.Is(err, update.ErrVersionNotFound) {
			out.Info("Check available versions at %s", releasesURL)
		}

		return clierrors.Wrap(clierrors.ExitGeneral, "Install failed", err)
	}

	spin.StopWithSuccess(fmt.Sprintf("Installed v%s", release.Version()))

	if out.JSON {
		return out.PrintJSON(map[string]string{"installed": release.Version()})
	}

	return nil
}

// elevateIfNeeded re-runs the process under sudo when the executable is not
// writable. It reports true when the elevated run has replaced this one.
func elevateIfNeeded() (bool, error) {
	execPath, err := selfupdate.ExecutablePath()
	if err != nil || !update.NeedsElevation(execPath) {
		return false, nil
	}

	if err := update.Elevate(os.Stderr); err != nil {
		return true, clierrors.Wrap(clierrors.ExitGeneral, "Failed to re-run the update with sudo", err)
	}

	return true, nil
}

func saveCheckState(info *update.Info) {
	state, err := update.LoadState()
	if err != nil {
		state = &update.State{}
	}

	state.Record(info, time.Now())

	_ = update.SaveState(state)
}
