package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/lantern-c2/lantern/internal/output"
	"github.com/lantern-c2/lantern/internal/update"
)

const backgroundCheckTimeout = 5 * time.Second

// quietCommands never check for updates or print the update notice, either
// because they own the terminal or because they are about updates already.
var quietCommands = map[string]bool{
	"update":     true,
	"version":    true,
	"completion": true,
	"doctor":     true,
	"shell":      true,
	"dashboard":  true,
	"events":     true,
}

func wantsUpdateCheck(cmd *cobra.Command, ver string, quiet, jsonOut bool) bool {
	if ver == "dev" || quiet || jsonOut || update.IsDisabled() {
		return false
	}

	return !quietCommands[cmd.Name()]
}

// backgroundUpdateCheck refreshes the cached release lookup when it is stale.
// Failures are silent: the notice is best effort.
func backgroundUpdateCheck(currentVersion string) {
	state, err := update.LoadState()
	if err != nil || !state.ShouldCheck(time.Now()) {
		return
	}

	updater, err := update.NewUpdater()
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), backgroundCheckTimeout)
	defer cancel()

	info, err := updater.CheckLatest(ctx, currentVersion)
	if err != nil {
		return
	}

	state.Record(info, time.Now())
	_ = update.SaveState(state)
}

// showUpdateNotice prints the cached update notice at most once a day.
func showUpdateNotice(out *output.Writer, currentVersion string) {
	state, err := update.LoadState()
	if err != nil || !state.ShouldNotify(currentVersion, time.Now()) {
		return
	}

	_ = update.SaveState(state)

	out.Println()
	out.Info("Lantern v%s is available (you have v%s)", state.LatestVersion, currentVersion)
	out.Muted("  Run 'lantern update' to install it")
}
