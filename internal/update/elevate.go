//go:build !windows

package update

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"
)

// NeedsElevation reports whether the directory holding binaryPath is not
// writable by the current user.
func NeedsElevation(binaryPath string) bool {
	return unix.Access(filepath.Dir(binaryPath), unix.W_OK) != nil
}

// Elevate replaces the process with the same command run under sudo. It
// only returns on failure.
func Elevate(notice io.Writer) error {
	sudoPath, err := exec.LookPath("sudo")
	if err != nil {
		return fmt.Errorf("sudo not found in PATH; rerun the command with elevated permissions")
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}

	fmt.Fprintln(notice, "The lantern binary is not writable, requesting sudo...")

	if err := syscall.Exec(sudoPath, sudoArgv(execPath, os.Args[1:]), os.Environ()); err != nil { //nolint:gosec // G204: re-exec of our own binary
		return fmt.Errorf("exec sudo: %w", err)
	}

	return nil
}

func sudoArgv(execPath string, args []string) []string {
	argv := make([]string, 0, len(args)+2)
	argv = append(argv, "sudo", execPath)

	return append(argv, args...)
}
