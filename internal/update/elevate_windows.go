//go:build windows

package update

import (
	"errors"
	"io"
)

// NeedsElevation is always false on Windows; the installer owns the binary.
func NeedsElevation(string) bool {
	return false
}

// Elevate is not supported on Windows.
func Elevate(io.Writer) error {
	return errors.New("automatic elevation is not supported on Windows; rerun from an Administrator prompt")
}
