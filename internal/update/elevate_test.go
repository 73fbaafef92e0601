//go:build !windows

package update

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestNeedsElevation(t *testing.T) {
	tmp := t.TempDir()

	if NeedsElevation(filepath.Join(tmp, "lantern")) {
		t.Error("writable directory should not need elevation")
	}

	if os.Geteuid() == 0 {
		t.Skip("root can write to read-only directories")
	}

	readOnly := filepath.Join(tmp, "readonly")
	if err := os.MkdirAll(readOnly, 0o555); err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() { _ = os.Chmod(readOnly, 0o755) })

	if !NeedsElevation(filepath.Join(readOnly, "lantern")) {
		t.Error("read-only directory should need elevation")
	}
}

func TestSudoArgv(t *testing.T) {
	got := sudoArgv("/usr/local/bin/lantern", []string{"update", "--force"})
	want := []string{"sudo", "/usr/local/bin/lantern", "update", "--force"}

	if !slices.Equal(got, want) {
		t.Errorf("sudoArgv() = %v, want %v", got, want)
	}
}
