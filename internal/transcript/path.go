package transcript

import (
	"fmt"

	"github.com/lantern-c2/lantern/internal/paths"
)

// DefaultDir returns the default history directory.
func DefaultDir() (string, error) {
	dir, err := paths.HistoryDir()
	if err != nil {
		return "", fmt.Errorf("resolve history directory: %w", err)
	}

	return dir, nil
}

func resolveRoot(rootDir string) (string, error) {
	if rootDir != "" {
		return rootDir, nil
	}

	dir, err := DefaultDir()
	if err != nil {
		return "", fmt.Errorf("resolve transcript root directory: %w", err)
	}

	return dir, nil
}
