package update

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lantern-c2/lantern/internal/paths"
)

const (
	checkInterval  = 24 * time.Hour
	noticeInterval = 24 * time.Hour
)

// State caches the last release check so most invocations never touch the
// network.
type State struct {
	LastCheckedAt  time.Time `json:"lastCheckedAt"`
	LatestVersion  string    `json:"latestVersion,omitempty"`
	CurrentVersion string    `json:"currentVersion,omitempty"`
	ReleaseURL     string    `json:"releaseURL,omitempty"`
	// NotifiedAt is when the operator was last told about LatestVersion.
	NotifiedAt time.Time `json:"notifiedAt,omitzero"`
}

// StateFile reads and writes State at a fixed path.
type StateFile struct {
	path string
}

// NewStateFile returns a StateFile stored at path.
func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

// DefaultStateFile returns the StateFile under the lantern state directory.
func DefaultStateFile() (*StateFile, error) {
	path, err := paths.UpdateStateFile()
	if err != nil {
		return nil, fmt.Errorf("resolve update state path: %w", err)
	}

	return NewStateFile(path), nil
}

// Load returns the stored state. A missing or corrupt file yields an empty
// State so the next check rewrites it.
func (f *StateFile) Load() (*State, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{}, nil
		}

		return nil, fmt.Errorf("read update state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return &State{}, nil //nolint:nilerr // corrupt state is rebuilt on the next check
	}

	return &state, nil
}

// Save replaces the stored state through a temp file and rename.
func (f *StateFile) Save(state *State) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create update state directory: %w", err)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal update state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp update state: %w", err)
	}

	tmpName := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()

	if err := firstErr(writeErr, closeErr); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write update state: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		// Windows refuses to rename over an existing file.
		_ = os.Remove(f.path)

		if err := os.Rename(tmpName, f.path); err != nil {
			_ = os.Remove(tmpName)
			return fmt.Errorf("replace update state: %w", err)
		}
	}

	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	return nil
}

// LoadState reads the default state file.
func LoadState() (*State, error) {
	f, err := DefaultStateFile()
	if err != nil {
		return &State{}, nil //nolint:nilerr // no state directory means no cached check
	}

	return f.Load()
}

// SaveState writes the default state file.
func SaveState(state *State) error {
	f, err := DefaultStateFile()
	if err != nil {
		return err
	}

	return f.Save(state)
}

// ShouldCheck reports whether the cached result is older than a day.
func (s *State) ShouldCheck(now time.Time) bool {
	return s.LastCheckedAt.IsZero() || now.Sub(s.LastCheckedAt) >= checkInterval
}

// Record stores the outcome of a successful check. A new latest version
// resets the notice throttle.
func (s *State) Record(info *Info, now time.Time) {
	if info.LatestVersion != s.LatestVersion {
		s.NotifiedAt = time.Time{}
	}

	s.LastCheckedAt = now
	s.CurrentVersion = info.CurrentVersion
	s.LatestVersion = info.LatestVersion
	s.ReleaseURL = info.ReleaseURL
}

// HasUpdate reports whether the cached latest version is newer than
// currentVersion. Dev builds never get a notice.
func (s *State) HasUpdate(currentVersion string) bool {
	if s.LatestVersion == "" || currentVersion == "" || currentVersion == "dev" {
		return false
	}

	return IsNewer(currentVersion, s.LatestVersion)
}

// ShouldNotify reports whether an update notice is due and, if so, marks it
// as shown at now.
func (s *State) ShouldNotify(currentVersion string, now time.Time) bool {
	if !s.HasUpdate(currentVersion) {
		return false
	}

	if !s.NotifiedAt.IsZero() && now.Sub(s.NotifiedAt) < noticeInterval {
		return false
	}

	s.NotifiedAt = now

	return true
}
