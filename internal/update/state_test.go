package update

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStateFile(t *testing.T) *StateFile {
	t.Helper()

	return NewStateFile(filepath.Join(t.TempDir(), "state", "update-check.json"))
}

func TestStateFile_MissingFileIsEmpty(t *testing.T) {
	state, err := newTestStateFile(t).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !state.LastCheckedAt.IsZero() || state.LatestVersion != "" {
		t.Errorf("Load() = %+v, want empty state", state)
	}
}

func TestStateFile_RoundTripAndOverwrite(t *testing.T) {
	f := newTestStateFile(t)

	for _, latest := range []string{"1.2.3", "1.3.0"} {
		want := &State{
			LastCheckedAt:  epoch,
			LatestVersion:  latest,
			CurrentVersion: "1.0.0",
			ReleaseURL:     "https://github.com/lantern-c2/lantern/releases/tag/v" + latest,
			NotifiedAt:     epoch.Add(time.Minute),
		}

		if err := f.Save(want); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		got, err := f.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if !got.LastCheckedAt.Equal(want.LastCheckedAt) || !got.NotifiedAt.Equal(want.NotifiedAt) ||
			got.LatestVersion != want.LatestVersion || got.ReleaseURL != want.ReleaseURL {
			t.Errorf("Load() = %+v, want %+v", got, want)
		}
	}

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(f.path), "*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestStateFile_CorruptFileIsEmpty(t *testing.T) {
	f := newTestStateFile(t)

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(f.path, []byte("not json{{{"), 0o600); err != nil {
		t.Fatal(err)
	}

	state, err := f.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if state.LatestVersion != "" {
		t.Errorf("LatestVersion = %q, want empty", state.LatestVersion)
	}
}

func TestDefaultStateFile_UsesStateDir(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	t.Setenv("LANTERN_HOME", "")
	t.Setenv("XDG_STATE_HOME", tmp)

	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", tmp)
	}

	if err := SaveState(&State{LatestVersion: "2.0.0"}); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmp, "lantern", "update-check.json")); err != nil {
		t.Fatalf("state file missing: %v", err)
	}

	state, err := LoadState()
	if err != nil || state.LatestVersion != "2.0.0" {
		t.Fatalf("LoadState() = %+v, %v", state, err)
	}
}

func TestState_ShouldCheck(t *testing.T) {
	tests := []struct {
		name        string
		lastChecked time.Time
		want        bool
	}{
		{name: "never", want: true},
		{name: "an hour ago", lastChecked: epoch.Add(-time.Hour), want: false},
		{name: "a day ago", lastChecked: epoch.Add(-checkInterval), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &State{LastCheckedAt: tt.lastChecked}
			if got := s.ShouldCheck(epoch); got != tt.want {
				t.Errorf("ShouldCheck() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestState_HasUpdate(t *testing.T) {
	tests := []struct {
		current, latest string
		want            bool
	}{
		{current: "1.0.0", latest: "1.1.0", want: true},
		{current: "v1.0.0", latest: "1.0.1", want: true},
		{current: "1.1.0", latest: "1.1.0", want: false},
		{current: "2.0.0", latest: "1.9.9", want: false},
		{current: "dev", latest: "1.0.0", want: false},
		{current: "", latest: "1.0.0", want: false},
		{current: "1.0.0", latest: "", want: false},
		{current: "1.0.0", latest: "garbage", want: false},
	}

	for _, tt := range tests {
		s := &State{LatestVersion: tt.latest}
		if got := s.HasUpdate(tt.current); got != tt.want {
			t.Errorf("HasUpdate(%q) with latest %q = %v, want %v", tt.current, tt.latest, got, tt.want)
		}
	}
}

func TestState_ShouldNotifyOncePerDay(t *testing.T) {
	s := &State{LatestVersion: "1.1.0"}

	if !s.ShouldNotify("1.0.0", epoch) {
		t.Fatal("first notice should be shown")
	}

	if s.ShouldNotify("1.0.0", epoch.Add(time.Hour)) {
		t.Error("second notice within a day should be suppressed")
	}

	if !s.ShouldNotify("1.0.0", epoch.Add(noticeInterval)) {
		t.Error("notice should be shown again after a day")
	}
}

func TestState_RecordResetsNoticeForNewVersion(t *testing.T) {
	s := &State{LatestVersion: "1.1.0", NotifiedAt: epoch}

	s.Record(&Info{CurrentVersion: "1.0.0", LatestVersion: "1.1.0"}, epoch.Add(time.Hour))

	if s.NotifiedAt.IsZero() {
		t.Error("same latest version should keep the notice throttle")
	}

	s.Record(&Info{CurrentVersion: "1.0.0", LatestVersion: "1.2.0", ReleaseURL: "u"}, epoch.Add(2*time.Hour))

	if !s.NotifiedAt.IsZero() {
		t.Error("new latest version should reset the notice throttle")
	}

	if !s.LastCheckedAt.Equal(epoch.Add(2*time.Hour)) || s.ReleaseURL != "u" {
		t.Errorf("Record() left %+v", s)
	}

	if !s.ShouldNotify("1.0.0", epoch.Add(3*time.Hour)) {
		t.Error("new version should be announced immediately")
	}
}

func TestIsDisabled(t *testing.T) {
	for value, want := range map[string]bool{"": false, "1": true, "true": true, "TRUE": true, "0": false, "no": false} {
		t.Setenv(DisableEnvVar, value)

		if got := IsDisabled(); got != want {
			t.Errorf("IsDisabled() with %q = %v, want %v", value, got, want)
		}
	}
}
