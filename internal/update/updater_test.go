package update

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	selfupdate "github.com/creativeprojects/go-selfupdate"
)

type asset struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	URL  string `json:"browser_download_url"`
}

// releaseJSON renders one release in GitHub's API shape with the given
// asset names.
func releaseJSON(tag string, names ...string) string {
	assets := make([]asset, 0, len(names))
	for i, name := range names {
		assets = append(assets, asset{ID: i + 1, Name: name, URL: "https://example.com/download/" + name})
	}

	data, _ := json.Marshal(map[string]any{
		"tag_name":   "v" + tag,
		"name":       "Lantern v" + tag,
		"prerelease": false,
		"draft":      false,
		"assets":     assets,
	})

	return string(data)
}

func platformArchive(tag string) string {
	ext := "tar.gz"
	if runtime.GOOS == "windows" {
		ext = "zip"
	}

	return fmt.Sprintf("lantern_%s_%s_%s.%s", tag, runtime.GOOS, runtime.GOARCH, ext)
}

// serveReleases answers every request with the given releases.
func serveReleases(t *testing.T, status int, releases ...string) *Updater {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			fmt.Fprint(w, `{"message":"unavailable"}`)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, "[")

		for i, r := range releases {
			if i > 0 {
				fmt.Fprint(w, ",")
			}

			fmt.Fprint(w, r)
		}

		fmt.Fprint(w, "]")
	}))
	t.Cleanup(server.Close)

	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{EnterpriseBaseURL: server.URL + "/"})
	if err != nil {
		t.Fatalf("NewGitHubSource() error = %v", err)
	}

	u, err := NewUpdater(WithSource(source))
	if err != nil {
		t.Fatalf("NewUpdater() error = %v", err)
	}

	return u
}

func TestCheckLatest(t *testing.T) {
	newer := releaseJSON("2.0.0", platformArchive("2.0.0"), checksumsFile)
	same := releaseJSON("1.0.0", platformArchive("1.0.0"), checksumsFile)

	tests := []struct {
		name       string
		current    string
		releases   []string
		wantLatest string
		wantUpdate bool
	}{
		{name: "newer available", current: "1.0.0", releases: []string{newer}, wantLatest: "2.0.0", wantUpdate: true},
		{name: "up to date", current: "1.0.0", releases: []string{same}, wantLatest: "1.0.0"},
		{name: "dev build", current: "dev", releases: []string{same}, wantLatest: "1.0.0", wantUpdate: true},
		{name: "no releases", current: "1.0.0", wantLatest: "1.0.0"},
		{
			name:       "only sidecar assets",
			current:    "1.0.0",
			releases:   []string{releaseJSON("2.0.0", "lantern_2.0.0_sbom.json", checksumsFile)},
			wantLatest: "1.0.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := serveReleases(t, http.StatusOK, tt.releases...).CheckLatest(t.Context(), tt.current)
			if err != nil {
				t.Fatalf("CheckLatest() error = %v", err)
			}

			if info.LatestVersion != tt.wantLatest || info.UpdateAvailable != tt.wantUpdate {
				t.Errorf("CheckLatest() = latest %q update %v, want %q %v",
					info.LatestVersion, info.UpdateAvailable, tt.wantLatest, tt.wantUpdate)
			}

			if info.CurrentVersion != tt.current {
				t.Errorf("CurrentVersion = %q, want %q", info.CurrentVersion, tt.current)
			}
		})
	}
}

func TestCheckLatest_APIErrors(t *testing.T) {
	for _, status := range []int{http.StatusInternalServerError, http.StatusForbidden} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			if _, err := serveReleases(t, status).CheckLatest(t.Context(), "1.0.0"); err == nil {
				t.Fatalf("expected error for %d response", status)
			}
		})
	}
}

func TestApplyVersion_NotFound(t *testing.T) {
	u := serveReleases(t, http.StatusOK, releaseJSON("1.0.0", platformArchive("1.0.0"), checksumsFile))

	_, err := u.ApplyVersion(t.Context(), "v9.9.9")
	if !errors.Is(err, ErrVersionNotFound) {
		t.Fatalf("ApplyVersion() error = %v, want ErrVersionNotFound", err)
	}
}

func TestIsNewer(t *testing.T) {
	tests := []struct {
		current, latest string
		want            bool
	}{
		{"1.0.0", "1.0.1", true},
		{"1.0.0", "1.0.0", false},
		{"1.2.0", "1.1.9", false},
		{"1.0.0", "1.1.0-rc.1", true},
		{"dev", "0.1.0", true},
		{"1.0.0", "nightly", false},
	}

	for _, tt := range tests {
		if got := IsNewer(tt.current, tt.latest); got != tt.want {
			t.Errorf("IsNewer(%q, %q) = %v, want %v", tt.current, tt.latest, got, tt.want)
		}
	}
}
