// Package update checks GitHub Releases for newer lantern builds and
// replaces the running binary with a checksum-verified release asset.
package update

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/Masterminds/semver/v3"
	selfupdate "github.com/creativeprojects/go-selfupdate"
)

const (
	repoSlug      = "lantern-c2/lantern"
	checksumsFile = "checksums.txt"

	// DisableEnvVar turns off update checks when set to 1 or true.
	DisableEnvVar = "LANTERN_UPDATE_DISABLED"
)

// assetFilter keeps the lantern archives and skips sidecar files published
// with the same release (checksums, SBOMs, signatures).
var assetFilter = []string{`^lantern_.*\.(tar\.gz|zip)$`}

// ErrVersionNotFound is returned when a pinned version has no release for
// this platform.
var ErrVersionNotFound = errors.New("version not found")

// IsDisabled reports whether DisableEnvVar is set.
func IsDisabled() bool {
	v := strings.TrimSpace(os.Getenv(DisableEnvVar))
	return v == "1" || strings.EqualFold(v, "true")
}

// Info is the outcome of a version check.
type Info struct {
	CurrentVersion  string `json:"currentVersion"`
	LatestVersion   string `json:"latestVersion"`
	UpdateAvailable bool   `json:"updateAvailable"`
	ReleaseURL      string `json:"releaseURL,omitempty"`

	Release *selfupdate.Release `json:"-"`
}

// Updater checks for and applies releases.
type Updater struct {
	updater *selfupdate.Updater
	repo    selfupdate.Repository
}

type options struct {
	source     selfupdate.Source
	prerelease bool
}

// Option customizes an Updater.
type Option func(*options)

// WithSource replaces the GitHub source, e.g. with an enterprise mirror.
func WithSource(source selfupdate.Source) Option {
	return func(o *options) { o.source = source }
}

// WithPrerelease includes prereleases when looking for the latest version.
func WithPrerelease(enabled bool) Option {
	return func(o *options) { o.prerelease = enabled }
}

// NewUpdater builds an Updater for the lantern release repository.
func NewUpdater(opts ...Option) (*Updater, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.source == nil {
		source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{
			APIToken: os.Getenv("GITHUB_TOKEN"),
		})
		if err != nil {
			return nil, fmt.Errorf("create github source: %w", err)
		}

		o.source = source
	}

	updater, err := selfupdate.NewUpdater(selfupdate.Config{
		Source:     o.source,
		Validator:  &selfupdate.ChecksumValidator{UniqueFilename: checksumsFile},
		Filters:    assetFilter,
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		Prerelease: o.prerelease,
	})
	if err != nil {
		return nil, fmt.Errorf("create updater: %w", err)
	}

	return &Updater{updater: updater, repo: selfupdate.ParseSlug(repoSlug)}, nil
}

// CheckLatest compares currentVersion with the newest published release.
// No release for this platform is reported as up to date.
func (u *Updater) CheckLatest(ctx context.Context, currentVersion string) (*Info, error) {
	latest, found, err := u.updater.DetectLatest(ctx, u.repo)
	if err != nil {
		return nil, fmt.Errorf("detect latest release: %w", err)
	}

	info := &Info{CurrentVersion: currentVersion, LatestVersion: currentVersion}
	if !found {
		return info, nil
	}

	info.LatestVersion = latest.Version()
	info.ReleaseURL = latest.URL
	info.Release = latest
	info.UpdateAvailable = IsNewer(currentVersion, latest.Version())

	return info, nil
}

// IsNewer reports whether latest should replace current. A current version
// that is not semver (a dev build) is always behind; an unparseable latest
// version never wins.
func IsNewer(current, latest string) bool {
	latestVer, err := semver.NewVersion(latest)
	if err != nil {
		return false
	}

	currentVer, err := semver.NewVersion(current)
	if err != nil {
		return true
	}

	return latestVer.GreaterThan(currentVer)
}

// Apply installs release over the running executable.
func (u *Updater) Apply(ctx context.Context, release *selfupdate.Release) error {
	execPath, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("find executable path: %w", err)
	}

	if err := u.updater.UpdateTo(ctx, release, execPath); err != nil {
		return fmt.Errorf("apply update: %w", err)
	}

	return nil
}

// ApplyVersion installs a specific version, which may be older than the
// running one.
func (u *Updater) ApplyVersion(ctx context.Context, version string) (*selfupdate.Release, error) {
	version = strings.TrimPrefix(strings.TrimSpace(version), "v")

	release, found, err := u.updater.DetectVersion(ctx, u.repo, version)
	if err != nil {
		return nil, fmt.Errorf("detect version %s: %w", version, err)
	}

	if !found {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, version)
	}

	if err := u.Apply(ctx, release); err != nil {
		return nil, err
	}

	return release, nil
}
