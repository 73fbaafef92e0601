// Package paths resolves where lantern keeps config, state and cache files.
//
// Each root is chosen in order: LANTERN_HOME/<kind>, the matching absolute
// XDG_*_HOME variable, the OS default, and finally a dot directory in $HOME.
package paths

import (
	"errors"
	"os"
	"path/filepath"
)

const appName = "lantern"

// HomeEnv relocates every lantern root beneath one directory.
const HomeEnv = "LANTERN_HOME"

type rootKind int

const (
	kindConfig rootKind = iota
	kindState
	kindCache
)

type rootSpec struct {
	subdir    string
	xdgEnv    string
	osDir     func() (string, error)
	dotInHome string
}

var rootSpecs = map[rootKind]rootSpec{
	kindConfig: {subdir: "config", xdgEnv: "XDG_CONFIG_HOME", osDir: os.UserConfigDir, dotInHome: ".config"},
	// Go has no OS state directory; state falls through to ~/.local/state.
	kindState: {subdir: "state", xdgEnv: "XDG_STATE_HOME", dotInHome: filepath.Join(".local", "state")},
	kindCache: {subdir: "cache", xdgEnv: "XDG_CACHE_HOME", osDir: os.UserCacheDir, dotInHome: ".cache"},
}

func resolve(kind rootKind, elem ...string) (string, error) {
	root, err := rootDir(rootSpecs[kind])
	if err != nil {
		return "", err
	}

	return filepath.Join(append([]string{root}, elem...)...), nil
}

func rootDir(spec rootSpec) (string, error) {
	if home := os.Getenv(HomeEnv); home != "" && filepath.IsAbs(home) {
		return filepath.Join(home, spec.subdir), nil
	}

	if xdg := os.Getenv(spec.xdgEnv); xdg != "" && filepath.IsAbs(xdg) {
		return filepath.Join(xdg, appName), nil
	}

	var osErr error

	if spec.osDir != nil {
		dir, err := spec.osDir()
		if err == nil && dir != "" {
			return filepath.Join(dir, appName), nil
		}

		osErr = err
	}

	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		return filepath.Join(home, spec.dotInHome, appName), nil
	}

	return "", errors.Join(errors.New("resolve lantern directory: no usable home"), osErr, err)
}

// ConfigRoot is the directory for operator-edited files.
func ConfigRoot() (string, error) { return resolve(kindConfig) }

// StateRoot is the directory for files lantern writes on its own.
func StateRoot() (string, error) { return resolve(kindState) }

// CacheRoot is the directory for disposable data.
func CacheRoot() (string, error) { return resolve(kindCache) }

// ConfigFile is the persisted config written by 'lantern config set'.
func ConfigFile() (string, error) { return resolve(kindConfig, "config.yaml") }

// CredentialsFile holds the operator token when no keyring is available.
func CredentialsFile() (string, error) { return resolve(kindConfig, "token") }

// NotificationRulesFile is the default notification rules file.
func NotificationRulesFile() (string, error) { return resolve(kindConfig, "notifications.yaml") }

// HistoryDir holds shell transcripts.
func HistoryDir() (string, error) { return resolve(kindState, "history") }

// UpdateStateFile caches the last release check.
func UpdateStateFile() (string, error) { return resolve(kindState, "update-check.json") }

// DefaultLogFile is where logs go when --log-file is not given.
func DefaultLogFile() (string, error) { return resolve(kindState, "logs", "lantern.log") }
