// Package config handles lantern configuration using Viper.
//
// Configuration sources (in priority order):
//  1. Environment variables (LANTERN_*)
//  2. Config file (<config dir>/lantern/config.yaml)
//  3. Built-in defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lantern-c2/lantern/internal/paths"
	"github.com/lantern-c2/lantern/internal/realtime"
)

const (
	// DefaultShellStartTimeout bounds the wait for a tunnel's first output.
	DefaultShellStartTimeout = 15 * time.Second
	// DefaultHistoryLines is how many lines 'history view --tail' prints.
	DefaultHistoryLines = 200
	// DefaultHistoryRetention is the default prune window.
	DefaultHistoryRetention = 720 * time.Hour
	// DefaultNotificationLimit caps the in-memory notification feed.
	DefaultNotificationLimit = 200
)

type kind int

const (
	kindString kind = iota
	kindDuration
	kindInt
	kindBool
)

// Keys lists every documented configuration key in display order.
var Keys = []string{
	"server.url",
	"realtime.heartbeat_interval",
	"realtime.reconnect_base_delay",
	"realtime.reconnect_max_delay",
	"realtime.reconnect_max_attempts",
	"realtime.dial_timeout",
	"realtime.write_timeout",
	"shell.start_timeout",
	"history.enabled",
	"history.dir",
	"history.lines",
	"history.retention",
	"notifications.rules",
	"notifications.limit",
}

var keyKinds = map[string]kind{
	"realtime.heartbeat_interval":     kindDuration,
	"realtime.reconnect_base_delay":   kindDuration,
	"realtime.reconnect_max_delay":    kindDuration,
	"realtime.reconnect_max_attempts": kindInt,
	"realtime.dial_timeout":           kindDuration,
	"realtime.write_timeout":          kindDuration,
	"shell.start_timeout":             kindDuration,
	"history.enabled":                 kindBool,
	"history.lines":                   kindInt,
	"history.retention":               kindDuration,
	"notifications.limit":             kindInt,
}

// ErrUnknownKey is returned by Parse for keys not in Keys.
var ErrUnknownKey = errors.New("unknown configuration key")

// Parse converts raw into the value stored for key. Durations are kept in
// their string form so the config file stays readable.
func Parse(key, raw string) (any, error) {
	if !slices.Contains(Keys, key) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	raw = strings.TrimSpace(raw)

	switch keyKinds[key] {
	case kindDuration:
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("%s expects a duration such as 30s or 5m", key)
		}

		return d.String(), nil
	case kindInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%s expects an integer", key)
		}

		if key == "realtime.reconnect_max_attempts" && (n == 0 || n < -1) {
			return nil, fmt.Errorf("%s expects a positive count, or -1 for unlimited", key)
		}

		return n, nil
	case kindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%s expects true or false", key)
		}

		return b, nil
	default:
		return raw, nil
	}
}

// Config holds the lantern configuration.
type Config struct {
	v *viper.Viper
}

// Load reads configuration from all sources.
func Load() *Config {
	v := viper.New()

	v.SetDefault("server.url", "")
	v.SetDefault("realtime.heartbeat_interval", realtime.DefaultHeartbeatInterval)
	v.SetDefault("realtime.reconnect_base_delay", realtime.DefaultReconnectBaseDelay)
	v.SetDefault("realtime.reconnect_max_delay", time.Duration(0))
	v.SetDefault("realtime.reconnect_max_attempts", realtime.DefaultMaxReconnectAttempts)
	v.SetDefault("realtime.dial_timeout", realtime.DefaultDialTimeout)
	v.SetDefault("realtime.write_timeout", realtime.DefaultWriteTimeout)
	v.SetDefault("shell.start_timeout", DefaultShellStartTimeout)
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.lines", DefaultHistoryLines)
	v.SetDefault("history.retention", DefaultHistoryRetention)
	v.SetDefault("notifications.limit", DefaultNotificationLimit)

	if dir, err := paths.HistoryDir(); err == nil {
		v.SetDefault("history.dir", dir)
	}

	if rules, err := paths.NotificationRulesFile(); err == nil {
		v.SetDefault("notifications.rules", rules)
	}

	if root, err := paths.ConfigRoot(); err == nil {
		v.AddConfigPath(root)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("LANTERN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found, but warn on other errors)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Warning: error reading config file: %v\n", err)
		}
	}

	return &Config{v: v}
}

// Get returns a configuration value.
func (c *Config) Get(key string) any {
	return c.v.Get(key)
}

// GetString returns a configuration value as string.
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt returns a configuration value as int.
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetDuration returns a configuration value as a duration.
func (c *Config) GetDuration(key string) time.Duration {
	return c.v.GetDuration(key)
}

// IsSet reports whether key has a value from any source.
func (c *Config) IsSet(key string) bool {
	return c.v.IsSet(key)
}

// Set stores value for key in the config file and in c. Only keys already
// in the file and key itself are written; defaults stay out of the file.
func (c *Config) Set(key string, value any) error {
	configFile, err := paths.ConfigFile()
	if err != nil {
		return err
	}

	file := viper.New()
	file.SetConfigFile(configFile)
	file.SetConfigType("yaml")

	if err := file.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read %s: %w", configFile, err)
	}

	file.Set(key, value)

	if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
		return err
	}

	if err := file.WriteConfigAs(configFile); err != nil {
		return err
	}

	c.v.Set(key, value)

	return nil
}

// All returns all configuration as a map.
func (c *Config) All() map[string]any {
	return c.v.AllSettings()
}

// ServerURL returns the configured server base URL.
func (c *Config) ServerURL() string {
	return strings.TrimRight(c.GetString("server.url"), "/")
}

// Realtime builds the connection settings for the realtime client.
func (c *Config) Realtime() realtime.Config {
	return realtime.Config{
		ServerURL:            c.ServerURL(),
		HeartbeatInterval:    c.GetDuration("realtime.heartbeat_interval"),
		ReconnectBaseDelay:   c.GetDuration("realtime.reconnect_base_delay"),
		ReconnectMaxDelay:    c.GetDuration("realtime.reconnect_max_delay"),
		MaxReconnectAttempts: c.GetInt("realtime.reconnect_max_attempts"),
		DialTimeout:          c.GetDuration("realtime.dial_timeout"),
		WriteTimeout:         c.GetDuration("realtime.write_timeout"),
	}
}

// ShellStartTimeout returns how long `shell` waits for the first output.
func (c *Config) ShellStartTimeout() time.Duration {
	if d := c.GetDuration("shell.start_timeout"); d > 0 {
		return d
	}

	return DefaultShellStartTimeout
}

// HistoryEnabled reports whether shell transcripts are recorded.
func (c *Config) HistoryEnabled() bool {
	return c.v.GetBool("history.enabled")
}

// HistoryDir returns the transcript directory.
func (c *Config) HistoryDir() string {
	return c.GetString("history.dir")
}

// HistoryLines returns the line count for 'history view --tail'.
func (c *Config) HistoryLines() int {
	if n := c.GetInt("history.lines"); n > 0 {
		return n
	}

	return DefaultHistoryLines
}

// HistoryRetention returns the default prune window.
func (c *Config) HistoryRetention() time.Duration {
	if d := c.GetDuration("history.retention"); d > 0 {
		return d
	}

	return DefaultHistoryRetention
}

// NotificationRules returns the path of the notification rules file.
func (c *Config) NotificationRules() string {
	return c.GetString("notifications.rules")
}

// NotificationLimit returns the notification feed size.
func (c *Config) NotificationLimit() int {
	if n := c.GetInt("notifications.limit"); n > 0 {
		return n
	}

	return DefaultNotificationLimit
}
