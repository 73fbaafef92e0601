package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/lantern-c2/lantern/internal/ansi"
	"github.com/lantern-c2/lantern/internal/realtime"
)

// Level is the severity shown with a notification.
type Level string

// Notification levels.
const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

func (l Level) valid() bool {
	switch l {
	case LevelInfo, LevelSuccess, LevelWarning, LevelError:
		return true
	default:
		return false
	}
}

// Rule maps one event type to notification text. Title and Message may
// reference top-level or dotted payload fields as {{field}}.
type Rule struct {
	Title    string `yaml:"title" toml:"title"`
	Message  string `yaml:"message" toml:"message"`
	Level    Level  `yaml:"level" toml:"level"`
	Disabled bool   `yaml:"disabled" toml:"disabled"`
}

// Rules is keyed by inbound event type.
type Rules map[string]Rule

// DefaultRules covers every inbound event type except shell output.
func DefaultRules() Rules {
	return Rules{
		realtime.TypeSessionConnected: {
			Title:   "New session",
			Message: "{{username}}@{{hostname}} ({{os}}/{{arch}}) connected from {{remoteAddr}}",
			Level:   LevelSuccess,
		},
		realtime.TypeSessionDisconnected: {
			Title:   "Session lost",
			Message: "{{username}}@{{hostname}} disconnected",
			Level:   LevelWarning,
		},
		realtime.TypeBeaconRegistered: {
			Title:   "New beacon",
			Message: "{{username}}@{{hostname}} checked in",
			Level:   LevelSuccess,
		},
		realtime.TypeBeaconDisconnected: {
			Title:   "Beacon lost",
			Message: "{{username}}@{{hostname}} stopped checking in",
			Level:   LevelWarning,
		},
		realtime.TypeJobStarted: {
			Title:   "Job started",
			Message: "{{name}} listening on {{host}}:{{port}}",
			Level:   LevelInfo,
		},
		realtime.TypeJobStopped: {
			Title:   "Job stopped",
			Message: "{{name}} on {{host}}:{{port}} stopped",
			Level:   LevelInfo,
		},
		realtime.TypeTaskCompleted: {
			Title:   "Task completed",
			Message: "{{taskType}} finished on {{hostname}}",
			Level:   LevelSuccess,
		},
		realtime.TypeCanaryTriggered: {
			Title:   "Canary triggered",
			Message: "{{domain}} was resolved by {{source}}",
			Level:   LevelError,
		},
		realtime.TypeBuildCompleted: {
			Title:   "Implant built",
			Message: "{{name}} ({{os}}/{{arch}}) is ready",
			Level:   LevelSuccess,
		},
	}
}

// LoadRules reads rule overrides from a YAML or TOML file and merges them
// over DefaultRules. A missing file yields the defaults.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()

	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path from user configuration
	if errors.Is(err, os.ErrNotExist) {
		return rules, nil
	}

	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}

	overrides := Rules{}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &overrides)
	case ".toml":
		err = toml.Unmarshal(data, &overrides)
	default:
		return nil, fmt.Errorf("unsupported rules format %q", filepath.Ext(path))
	}

	if err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}

	for msgType, rule := range overrides {
		if msgType == realtime.TypeShellOutput || msgType == realtime.Wildcard {
			return nil, fmt.Errorf("event type %q cannot produce notifications", msgType)
		}

		if rule.Level == "" {
			rule.Level = rules[msgType].Level
		}

		if rule.Level == "" {
			rule.Level = LevelInfo
		}

		if !rule.Level.valid() {
			return nil, fmt.Errorf("%s: unknown level %q", msgType, rule.Level)
		}

		if base, ok := rules[msgType]; ok {
			if rule.Title == "" {
				rule.Title = base.Title
			}

			if rule.Message == "" {
				rule.Message = base.Message
			}
		}

		rules[msgType] = rule
	}

	return rules, nil
}

// Types returns the enabled event types.
func (r Rules) Types() []string {
	var out []string

	for _, msgType := range realtime.InboundTypes() {
		if rule, ok := r[msgType]; ok && !rule.Disabled {
			out = append(out, msgType)
		}
	}

	var extra []string

	for msgType, rule := range r {
		if rule.Disabled || isInbound(msgType) {
			continue
		}

		extra = append(extra, msgType)
	}

	slices.Sort(extra)

	return append(out, extra...)
}

func isInbound(msgType string) bool {
	return slices.Contains(realtime.InboundTypes(), msgType)
}

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

// render substitutes payload fields into tmpl. Missing fields render as
// "unknown". Field values are reduced to printable single-line text.
func render(tmpl string, fields map[string]any) string {
	return placeholder.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := placeholder.FindStringSubmatch(match)[1]

		v, ok := lookup(fields, key)
		if !ok {
			return "unknown"
		}

		return ansi.SingleLine(format(v), 0)
	})
}

func lookup(fields map[string]any, key string) (any, bool) {
	var cur any = fields

	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}

		cur, ok = m[part]
		if !ok || cur == nil {
			return nil, false
		}
	}

	return cur, true
}

func format(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "true"
		}

		return "false"
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return "?"
		}

		return string(data)
	}
}

// payloadFields decodes an object payload. Other payloads yield no fields.
func payloadFields(payload json.RawMessage) map[string]any {
	fields := map[string]any{}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	if err := dec.Decode(&fields); err != nil {
		return map[string]any{}
	}

	return fields
}
