package notify

import (
	"encoding/json"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/lantern-c2/lantern/internal/realtime"
)

func TestDefaultRules_CoverInboundTypes(t *testing.T) {
	rules := DefaultRules()

	for _, msgType := range realtime.InboundTypes() {
		_, ok := rules[msgType]

		if msgType == realtime.TypeShellOutput {
			if ok {
				t.Errorf("shell_output should not have a default rule")
			}

			continue
		}

		if !ok {
			t.Errorf("no default rule for %q", msgType)
		}
	}
}

func TestLoadRules(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		check   func(t *testing.T, r Rules)
		wantErr string
	}{
		{
			name: "missing file yields defaults",
			file: "does-not-exist.yaml",
			check: func(t *testing.T, r Rules) {
				if len(r) != len(DefaultRules()) {
					t.Errorf("len(rules) = %d", len(r))
				}
			},
		},
		{
			name: "yaml overrides",
			file: "rules.yaml",
			check: func(t *testing.T, r Rules) {
				canary := r[realtime.TypeCanaryTriggered]
				if canary.Title != "Canary {{domain}}" || canary.Level != LevelWarning {
					t.Errorf("canary rule = %+v", canary)
				}

				if canary.Message != DefaultRules()[realtime.TypeCanaryTriggered].Message {
					t.Errorf("canary message should keep the default, got %q", canary.Message)
				}

				if !r[realtime.TypeJobStarted].Disabled {
					t.Error("job_started should be disabled")
				}

				if r["listener_failed"].Level != LevelError {
					t.Errorf("listener_failed = %+v", r["listener_failed"])
				}
			},
		},
		{
			name: "toml overrides",
			file: "rules.toml",
			check: func(t *testing.T, r Rules) {
				if got := r[realtime.TypeBuildCompleted].Message; got != "{{name}} built in {{stats.seconds}}s" {
					t.Errorf("build_completed message = %q", got)
				}

				if got := r[realtime.TypeBuildCompleted].Level; got != LevelSuccess {
					t.Errorf("build_completed level = %q, want default", got)
				}

				if got := r[realtime.TypeSessionDisconnected].Level; got != LevelInfo {
					t.Errorf("session_disconnected level = %q", got)
				}
			},
		},
		{name: "unknown level", file: "bad_level.yaml", wantErr: "unknown level"},
		{name: "shell output rejected", file: "shell_output.yaml", wantErr: "cannot produce notifications"},
		{name: "unsupported extension", file: "rules.json", wantErr: "unsupported rules format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join("testdata", tt.file)
			if tt.file == "rules.json" {
				path = filepath.Join(t.TempDir(), tt.file)
				writeFile(t, path, "{}")
			}

			rules, err := LoadRules(path)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("LoadRules() error = %v, want containing %q", err, tt.wantErr)
				}

				return
			}

			if err != nil {
				t.Fatalf("LoadRules() error = %v", err)
			}

			tt.check(t, rules)
		})
	}
}

func TestRules_Types(t *testing.T) {
	rules, err := LoadRules(filepath.Join("testdata", "rules.yaml"))
	if err != nil {
		t.Fatal(err)
	}

	types := rules.Types()

	if slices.Contains(types, realtime.TypeJobStarted) {
		t.Error("disabled type listed")
	}

	if types[len(types)-1] != "listener_failed" {
		t.Errorf("custom types should follow inbound types, got %v", types)
	}

	if types[0] != realtime.TypeSessionConnected {
		t.Errorf("types[0] = %q", types[0])
	}
}

func TestRules_Render(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rules := DefaultRules()
	rules["build_completed"] = Rule{
		Title:   "Built {{name}}",
		Message: "{{ stats.seconds }}s, ok={{ok}}, tags={{tags}}, {{missing}}",
		Level:   LevelSuccess,
	}

	tests := []struct {
		name        string
		msgType     string
		payload     string
		wantOK      bool
		wantTitle   string
		wantMessage string
	}{
		{
			name:        "session connected",
			msgType:     realtime.TypeSessionConnected,
			payload:     `{"hostname":"web01","username":"root","os":"linux","arch":"amd64","remoteAddr":"10.0.0.5:4431"}`,
			wantOK:      true,
			wantTitle:   "New session",
			wantMessage: "root@web01 (linux/amd64) connected from 10.0.0.5:4431",
		},
		{
			name:        "nested numbers and missing fields",
			msgType:     realtime.TypeBuildCompleted,
			payload:     `{"name":"implant","stats":{"seconds":42},"ok":true,"tags":["a","b"]}`,
			wantOK:      true,
			wantTitle:   "Built implant",
			wantMessage: `42s, ok=true, tags=["a","b"], unknown`,
		},
		{
			name:        "non-object payload",
			msgType:     realtime.TypeJobStopped,
			payload:     `"gone"`,
			wantOK:      true,
			wantTitle:   "Job stopped",
			wantMessage: "unknown on unknown:unknown stopped",
		},
		{
			name:        "remote escape sequences removed",
			msgType:     realtime.TypeSessionDisconnected,
			payload:     `{"hostname":"web\u001b]0;owned\u0007 01","username":"r\noot"}`,
			wantOK:      true,
			wantTitle:   "Session lost",
			wantMessage: "r oot@web 01 disconnected",
		},
		{name: "shell output ignored", msgType: realtime.TypeShellOutput, payload: `{}`},
		{name: "unknown type ignored", msgType: "mystery", payload: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := realtime.Envelope{Type: tt.msgType, Payload: json.RawMessage(tt.payload)}

			n, ok := rules.Render(env, now)
			if ok != tt.wantOK {
				t.Fatalf("Render() ok = %v, want %v", ok, tt.wantOK)
			}

			if !ok {
				return
			}

			if n.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", n.Title, tt.wantTitle)
			}

			if n.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", n.Message, tt.wantMessage)
			}

			if n.ID == "" || !n.ReceivedAt.Equal(now) || n.Type != tt.msgType {
				t.Errorf("notification = %+v", n)
			}
		})
	}
}
