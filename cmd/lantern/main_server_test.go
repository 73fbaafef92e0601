package main

import (
	"os"
	"strings"
	"testing"

	clierrors "github.com/lantern-c2/lantern/internal/errors"
)

func TestValidateServerURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "https valid", raw: "https://c2.example.test", want: "https://c2.example.test"},
		{name: "http with port", raw: "http://localhost:8443", want: "http://localhost:8443"},
		{name: "trims spaces", raw: "  https://c2.example.test  ", want: "https://c2.example.test"},
		{name: "trims trailing slash", raw: "https://c2.example.test/", want: "https://c2.example.test"},
		{name: "keeps path", raw: "https://c2.example.test/team/", want: "https://c2.example.test/team"},
		{name: "empty", raw: "   ", wantErr: true},
		{name: "no scheme", raw: "c2.example.test", wantErr: true},
		{name: "websocket scheme", raw: "wss://c2.example.test", wantErr: true},
		{name: "missing host", raw: "https:///path", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := validateServerURL(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("validateServerURL(%q) expected error, got %q", tc.raw, got)
				}

				return
			}

			if err != nil {
				t.Fatalf("validateServerURL(%q) error = %v", tc.raw, err)
			}

			if got != tc.want {
				t.Fatalf("validateServerURL(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestRootCmd_ServerFlagSetsEnv(t *testing.T) {
	t.Setenv(serverURLEnv, "https://from-env.example")

	root := newRootCmd()
	root.SetArgs([]string{"--server", "https://from-flag.example/", "version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("root.Execute() error = %v", err)
	}

	if got := os.Getenv(serverURLEnv); got != "https://from-flag.example" {
		t.Fatalf("%s = %q, want https://from-flag.example", serverURLEnv, got)
	}
}

func TestRootCmd_ServerFlagRejectsInvalidValue(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"--server", "bad-url", "version"})

	err := root.Execute()
	if err == nil {
		t.Fatal("expected error for invalid --server")
	}

	var cliErr *clierrors.CLIError
	if !clierrors.As(err, &cliErr) {
		t.Fatalf("expected CLIError, got %T: %v", err, err)
	}

	if cliErr.Code != clierrors.ExitUsage {
		t.Fatalf("exit code = %d, want %d", cliErr.Code, clierrors.ExitUsage)
	}

	if !strings.Contains(cliErr.Message, "Invalid server URL") {
		t.Fatalf("error message = %q, want Invalid server URL", cliErr.Message)
	}
}
