package main

import (
	"strings"
	"testing"

	"github.com/lantern-c2/lantern/internal/transcript"
)

// recordTranscript writes a closed transcript with the given chunks into a
// fresh history dir and returns its id.
func recordTranscript(t *testing.T, chunks ...[2]string) string {
	t.Helper()

	isolateConfig(t)

	dir := t.TempDir()
	t.Setenv("LANTERN_HISTORY_DIR", dir)

	s, err := transcript.NewStore(transcript.StoreOptions{ID: "7c1e0d", SessionID: "3f9c2a", TunnelID: 4, Dir: dir})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	for _, c := range chunks {
		if err := s.Append(c[0], []byte(c[1])); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	return s.ID()
}

func TestHistoryView(t *testing.T) {
	chunks := [][2]string{
		{transcript.StreamOutput, "$ "},
		{transcript.StreamInput, "cat /etc/passwd\n"},
		{transcript.StreamOutput, "root:x:0:0\n\x1b[31mdaemon\x1b[0m:x:1:1\n$ "},
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "hides input", args: []string{"7c1e"}, want: "$ root:x:0:0\ndaemon:x:1:1\n$ "},
		{name: "with input", args: []string{"7c1e", "--input"}, want: "$ > cat /etc/passwd\nroot:x:0:0\ndaemon:x:1:1\n$ "},
		{name: "search", args: []string{"7c1e", "--search", "ROOT"}, want: "root:x:0:0\ndaemon:x:1:1\n$ "},
		{name: "tail", args: []string{"7c1e", "--tail", "-n", "2"}, want: "daemon:x:1:1\n$ \n"},
		{name: "lines implies tail", args: []string{"7c1e", "-n", "1"}, want: "$ \n"},
		{name: "tail search", args: []string{"7c1e", "--tail", "--search", "daemon"}, want: "daemon:x:1:1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recordTranscript(t, chunks...)

			out, buf := testWriter()
			if err := runWith(t, newHistoryViewCmd(), out, tt.args...); err != nil {
				t.Fatalf("history view error = %v", err)
			}

			if buf.String() != tt.want {
				t.Errorf("output = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestHistoryView_TailExcludesFollow(t *testing.T) {
	recordTranscript(t, [2]string{transcript.StreamOutput, "x\n"})

	out, _ := testWriter()

	err := runWith(t, newHistoryViewCmd(), out, "7c1e", "--tail", "--follow")
	if err == nil || !strings.Contains(err.Error(), "none of the others can be") {
		t.Fatalf("expected mutually exclusive flag error, got %v", err)
	}
}

func TestHistoryView_UnknownTranscript(t *testing.T) {
	recordTranscript(t)

	out, _ := testWriter()

	err := runWith(t, newHistoryViewCmd(), out, "ffff")
	if err == nil || !strings.Contains(err.Error(), "ffff") {
		t.Fatalf("expected transcript not found error, got %v", err)
	}
}

func TestHistoryList_JSON(t *testing.T) {
	recordTranscript(t, [2]string{transcript.StreamOutput, "x\n"})

	out, buf := testWriter()
	out.JSON = true

	if err := runWith(t, newHistoryListCmd(), out); err != nil {
		t.Fatalf("history list error = %v", err)
	}

	for _, want := range []string{`"id": "7c1e0d"`, `"sessionId": "3f9c2a"`, `"tunnelId": 4`, `"closedAt"`} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("history list --json missing %s:\n%s", want, buf.String())
		}
	}
}
