package transcript

import (
	"strings"
	"testing"

	"github.com/lantern-c2/lantern/internal/realtime"
)

func TestRecorder_PerTunnelTranscripts(t *testing.T) {
	tmp := t.TempDir()
	rec := NewRecorder(tmp, "/bin/sh", nil)

	rec.Output(realtime.ShellOutput{SessionID: "s-1", TunnelID: 1, Data: "one\n"})
	rec.Output(realtime.ShellOutput{SessionID: "s-1", TunnelID: 2, Data: "two\n"})
	rec.Input("s-1", 1, []byte("whoami\n"))
	rec.Output(realtime.ShellOutput{SessionID: "s-1", TunnelID: 1, Data: "root\n"})

	metas := rec.Transcripts()
	if len(metas) != 2 {
		t.Fatalf("Transcripts() = %+v", metas)
	}

	var first Meta

	for _, m := range metas {
		if m.TunnelID == 1 {
			first = m
		}
	}

	if first.ID == "" || first.Shell != "/bin/sh" {
		t.Fatalf("no transcript for tunnel 1: %+v", metas)
	}

	if err := rec.CloseTunnel("s-1", 1); err != nil {
		t.Fatalf("CloseTunnel() error = %v", err)
	}

	events, err := ReadEvents(tmp, first.ID)
	if err != nil {
		t.Fatalf("ReadEvents() error = %v", err)
	}

	if len(events) != 3 || events[1].Stream != StreamInput {
		t.Errorf("events = %+v", events)
	}

	if lines, err := Tail(tmp, first.ID, 10); err != nil || strings.Join(lines, "|") != "one|root" {
		t.Errorf("Tail(tunnel 1) = %#v, %v", lines, err)
	}

	if err := rec.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	rec.Output(realtime.ShellOutput{SessionID: "s-1", TunnelID: 3, Data: "late\n"})

	list, err := List(tmp)
	if err != nil {
		t.Fatal(err)
	}

	if len(list) != 2 {
		t.Errorf("List() = %d transcripts, want 2", len(list))
	}

	for _, tr := range list {
		if tr.ClosedAt == nil {
			t.Errorf("transcript %s left open", tr.ID)
		}
	}
}
