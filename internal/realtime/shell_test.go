package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type sent struct {
	msgType string
	payload string
}

type recordingSender struct {
	err  error
	sent []sent
}

func (r *recordingSender) Send(_ context.Context, msgType string, payload any) error {
	if r.err != nil {
		return r.err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	r.sent = append(r.sent, sent{msgType: msgType, payload: string(data)})

	return nil
}

func TestShell_Framing(t *testing.T) {
	tests := []struct {
		name     string
		call     func(*Shell) error
		wantType string
		wantBody string
	}{
		{
			name:     "start with pty and path",
			call:     func(s *Shell) error { return s.Start(context.Background(), "s1", true, "/bin/bash") },
			wantType: TypeShellStart,
			wantBody: `{"sessionId":"s1","usePty":true,"path":"/bin/bash"}`,
		},
		{
			name:     "start without path",
			call:     func(s *Shell) error { return s.Start(context.Background(), "s1", false, "") },
			wantType: TypeShellStart,
			wantBody: `{"sessionId":"s1","usePty":false}`,
		},
		{
			name:     "input",
			call:     func(s *Shell) error { return s.Input(context.Background(), "s1", 7, "ls\n") },
			wantType: TypeShellInput,
			wantBody: `{"sessionId":"s1","tunnelId":7,"data":"ls\n"}`,
		},
		{
			name:     "resize",
			call:     func(s *Shell) error { return s.Resize(context.Background(), "s1", 7, 120, 40) },
			wantType: TypeShellResize,
			wantBody: `{"sessionId":"s1","tunnelId":7,"cols":120,"rows":40}`,
		},
		{
			name:     "stop",
			call:     func(s *Shell) error { return s.Stop(context.Background(), "s1", 7) },
			wantType: TypeShellStop,
			wantBody: `{"sessionId":"s1","tunnelId":7}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &recordingSender{}
			shell := NewShellWith(sender, NewDispatcher(discardLogger()), discardLogger())

			if err := tt.call(shell); err != nil {
				t.Fatalf("call error = %v", err)
			}

			if len(sender.sent) != 1 {
				t.Fatalf("sent %d envelopes, want 1", len(sender.sent))
			}

			if got := sender.sent[0]; got.msgType != tt.wantType || got.payload != tt.wantBody {
				t.Errorf("sent %s %s, want %s %s", got.msgType, got.payload, tt.wantType, tt.wantBody)
			}
		})
	}
}

func TestShell_RejectsMissingSession(t *testing.T) {
	sender := &recordingSender{}
	shell := NewShellWith(sender, NewDispatcher(discardLogger()), discardLogger())
	ctx := context.Background()

	errs := []error{
		shell.Start(ctx, "", true, ""),
		shell.Input(ctx, "", 1, "x"),
		shell.Resize(ctx, "", 1, 80, 24),
		shell.Resize(ctx, "s1", 1, 0, 24),
		shell.Stop(ctx, "", 1),
	}

	for i, err := range errs {
		if !errors.Is(err, ErrInvalidTunnel) {
			t.Errorf("call %d error = %v, want ErrInvalidTunnel", i, err)
		}
	}

	if len(sender.sent) != 0 {
		t.Errorf("sent %d envelopes, want 0", len(sender.sent))
	}
}

func TestShell_InputWhileDisconnected(t *testing.T) {
	f := newFixture(t, Config{})
	shell := NewShell(f.client)

	err := shell.Input(context.Background(), "s1", 7, "ls\n")
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Input() error = %v, want ErrNotConnected", err)
	}

	if err := f.client.Connect(context.Background(), "tok"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if got := len(f.dialer.lastConn(t).envelopes(t)); got != 0 {
		t.Errorf("wire envelopes after reconnect = %d, want 0 (no replay)", got)
	}
}

func TestShell_OnOutput(t *testing.T) {
	d := NewDispatcher(discardLogger())
	shell := NewShellWith(&recordingSender{}, d, discardLogger())

	var got []ShellOutput

	unsub := shell.OnOutput(func(out ShellOutput) {
		got = append(got, out)
	})

	d.Publish(Envelope{Type: TypeShellOutput, Payload: json.RawMessage(`{"sessionId":"s1","tunnelId":4,"data":"root\n"}`)})
	d.Publish(Envelope{Type: TypeShellOutput, Payload: json.RawMessage(`"garbage"`)})
	d.Publish(Envelope{Type: TypeShellOutput, Payload: json.RawMessage(`null`)})
	d.Publish(Envelope{Type: TypeJobStarted, Payload: json.RawMessage(`{"sessionId":"s1"}`)})

	if len(got) != 1 {
		t.Fatalf("outputs = %+v, want 1", got)
	}

	if got[0] != (ShellOutput{SessionID: "s1", TunnelID: 4, Data: "root\n"}) {
		t.Errorf("output = %+v", got[0])
	}

	unsub()
	d.Publish(Envelope{Type: TypeShellOutput, Payload: json.RawMessage(`{"sessionId":"s1","tunnelId":4,"data":"x"}`)})

	if len(got) != 1 {
		t.Errorf("output delivered after unsubscribe")
	}
}
