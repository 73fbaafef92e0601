package realtime_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/lantern-c2/lantern/internal/realtime"
	"github.com/lantern-c2/lantern/internal/testutil"
)

func newLiveClient(t *testing.T, srv *testutil.FakeServer, cfg realtime.Config) *realtime.Client {
	t.Helper()

	cfg.ServerURL = srv.URL

	c := realtime.New(cfg)
	t.Cleanup(c.Disconnect)

	return c
}

func TestLive_RoundTrip(t *testing.T) {
	srv := testutil.NewFakeServer(t)
	c := newLiveClient(t, srv, realtime.Config{HeartbeatInterval: 20 * time.Millisecond})

	outputs := make(chan realtime.ShellOutput, 1)
	shell := realtime.NewShell(c)
	shell.OnOutput(func(out realtime.ShellOutput) { outputs <- out })

	ctx, cancel := context.WithTimeout(context.Background(), testutil.WaitTimeout)
	defer cancel()

	if err := c.Connect(ctx, "operator-token"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if got := srv.Tokens(); len(got) != 1 || got[0] != "operator-token" {
		t.Fatalf("server saw tokens %v", got)
	}

	if err := shell.Start(ctx, "s1", true, ""); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	start := srv.WaitReceived(t, realtime.TypeShellStart)

	var req realtime.ShellStart
	if err := json.Unmarshal(start.Payload, &req); err != nil || req.SessionID != "s1" || !req.UsePty {
		t.Fatalf("shell_start payload = %s (%v)", start.Payload, err)
	}

	srv.Push(t, realtime.TypeShellOutput, realtime.ShellOutput{SessionID: "s1", TunnelID: 9, Data: "$ "})

	select {
	case out := <-outputs:
		if out.TunnelID != 9 || out.Data != "$ " {
			t.Errorf("output = %+v", out)
		}
	case <-time.After(testutil.WaitTimeout):
		t.Fatal("no shell output delivered")
	}

	srv.WaitReceived(t, realtime.TypePing)
}

func TestLive_ReconnectsAfterServerDrop(t *testing.T) {
	srv := testutil.NewFakeServer(t)
	c := newLiveClient(t, srv, realtime.Config{ReconnectBaseDelay: 10 * time.Millisecond})

	if err := c.Connect(context.Background(), "tok"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	srv.DropAll()
	srv.WaitUpgrades(t, 2)

	testutil.Eventually(t, func() bool {
		s := c.Status()
		return s.State == realtime.StateOpen && s.Epoch == 2
	}, "second epoch")
}

func TestLive_RejectedHandshake(t *testing.T) {
	srv := testutil.NewFakeServer(t)
	srv.Reject(http.StatusUnauthorized)

	c := newLiveClient(t, srv, realtime.Config{ReconnectBaseDelay: time.Hour})

	err := c.Connect(context.Background(), "bad")
	if err == nil {
		t.Fatal("Connect() succeeded against a rejecting server")
	}

	var hsErr *realtime.HandshakeError
	if !errors.As(err, &hsErr) {
		t.Fatalf("Connect() error = %v, want a HandshakeError", err)
	}

	if hsErr.HTTPStatus() != http.StatusUnauthorized {
		t.Errorf("handshake status = %d, want 401", hsErr.HTTPStatus())
	}

	if got := c.State(); got != realtime.StateClosed {
		t.Errorf("State() = %s, want closed", got)
	}
}
