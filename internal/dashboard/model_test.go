package dashboard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lantern-c2/lantern/internal/ansi"
	"github.com/lantern-c2/lantern/internal/client"
	"github.com/lantern-c2/lantern/internal/notify"
	"github.com/lantern-c2/lantern/internal/realtime"
)

type fakeController struct {
	mu         sync.Mutex
	status     realtime.Status
	reconnects int
	err        error
}

func (f *fakeController) Status() realtime.Status {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.status
}

func (f *fakeController) Reconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reconnects++
	if f.err == nil {
		f.status = realtime.Status{State: realtime.StateOpen, Epoch: f.status.Epoch + 1}
	}

	return f.err
}

func newTestModel(t *testing.T, ctrl *fakeController, sessions SessionLister) (Model, *notify.Store) {
	t.Helper()

	store := notify.NewStore(10)
	m := New(Options{
		Controller: ctrl,
		Store:      store,
		Sessions:   sessions,
		ServerURL:  "https://c2.example.test",
	})

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

	return updated.(Model), store
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()

	updated, cmd := m.Update(msg)

	return updated.(Model), cmd
}

func keyPress(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func view(m Model) string {
	return ansi.Strip(m.View())
}

func TestModel_StatusHeader(t *testing.T) {
	tests := []struct {
		name   string
		status realtime.Status
		want   []string
	}{
		{
			name:   "open",
			status: realtime.Status{State: realtime.StateOpen, Epoch: 1},
			want:   []string{"Connected", "https://c2.example.test"},
		},
		{
			name:   "waiting",
			status: realtime.Status{State: realtime.StateClosed, Attempt: 2, LastError: "connection refused"},
			want:   []string{"Waiting to reconnect", "Attempt 2", "last error: connection refused"},
		},
		{
			name:   "exhausted",
			status: realtime.Status{State: realtime.StateClosed, Attempt: 10, Exhausted: true},
			want:   []string{"Disconnected", "Gave up after 10 attempts, press r to retry"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestModel(t, &fakeController{}, nil)
			m, _ = update(t, m, StatusMsg(tt.status))

			got := view(m)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("View() missing %q:\n%s", w, got)
				}
			}
		})
	}
}

func TestModel_NotificationFeed(t *testing.T) {
	m, store := newTestModel(t, &fakeController{}, nil)

	if !strings.Contains(view(m), "Waiting for events") {
		t.Fatalf("empty feed not shown:\n%s", view(m))
	}

	n := notify.Notification{
		ID:         "n-1",
		Type:       realtime.TypeCanaryTriggered,
		Level:      notify.LevelError,
		Title:      "Canary triggered",
		Message:    "dns canary \x1b[31mfired",
		ReceivedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	store.Add(n)

	m, _ = update(t, m, NotificationMsg(n))

	got := view(m)
	if !strings.Contains(got, "Notifications (1 unread)") {
		t.Errorf("unread count missing:\n%s", got)
	}

	if !strings.Contains(got, "Canary triggered") || !strings.Contains(got, "dns canary fired") {
		t.Errorf("notification missing:\n%s", got)
	}

	m, _ = update(t, m, keyPress('m'))
	if m.unread != 0 || store.Unread() != 0 {
		t.Errorf("unread after mark read = %d/%d", m.unread, store.Unread())
	}

	m, _ = update(t, m, keyPress('c'))
	if len(store.List()) != 0 || len(m.notifications) != 0 {
		t.Errorf("clear left %d notifications", len(store.List()))
	}
}

func TestModel_Reconnect(t *testing.T) {
	ctrl := &fakeController{status: realtime.Status{State: realtime.StateClosed, Attempt: 10, Exhausted: true}}
	m, _ := newTestModel(t, ctrl, nil)

	m, cmd := update(t, m, keyPress('r'))
	if cmd == nil || !m.reconnecting {
		t.Fatal("r did not start a reconnect")
	}

	if _, again := update(t, m, keyPress('r')); again != nil {
		t.Error("second r while reconnecting should be ignored")
	}

	m, _ = update(t, m, cmd())

	if ctrl.reconnects != 1 {
		t.Errorf("reconnects = %d, want 1", ctrl.reconnects)
	}

	if m.reconnecting || !strings.Contains(view(m), "Connected") {
		t.Errorf("after reconnect:\n%s", view(m))
	}

	if _, cmd := update(t, m, keyPress('r')); cmd != nil {
		t.Error("r while open should be ignored")
	}
}

func TestModel_ReconnectFailure(t *testing.T) {
	ctrl := &fakeController{
		status: realtime.Status{State: realtime.StateClosed, Exhausted: true},
		err:    errors.New("dial tcp: connection refused"),
	}
	m, _ := newTestModel(t, ctrl, nil)

	m, cmd := update(t, m, keyPress('r'))
	m, _ = update(t, m, cmd())

	if !strings.Contains(view(m), "Reconnect failed: dial tcp: connection refused") {
		t.Errorf("failure not shown:\n%s", view(m))
	}
}

func TestModel_Sessions(t *testing.T) {
	list := func(context.Context) ([]client.Session, error) {
		return []client.Session{
			{ID: "s-1", Hostname: "web01", Username: "root", OS: "linux", Arch: "amd64", Alive: true},
			{ID: "s-2", Hostname: "gone", Alive: false},
		}, nil
	}

	m, _ := newTestModel(t, &fakeController{}, list)

	m, _ = update(t, m, m.fetchSessions()())

	got := view(m)
	if !strings.Contains(got, "Sessions (1 live)") || !strings.Contains(got, "root@web01 linux/amd64") {
		t.Errorf("sessions missing:\n%s", got)
	}

	if strings.Contains(got, "gone") {
		t.Errorf("dead session shown:\n%s", got)
	}

	_, cmd := update(t, m, NotificationMsg(notify.Notification{Type: realtime.TypeSessionConnected}))
	if cmd == nil {
		t.Fatal("session event should schedule a refresh")
	}

	m, _ = update(t, m, sessionsMsg{err: errors.New("server unavailable")})
	if !strings.Contains(view(m), "server unavailable") {
		t.Errorf("sessions error missing:\n%s", view(m))
	}
}

func TestModel_Quit(t *testing.T) {
	m, _ := newTestModel(t, &fakeController{}, nil)

	_, cmd := update(t, m, keyPress('q'))
	if cmd == nil {
		t.Fatal("q returned no command")
	}

	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}

func TestFeed_NeverBlocks(t *testing.T) {
	f := NewFeed()

	for i := 0; i < feedBuffer*2; i++ {
		f.Status(realtime.Status{Attempt: i})
	}

	msg := f.wait()()
	if s, ok := msg.(StatusMsg); !ok || s.Attempt != 0 {
		t.Errorf("first event = %#v", msg)
	}
}
