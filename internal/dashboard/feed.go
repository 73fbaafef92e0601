package dashboard

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lantern-c2/lantern/internal/notify"
	"github.com/lantern-c2/lantern/internal/realtime"
)

const feedBuffer = 256

// Feed carries realtime status changes and notifications into a running
// dashboard. Its methods never block: when the buffer is full the event is
// dropped and the next refresh tick picks up the current status.
type Feed struct {
	events chan tea.Msg
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{events: make(chan tea.Msg, feedBuffer)}
}

// Status posts a status snapshot. It matches realtime.OnStateChange.
func (f *Feed) Status(s realtime.Status) {
	f.post(StatusMsg(s))
}

// Notification posts a notification. It matches notify.Store.Watch.
func (f *Feed) Notification(n notify.Notification) {
	f.post(NotificationMsg(n))
}

func (f *Feed) post(msg tea.Msg) {
	select {
	case f.events <- msg:
	default:
	}
}

// wait returns a command that delivers the next feed event.
func (f *Feed) wait() tea.Cmd {
	return func() tea.Msg {
		return <-f.events
	}
}
