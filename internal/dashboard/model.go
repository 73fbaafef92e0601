// Package dashboard is the live terminal view of the realtime channel: the
// connection status, the notification feed and the live sessions.
package dashboard

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lantern-c2/lantern/internal/client"
	"github.com/lantern-c2/lantern/internal/notify"
	"github.com/lantern-c2/lantern/internal/realtime"
)

const (
	refreshInterval  = time.Second
	sessionsInterval = 30 * time.Second
	reconnectTimeout = 30 * time.Second
)

// Controller is the part of the realtime client the dashboard drives.
type Controller interface {
	Status() realtime.Status
	Reconnect(ctx context.Context) error
}

// SessionLister fetches the current sessions.
type SessionLister func(ctx context.Context) ([]client.Session, error)

// StatusMsg carries a realtime status snapshot.
type StatusMsg realtime.Status

// NotificationMsg carries one new notification.
type NotificationMsg notify.Notification

type tickMsg time.Time

type sessionsMsg struct {
	sessions []client.Session
	err      error
}

type reconnectMsg struct {
	err error
}

// Options configures a Model.
type Options struct {
	Controller Controller
	Store      *notify.Store
	Feed       *Feed
	// Sessions is optional. Without it the sessions panel is hidden.
	Sessions  SessionLister
	ServerURL string
	Now       func() time.Time
}

// Model is the bubbletea model of the dashboard.
type Model struct {
	opts Options

	status        realtime.Status
	notifications []notify.Notification
	unread        int
	sessions      []client.Session
	sessionsErr   string
	lastSessions  time.Time
	reconnecting  bool
	reconnectErr  string
	width, height int

	feed viewport.Model
	help help.Model
}

// New builds a dashboard model.
func New(opts Options) Model {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	if opts.Feed == nil {
		opts.Feed = NewFeed()
	}

	m := Model{
		opts: opts,
		feed: viewport.New(80, 10),
		help: help.New(),
	}

	m.status = opts.Controller.Status()
	m.syncNotifications()

	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.opts.Feed.wait(), tick()}
	if m.opts.Sessions != nil {
		cmds = append(cmds, m.fetchSessions())
	}

	return tea.Batch(cmds...)
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) fetchSessions() tea.Cmd {
	list := m.opts.Sessions

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		sessions, err := list(ctx)

		return sessionsMsg{sessions: sessions, err: err}
	}
}

func (m Model) reconnect() tea.Cmd {
	ctrl := m.opts.Controller

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), reconnectTimeout)
		defer cancel()

		return reconnectMsg{err: ctrl.Reconnect(ctx)}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()

		return m, nil

	case StatusMsg:
		m.status = realtime.Status(msg)
		return m, m.opts.Feed.wait()

	case NotificationMsg:
		m.syncNotifications()

		cmds := []tea.Cmd{m.opts.Feed.wait()}
		if m.opts.Sessions != nil && affectsSessions(msg.Type) {
			cmds = append(cmds, m.fetchSessions())
		}

		return m, tea.Batch(cmds...)

	case tickMsg:
		m.status = m.opts.Controller.Status()

		cmds := []tea.Cmd{tick()}
		if m.opts.Sessions != nil && time.Time(msg).Sub(m.lastSessions) >= sessionsInterval {
			m.lastSessions = time.Time(msg)
			cmds = append(cmds, m.fetchSessions())
		}

		return m, tea.Batch(cmds...)

	case sessionsMsg:
		if msg.err != nil {
			m.sessionsErr = msg.err.Error()
		} else {
			m.sessions = msg.sessions
			m.sessionsErr = ""
		}

		m.layout()

		return m, nil

	case reconnectMsg:
		m.reconnecting = false
		m.reconnectErr = ""

		if msg.err != nil {
			m.reconnectErr = msg.err.Error()
		}

		m.status = m.opts.Controller.Status()

		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, keys.Reconnect):
		if m.reconnecting || m.status.State == realtime.StateOpen {
			return m, nil
		}

		m.reconnecting = true
		m.reconnectErr = ""

		return m, m.reconnect()

	case key.Matches(msg, keys.Clear):
		m.opts.Store.Clear()
		m.syncNotifications()

		return m, nil

	case key.Matches(msg, keys.Read):
		m.opts.Store.MarkAllRead()
		m.syncNotifications()

		return m, nil
	}

	var cmd tea.Cmd
	m.feed, cmd = m.feed.Update(msg)

	return m, cmd
}

func (m *Model) syncNotifications() {
	m.notifications = m.opts.Store.List()
	m.unread = m.opts.Store.Unread()
	m.feed.SetContent(m.renderFeed())
}

func affectsSessions(msgType string) bool {
	return msgType == realtime.TypeSessionConnected || msgType == realtime.TypeSessionDisconnected
}
