package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/lantern-c2/lantern/internal/ansi"
	"github.com/lantern-c2/lantern/internal/notify"
	"github.com/lantern-c2/lantern/internal/realtime"
)

const (
	defaultWidth    = 80
	titleWidth      = 24
	maxSessionsRows = 8
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	unreadStyle  = lipgloss.NewStyle().Bold(true)

	statusStyles = map[string]lipgloss.Style{
		"Connected":            lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		"Connecting":           lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		"Reconnecting":         lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		"Waiting to reconnect": lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"Disconnected":         lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}

	levelStyles = map[notify.Level]lipgloss.Style{
		notify.LevelInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		notify.LevelSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		notify.LevelWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		notify.LevelError:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

func (m Model) contentWidth() int {
	if m.width <= 0 {
		return defaultWidth
	}

	return m.width
}

// layout sizes the feed to the space left by the fixed sections.
func (m *Model) layout() {
	m.feed.Width = m.contentWidth()

	if m.height <= 0 {
		m.feed.SetContent(m.renderFeed())
		return
	}

	fixed := lipgloss.Height(m.renderHeader()) + lipgloss.Height(m.renderSessions()) +
		lipgloss.Height(m.help.View(keys)) + 2

	m.feed.Height = max(m.height-fixed, 3)
	m.feed.SetContent(m.renderFeed())
}

// View implements tea.Model.
func (m Model) View() string {
	parts := []string{m.renderHeader()}

	if sessions := m.renderSessions(); sessions != "" {
		parts = append(parts, sessions)
	}

	parts = append(parts,
		sectionStyle.Render(fmt.Sprintf("Notifications (%d unread)", m.unread)),
		m.feed.View(),
		m.help.View(keys),
	)

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderHeader() string {
	label := m.status.Label()

	style, ok := statusStyles[label]
	if !ok {
		style = mutedStyle
	}

	line := titleStyle.Render("lantern") + "  " + style.Render(label)
	if m.opts.ServerURL != "" {
		line += mutedStyle.Render("  " + m.opts.ServerURL)
	}

	lines := []string{line}

	if detail := statusDetail(m.status, m.reconnecting); detail != "" {
		lines = append(lines, mutedStyle.Render(detail))
	}

	if m.reconnectErr != "" {
		lines = append(lines, levelStyles[notify.LevelError].Render(
			"Reconnect failed: "+ansi.SingleLine(m.reconnectErr, m.contentWidth()-18)))
	}

	return strings.Join(lines, "\n")
}

// statusDetail describes retry progress for the header.
func statusDetail(s realtime.Status, reconnecting bool) string {
	var parts []string

	switch {
	case reconnecting:
		parts = append(parts, "Reconnecting on request")
	case s.Exhausted:
		parts = append(parts, fmt.Sprintf("Gave up after %d attempts, press r to retry", s.Attempt))
	case s.Attempt > 0 && s.State != realtime.StateOpen:
		parts = append(parts, fmt.Sprintf("Attempt %d", s.Attempt))
	}

	if s.LastError != "" && s.State != realtime.StateOpen {
		parts = append(parts, "last error: "+s.LastError)
	}

	return ansi.SingleLine(strings.Join(parts, ", "), 0)
}

func (m Model) renderSessions() string {
	if m.opts.Sessions == nil {
		return ""
	}

	width := m.contentWidth()

	var live []string

	for _, s := range m.sessions {
		if !s.Alive {
			continue
		}

		row := fmt.Sprintf("  %s %s@%s %s/%s",
			runewidth.FillRight(ansi.SingleLine(s.ID, 12), 12),
			ansi.SingleLine(s.Username, 24),
			ansi.SingleLine(s.Hostname, 32),
			ansi.SingleLine(s.OS, 12),
			ansi.SingleLine(s.Arch, 12),
		)
		live = append(live, ansi.SingleLine(row, width))
	}

	header := sectionStyle.Render(fmt.Sprintf("Sessions (%d live)", len(live)))

	if len(live) > maxSessionsRows {
		more := len(live) - maxSessionsRows
		live = append(live[:maxSessionsRows], mutedStyle.Render(fmt.Sprintf("  ... %d more", more)))
	}

	if m.sessionsErr != "" {
		live = append(live, levelStyles[notify.LevelWarning].Render(
			"  "+ansi.SingleLine(m.sessionsErr, width-2)))
	}

	if len(live) == 0 {
		live = append(live, mutedStyle.Render("  none"))
	}

	return header + "\n" + strings.Join(live, "\n")
}

func (m Model) renderFeed() string {
	if len(m.notifications) == 0 {
		return mutedStyle.Render("  Waiting for events...")
	}

	width := m.contentWidth()
	lines := make([]string, 0, len(m.notifications))

	for _, n := range m.notifications {
		lines = append(lines, renderNotification(n, width))
	}

	return strings.Join(lines, "\n")
}

// renderNotification renders one feed row: marker, time, title column and
// the message truncated to width.
func renderNotification(n notify.Notification, width int) string {
	marker := " "
	if !n.Read {
		marker = unreadStyle.Render("*")
	}

	ts := n.ReceivedAt.Local().Format(time.TimeOnly)
	title := runewidth.FillRight(ansi.SingleLine(n.Title, titleWidth), titleWidth)

	style, ok := levelStyles[n.Level]
	if !ok {
		style = levelStyles[notify.LevelInfo]
	}

	prefixWidth := 1 + 1 + len(ts) + 1 + titleWidth + 1
	msg := ansi.SingleLine(n.Message, max(width-prefixWidth, 8))

	return fmt.Sprintf("%s %s %s %s", marker, mutedStyle.Render(ts), style.Render(title), msg)
}
