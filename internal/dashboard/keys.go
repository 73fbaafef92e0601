package dashboard

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Reconnect key.Binding
	Clear     key.Binding
	Read      key.Binding
	Up        key.Binding
	Down      key.Binding
	Quit      key.Binding
}

var keys = keyMap{
	Reconnect: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reconnect")),
	Clear:     key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear")),
	Read:      key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mark read")),
	Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Reconnect, k.Clear, k.Read, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Reconnect, k.Clear, k.Read, k.Quit},
	}
}
