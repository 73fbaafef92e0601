package dashboard

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows the dashboard until the operator quits or ctx is canceled.
func Run(ctx context.Context, opts Options) error {
	if opts.Feed == nil {
		opts.Feed = NewFeed()
	}

	unwatch := opts.Store.Watch(opts.Feed.Notification)
	defer unwatch()

	p := tea.NewProgram(New(opts), tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		if ctx.Err() != nil {
			return nil
		}

		return fmt.Errorf("run dashboard: %w", err)
	}

	return nil
}
