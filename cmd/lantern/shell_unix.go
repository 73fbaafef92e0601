//go:build !windows

package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// watchResize reports the size of tty now and after every SIGWINCH until the
// returned stop function is called or ctx ends.
func watchResize(ctx context.Context, tty *os.File, fn func(cols, rows int)) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGWINCH)

	done := make(chan struct{})

	report := func() {
		size, err := pty.GetsizeFull(tty)
		if err != nil || size.Cols == 0 || size.Rows == 0 {
			return
		}

		fn(int(size.Cols), int(size.Rows))
	}

	report()

	go func() {
		for {
			select {
			case <-sigCh:
				report()
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
