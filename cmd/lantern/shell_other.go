//go:build windows

package main

import (
	"context"
	"os"

	"golang.org/x/term"
)

// watchResize reports the console size once. Windows has no SIGWINCH.
func watchResize(_ context.Context, tty *os.File, fn func(cols, rows int)) func() {
	if cols, rows, err := term.GetSize(int(tty.Fd())); err == nil && cols > 0 && rows > 0 {
		fn(cols, rows)
	}

	return func() {}
}
