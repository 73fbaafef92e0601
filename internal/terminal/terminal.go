// Package terminal detects what the operator's terminal can do.
//
// Stdout decides colors, spinners, and prompts. Interactive shells also need
// stdin to be a terminal so it can be switched to raw mode.
package terminal

import (
	"os"

	"golang.org/x/term"
)

const (
	defaultWidth  = 80
	defaultHeight = 24
)

// Info holds terminal capability information.
type Info struct {
	IsTTY    bool
	StdinTTY bool
	NoColor  bool
	Width    int
	Height   int
	// ForceFlag is set by --no-color.
	ForceFlag bool
}

// Detect returns terminal information for the current process.
func Detect() *Info {
	stdoutFD := int(os.Stdout.Fd())
	info := &Info{
		IsTTY:    term.IsTerminal(stdoutFD),
		StdinTTY: term.IsTerminal(int(os.Stdin.Fd())),
		Width:    defaultWidth,
		Height:   defaultHeight,
	}

	if info.IsTTY {
		if w, h, err := term.GetSize(stdoutFD); err == nil {
			info.Width, info.Height = w, h
		}
	}

	// https://no-color.org/
	_, info.NoColor = os.LookupEnv("NO_COLOR")
	if os.Getenv("TERM") == "dumb" {
		info.NoColor = true
	}

	return info
}

// ColorEnabled returns true if colored output should be used.
func (t *Info) ColorEnabled() bool {
	if t.ForceFlag {
		return false
	}

	return t.IsTTY && !t.NoColor
}

// InteractiveEnabled returns true if interactive prompts are allowed.
func (t *Info) InteractiveEnabled() bool {
	return t.IsTTY
}

// SpinnersEnabled returns true if spinners should be used.
func (t *Info) SpinnersEnabled() bool {
	return t.IsTTY && !t.NoColor
}

// FullScreen reports whether both ends are terminals, which raw shells and
// the dashboard require.
func (t *Info) FullScreen() bool {
	return t.IsTTY && t.StdinTTY
}

// MakeRaw puts f into raw mode and returns a func that restores it.
func MakeRaw(f *os.File) (restore func(), err error) {
	fd := int(f.Fd())

	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}

	return func() { _ = term.Restore(fd, state) }, nil
}
