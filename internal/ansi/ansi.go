// Package ansi cleans terminal text that arrives from remote hosts.
//
// Shell output and event payload fields are controlled by the implant side.
// Anything printed outside a raw pty goes through Sanitize or SingleLine so
// remote escape sequences cannot drive the operator's terminal.
package ansi

import (
	"strings"
	"unicode"

	xansi "github.com/charmbracelet/x/ansi"
)

// Strip removes ANSI escape sequences from a string.
func Strip(s string) string {
	return xansi.Strip(s)
}

// Sanitize strips escape sequences and drops the remaining control
// characters except newline and tab. Carriage returns are removed.
func Sanitize(s string) string {
	s = xansi.Strip(s)

	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case unicode.IsControl(r):
			return -1
		default:
			return r
		}
	}, s)
}

// SingleLine sanitizes s, folds whitespace runs into single spaces, and
// truncates the result to width terminal cells. A width of zero or less
// disables truncation.
func SingleLine(s string, width int) string {
	s = strings.Join(strings.Fields(Sanitize(s)), " ")

	if width <= 0 || xansi.StringWidth(s) <= width {
		return s
	}

	return xansi.Truncate(s, width, "…")
}
