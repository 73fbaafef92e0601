// Package output writes operator-facing CLI output. Every command gets a
// Writer from the context; it carries the JSON and quiet modes and knows
// whether the terminal can show color and spinners.
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"

	"github.com/lantern-c2/lantern/internal/ansi"
	"github.com/lantern-c2/lantern/internal/terminal"
)

// Status symbols.
const (
	CheckMark   = "✓"
	XMark       = "✗"
	WarningMark = "⚠"
	InfoMark    = "ℹ"
)

type tone int

const (
	toneSuccess tone = iota
	toneFailure
	toneWarning
	toneInfo
	toneMuted
)

var toneStyles = map[tone]struct {
	mark  string
	color *color.Color
}{
	toneSuccess: {CheckMark, color.New(color.FgGreen)},
	toneFailure: {XMark, color.New(color.FgRed)},
	toneWarning: {WarningMark, color.New(color.FgYellow)},
	toneInfo:    {InfoMark, color.New(color.FgCyan)},
	toneMuted:   {"", color.New(color.FgHiBlack)},
}

type contextKey struct{}

// Writer is the CLI output sink.
type Writer struct {
	Out io.Writer
	Err io.Writer
	// JSON makes commands print machine-readable results only. Status lines
	// and spinners stay silent.
	JSON    bool
	Quiet   bool
	NoInput bool

	terminal *terminal.Info
}

// Default writes to stdout and stderr of the detected terminal.
func Default() *Writer {
	return NewWriter(os.Stdout, os.Stderr, terminal.Detect())
}

// NewWriter creates a Writer over out and err.
func NewWriter(out, err io.Writer, term *terminal.Info) *Writer {
	if !term.ColorEnabled() {
		color.NoColor = true
	}

	return &Writer{Out: out, Err: err, terminal: term}
}

// WithContext stores w in ctx.
func (w *Writer) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, w)
}

// FromContext returns the Writer stored in ctx, or Default().
func FromContext(ctx context.Context) *Writer {
	if w, ok := ctx.Value(contextKey{}).(*Writer); ok {
		return w
	}

	return Default()
}

// Terminal returns the detected terminal capabilities.
func (w *Writer) Terminal() *terminal.Info {
	return w.terminal
}

// SetNoColor disables color for this run.
func (w *Writer) SetNoColor(disabled bool) {
	w.terminal.ForceFlag = disabled
	if disabled {
		color.NoColor = true
	}
}

// Print writes formatted text to Out unless quiet.
func (w *Writer) Print(format string, args ...any) {
	if !w.Quiet {
		fmt.Fprintf(w.Out, format, args...)
	}
}

// Println writes a line to Out unless quiet.
func (w *Writer) Println(args ...any) {
	if !w.Quiet {
		fmt.Fprintln(w.Out, args...)
	}
}

// PrintJSON writes v as indented JSON. Quiet does not apply: JSON is the
// command's result, not decoration.
func (w *Writer) PrintJSON(v any) error {
	enc := json.NewEncoder(w.Out)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// PrintJSONLine writes v as one compact JSON line, for streamed results.
func (w *Writer) PrintJSONLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode json line: %w", err)
	}

	data = append(data, '\n')

	_, err = w.Out.Write(data)

	return err
}

// Success writes a ✓ line to Out.
func (w *Writer) Success(format string, args ...any) {
	w.status(w.Out, toneSuccess, format, args...)
}

// Failure writes a ✗ line to Err. It is shown even when quiet.
func (w *Writer) Failure(format string, args ...any) {
	w.status(w.Err, toneFailure, format, args...)
}

// Warning writes a ⚠ line to Out.
func (w *Writer) Warning(format string, args ...any) {
	w.status(w.Out, toneWarning, format, args...)
}

// Info writes an ℹ line to Out.
func (w *Writer) Info(format string, args ...any) {
	w.status(w.Out, toneInfo, format, args...)
}

// Muted writes a dimmed line to Out.
func (w *Writer) Muted(format string, args ...any) {
	w.status(w.Out, toneMuted, format, args...)
}

func (w *Writer) status(dst io.Writer, t tone, format string, args ...any) {
	if w.Quiet && t != toneFailure {
		return
	}

	style := toneStyles[t]
	msg := fmt.Sprintf(format, args...)
	colored := w.terminal.ColorEnabled()

	switch {
	case style.mark == "" && colored:
		style.color.Fprintln(dst, msg)
	case style.mark == "":
		fmt.Fprintln(dst, msg)
	case colored:
		style.color.Fprint(dst, style.mark+" ")
		fmt.Fprintln(dst, msg)
	default:
		fmt.Fprintln(dst, style.mark+" "+msg)
	}
}

// Table writes rows as aligned columns under headers. Cells are reduced to
// printable single-line text since listings carry implant-reported values.
func (w *Writer) Table(headers []string, rows [][]string) {
	if w.Quiet {
		return
	}

	tw := tabwriter.NewWriter(w.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = ansi.SingleLine(cell, 0)
		}

		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}

	_ = tw.Flush()
}

// Spinner returns a progress indicator for message. Without a TTY it falls
// back to "message... done" text; in JSON or quiet mode it prints nothing
// except failures.
func (w *Writer) Spinner(message string) *Spinner {
	s := &Spinner{message: message, writer: w}

	switch {
	case w.JSON || w.Quiet:
		s.mode = spinSilent
	case !w.terminal.SpinnersEnabled():
		s.mode = spinText
	default:
		s.spinner = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.spinner.Writer = w.Out
		s.spinner.Suffix = " " + message
	}

	return s
}

type spinMode int

const (
	spinAnimated spinMode = iota
	spinText
	spinSilent
)

// Spinner wraps briandowns/spinner.
type Spinner struct {
	spinner *spinner.Spinner
	message string
	writer  *Writer
	mode    spinMode
}

// Start shows the spinner.
func (s *Spinner) Start() {
	switch s.mode {
	case spinAnimated:
		s.spinner.Start()
	case spinText:
		s.writer.Print("%s... ", s.message)
	case spinSilent:
	}
}

// Stop hides the spinner without a result line.
func (s *Spinner) Stop() {
	switch s.mode {
	case spinAnimated:
		s.spinner.Stop()
	case spinText:
		s.writer.Println()
	case spinSilent:
	}
}

// StopWithSuccess stops and prints a ✓ result.
func (s *Spinner) StopWithSuccess(message string) {
	s.finish("done", message, s.writer.Success)
}

// StopWithFailure stops and prints a ✗ result.
func (s *Spinner) StopWithFailure(message string) {
	s.finish("failed", message, s.writer.Failure)
}

// StopWithWarning stops and prints a ⚠ result.
func (s *Spinner) StopWithWarning(message string) {
	s.finish("warning", message, s.writer.Warning)
}

func (s *Spinner) finish(word, message string, report func(string, ...any)) {
	switch s.mode {
	case spinAnimated:
		s.spinner.Stop()
	case spinText:
		s.writer.Println(word)
	case spinSilent:
		if s.writer.JSON {
			return
		}
	}

	if message != "" {
		report("%s", message)
	}
}
