// Package prompt provides interactive prompts for lantern.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/lantern-c2/lantern/internal/ansi"
	"github.com/lantern-c2/lantern/internal/client"
	"github.com/lantern-c2/lantern/internal/output"
)

var errCanceled = errors.New("prompt canceled")

// IsCanceled reports whether err came from the operator ending input.
func IsCanceled(err error) bool {
	return errors.Is(err, errCanceled)
}

// Prompter handles interactive prompts.
type Prompter struct {
	out    *output.Writer
	reader *bufio.Reader
}

// New creates a Prompter reading from stdin.
func New(out *output.Writer) *Prompter {
	return NewWithReader(out, os.Stdin)
}

// NewWithReader creates a Prompter reading from in.
func NewWithReader(out *output.Writer, in io.Reader) *Prompter {
	return &Prompter{
		out:    out,
		reader: bufio.NewReader(in),
	}
}

// CanPrompt returns true if interactive prompts are available.
func (p *Prompter) CanPrompt() bool {
	return term.IsTerminal(int(os.Stdout.Fd())) && !p.out.NoInput
}

func (p *Prompter) readLine() (string, error) {
	input, err := p.reader.ReadString('\n')
	if errors.Is(err, io.EOF) && input == "" {
		return "", errCanceled
	}

	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read input: %w", err)
	}

	return strings.TrimSpace(input), nil
}

// Confirm prompts for a yes/no confirmation.
func (p *Prompter) Confirm(message string, defaultValue bool) (bool, error) {
	defaultStr := "y/N"
	if defaultValue {
		defaultStr = "Y/n"
	}

	p.out.Print("%s [%s]: ", message, defaultStr)

	input, err := p.readLine()
	if err != nil {
		return defaultValue, err
	}

	input = strings.ToLower(input)
	if input == "" {
		return defaultValue, nil
	}

	return input == "y" || input == "yes", nil
}

// Password prompts for hidden input.
func (p *Prompter) Password(prompt string) (string, error) {
	p.out.Print("%s: ", prompt)

	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	p.out.Println()

	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	return strings.TrimSpace(string(password)), nil
}

// Token reads an operator token. Input is hidden when stdin is a terminal.
func (p *Prompter) Token() (string, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return p.Password("Operator token")
	}

	p.out.Print("Operator token: ")

	return p.readLine()
}

// Select prompts the user to select from a list of options.
func (p *Prompter) Select(message string, options []string) (int, error) {
	if len(options) == 0 {
		return -1, errors.New("nothing to select")
	}

	p.out.Println(message)

	for i, opt := range options {
		p.out.Print("  [%d] %s\n", i+1, opt)
	}

	p.out.Println()

	for {
		if len(options) == 1 {
			p.out.Print("Select [1]: ")
		} else {
			p.out.Print("Select [1-%d]: ", len(options))
		}

		input, err := p.readLine()
		if err != nil {
			return -1, err
		}

		if input == "" {
			if len(options) == 1 {
				return 0, nil
			}

			continue
		}

		num, err := strconv.Atoi(input)
		if err != nil || num < 1 || num > len(options) {
			p.out.Warning("Invalid selection. Please enter a number between 1 and %d", len(options))
			continue
		}

		return num - 1, nil
	}
}

// SelectSession prompts for one of the live sessions.
func (p *Prompter) SelectSession(sessions []client.Session) (*client.Session, error) {
	live := make([]client.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.Alive {
			live = append(live, s)
		}
	}

	if len(live) == 0 {
		return nil, errors.New("no live sessions")
	}

	options := make([]string, len(live))
	for i, s := range live {
		options[i] = SessionLabel(s)
	}

	p.out.Println()

	idx, err := p.Select("Available sessions:", options)
	if err != nil {
		return nil, err
	}

	return &live[idx], nil
}

// SessionLabel renders one session for a selection list.
func SessionLabel(s client.Session) string {
	label := fmt.Sprintf("%-12s %s@%s (%s/%s)",
		shortID(s.ID),
		ansi.SingleLine(s.Username, 32),
		ansi.SingleLine(s.Hostname, 48),
		ansi.SingleLine(s.OS, 16),
		ansi.SingleLine(s.Arch, 16),
	)

	if s.LastCheckin != nil {
		label += " last seen " + s.LastCheckin.UTC().Format(time.RFC3339)
	}

	return label
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}

	return id
}
