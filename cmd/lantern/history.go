package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lantern-c2/lantern/internal/ansi"
	"github.com/lantern-c2/lantern/internal/config"
	clierrors "github.com/lantern-c2/lantern/internal/errors"
	"github.com/lantern-c2/lantern/internal/output"
	"github.com/lantern-c2/lantern/internal/transcript"
)

const followInterval = time.Second

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded shell transcripts",
		Long: `Inspect transcripts recorded by 'lantern shell'. Each shell tunnel is
stored as its own transcript under the history directory.`,
	}

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryViewCmd())
	cmd.AddCommand(newHistoryPruneCmd())

	return cmd
}

func newHistoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded transcripts",
		Long:  `List stored shell transcripts, newest first, with the session and tunnel each one belongs to.`,
		Example: `  lantern history list
  lantern history list --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			transcripts, err := transcript.List(config.Load().HistoryDir())
			if err != nil {
				return err
			}

			if out.JSON {
				metas := make([]transcript.Meta, 0, len(transcripts))
				for _, tr := range transcripts {
					metas = append(metas, tr.Meta)
				}

				return out.PrintJSON(metas)
			}

			if len(transcripts) == 0 {
				out.Muted("No transcripts found.")
				return nil
			}

			out.Table(transcriptHeaders, transcriptRows(transcripts))

			return nil
		},
	}
}

var transcriptHeaders = []string{"ID", "SESSION", "TUNNEL", "SHELL", "STARTED", "CLOSED"}

func transcriptRows(transcripts []transcript.Transcript) [][]string {
	rows := make([][]string, 0, len(transcripts))

	for _, tr := range transcripts {
		closed := "open"
		if tr.ClosedAt != nil {
			closed = tr.ClosedAt.Local().Format(time.DateTime)
		}

		shell := tr.Shell
		if shell == "" {
			shell = "default"
		}

		rows = append(rows, []string{
			tr.ID,
			tr.SessionID,
			fmt.Sprintf("%d", tr.TunnelID),
			shell,
			tr.StartedAt.Local().Format(time.DateTime),
			closed,
		})
	}

	return rows
}

type viewOptions struct {
	search string
	input  bool
	raw    bool
}

// keep reports whether an event is printed and returns its text.
func (o viewOptions) keep(ev transcript.Event) (string, bool) {
	if ev.Stream == transcript.StreamInput && !o.input {
		return "", false
	}

	text := ev.Text
	if o.raw {
		text = string(ev.Raw())
	} else {
		text = ansi.Sanitize(text)
	}

	if o.search != "" && !strings.Contains(strings.ToLower(text), strings.ToLower(o.search)) {
		return "", false
	}

	if ev.Stream == transcript.StreamInput {
		text = "> " + text
	}

	return text, true
}

func newHistoryViewCmd() *cobra.Command {
	var (
		opts   viewOptions
		follow bool
		tail   bool
		lines  int
	)

	cmd := &cobra.Command{
		Use:     "view <transcript-id>",
		Aliases: []string{"show"},
		Short:   "Print a recorded transcript",
		Long: `Print the output recorded for one shell tunnel. A unique prefix of the
transcript id is enough. Escape sequences are stripped unless --raw is set.
With --follow the command keeps printing new events of an open transcript.
With --tail only the last lines of output are printed (history.lines, or -n).`,
		Example: `  lantern history view 7c1e
  lantern history view 7c1e --search password
  lantern history view 7c1e --tail -n 50
  lantern history view 7c1e --follow`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			dir := config.Load().HistoryDir()

			tr, err := transcript.Resolve(dir, args[0])
			if err != nil {
				if errors.Is(err, transcript.ErrNotFound) {
					return clierrors.TranscriptNotFound(args[0])
				}

				return err
			}

			if tail || cmd.Flags().Changed("lines") {
				if lines <= 0 {
					lines = config.Load().HistoryLines()
				}

				return printTail(out, opts.search, dir, tr.ID, lines)
			}

			events, err := transcript.ReadEvents(dir, tr.ID)
			if err != nil {
				return err
			}

			var lastSeq uint64

			for _, ev := range events {
				lastSeq = printEvent(out, opts, ev, lastSeq)
			}

			if !follow || tr.ClosedAt != nil {
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return followTranscript(ctx, out, opts, dir, tr.ID, lastSeq)
		},
	}

	cmd.Flags().StringVar(&opts.search, "search", "", "Only print events containing this text")
	cmd.Flags().BoolVar(&opts.input, "input", false, "Include operator input")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "Print recorded bytes including escape sequences")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new events until the tunnel closes")
	cmd.Flags().BoolVar(&tail, "tail", false, "Print only the last lines of output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 0, "Number of lines for --tail (default history.lines)")
	cmd.MarkFlagsMutuallyExclusive("tail", "follow")
	cmd.MarkFlagsMutuallyExclusive("lines", "follow")
	cmd.MarkFlagsMutuallyExclusive("tail", "raw")
	cmd.MarkFlagsMutuallyExclusive("tail", "input")

	return cmd
}

func printTail(out *output.Writer, search, dir, id string, n int) error {
	lines, err := transcript.Tail(dir, id, n)
	if err != nil {
		return err
	}

	for _, line := range lines {
		if search == "" || strings.Contains(strings.ToLower(line), strings.ToLower(search)) {
			out.Println(line)
		}
	}

	return nil
}

func printEvent(out *output.Writer, opts viewOptions, ev transcript.Event, lastSeq uint64) uint64 {
	if ev.Seq <= lastSeq {
		return lastSeq
	}

	if text, ok := opts.keep(ev); ok {
		out.Print("%s", text)
	}

	return ev.Seq
}

func followTranscript(ctx context.Context, out *output.Writer, opts viewOptions, dir, id string, lastSeq uint64) error {
	var offset int64

	ticker := time.NewTicker(followInterval)
	defer ticker.Stop()

	for {
		events, next, err := transcript.ReadLiveEventsFrom(dir, id, offset)
		if err != nil {
			return err
		}

		offset = next

		for _, ev := range events {
			lastSeq = printEvent(out, opts, ev, lastSeq)
		}

		if len(events) == 0 {
			if tr, err := transcript.Resolve(dir, id); err == nil && tr.ClosedAt != nil {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func newHistoryPruneCmd() *cobra.Command {
	var olderThan string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete transcripts older than the retention window",
		Long: `Delete transcripts that closed before the retention window. Transcripts
that are still open count from their start time. The window defaults to
history.retention.`,
		Example: `  lantern history prune
  lantern history prune --older-than 72h`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			cfg := config.Load()

			window := cfg.HistoryRetention()

			if olderThan != "" {
				d, err := time.ParseDuration(olderThan)
				if err != nil || d <= 0 {
					return &clierrors.CLIError{
						Message: fmt.Sprintf("Invalid duration for --older-than: %s", olderThan),
						Hint:    "Use a Go duration such as 168h",
						Code:    clierrors.ExitUsage,
					}
				}

				window = d
			}

			removed, err := transcript.PruneOlderThan(cfg.HistoryDir(), time.Now().Add(-window))
			if err != nil {
				return err
			}

			if out.JSON {
				return out.PrintJSON(map[string]int{"removed": removed})
			}

			out.Success("Removed %d transcript(s)", removed)

			return nil
		},
	}

	cmd.Flags().StringVar(&olderThan, "older-than", "", "Override the retention window (example: 168h)")

	return cmd
}
