package transcript

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Transcript describes one stored tunnel transcript.
type Transcript struct {
	Meta
	Path string
}

// List returns transcripts sorted by newest start time first.
func List(rootDir string) ([]Transcript, error) {
	rootDir, err := resolveRoot(rootDir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("list transcripts: %w", err)
	}

	transcripts := make([]Transcript, 0, len(entries))
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}

		dir := filepath.Join(rootDir, ent.Name())

		meta, err := readMeta(dir)
		if err != nil {
			continue
		}

		transcripts = append(transcripts, Transcript{Meta: meta, Path: dir})
	}

	sort.Slice(transcripts, func(i, j int) bool {
		return transcripts[i].StartedAt.After(transcripts[j].StartedAt)
	})

	return transcripts, nil
}

func readMeta(dir string) (Meta, error) {
	data, err := os.ReadFile(filepath.Join(dir, metaFileName)) //nolint:gosec // controlled directory
	if err != nil {
		return Meta{}, err
	}

	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return Meta{}, err
	}

	return meta, nil
}

// Resolve finds the transcript whose id equals or uniquely starts with
// prefix.
func Resolve(rootDir, prefix string) (Transcript, error) {
	if prefix == "" {
		return Transcript{}, errors.New("transcript id is required")
	}

	transcripts, err := List(rootDir)
	if err != nil {
		return Transcript{}, err
	}

	var matches []Transcript

	for _, tr := range transcripts {
		if tr.ID == prefix {
			return tr, nil
		}

		if strings.HasPrefix(tr.ID, prefix) {
			matches = append(matches, tr)
		}
	}

	switch len(matches) {
	case 0:
		return Transcript{}, fmt.Errorf("%w: %s", ErrNotFound, prefix)
	case 1:
		return matches[0], nil
	default:
		return Transcript{}, fmt.Errorf("transcript id %q is ambiguous (%d matches)", prefix, len(matches))
	}
}

// ReadEvents reads all events for a transcript. Transcripts whose gzip log
// is incomplete, because the tunnel is still open or the recorder died, are
// read from the live log instead.
func ReadEvents(rootDir, id string) ([]Event, error) {
	dir, err := transcriptDir(rootDir, id)
	if err != nil {
		return nil, err
	}

	events, err := readCompressed(filepath.Join(dir, eventsFileName))
	if err == nil {
		return events, nil
	}

	if !errors.Is(err, os.ErrNotExist) && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}

	file, err := os.Open(filepath.Join(dir, eventsLiveFileName)) //nolint:gosec // id is validated
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("open live transcript events: %w", err)
	}
	defer file.Close()

	return decodeEvents(file)
}

// Tail returns the last n lines of a transcript's output with escape
// sequences removed. Operator input is not included.
func Tail(rootDir, id string, n int) ([]string, error) {
	events, err := ReadEvents(rootDir, id)
	if err != nil {
		return nil, err
	}

	ring := newLineRing(n)

	for _, ev := range events {
		if ev.Stream == StreamOutput {
			ring.feed(ev.Text)
		}
	}

	return ring.snapshot(), nil
}

func transcriptDir(rootDir, id string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}

	rootDir, err := resolveRoot(rootDir)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(rootDir, id)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return dir, nil
}

func readCompressed(path string) ([]Event, error) {
	file, err := os.Open(path) //nolint:gosec // id is validated
	if err != nil {
		return nil, err
	}
	defer file.Close()

	zr, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("open gzip transcript: %w", err)
	}
	defer zr.Close()

	return decodeEvents(zr)
}

// decodeEvents reads JSONL events, skipping blank and undecodable lines.
func decodeEvents(r io.Reader) ([]Event, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var events []Event

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var ev Event
		if json.Unmarshal(line, &ev) == nil {
			events = append(events, ev)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan transcript events: %w", err)
	}

	return events, nil
}

// ReadLiveEventsFrom reads live transcript events from a byte offset in the append-only JSONL file.
func ReadLiveEventsFrom(rootDir, id string, offset int64) (events []Event, nextOffset int64, err error) {
	if offset < 0 {
		return nil, offset, errors.New("offset must be >= 0")
	}

	dir, err := transcriptDir(rootDir, id)
	if err != nil {
		return nil, offset, err
	}

	path := filepath.Join(dir, eventsLiveFileName)

	file, err := os.Open(path) //nolint:gosec // controlled path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, offset, nil
		}

		return nil, offset, fmt.Errorf("open live transcript events: %w", err)
	}

	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	stat, err := file.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("read live transcript file info: %w", err)
	}

	if offset > stat.Size() {
		offset = stat.Size()
	}

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek live transcript file: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	nextOffset = offset

	for {
		line, readErr := reader.ReadBytes('\n')
		if len(line) > 0 {
			// An unterminated trailing line can appear if we race with a writer;
			// keep offset at the prior safe position and retry on the next poll.
			if line[len(line)-1] != '\n' {
				break
			}

			nextOffset += int64(len(line))

			trimmed := bytes.TrimSpace(line)
			if len(trimmed) > 0 {
				var event Event
				if err := json.Unmarshal(trimmed, &event); err == nil {
					events = append(events, event)
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}

			return events, nextOffset, fmt.Errorf("read live transcript line: %w", readErr)
		}
	}

	return events, nextOffset, nil
}

// PruneOlderThan removes transcripts that closed (or, if still open,
// started) before the cutoff.
func PruneOlderThan(rootDir string, cutoff time.Time) (int, error) {
	transcripts, err := List(rootDir)
	if err != nil {
		return 0, err
	}

	removed := 0

	for _, tr := range transcripts {
		referenceTime := tr.StartedAt
		if tr.ClosedAt != nil {
			referenceTime = *tr.ClosedAt
		}

		if referenceTime.Before(cutoff) {
			if err := os.RemoveAll(tr.Path); err != nil {
				return removed, fmt.Errorf("prune transcript %q: %w", tr.ID, err)
			}

			removed++
		}
	}

	return removed, nil
}
