// Package transcript records shell tunnel traffic to disk.
//
// Each tunnel gets its own transcript directory holding a gzip JSONL event
// log, a plain JSONL live log for crash recovery and tailing, and a meta
// file used for listing and pruning.
package transcript

import (
	"bufio"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lantern-c2/lantern/internal/ansi"
)

const (
	eventsFileName     = "events.jsonl.gz"
	eventsLiveFileName = "events.live.jsonl"
	metaFileName       = "meta.json"
)

// Streams recorded in a transcript.
const (
	StreamInput  = "input"
	StreamOutput = "output"
)

// ErrNotFound is returned when no transcript matches an id.
var ErrNotFound = errors.New("transcript not found")

// Event is a single transcript record.
type Event struct {
	TranscriptID string    `json:"transcriptId"`
	Seq          uint64    `json:"seq"`
	TS           time.Time `json:"ts"`
	Stream       string    `json:"stream"`
	RawBase64    string    `json:"rawBase64"`
	Text         string    `json:"text,omitempty"`
}

// Raw returns the exact bytes recorded for the event.
func (e Event) Raw() []byte {
	data, err := base64.StdEncoding.DecodeString(e.RawBase64)
	if err != nil {
		return []byte(e.Text)
	}

	return data
}

// Meta stores tunnel metadata for discovery and pruning.
type Meta struct {
	ID        string     `json:"id"`
	SessionID string     `json:"sessionId"`
	TunnelID  int        `json:"tunnelId"`
	Shell     string     `json:"shell,omitempty"`
	StartedAt time.Time  `json:"startedAt"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
}

// StoreOptions controls transcript behavior.
type StoreOptions struct {
	// ID names the transcript directory. A random id is used when empty.
	ID        string
	SessionID string
	TunnelID  int
	Shell     string
	Dir       string
}

// Store appends the events of one tunnel to a gzip JSONL log and a plain
// JSONL live log. The live log is flushed after every event so that
// 'history view --follow' and crash recovery see it immediately.
type Store struct {
	mu sync.Mutex

	meta Meta
	dir  string
	seq  uint64

	file     *os.File
	gz       *gzip.Writer
	bw       *bufio.Writer
	liveFile *os.File
	liveBW   *bufio.Writer

	closed bool
}

// NewStore creates a transcript store for one tunnel.
func NewStore(opts StoreOptions) (*Store, error) {
	if opts.SessionID == "" {
		return nil, errors.New("session id is required")
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}

	if err := validateID(id); err != nil {
		return nil, err
	}

	dir, err := resolveRoot(opts.Dir)
	if err != nil {
		return nil, err
	}

	transcriptDir := filepath.Join(dir, id)
	if err := os.MkdirAll(transcriptDir, 0o700); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(transcriptDir, eventsFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // transcript id is validated
	if err != nil {
		return nil, fmt.Errorf("open transcript events: %w", err)
	}

	liveFile, err := os.OpenFile(filepath.Join(transcriptDir, eventsLiveFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // transcript id is validated
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open live transcript events: %w", err)
	}

	gz := gzip.NewWriter(f)

	s := &Store{
		meta: Meta{
			ID:        id,
			SessionID: opts.SessionID,
			TunnelID:  opts.TunnelID,
			Shell:     opts.Shell,
			StartedAt: time.Now().UTC(),
		},
		dir:      transcriptDir,
		file:     f,
		gz:       gz,
		bw:       bufio.NewWriterSize(gz, 64*1024),
		liveFile: liveFile,
		liveBW:   bufio.NewWriterSize(liveFile, 64*1024),
	}

	if err := s.writeMeta(&s.meta); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) writeMeta(meta *Meta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal transcript meta: %w", err)
	}

	if err := os.WriteFile(filepath.Join(s.dir, metaFileName), data, 0o600); err != nil {
		return fmt.Errorf("write transcript meta: %w", err)
	}

	return nil
}

// ID returns the transcript id.
func (s *Store) ID() string {
	return s.meta.ID
}

// Meta returns the transcript metadata.
func (s *Store) Meta() Meta {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.meta
}

// Append writes one event. Text holds chunk with escape sequences removed
// and Raw keeps the exact bytes.
func (s *Store) Append(stream string, chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("transcript store is closed")
	}

	s.seq++
	ev := Event{
		TranscriptID: s.meta.ID,
		Seq:          s.seq,
		TS:           time.Now().UTC(),
		Stream:       stream,
		RawBase64:    base64.StdEncoding.EncodeToString(chunk),
		Text:         ansi.Sanitize(string(chunk)),
	}

	line, err := json.Marshal(&ev)
	if err != nil {
		return fmt.Errorf("marshal transcript event: %w", err)
	}

	line = append(line, '\n')
	if _, err := s.bw.Write(line); err != nil {
		return fmt.Errorf("encode transcript event: %w", err)
	}

	if _, err := s.liveBW.Write(line); err != nil {
		return fmt.Errorf("encode live transcript event: %w", err)
	}

	if err := s.liveBW.Flush(); err != nil {
		return fmt.Errorf("flush live transcript event: %w", err)
	}

	return nil
}

// Close flushes and closes the transcript.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	now := time.Now().UTC()
	s.meta.ClosedAt = &now

	// Order matters: the gzip footer goes after the buffered tail.
	return errors.Join(
		s.writeMeta(&s.meta),
		s.bw.Flush(),
		s.gz.Close(),
		s.file.Close(),
		s.liveBW.Flush(),
		s.liveFile.Close(),
	)
}

func validateID(id string) error {
	if id == "" {
		return errors.New("transcript id is required")
	}

	if id != filepath.Base(id) || strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return errors.New("invalid transcript id")
	}

	return nil
}
