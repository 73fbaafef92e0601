package transcript

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/lantern-c2/lantern/internal/realtime"
)

type tunnelKey struct {
	sessionID string
	tunnelID  int
}

// Recorder keeps one Store per tunnel, opened on the tunnel's first
// traffic.
type Recorder struct {
	mu     sync.Mutex
	dir    string
	shell  string
	stores map[tunnelKey]*Store
	// done holds the metadata of transcripts closed by CloseTunnel.
	done   []Meta
	closed bool
	logger *slog.Logger
}

// NewRecorder creates a recorder writing under dir. shell is stored in the
// metadata of every transcript it opens.
func NewRecorder(dir, shell string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}

	return &Recorder{
		dir:    dir,
		shell:  shell,
		stores: make(map[tunnelKey]*Store),
		logger: logger,
	}
}

// Output records one chunk of remote output. Callers pass only output of a
// tunnel they own.
func (r *Recorder) Output(out realtime.ShellOutput) {
	r.record(out.SessionID, out.TunnelID, StreamOutput, []byte(out.Data))
}

// Input records operator keystrokes sent to a tunnel.
func (r *Recorder) Input(sessionID string, tunnelID int, data []byte) {
	r.record(sessionID, tunnelID, StreamInput, data)
}

func (r *Recorder) record(sessionID string, tunnelID int, stream string, data []byte) {
	store, err := r.storeFor(sessionID, tunnelID)
	if err != nil {
		r.logger.Warn("transcript unavailable",
			slog.String("session.id", sessionID),
			slog.Int("tunnel.id", tunnelID),
			slog.String("error", err.Error()),
		)

		return
	}

	if store == nil {
		return
	}

	if err := store.Append(stream, data); err != nil {
		r.logger.Warn("transcript append failed", slog.String("transcript.id", store.ID()), slog.String("error", err.Error()))
	}
}

func (r *Recorder) storeFor(sessionID string, tunnelID int) (*Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, nil
	}

	key := tunnelKey{sessionID: sessionID, tunnelID: tunnelID}
	if store, ok := r.stores[key]; ok {
		return store, nil
	}

	store, err := NewStore(StoreOptions{
		SessionID: sessionID,
		TunnelID:  tunnelID,
		Shell:     r.shell,
		Dir:       r.dir,
	})
	if err != nil {
		return nil, err
	}

	r.stores[key] = store

	return store, nil
}

// Transcripts returns metadata for every transcript this recorder opened,
// oldest first.
func (r *Recorder) Transcripts() []Meta {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Meta, 0, len(r.stores)+len(r.done))
	out = append(out, r.done...)

	for _, store := range r.stores {
		out = append(out, store.Meta())
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})

	return out
}

// CloseTunnel closes the transcript for one tunnel. Later traffic on the
// same tunnel opens a new transcript.
func (r *Recorder) CloseTunnel(sessionID string, tunnelID int) error {
	key := tunnelKey{sessionID: sessionID, tunnelID: tunnelID}

	r.mu.Lock()
	store := r.stores[key]
	delete(r.stores, key)
	r.mu.Unlock()

	if store == nil {
		return nil
	}

	err := store.Close()

	r.mu.Lock()
	r.done = append(r.done, store.Meta())
	r.mu.Unlock()

	return err
}

// Close closes every transcript. Traffic after Close is ignored.
func (r *Recorder) Close() error {
	r.mu.Lock()
	r.closed = true
	stores := r.stores
	r.stores = make(map[tunnelKey]*Store)
	r.mu.Unlock()

	var errs []error

	for _, store := range stores {
		if err := store.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
