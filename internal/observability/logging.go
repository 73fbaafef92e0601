// Package observability wires structured logging and tracing for lantern.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/lantern-c2/lantern/internal/paths"
)

const (
	redactedValue = "[REDACTED]"

	maxLogFileBytes = 10 << 20
	maxLogBackups   = 3
)

type contextKey struct{}

// Config selects the log level, format and sinks for one CLI run.
type Config struct {
	Level  string
	Format string
	// LogFile is appended to in addition to stderr when set.
	LogFile string
	// StderrMode is auto, on or off. Auto turns stderr off for commands that
	// own the terminal (InteractiveTTY) and sends logs to the state dir.
	StderrMode     string
	InteractiveTTY bool
	RunID          string
	CommandPath    string
	Version        string
	Commit         string
}

// WithLogger returns ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger in ctx, or slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}

	return slog.Default()
}

// NewLogger builds the run logger. The returned cleanup closes any log file.
func NewLogger(cfg *Config) (*slog.Logger, func() error, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	sink, closeSink, err := openSinks(cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: redactAttr}

	var handler slog.Handler

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "json":
		handler = slog.NewJSONHandler(sink, opts)
	case "text":
		handler = slog.NewTextHandler(sink, opts)
	default:
		_ = closeSink()
		return nil, nil, fmt.Errorf("invalid log format: %q (allowed: json, text)", cfg.Format)
	}

	logger := slog.New(traceHandler{handler}).With(
		slog.String("run.id", cfg.RunID),
		slog.String("command.path", cfg.CommandPath),
		slog.String("cli.version", cfg.Version),
		slog.String("cli.commit", cfg.Commit),
	)

	return logger, closeSink, nil
}

// openSinks returns the combined log writer and a func closing the file
// sink, if any.
func openSinks(cfg *Config) (io.Writer, func() error, error) {
	stderr, err := shouldEnableStderr(cfg.StderrMode, cfg.InteractiveTTY)
	if err != nil {
		return nil, nil, err
	}

	path := strings.TrimSpace(cfg.LogFile)
	if !stderr && path == "" {
		if path, err = paths.DefaultLogFile(); err != nil {
			return nil, nil, fmt.Errorf("no log sinks configured: set --log-file or enable --log-stderr")
		}
	}

	var writers []io.Writer

	if stderr {
		writers = append(writers, os.Stderr)
	}

	if path == "" {
		return io.MultiWriter(writers...), func() error { return nil }, nil
	}

	file, err := openLogFile(path)
	if err != nil {
		return nil, nil, err
	}

	return io.MultiWriter(append(writers, file)...), file.Close, nil
}

// traceHandler stamps records logged under an active span with its ids so
// logs and traces of one reconnect can be joined.
type traceHandler struct {
	slog.Handler
}

func (h traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace.id", sc.TraceID().String()),
			slog.String("span.id", sc.SpanID().String()),
		)
	}

	return h.Handler.Handle(ctx, r)
}

func (h traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return traceHandler{h.Handler.WithAttrs(attrs)}
}

func (h traceHandler) WithGroup(name string) slog.Handler {
	return traceHandler{h.Handler.WithGroup(name)}
}

func openLogFile(path string) (*os.File, error) {
	path = filepath.Clean(path)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create log file directory: %w", err)
	}

	if err := rotateLogFile(path, maxLogFileBytes, maxLogBackups); err != nil {
		return nil, fmt.Errorf("rotate log file: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return file, nil
}

// rotateLogFile moves path to path.1, shifting older backups up, once it
// exceeds maxBytes. At most keep backups survive.
func rotateLogFile(path string, maxBytes int64, keep int) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return err
	}

	if info.Size() <= maxBytes {
		return nil
	}

	if err := os.Remove(backupName(path, keep)); err != nil && !os.IsNotExist(err) {
		return err
	}

	for i := keep - 1; i >= 1; i-- {
		if err := os.Rename(backupName(path, i), backupName(path, i+1)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	return os.Rename(path, backupName(path, 1))
}

func backupName(path string, n int) string {
	return fmt.Sprintf("%s.%d", path, n)
}

func shouldEnableStderr(mode string, interactiveTTY bool) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "auto":
		return !interactiveTTY, nil
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid --log-stderr value %q (allowed: auto, on, off)", mode)
	}
}

func parseLevel(level string) (slog.Leveler, error) {
	var l slog.Level

	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		l = slog.LevelInfo
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level: %q (allowed: error, warn, info, debug)", level)
	}

	return l, nil
}

var (
	// tokenParam matches the token query parameter of a realtime URL.
	tokenParam = regexp.MustCompile(`([?&]token=)[^&\s"]+`)
	// bearer matches an Authorization header value wherever it is logged.
	bearer = regexp.MustCompile(`(?i)(bearer\s+)\S+`)

	sensitiveKeys = []string{"token", "api_key", "apikey", "secret", "credential", "password"}
)

func redactAttr(_ []string, attr slog.Attr) slog.Attr {
	key := strings.ToLower(attr.Key)
	if key == "authorization" || containsAny(key, sensitiveKeys) {
		return slog.String(attr.Key, redactedValue)
	}

	if attr.Value.Kind() != slog.KindString {
		return attr
	}

	v := attr.Value.String()
	redacted := bearer.ReplaceAllString(tokenParam.ReplaceAllString(v, "${1}"+redactedValue), "${1}"+redactedValue)

	if redacted == v {
		return attr
	}

	return slog.String(attr.Key, redacted)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}

	return false
}
