// Package logging provides the structured, multi-sink logger for the
// diagnosis API. Every record is a single JSON line carrying a timestamp,
// level, logger name, message and any context fields. Records are routed
// to three sinks: a general sink receiving everything, an error sink
// receiving error-and-above, and an API sink receiving request-lifecycle
// records.
package logging

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record categories. A category is attached as a record attribute and
// drives sink routing.
const (
	CategoryAPI        = "api"
	CategorySecurity   = "security"
	CategoryPrediction = "prediction"
)

const categoryKey = "category"

// Config controls where log files are written.
type Config struct {
	Dir         string `koanf:"dir"`
	GeneralFile string `koanf:"general_file"`
	ErrorFile   string `koanf:"error_file"`
	APIFile     string `koanf:"api_file"`
}

// Logger is the process-wide structured logger. It is safe for concurrent
// use; each log call appends exactly one record to every matching sink.
// Logging never returns an error to callers.
type Logger struct {
	slog    *slog.Logger
	writers []*atomicWriter
	files   []*os.File
}

// New opens the configured log files and returns a ready Logger.
// Missing directories are created. The caller owns the Close lifecycle.
func New(name string, cfg Config) (*Logger, error) {
	if cfg.Dir == "" {
		cfg.Dir = "logs"
	}
	if cfg.GeneralFile == "" {
		cfg.GeneralFile = "app.log"
	}
	if cfg.ErrorFile == "" {
		cfg.ErrorFile = "error.log"
	}
	if cfg.APIFile == "" {
		cfg.APIFile = "api.log"
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	var files []*os.File
	open := func(base string) (*os.File, error) {
		f, err := os.OpenFile(filepath.Join(cfg.Dir, base), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			for _, prev := range files {
				prev.Close()
			}
			return nil, err
		}
		files = append(files, f)
		return f, nil
	}

	general, err := open(cfg.GeneralFile)
	if err != nil {
		return nil, err
	}
	errFile, err := open(cfg.ErrorFile)
	if err != nil {
		return nil, err
	}
	apiFile, err := open(cfg.APIFile)
	if err != nil {
		return nil, err
	}

	l := NewWithWriters(name, general, errFile, apiFile)
	l.files = files
	return l, nil
}

// NewWithWriters builds a Logger over arbitrary writers. Used by tests and
// by embedders that manage their own sinks.
func NewWithWriters(name string, general, errw, apiw io.Writer) *Logger {
	gw := newAtomicWriter(general)
	ew := newAtomicWriter(errw)
	aw := newAtomicWriter(apiw)

	h := &routingHandler{
		sinks: []sink{
			{handler: newJSONHandler(gw, slog.LevelDebug), min: slog.LevelDebug},
			{handler: newJSONHandler(ew, slog.LevelError), min: slog.LevelError},
			{handler: newJSONHandler(aw, slog.LevelInfo), min: slog.LevelInfo, category: CategoryAPI},
		},
	}

	return &Logger{
		slog:    slog.New(h).With(slog.String("logger", name)),
		writers: []*atomicWriter{gw, ew, aw},
	}
}

func newJSONHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

// Slog exposes the underlying slog.Logger for components that take one.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Debug logs a debug-level record.
func (l *Logger) Debug(msg string, attrs ...slog.Attr) {
	l.log(slog.LevelDebug, msg, attrs...)
}

// Info logs an info-level record.
func (l *Logger) Info(msg string, attrs ...slog.Attr) {
	l.log(slog.LevelInfo, msg, attrs...)
}

// Warn logs a warning-level record.
func (l *Logger) Warn(msg string, attrs ...slog.Attr) {
	l.log(slog.LevelWarn, msg, attrs...)
}

// Error logs an error-level record.
func (l *Logger) Error(msg string, attrs ...slog.Attr) {
	l.log(slog.LevelError, msg, attrs...)
}

func (l *Logger) log(level slog.Level, msg string, attrs ...slog.Attr) {
	l.slog.LogAttrs(context.Background(), level, msg, attrs...)
}

// LogAPIRequest records one request-lifecycle entry. Routed to the general
// and API sinks.
func (l *Logger) LogAPIRequest(requestID, method, path string, status int, duration time.Duration, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String(categoryKey, CategoryAPI),
		slog.String("request_id", requestID),
		slog.String("method", method),
		slog.String("endpoint", path),
		slog.Int("status_code", status),
		slog.Float64("duration_ms", durationMillis(duration)),
	}
	l.log(slog.LevelInfo, "API Request: "+method+" "+path, append(base, attrs...)...)
}

// LogPrediction records a completed probability computation.
func (l *Logger) LogPrediction(requestID, disease string, probability float64, duration time.Duration, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String(categoryKey, CategoryPrediction),
		slog.String("request_id", requestID),
		slog.String("disease", disease),
		slog.Float64("probability", probability),
		slog.Float64("duration_ms", durationMillis(duration)),
	}
	l.log(slog.LevelInfo, "Prediction: "+disease, append(base, attrs...)...)
}

// LogSecurityEvent records a security occurrence at warning severity.
func (l *Logger) LogSecurityEvent(requestID, event, message string, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String(categoryKey, CategorySecurity),
		slog.String("request_id", requestID),
		slog.String("security_event", event),
	}
	l.log(slog.LevelWarn, "Security: "+message, append(base, attrs...)...)
}

// LogError records a failure with its taxonomy kind.
func (l *Logger) LogError(requestID, kind, message string, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("request_id", requestID),
		slog.String("error_type", kind),
	}
	l.log(slog.LevelError, "Error: "+message, append(base, attrs...)...)
}

// Close flushes all sinks and closes any files opened by New.
func (l *Logger) Close() error {
	var first error
	for _, w := range l.writers {
		if err := w.Flush(); err != nil && first == nil {
			first = err
		}
	}
	for _, f := range l.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// durationMillis reports duration in milliseconds with sub-ms precision.
func durationMillis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

// atomicWriter serializes writes so concurrent records never interleave,
// and buffers them so a slow sink does not stall request handling for
// more than a single flush.
type atomicWriter struct {
	mu  sync.Mutex
	buf *bufio.Writer
}

func newAtomicWriter(w io.Writer) *atomicWriter {
	return &atomicWriter{buf: bufio.NewWriterSize(w, 32*1024)}
}

func (w *atomicWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n, err := w.buf.Write(p)
	if err != nil {
		return n, err
	}
	// One record per Write call from slog; flush so each line is durable
	// and independently readable.
	return n, w.buf.Flush()
}

func (w *atomicWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Flush()
}
