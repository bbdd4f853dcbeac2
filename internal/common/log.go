// File path: internal/common/log.go
package common

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

const logHistoryLimit = 500

var (
	logger     *slog.Logger
	loggerOnce sync.Once
	history    = newLogBuffer(logHistoryLimit)
)

// LogEntry is a captured record emitted through the shared logger. The API
// server exposes recent entries for operators; detector evidence is redacted
// before it reaches any log call, so the buffer is safe to surface.
type LogEntry struct {
	Time      time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// Logger returns the process-wide slog logger. Level comes from LOG_LEVEL,
// format from LOG_FORMAT (text by default, "json" for machine consumption).
func Logger() *slog.Logger {
	loggerOnce.Do(func() {
		level := slog.LevelInfo
		switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
		opts := &slog.HandlerOptions{Level: level}
		var base slog.Handler
		if strings.EqualFold(strings.TrimSpace(os.Getenv("LOG_FORMAT")), "json") {
			base = slog.NewJSONHandler(os.Stdout, opts)
		} else {
			base = slog.NewTextHandler(os.Stdout, opts)
		}
		logger = slog.New(&captureHandler{next: base, buf: history})
	})
	return logger
}

// LogEntries returns a copy of the recent captured log entries, oldest first.
func LogEntries() []LogEntry {
	return history.snapshot()
}

type captureHandler struct {
	next slog.Handler
	buf  *logBuffer
}

func (h *captureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *captureHandler) Handle(ctx context.Context, record slog.Record) error {
	err := h.next.Handle(ctx, record)
	if h.buf != nil {
		h.buf.add(toEntry(record))
	}
	return err
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &captureHandler{next: h.next.WithAttrs(attrs), buf: h.buf}
}

func (h *captureHandler) WithGroup(name string) slog.Handler {
	return &captureHandler{next: h.next.WithGroup(name), buf: h.buf}
}

type logBuffer struct {
	mu      sync.RWMutex
	max     int
	entries []LogEntry
}

func newLogBuffer(max int) *logBuffer {
	if max <= 0 {
		max = logHistoryLimit
	}
	return &logBuffer{max: max}
}

func (b *logBuffer) add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, entry)
	if len(b.entries) > b.max {
		b.entries = b.entries[len(b.entries)-b.max:]
	}
}

func (b *logBuffer) snapshot() []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.entries) == 0 {
		return nil
	}
	out := make([]LogEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

func toEntry(record slog.Record) LogEntry {
	rec := record.Clone()
	entry := LogEntry{
		Time:    rec.Time.UTC(),
		Level:   strings.ToLower(rec.Level.String()),
		Message: rec.Message,
	}
	if entry.Time.IsZero() {
		entry.Time = time.Now().UTC()
	}
	rec.Attrs(func(a slog.Attr) bool {
		if entry.Attrs == nil {
			entry.Attrs = make(map[string]any)
		}
		entry.Attrs[a.Key] = a.Value.String()
		return true
	})
	// Message convention is "component: event"; peel the component off so
	// the log endpoint can filter by it.
	if idx := strings.Index(entry.Message, ":"); idx > 0 {
		entry.Component = strings.TrimSpace(entry.Message[:idx])
	}
	return entry
}
