// File path: internal/metering/metering.go
package metering

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/codeproof/codeproof/internal/common"
)

// EventType enumerates the metered operations.
type EventType string

const (
	EventIndexed      EventType = "indexed"
	EventQuestion     EventType = "question"
	EventPRReview     EventType = "pr_review"
	EventSnippetFetch EventType = "snippet_fetch"
)

// Event is one usage record. The core is responsible only for accurate token
// counts; pricing happens outside.
type Event struct {
	Time            time.Time      `json:"time"`
	Event           EventType      `json:"event"`
	Repo            string         `json:"repo,omitempty"`
	InputTokens     int64          `json:"input_tokens,omitempty"`
	OutputTokens    int64          `json:"output_tokens,omitempty"`
	EmbeddingTokens int64          `json:"embedding_tokens,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Sink receives usage events.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// LogSink writes events to the shared logger; the default when no durable
// sink is configured.
type LogSink struct{}

func (LogSink) Record(ctx context.Context, event Event) error {
	common.Logger().Info("metering: usage event",
		"event", string(event.Event),
		"repo", event.Repo,
		"input_tokens", event.InputTokens,
		"output_tokens", event.OutputTokens,
		"embedding_tokens", event.EmbeddingTokens,
	)
	return nil
}

// FileSink appends events as JSON lines, one file per day, under a root
// directory.
type FileSink struct {
	root string
	mu   sync.Mutex
}

// NewFileSink creates the sink's root directory.
func NewFileSink(root string) (*FileSink, error) {
	if root == "" {
		return nil, fmt.Errorf("metering: sink root required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create metering dir: %w", err)
	}
	return &FileSink{root: root}, nil
}

func (s *FileSink) Record(ctx context.Context, event Event) error {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	path := filepath.Join(s.root, event.Time.Format("2006-01-02")+".jsonl")
	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open metering file: %w", err)
	}
	defer file.Close()
	if err := json.NewEncoder(file).Encode(event); err != nil {
		return fmt.Errorf("encode metering event: %w", err)
	}
	return nil
}
