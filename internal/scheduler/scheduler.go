// File path: internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/codeproof/codeproof/internal/common"
)

// Scheduler is the task-orchestration boundary. The core only enqueues;
// execution guarantees (retries, distribution) belong to the implementation.
type Scheduler interface {
	Enqueue(taskName string, payload map[string]any) error
}

// Handler executes one task kind. Handlers must be idempotent on their
// natural key; the inline scheduler offers at-least-once execution.
type Handler func(ctx context.Context, payload map[string]any) error

// JobStatus tracks one enqueued task.
type JobStatus struct {
	Task       string         `json:"task"`
	Payload    map[string]any `json:"payload"`
	State      string         `json:"state"` // queued | running | done | failed
	Error      string         `json:"error,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	FinishedAt time.Time      `json:"finished_at,omitempty"`
}

type job struct {
	id      int64
	task    string
	payload map[string]any
}

// Inline runs tasks on a background goroutine pool inside the same process.
// It stands in for an external queue in single-node deployments and tests.
type Inline struct {
	handlers map[string]Handler
	queue    chan job
	cancel   context.CancelFunc

	mu     sync.Mutex
	nextID int64
	jobs   map[int64]*JobStatus
	closed bool

	wg sync.WaitGroup
}

// NewInline starts a pool of workers draining the queue.
func NewInline(workers, depth int) *Inline {
	if workers <= 0 {
		workers = 2
	}
	if depth <= 0 {
		depth = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Inline{
		handlers: make(map[string]Handler),
		queue:    make(chan job, depth),
		cancel:   cancel,
		jobs:     make(map[int64]*JobStatus),
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	return s
}

// Register binds a handler to a task name. Registration happens during
// wiring, before any Enqueue.
func (s *Inline) Register(taskName string, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[taskName] = handler
}

// Enqueue queues a task for background execution.
func (s *Inline) Enqueue(taskName string, payload map[string]any) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("scheduler closed")
	}
	if _, ok := s.handlers[taskName]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("no handler for task %q", taskName)
	}
	s.nextID++
	id := s.nextID
	s.jobs[id] = &JobStatus{Task: taskName, Payload: payload, State: "queued", EnqueuedAt: time.Now().UTC()}
	s.mu.Unlock()

	select {
	case s.queue <- job{id: id, task: taskName, payload: payload}:
		return nil
	default:
		s.mu.Lock()
		delete(s.jobs, id)
		s.mu.Unlock()
		return errors.New("scheduler queue full")
	}
}

// Jobs snapshots the known job statuses, most recent first.
func (s *Inline) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for id := s.nextID; id > 0; id-- {
		if status, ok := s.jobs[id]; ok {
			out = append(out, *status)
		}
	}
	return out
}

// Close stops accepting work and waits for in-flight tasks.
func (s *Inline) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.queue)
	s.wg.Wait()
	s.cancel()
}

func (s *Inline) worker(ctx context.Context) {
	defer s.wg.Done()
	logger := common.Logger()
	for j := range s.queue {
		s.setState(j.id, "running", "")
		s.mu.Lock()
		handler := s.handlers[j.task]
		s.mu.Unlock()
		err := handler(ctx, j.payload)
		switch {
		case err == nil:
			s.setState(j.id, "done", "")
		case errors.Is(err, context.Canceled):
			s.setState(j.id, "failed", "cancelled")
		default:
			logger.Warn("scheduler: task failed", "task", j.task, "error", err)
			s.setState(j.id, "failed", err.Error())
		}
	}
}

func (s *Inline) setState(id int64, state, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status, ok := s.jobs[id]; ok {
		status.State = state
		status.Error = errMsg
		if state == "done" || state == "failed" {
			status.FinishedAt = time.Now().UTC()
		}
	}
}
