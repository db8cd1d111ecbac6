package taskqueue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/regsuite/governance/internal/types"
)

// Handler processes one task message and returns its output.
type Handler func(ctx context.Context, msg *types.TaskMessage) (map[string]any, error)

// ProgressState tracks where a task is in its worker lifecycle.
type ProgressState string

// Progress states
const (
	ProgressReceived ProgressState = "received"
	ProgressRunning  ProgressState = "running"
	ProgressDone     ProgressState = "done"
	ProgressFailed   ProgressState = "failed"
)

// TaskProgress is the live view of a task inside a worker.
type TaskProgress struct {
	TaskID     string        `json:"task_id"`
	State      ProgressState `json:"state"`
	Attempts   int           `json:"attempts"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// ResultStatus is the terminal outcome of a task.
type ResultStatus string

// Result statuses
const (
	ResultCompleted ResultStatus = "completed"
	ResultFailed    ResultStatus = "failed"
)

// TaskResult is the recorded outcome of one handler run.
type TaskResult struct {
	TaskID   string         `json:"task_id"`
	TaskType string         `json:"task_type"`
	Status   ResultStatus   `json:"status"`
	Output   map[string]any `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// defaultHistory bounds the per-worker progress and result maps.
const defaultHistory = 256

// Worker polls a queue and dispatches messages to registered handlers.
// On handler success the message is deleted; on failure it is left for the
// visibility timeout to redeliver, so handlers must be idempotent.
type Worker struct {
	ID       string
	provider Provider
	queue    string
	batch    int

	mu       sync.Mutex
	handlers map[string]Handler
	progress map[string]*TaskProgress
	results  map[string]*TaskResult
	order    []string // insertion order for history eviction
	history  int
}

// WorkerOption configures a worker.
type WorkerOption func(*Worker)

// WithBatchSize sets how many messages one poll receives.
func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) { w.batch = n }
}

// WithHistorySize bounds the retained progress/result history.
func WithHistorySize(n int) WorkerOption {
	return func(w *Worker) { w.history = n }
}

// NewWorker creates a worker bound to one queue.
func NewWorker(id string, provider Provider, queue string, opts ...WorkerOption) *Worker {
	w := &Worker{
		ID:       id,
		provider: provider,
		queue:    queue,
		batch:    10,
		handlers: make(map[string]Handler),
		progress: make(map[string]*TaskProgress),
		results:  make(map[string]*TaskResult),
		history:  defaultHistory,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// RegisterHandler binds a handler to a task type. Re-registering replaces
// the previous handler.
func (w *Worker) RegisterHandler(taskType string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[taskType] = h
}

// PollOnce receives one batch and dispatches each message. Transient
// receive errors are retried with exponential backoff before giving up.
// Returns the number of messages handled successfully.
func (w *Worker) PollOnce(ctx context.Context) (int, error) {
	var tasks []*ReceivedTask
	receive := func() error {
		var err error
		tasks, err = w.provider.ReceiveTasks(ctx, w.queue, w.batch)
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	if err := backoff.Retry(receive, policy); err != nil {
		return 0, fmt.Errorf("receive from %s: %w", w.queue, err)
	}

	handled := 0
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return handled, err
		}
		if w.dispatch(ctx, task) {
			handled++
		}
	}
	return handled, nil
}

// dispatch runs the handler for one message and reports success.
func (w *Worker) dispatch(ctx context.Context, task *ReceivedTask) bool {
	msg := task.Message
	w.mu.Lock()
	handler, ok := w.handlers[msg.TaskType]
	if !ok {
		w.mu.Unlock()
		log.Printf("worker %s: no handler for task type %q (task %s)", w.ID, msg.TaskType, msg.ID)
		return false
	}
	prog := &TaskProgress{TaskID: msg.ID, State: ProgressRunning, StartedAt: time.Now().UTC()}
	if prev, seen := w.progress[msg.ID]; seen {
		prog.Attempts = prev.Attempts
	}
	prog.Attempts++
	w.track(msg.ID, prog)
	w.mu.Unlock()

	output, err := handler(ctx, msg)

	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now().UTC()
	prog.FinishedAt = &now
	if err != nil {
		prog.State = ProgressFailed
		w.results[msg.ID] = &TaskResult{
			TaskID: msg.ID, TaskType: msg.TaskType, Status: ResultFailed, Error: err.Error(),
		}
		log.Printf("worker %s: task %s (%s) attempt %d failed: %v", w.ID, msg.ID, msg.TaskType, prog.Attempts, err)
		// Leave the message in flight; the visibility timeout redelivers it.
		return false
	}

	prog.State = ProgressDone
	w.results[msg.ID] = &TaskResult{
		TaskID: msg.ID, TaskType: msg.TaskType, Status: ResultCompleted, Output: output,
	}
	if err := w.provider.DeleteTask(ctx, w.queue, task.Receipt); err != nil {
		log.Printf("worker %s: delete task %s failed: %v", w.ID, msg.ID, err)
	}
	return true
}

// track records progress under the history bound. Caller holds the lock.
func (w *Worker) track(id string, p *TaskProgress) {
	if _, seen := w.progress[id]; !seen {
		w.order = append(w.order, id)
	}
	w.progress[id] = p
	for len(w.order) > w.history {
		oldest := w.order[0]
		w.order = w.order[1:]
		delete(w.progress, oldest)
		delete(w.results, oldest)
	}
}

// TaskProgress returns the progress record for a task id.
func (w *Worker) TaskProgress(id string) (*TaskProgress, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.progress[id]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

// TaskResult returns the result record for a task id.
func (w *Worker) TaskResult(id string) (*TaskResult, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.results[id]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

// Run polls until the context is cancelled, sleeping between empty polls.
func (w *Worker) Run(ctx context.Context, pollInterval time.Duration) error {
	for {
		handled, err := w.PollOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("worker %s: poll failed: %v", w.ID, err)
		}
		if handled == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollInterval):
			}
		}
	}
}
