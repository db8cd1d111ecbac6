// Package scheduler maintains a priority heap of scheduled governance
// tasks (catalog scans, cycle kickoffs) with retry backoff and recurring
// re-enqueue.
package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/regsuite/governance/internal/idgen"
	"github.com/regsuite/governance/internal/storage"
)

// TaskStatus is the lifecycle state of a scheduled task.
type TaskStatus string

// Scheduled task statuses
const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
)

// ScheduledTask is one unit of scheduled work. Lower Priority runs first;
// ties order by ScheduledTime. A positive Interval makes the task
// recurring: Complete re-enqueues it at lastRun + Interval.
type ScheduledTask struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Priority      int            `json:"priority"`
	ScheduledTime time.Time      `json:"scheduled_time"`
	Deadline      *time.Time     `json:"deadline,omitempty"`
	Config        map[string]any `json:"config,omitempty"`
	Interval      time.Duration  `json:"interval,omitempty"`
	RetryCount    int            `json:"retry_count"`
	MaxRetries    int            `json:"max_retries"`
	Status        TaskStatus     `json:"status"`
	LastError     string         `json:"last_error,omitempty"`
}

func (t *ScheduledTask) clone() *ScheduledTask {
	out := *t
	if t.Deadline != nil {
		d := *t.Deadline
		out.Deadline = &d
	}
	if t.Config != nil {
		out.Config = make(map[string]any, len(t.Config))
		for k, v := range t.Config {
			out.Config[k] = v
		}
	}
	return &out
}

// taskHeap orders by (priority ascending, scheduledTime ascending).
type taskHeap []*ScheduledTask

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].ScheduledTime.Before(h[j].ScheduledTime)
}
func (h taskHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)        { *h = append(*h, x.(*ScheduledTask)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// Config tunes retry backoff.
type Config struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
	Jitter     bool
}

// DefaultConfig returns the retry defaults: 1s base, 5m cap, 3 retries,
// jitter enabled.
func DefaultConfig() Config {
	return Config{
		BaseDelay:  time.Second,
		MaxDelay:   5 * time.Minute,
		MaxRetries: 3,
		Jitter:     true,
	}
}

// Scheduler is a thread-safe priority scheduler.
type Scheduler struct {
	mu    sync.Mutex
	tasks taskHeap
	cfg   Config
	clock storage.Clock
	rng   *rand.Rand
}

// New creates a scheduler.
func New(cfg Config) *Scheduler {
	return &Scheduler{
		cfg:   cfg,
		clock: storage.RealClock{},
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithClock substitutes the clock, for tests.
func (s *Scheduler) WithClock(clock storage.Clock) *Scheduler {
	s.clock = clock
	return s
}

// AddSchedule enqueues a task, generating an id and applying defaults. An
// interval greater than zero makes the task recurring.
func (s *Scheduler) AddSchedule(task *ScheduledTask) (*ScheduledTask, error) {
	if task.Name == "" {
		return nil, fmt.Errorf("task name is required")
	}
	t := task.clone()
	now := s.clock.Now()
	if t.ID == "" {
		t.ID = idgen.NewAt("sched", now, t.Name)
	}
	if t.ScheduledTime.IsZero() {
		t.ScheduledTime = now
	}
	if t.MaxRetries == 0 {
		t.MaxRetries = s.cfg.MaxRetries
	}
	t.Status = StatusPending
	s.Enqueue(t)
	return t.clone(), nil
}

// Enqueue pushes a task onto the heap.
func (s *Scheduler) Enqueue(task *ScheduledTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	heap.Push(&s.tasks, task)
}

// Peek returns a copy of the next task without removing it, or nil.
func (s *Scheduler) Peek() *ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) == 0 {
		return nil
	}
	return s.tasks[0].clone()
}

// Dequeue pops the next task and marks it running. Returns nil when the
// heap is empty or the next task is not yet due.
func (s *Scheduler) Dequeue() *ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) == 0 {
		return nil
	}
	if s.tasks[0].ScheduledTime.After(s.clock.Now()) {
		return nil
	}
	t := heap.Pop(&s.tasks).(*ScheduledTask)
	t.Status = StatusRunning
	return t
}

// Complete marks the task completed. Recurring tasks are re-enqueued at
// lastRun + interval.
func (s *Scheduler) Complete(task *ScheduledTask) {
	task.Status = StatusCompleted
	if task.Interval <= 0 {
		return
	}
	next := task.clone()
	next.ScheduledTime = task.ScheduledTime.Add(task.Interval)
	next.Status = StatusPending
	next.RetryCount = 0
	next.LastError = ""
	s.Enqueue(next)
}

// Fail records the error and either re-enqueues the task with backoff or
// marks it failed once retries are exhausted. A task past its deadline is
// failed immediately without retry.
func (s *Scheduler) Fail(task *ScheduledTask, taskErr error) {
	if taskErr != nil {
		task.LastError = taskErr.Error()
	}
	now := s.clock.Now()
	if task.Deadline != nil && now.After(*task.Deadline) {
		task.Status = StatusFailed
		return
	}

	task.RetryCount++
	if task.RetryCount > task.MaxRetries {
		task.Status = StatusFailed
		return
	}
	task.Status = StatusPending
	task.ScheduledTime = now.Add(s.backoff(task.RetryCount))
	s.Enqueue(task)
}

// backoff returns min(base * 2^n, maxDelay), scaled by a jitter factor in
// [0.5, 1.5] when enabled.
func (s *Scheduler) backoff(retry int) time.Duration {
	d := s.cfg.BaseDelay
	for i := 0; i < retry; i++ {
		d *= 2
		if d >= s.cfg.MaxDelay {
			d = s.cfg.MaxDelay
			break
		}
	}
	if s.cfg.Jitter {
		s.mu.Lock()
		factor := 0.5 + s.rng.Float64()
		s.mu.Unlock()
		d = time.Duration(float64(d) * factor)
	}
	return d
}

// Len returns the number of queued tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// nextWait returns how long until the next task is due, or a poll interval
// when the heap is empty.
func (s *Scheduler) nextWait() time.Duration {
	const idlePoll = time.Second
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) == 0 {
		return idlePoll
	}
	wait := time.Until(s.tasks[0].ScheduledTime)
	if wait < 0 {
		return 0
	}
	if wait > idlePoll {
		return idlePoll
	}
	return wait
}

// Executor runs one due task.
type Executor func(ctx context.Context, task *ScheduledTask) error

// Run executes due tasks with the executor until the context is cancelled.
// Each task runs under its own deadline when one is set.
func (s *Scheduler) Run(ctx context.Context, exec Executor) error {
	for {
		task := s.Dequeue()
		if task == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.nextWait()):
			}
			continue
		}

		taskCtx := ctx
		cancel := context.CancelFunc(func() {})
		if task.Deadline != nil {
			taskCtx, cancel = context.WithDeadline(ctx, *task.Deadline)
		}
		err := exec(taskCtx, task)
		cancel()
		if err != nil {
			s.Fail(task, err)
		} else {
			s.Complete(task)
		}
	}
}
