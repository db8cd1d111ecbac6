package taskqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Pool runs a resizable set of workers against one queue. All workers
// share the pool's handler registry.
type Pool struct {
	provider     Provider
	queue        string
	pollInterval time.Duration

	mu       sync.Mutex
	handlers map[string]Handler
	workers  []*poolWorker
	nextID   int

	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

type poolWorker struct {
	worker *Worker
	cancel context.CancelFunc
}

// NewPool creates a pool. Workers are added via Resize or by the
// auto-scaler; the pool starts empty.
func NewPool(provider Provider, queue string, pollInterval time.Duration) *Pool {
	return &Pool{
		provider:     provider,
		queue:        queue,
		pollInterval: pollInterval,
		handlers:     make(map[string]Handler),
	}
}

// RegisterHandler binds a handler to a task type for all current and
// future workers.
func (p *Pool) RegisterHandler(taskType string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[taskType] = h
	for _, pw := range p.workers {
		pw.worker.RegisterHandler(taskType, h)
	}
}

// Start begins running the pool at the given size. Wait blocks until every
// worker has exited after Stop or context cancellation.
func (p *Pool) Start(ctx context.Context, size int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.group, _ = errgroup.WithContext(p.ctx)
	p.resizeLocked(size)
}

// WorkerCount returns the current number of workers.
func (p *Pool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Resize grows or shrinks the pool to the target size. Before Start the
// pool has no run context to attach workers to, so Resize is a no-op.
func (p *Pool) Resize(target int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		return
	}
	p.resizeLocked(target)
}

func (p *Pool) resizeLocked(target int) {
	if target < 0 {
		target = 0
	}
	for len(p.workers) < target {
		p.nextID++
		w := NewWorker(fmt.Sprintf("%s-w%d", p.queue, p.nextID), p.provider, p.queue)
		for taskType, h := range p.handlers {
			w.RegisterHandler(taskType, h)
		}
		wctx, cancel := context.WithCancel(p.ctx)
		p.workers = append(p.workers, &poolWorker{worker: w, cancel: cancel})
		p.group.Go(func() error {
			err := w.Run(wctx, p.pollInterval)
			// Worker shutdown via resize or pool stop is not a pool failure.
			if wctx.Err() != nil {
				return nil
			}
			return err
		})
	}
	for len(p.workers) > target {
		last := p.workers[len(p.workers)-1]
		last.cancel()
		p.workers = p.workers[:len(p.workers)-1]
	}
}

// Stop cancels every worker and waits for them to exit.
func (p *Pool) Stop() error {
	p.mu.Lock()
	cancel := p.cancel
	group := p.group
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if group != nil {
		return group.Wait()
	}
	return nil
}

// QueueDepth reports the approximate backlog for scaling decisions.
func (p *Pool) QueueDepth(ctx context.Context) (int, error) {
	stats, err := p.provider.Stats(ctx, p.queue)
	if err != nil {
		return 0, err
	}
	return stats.ApproximateMessageCount, nil
}
