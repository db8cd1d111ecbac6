package taskqueue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/regsuite/governance/internal/storage"
	"github.com/regsuite/governance/internal/tenant"
	"github.com/regsuite/governance/internal/types"
)

// DefaultVisibilityTimeout is how long a received message stays invisible
// before it is redelivered.
const DefaultVisibilityTimeout = 30 * time.Second

// entry is one queued message with its delivery state.
type entry struct {
	msg      *types.TaskMessage
	seq      uint64
	attempts int

	inFlight   bool
	receipt    string
	invisible  time.Time // redelivery instant while in flight
}

type memQueue struct {
	entries []*entry
}

// MemoryProvider is the in-process queue implementation.
type MemoryProvider struct {
	mu         sync.Mutex
	queues     map[string]*memQueue
	seq        uint64
	visibility time.Duration
	clock      storage.Clock
	guard      QuotaGuard
}

// QuotaGuard mirrors the workflow guard; SendTask consults it when set.
type QuotaGuard interface {
	Check(ctx context.Context, metric string, quantity int64) error
}

// MeterTaskSends is the quota metric consulted on SendTask.
const MeterTaskSends = "task_sends"

// MemoryOption configures the memory provider.
type MemoryOption func(*MemoryProvider)

// WithVisibilityTimeout overrides the redelivery window.
func WithVisibilityTimeout(d time.Duration) MemoryOption {
	return func(p *MemoryProvider) { p.visibility = d }
}

// WithMemoryClock substitutes the clock, for tests.
func WithMemoryClock(c storage.Clock) MemoryOption {
	return func(p *MemoryProvider) { p.clock = c }
}

// WithQuotaGuard attaches a quota guard consulted on sends.
func WithQuotaGuard(g QuotaGuard) MemoryOption {
	return func(p *MemoryProvider) { p.guard = g }
}

// NewMemoryProvider creates an in-memory queue provider.
func NewMemoryProvider(opts ...MemoryOption) *MemoryProvider {
	p := &MemoryProvider{
		queues:     make(map[string]*memQueue),
		visibility: DefaultVisibilityTimeout,
		clock:      storage.RealClock{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ Provider = (*MemoryProvider)(nil)

// CreateQueue creates the queue and its dead-letter companion. Creating an
// existing queue is a no-op.
func (p *MemoryProvider) CreateQueue(_ context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("queue name is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.queues[name]; !ok {
		p.queues[name] = &memQueue{}
	}
	if _, ok := p.queues[name+DLQSuffix]; !ok {
		p.queues[name+DLQSuffix] = &memQueue{}
	}
	return nil
}

// DeleteQueue removes the queue and its dead-letter companion.
func (p *MemoryProvider) DeleteQueue(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.queues[name]; !ok {
		return fmt.Errorf("%s: %w", name, ErrQueueNotFound)
	}
	delete(p.queues, name)
	delete(p.queues, name+DLQSuffix)
	return nil
}

// SendTask enqueues a message. The tenant id is filled from the ambient
// context when absent; the quota guard, when configured, can reject the
// send.
func (p *MemoryProvider) SendTask(ctx context.Context, queue string, msg *types.TaskMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if p.guard != nil {
		if err := p.guard.Check(ctx, MeterTaskSends, 1); err != nil {
			return err
		}
	}

	m := msg.Clone()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.TenantID == "" {
		m.TenantID = tenant.ID(ctx)
	}
	if m.EnqueuedAt.IsZero() {
		m.EnqueuedAt = p.clock.Now()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.queues[queue]
	if !ok {
		return fmt.Errorf("%s: %w", queue, ErrQueueNotFound)
	}
	p.seq++
	q.entries = append(q.entries, &entry{msg: m, seq: p.seq})
	return nil
}

// ReceiveTasks returns up to max visible messages in priority order (ties
// by insertion order). Returned messages become invisible for the
// visibility timeout; redelivery past the message's retry budget moves it
// to the dead-letter queue instead.
func (p *MemoryProvider) ReceiveTasks(_ context.Context, queue string, max int) ([]*ReceivedTask, error) {
	if max <= 0 {
		return nil, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.queues[queue]
	if !ok {
		return nil, fmt.Errorf("%s: %w", queue, ErrQueueNotFound)
	}

	now := p.clock.Now()
	p.expireInFlight(queue, q, now)

	candidates := make([]*entry, 0, len(q.entries))
	for _, e := range q.entries {
		if e.inFlight {
			continue
		}
		if now.Before(e.msg.VisibleAt()) {
			continue
		}
		candidates = append(candidates, e)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].msg.Priority != candidates[j].msg.Priority {
			return candidates[i].msg.Priority < candidates[j].msg.Priority
		}
		return candidates[i].seq < candidates[j].seq
	})
	if len(candidates) > max {
		candidates = candidates[:max]
	}

	out := make([]*ReceivedTask, 0, len(candidates))
	for _, e := range candidates {
		e.inFlight = true
		e.receipt = uuid.NewString()
		e.invisible = now.Add(p.visibility)
		out = append(out, &ReceivedTask{Receipt: e.receipt, Message: e.msg.Clone()})
	}
	return out, nil
}

// expireInFlight returns timed-out messages to visibility, moving those
// past their retry budget to the dead-letter queue. Caller holds the lock.
func (p *MemoryProvider) expireInFlight(name string, q *memQueue, now time.Time) {
	kept := q.entries[:0]
	for _, e := range q.entries {
		if e.inFlight && !now.Before(e.invisible) {
			e.inFlight = false
			e.receipt = ""
			e.attempts++
			if e.attempts > e.msg.Retry.MaxRetries {
				p.toDLQ(name, e)
				continue
			}
			// Redelivery backs off per the message's retry policy.
			delay := e.msg.Retry.Delay(e.attempts - 1)
			e.msg.EnqueuedAt = now
			e.msg.DelaySeconds = int(delay / time.Second)
		}
		kept = append(kept, e)
	}
	q.entries = kept
}

func (p *MemoryProvider) toDLQ(name string, e *entry) {
	dlq, ok := p.queues[name+DLQSuffix]
	if !ok {
		dlq = &memQueue{}
		p.queues[name+DLQSuffix] = dlq
	}
	m := e.msg.Clone()
	m.DelaySeconds = 0
	p.seq++
	dlq.entries = append(dlq.entries, &entry{msg: m, seq: p.seq})
}

// DeleteTask acknowledges a received message by its receipt.
func (p *MemoryProvider) DeleteTask(_ context.Context, queue, receipt string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.queues[queue]
	if !ok {
		return fmt.Errorf("%s: %w", queue, ErrQueueNotFound)
	}
	for i, e := range q.entries {
		if e.inFlight && e.receipt == receipt {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%s: %w", receipt, ErrUnknownReceipt)
}

// Stats returns an approximate message count and the in-flight count.
func (p *MemoryProvider) Stats(_ context.Context, queue string) (QueueStats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.queues[queue]
	if !ok {
		return QueueStats{}, fmt.Errorf("%s: %w", queue, ErrQueueNotFound)
	}
	var stats QueueStats
	for _, e := range q.entries {
		if e.inFlight {
			stats.InFlight++
		} else {
			stats.ApproximateMessageCount++
		}
	}
	return stats, nil
}

// Close implements Provider.
func (p *MemoryProvider) Close() error { return nil }
