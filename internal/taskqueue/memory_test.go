package taskqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/regsuite/governance/internal/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestProvider(t *testing.T) (*MemoryProvider, *fakeClock, context.Context) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	p := NewMemoryProvider(WithMemoryClock(clock), WithVisibilityTimeout(30*time.Second))
	ctx := context.Background()
	if err := p.CreateQueue(ctx, "governance"); err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	return p, clock, ctx
}

func msg(taskType string, priority types.TaskPriority) *types.TaskMessage {
	return &types.TaskMessage{
		TaskType: taskType,
		Priority: priority,
		Retry:    types.DefaultRetryPolicy(),
	}
}

func TestReceive_PriorityOrder(t *testing.T) {
	p, _, ctx := newTestProvider(t)

	// Send low first to prove priority beats insertion order.
	sends := []struct {
		taskType string
		priority types.TaskPriority
	}{
		{"low-a", types.PriorityLow},
		{"normal-a", types.PriorityNormal},
		{"critical-a", types.PriorityCritical},
		{"high-a", types.PriorityHigh},
		{"critical-b", types.PriorityCritical},
	}
	for _, s := range sends {
		if err := p.SendTask(ctx, "governance", msg(s.taskType, s.priority)); err != nil {
			t.Fatalf("SendTask(%s): %v", s.taskType, err)
		}
	}

	got, err := p.ReceiveTasks(ctx, "governance", 10)
	if err != nil {
		t.Fatalf("ReceiveTasks: %v", err)
	}
	want := []string{"critical-a", "critical-b", "high-a", "normal-a", "low-a"}
	if len(got) != len(want) {
		t.Fatalf("received %d messages, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Message.TaskType != w {
			t.Errorf("position %d: got %s, want %s (ties break by insertion order)", i, got[i].Message.TaskType, w)
		}
	}
}

func TestReceive_DelayedInvisible(t *testing.T) {
	p, clock, ctx := newTestProvider(t)

	delayed := msg("delayed", types.PriorityCritical)
	delayed.DelaySeconds = 60
	if err := p.SendTask(ctx, "governance", delayed); err != nil {
		t.Fatalf("SendTask: %v", err)
	}
	if err := p.SendTask(ctx, "governance", msg("immediate", types.PriorityLow)); err != nil {
		t.Fatalf("SendTask: %v", err)
	}

	got, err := p.ReceiveTasks(ctx, "governance", 10)
	if err != nil {
		t.Fatalf("ReceiveTasks: %v", err)
	}
	if len(got) != 1 || got[0].Message.TaskType != "immediate" {
		t.Fatalf("delayed message should be invisible, got %d messages", len(got))
	}

	clock.Advance(61 * time.Second)
	got, err = p.ReceiveTasks(ctx, "governance", 10)
	if err != nil {
		t.Fatalf("ReceiveTasks: %v", err)
	}
	if len(got) != 1 || got[0].Message.TaskType != "delayed" {
		t.Errorf("delayed message should be visible after its delay")
	}
}

func TestDeleteTask_ReceiptLifecycle(t *testing.T) {
	p, clock, ctx := newTestProvider(t)

	if err := p.SendTask(ctx, "governance", msg("work", types.PriorityNormal)); err != nil {
		t.Fatalf("SendTask: %v", err)
	}
	got, err := p.ReceiveTasks(ctx, "governance", 1)
	if err != nil || len(got) != 1 {
		t.Fatalf("ReceiveTasks: %v (%d)", err, len(got))
	}

	// While in flight the message is invisible but counted.
	stats, err := p.Stats(ctx, "governance")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.InFlight != 1 || stats.ApproximateMessageCount != 0 {
		t.Errorf("stats = %+v, want 1 in flight", stats)
	}
	again, _ := p.ReceiveTasks(ctx, "governance", 10)
	if len(again) != 0 {
		t.Error("in-flight message must not be redelivered before timeout")
	}

	if err := p.DeleteTask(ctx, "governance", got[0].Receipt); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if err := p.DeleteTask(ctx, "governance", got[0].Receipt); !errors.Is(err, ErrUnknownReceipt) {
		t.Errorf("double delete: got %v, want ErrUnknownReceipt", err)
	}

	clock.Advance(time.Hour)
	final, _ := p.ReceiveTasks(ctx, "governance", 10)
	if len(final) != 0 {
		t.Error("deleted message must never reappear")
	}
}

func TestVisibilityTimeout_RedeliveryWithBackoff(t *testing.T) {
	p, clock, ctx := newTestProvider(t)

	m := msg("flaky", types.PriorityNormal)
	m.Retry = types.RetryPolicy{MaxRetries: 2, InitialDelay: time.Second, Multiplier: 2, MaxDelay: time.Minute}
	if err := p.SendTask(ctx, "governance", m); err != nil {
		t.Fatalf("SendTask: %v", err)
	}

	got, _ := p.ReceiveTasks(ctx, "governance", 1)
	if len(got) != 1 {
		t.Fatal("expected delivery")
	}

	// Let the visibility window lapse; the message comes back after the
	// retry policy's first delay.
	clock.Advance(31 * time.Second)
	got, _ = p.ReceiveTasks(ctx, "governance", 1)
	if len(got) != 0 {
		t.Fatal("redelivery should respect the retry delay")
	}
	clock.Advance(2 * time.Second)
	got, _ = p.ReceiveTasks(ctx, "governance", 1)
	if len(got) != 1 {
		t.Fatal("expected redelivery after retry delay")
	}
}

func TestRetryExhaustion_MovesToDLQ(t *testing.T) {
	p, clock, ctx := newTestProvider(t)

	m := msg("poison", types.PriorityHigh)
	m.Retry = types.RetryPolicy{MaxRetries: 1, InitialDelay: time.Second, Multiplier: 2, MaxDelay: time.Minute}
	if err := p.SendTask(ctx, "governance", m); err != nil {
		t.Fatalf("SendTask: %v", err)
	}

	// Delivery 1 times out (attempt 1), redelivery times out (attempt 2 >
	// MaxRetries=1) and the message moves to the DLQ.
	for i := 0; i < 2; i++ {
		got, _ := p.ReceiveTasks(ctx, "governance", 1)
		if len(got) == 0 {
			clock.Advance(5 * time.Second)
			i--
			continue
		}
		clock.Advance(time.Minute)
	}
	_, _ = p.ReceiveTasks(ctx, "governance", 1) // trigger expiry sweep

	main, err := p.Stats(ctx, "governance")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if main.ApproximateMessageCount != 0 || main.InFlight != 0 {
		t.Errorf("main queue should be empty, got %+v", main)
	}
	dlq, err := p.Stats(ctx, "governance"+DLQSuffix)
	if err != nil {
		t.Fatalf("Stats(dlq): %v", err)
	}
	if dlq.ApproximateMessageCount != 1 {
		t.Errorf("dlq count = %d, want 1", dlq.ApproximateMessageCount)
	}

	dead, err := p.ReceiveTasks(ctx, "governance"+DLQSuffix, 1)
	if err != nil || len(dead) != 1 {
		t.Fatalf("receive from dlq: %v (%d)", err, len(dead))
	}
	if dead[0].Message.TaskType != "poison" {
		t.Errorf("dlq message = %s", dead[0].Message.TaskType)
	}
}

func TestQueueLifecycleAndErrors(t *testing.T) {
	p, _, ctx := newTestProvider(t)

	// Idempotent create.
	if err := p.CreateQueue(ctx, "governance"); err != nil {
		t.Errorf("re-create: %v", err)
	}
	if err := p.SendTask(ctx, "nope", msg("x", types.PriorityNormal)); !errors.Is(err, ErrQueueNotFound) {
		t.Errorf("send to unknown queue: got %v", err)
	}
	if _, err := p.ReceiveTasks(ctx, "nope", 1); !errors.Is(err, ErrQueueNotFound) {
		t.Errorf("receive from unknown queue: got %v", err)
	}
	if err := p.DeleteQueue(ctx, "governance"); err != nil {
		t.Fatalf("DeleteQueue: %v", err)
	}
	if err := p.DeleteQueue(ctx, "governance"); !errors.Is(err, ErrQueueNotFound) {
		t.Errorf("double delete queue: got %v", err)
	}
}

type sendGuard struct{ err error }

func (g sendGuard) Check(context.Context, string, int64) error { return g.err }

func TestSendTask_QuotaGuard(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	p := NewMemoryProvider(WithMemoryClock(clock), WithQuotaGuard(sendGuard{err: errors.New("quota exceeded")}))
	ctx := context.Background()
	if err := p.CreateQueue(ctx, "q"); err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	if err := p.SendTask(ctx, "q", msg("x", types.PriorityNormal)); err == nil {
		t.Error("guarded send should fail")
	}
}
