package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/regsuite/governance/internal/types"
)

func TestWorker_DispatchAndDelete(t *testing.T) {
	p, _, ctx := newTestProvider(t)
	w := NewWorker("w1", p, "governance")

	var handledPayload map[string]any
	w.RegisterHandler("score_elements", func(_ context.Context, m *types.TaskMessage) (map[string]any, error) {
		handledPayload = m.Payload
		return map[string]any{"scored": 3}, nil
	})

	m := msg("score_elements", types.PriorityNormal)
	m.ID = "t-1"
	m.Payload = map[string]any{"threshold": 0.7}
	if err := p.SendTask(ctx, "governance", m); err != nil {
		t.Fatalf("SendTask: %v", err)
	}

	handled, err := w.PollOnce(ctx)
	if err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if handled != 1 {
		t.Fatalf("handled = %d, want 1", handled)
	}
	if handledPayload["threshold"] != 0.7 {
		t.Errorf("payload = %v", handledPayload)
	}

	// Success deletes the message.
	stats, _ := p.Stats(ctx, "governance")
	if stats.ApproximateMessageCount != 0 || stats.InFlight != 0 {
		t.Errorf("queue should be empty after success, got %+v", stats)
	}

	prog, ok := w.TaskProgress("t-1")
	if !ok || prog.State != ProgressDone || prog.Attempts != 1 {
		t.Errorf("progress = %+v", prog)
	}
	res, ok := w.TaskResult("t-1")
	if !ok || res.Status != ResultCompleted {
		t.Fatalf("result = %+v", res)
	}
	if res.Output["scored"] != 3 {
		t.Errorf("output = %v", res.Output)
	}
}

func TestWorker_FailureLeavesMessageForRedelivery(t *testing.T) {
	p, clock, ctx := newTestProvider(t)
	w := NewWorker("w1", p, "governance")
	w.RegisterHandler("flaky", func(context.Context, *types.TaskMessage) (map[string]any, error) {
		return nil, errors.New("downstream unavailable")
	})

	m := msg("flaky", types.PriorityNormal)
	m.ID = "t-2"
	if err := p.SendTask(ctx, "governance", m); err != nil {
		t.Fatalf("SendTask: %v", err)
	}

	handled, err := w.PollOnce(ctx)
	if err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if handled != 0 {
		t.Errorf("handled = %d, want 0 on failure", handled)
	}
	res, ok := w.TaskResult("t-2")
	if !ok || res.Status != ResultFailed || res.Error == "" {
		t.Errorf("result = %+v", res)
	}

	// The message stays in flight and is redelivered after the timeout.
	stats, _ := p.Stats(ctx, "governance")
	if stats.InFlight != 1 {
		t.Errorf("in flight = %d, want 1", stats.InFlight)
	}
	clock.Advance(time.Minute)
	w.RegisterHandler("flaky", func(context.Context, *types.TaskMessage) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	})
	// The first poll sweeps the expired delivery back in with its retry
	// delay; the next poll past that delay succeeds.
	if _, err := w.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	clock.Advance(time.Minute)
	handled, err = w.PollOnce(ctx)
	if err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if handled != 1 {
		t.Fatalf("handled = %d, want redelivered message handled", handled)
	}
	prog, _ := w.TaskProgress("t-2")
	if prog.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", prog.Attempts)
	}
}

func TestWorker_NoHandlerSkips(t *testing.T) {
	p, _, ctx := newTestProvider(t)
	w := NewWorker("w1", p, "governance")

	m := msg("unhandled", types.PriorityNormal)
	if err := p.SendTask(ctx, "governance", m); err != nil {
		t.Fatalf("SendTask: %v", err)
	}
	handled, err := w.PollOnce(ctx)
	if err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if handled != 0 {
		t.Errorf("handled = %d, want 0", handled)
	}
}

func TestWorker_HistoryBound(t *testing.T) {
	p, _, ctx := newTestProvider(t)
	w := NewWorker("w1", p, "governance", WithHistorySize(3), WithBatchSize(10))
	w.RegisterHandler("n", func(context.Context, *types.TaskMessage) (map[string]any, error) {
		return nil, nil
	})

	for i := 0; i < 5; i++ {
		m := msg("n", types.PriorityNormal)
		m.ID = fmt.Sprintf("t-%d", i)
		if err := p.SendTask(ctx, "governance", m); err != nil {
			t.Fatalf("SendTask: %v", err)
		}
	}
	if _, err := w.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}

	if _, ok := w.TaskProgress("t-0"); ok {
		t.Error("oldest progress should be evicted")
	}
	if _, ok := w.TaskProgress("t-4"); !ok {
		t.Error("newest progress should be retained")
	}
}
