package taskqueue

import (
	"context"
	"testing"
	"time"
)

func TestPool_ResizeBeforeStartIsNoop(t *testing.T) {
	p := NewMemoryProvider()
	if err := p.CreateQueue(context.Background(), "governance"); err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	pool := NewPool(p, "governance", 10*time.Millisecond)

	// The auto-scaler can fire before the pool is started; without a run
	// context there is nothing to attach workers to.
	pool.Resize(3)
	if got := pool.WorkerCount(); got != 0 {
		t.Fatalf("workers before Start = %d, want 0", got)
	}

	pool.Start(context.Background(), 1)
	if got := pool.WorkerCount(); got != 1 {
		t.Errorf("workers after Start = %d, want 1", got)
	}

	pool.Resize(3)
	if got := pool.WorkerCount(); got != 3 {
		t.Errorf("workers after grow = %d, want 3", got)
	}
	pool.Resize(1)
	if got := pool.WorkerCount(); got != 1 {
		t.Errorf("workers after shrink = %d, want 1", got)
	}

	if err := pool.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
