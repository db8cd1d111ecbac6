package taskqueue

import (
	"context"
	"testing"
	"time"
)

type fakePool struct {
	count int
	depth int
}

func (f *fakePool) WorkerCount() int                          { return f.count }
func (f *fakePool) Resize(target int)                         { f.count = target }
func (f *fakePool) QueueDepth(context.Context) (int, error)   { return f.depth, nil }

func scalerForTest(cfg ScalerConfig, pool *fakePool, clock *fakeClock) *AutoScaler {
	return NewAutoScaler(cfg, pool).WithClock(clock)
}

func TestAutoScaler_ScaleUpToMaxAndHold(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	pool := &fakePool{count: 1, depth: 12}
	cfg := ScalerConfig{
		MinWorkers: 1, MaxWorkers: 5,
		ScaleUpThreshold: 5, ScaleDownThreshold: 1,
		ScaleUpIncrement: 2, ScaleDownIncrement: 1,
		ScaleUpCooldown: 30 * time.Second, ScaleDownCooldown: time.Minute,
	}
	a := scalerForTest(cfg, pool, clock)

	// Depth stays over threshold; each evaluation past cooldown adds the
	// increment until the max clamps it: 1 -> 3 -> 5 -> 5.
	for _, want := range []int{3, 5, 5} {
		clock.Advance(31 * time.Second)
		got, err := a.Evaluate(context.Background())
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if got != want {
			t.Errorf("worker count = %d, want %d", got, want)
		}
	}
	if pool.count != 5 {
		t.Errorf("pool size = %d, want clamped at max 5", pool.count)
	}
}

func TestAutoScaler_ScaleUpCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	pool := &fakePool{count: 1, depth: 100}
	cfg := DefaultScalerConfig()
	cfg.MaxWorkers = 10
	cfg.ScaleUpThreshold = 5
	cfg.ScaleUpCooldown = time.Minute
	a := scalerForTest(cfg, pool, clock)

	clock.Advance(2 * time.Minute)
	if got, _ := a.Evaluate(context.Background()); got != 3 {
		t.Fatalf("first evaluation: count = %d, want 3", got)
	}
	// Within the cooldown nothing happens no matter the depth.
	clock.Advance(10 * time.Second)
	if got, _ := a.Evaluate(context.Background()); got != 3 {
		t.Errorf("within cooldown: count = %d, want unchanged 3", got)
	}
	clock.Advance(time.Minute)
	if got, _ := a.Evaluate(context.Background()); got != 5 {
		t.Errorf("after cooldown: count = %d, want 5", got)
	}
}

func TestAutoScaler_ScaleDownToMin(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	pool := &fakePool{count: 4, depth: 0}
	cfg := DefaultScalerConfig()
	cfg.MinWorkers = 2
	cfg.ScaleDownThreshold = 1
	cfg.ScaleDownIncrement = 1
	cfg.ScaleDownCooldown = time.Minute
	a := scalerForTest(cfg, pool, clock)

	for _, want := range []int{3, 2, 2} {
		clock.Advance(2 * time.Minute)
		if got, _ := a.Evaluate(context.Background()); got != want {
			t.Errorf("worker count = %d, want %d", got, want)
		}
	}
	if pool.count != 2 {
		t.Errorf("pool size = %d, want clamped at min 2", pool.count)
	}
}

func TestAutoScaler_SteadyStateNoAction(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	pool := &fakePool{count: 3, depth: 10}
	cfg := DefaultScalerConfig()
	cfg.ScaleUpThreshold = 20
	cfg.ScaleDownThreshold = 2
	a := scalerForTest(cfg, pool, clock)

	clock.Advance(time.Hour)
	if got, _ := a.Evaluate(context.Background()); got != 3 {
		t.Errorf("mid-band depth must not scale: count = %d", got)
	}
}
