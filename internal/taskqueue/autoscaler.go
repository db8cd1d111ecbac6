package taskqueue

import (
	"context"
	"log"
	"time"

	"github.com/regsuite/governance/internal/storage"
)

// ScalerConfig tunes the auto-scaler thresholds and cooldowns.
type ScalerConfig struct {
	MinWorkers         int           `mapstructure:"min_workers"`
	MaxWorkers         int           `mapstructure:"max_workers"`
	ScaleUpThreshold   int           `mapstructure:"scale_up_threshold"`
	ScaleDownThreshold int           `mapstructure:"scale_down_threshold"`
	ScaleUpIncrement   int           `mapstructure:"scale_up_increment"`
	ScaleDownIncrement int           `mapstructure:"scale_down_increment"`
	ScaleUpCooldown    time.Duration `mapstructure:"scale_up_cooldown"`
	ScaleDownCooldown  time.Duration `mapstructure:"scale_down_cooldown"`
}

// DefaultScalerConfig returns conservative scaling defaults.
func DefaultScalerConfig() ScalerConfig {
	return ScalerConfig{
		MinWorkers:         1,
		MaxWorkers:         10,
		ScaleUpThreshold:   20,
		ScaleDownThreshold: 2,
		ScaleUpIncrement:   2,
		ScaleDownIncrement: 1,
		ScaleUpCooldown:    30 * time.Second,
		ScaleDownCooldown:  2 * time.Minute,
	}
}

// scalable is what the scaler needs from a pool.
type scalable interface {
	WorkerCount() int
	Resize(target int)
	QueueDepth(ctx context.Context) (int, error)
}

// AutoScaler adjusts pool size from queue depth. Scale-ups and scale-downs
// each honor their own cooldown, and the resulting size is always clamped
// to [MinWorkers, MaxWorkers].
type AutoScaler struct {
	cfg   ScalerConfig
	pool  scalable
	clock storage.Clock

	lastScaleUp   time.Time
	lastScaleDown time.Time
}

// NewAutoScaler creates a scaler for the pool.
func NewAutoScaler(cfg ScalerConfig, pool scalable) *AutoScaler {
	return &AutoScaler{cfg: cfg, pool: pool, clock: storage.RealClock{}}
}

// WithClock substitutes the clock, for tests.
func (a *AutoScaler) WithClock(c storage.Clock) *AutoScaler {
	a.clock = c
	return a
}

// Evaluate runs one scaling decision and returns the worker count after
// any action.
func (a *AutoScaler) Evaluate(ctx context.Context) (int, error) {
	depth, err := a.pool.QueueDepth(ctx)
	if err != nil {
		return a.pool.WorkerCount(), err
	}
	return a.evaluate(depth), nil
}

func (a *AutoScaler) evaluate(depth int) int {
	now := a.clock.Now()
	count := a.pool.WorkerCount()

	scaleUp := depth >= a.cfg.ScaleUpThreshold &&
		count < a.cfg.MaxWorkers &&
		now.Sub(a.lastScaleUp) >= a.cfg.ScaleUpCooldown
	scaleDown := depth <= a.cfg.ScaleDownThreshold &&
		count > a.cfg.MinWorkers &&
		now.Sub(a.lastScaleDown) >= a.cfg.ScaleDownCooldown

	switch {
	case scaleUp:
		target := clamp(count+a.cfg.ScaleUpIncrement, a.cfg.MinWorkers, a.cfg.MaxWorkers)
		if target != count {
			a.pool.Resize(target)
			a.lastScaleUp = now
			log.Printf("autoscaler: depth %d, scaled up %d -> %d", depth, count, target)
		}
		return target
	case scaleDown:
		target := clamp(count-a.cfg.ScaleDownIncrement, a.cfg.MinWorkers, a.cfg.MaxWorkers)
		if target != count {
			a.pool.Resize(target)
			a.lastScaleDown = now
			log.Printf("autoscaler: depth %d, scaled down %d -> %d", depth, count, target)
		}
		return target
	default:
		return count
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Run evaluates on the interval until the context is cancelled.
func (a *AutoScaler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.Evaluate(ctx); err != nil {
				log.Printf("autoscaler: evaluate failed: %v", err)
			}
		}
	}
}
