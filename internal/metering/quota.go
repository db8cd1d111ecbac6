package metering

import (
	"context"
	"fmt"
	"sync"

	"github.com/regsuite/governance/internal/storage"
	"github.com/regsuite/governance/internal/tenant"
)

// QuotaStatus classifies how close a metric is to its limit.
type QuotaStatus string

// Quota statuses, from healthy to breached.
const (
	QuotaOK       QuotaStatus = "ok"
	QuotaWarning  QuotaStatus = "warning"
	QuotaCritical QuotaStatus = "critical"
	QuotaExceeded QuotaStatus = "exceeded"
)

// QuotaLimit configures one metric's ceiling and alert thresholds.
// Thresholds are percentages of Max.
type QuotaLimit struct {
	Metric            string  `mapstructure:"metric"`
	Max               int64   `mapstructure:"max"`
	WarningThreshold  float64 `mapstructure:"warning_threshold"`
	CriticalThreshold float64 `mapstructure:"critical_threshold"`
}

// DefaultThresholds returns the standard warning/critical percentages.
func (l QuotaLimit) thresholds() (warning, critical float64) {
	warning, critical = l.WarningThreshold, l.CriticalThreshold
	if warning == 0 {
		warning = 80
	}
	if critical == 0 {
		critical = 95
	}
	return warning, critical
}

// QuotaCheck is the evaluation of one metric against its limit.
type QuotaCheck struct {
	Metric       string      `json:"metric"`
	Current      int64       `json:"current"`
	Max          int64       `json:"max"`
	UsagePercent float64     `json:"usage_percent"`
	Status       QuotaStatus `json:"status"`
}

// EvaluateQuota classifies current usage against the limit. A zero Max
// means unlimited and always evaluates ok.
func EvaluateQuota(current int64, limit QuotaLimit) QuotaCheck {
	check := QuotaCheck{Metric: limit.Metric, Current: current, Max: limit.Max, Status: QuotaOK}
	if limit.Max <= 0 {
		return check
	}
	check.UsagePercent = float64(current) / float64(limit.Max) * 100
	warning, critical := limit.thresholds()
	switch {
	case check.UsagePercent >= 100:
		check.Status = QuotaExceeded
	case check.UsagePercent >= critical:
		check.Status = QuotaCritical
	case check.UsagePercent >= warning:
		check.Status = QuotaWarning
	}
	return check
}

// Guard enforces quota limits on quota-bearing operations. It satisfies
// the guard interfaces in workflow and taskqueue. Limits may be swapped
// at runtime via SetLimits (config hot reload).
type Guard struct {
	service *Service

	mu     sync.RWMutex
	limits map[string]QuotaLimit
}

// NewGuard creates a guard over the service with the given limits.
func NewGuard(service *Service, limits []QuotaLimit) *Guard {
	g := &Guard{service: service}
	g.SetLimits(limits)
	return g
}

// SetLimits replaces the configured limits. In-flight checks finish
// against the old set; later checks see the new one.
func (g *Guard) SetLimits(limits []QuotaLimit) {
	byMetric := make(map[string]QuotaLimit, len(limits))
	for _, l := range limits {
		byMetric[l.Metric] = l
	}
	g.mu.Lock()
	g.limits = byMetric
	g.mu.Unlock()
}

func (g *Guard) limitFor(metricName string) (QuotaLimit, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	l, ok := g.limits[metricName]
	return l, ok
}

// Check rejects the operation with storage.ErrQuotaExceeded when the
// tenant's metric is at or over its maximum. On success the consumed
// quantity is recorded as a usage event.
func (g *Guard) Check(ctx context.Context, metricName string, quantity int64) error {
	tenantID := tenant.ID(ctx)
	limit, limited := g.limitFor(metricName)
	if limited && limit.Max > 0 {
		current := g.service.MetricValue(tenantID, metricName)
		if current >= limit.Max {
			check := EvaluateQuota(current, limit)
			return fmt.Errorf("tenant %s metric %s at %.0f%% of limit %d: %w",
				tenantID, metricName, check.UsagePercent, limit.Max, storage.ErrQuotaExceeded)
		}
	}
	return g.service.RecordEvent(ctx, &UsageEvent{
		Type:     metricName,
		TenantID: tenantID,
		Quantity: quantity,
	})
}

// Status evaluates every configured limit for the tenant.
func (g *Guard) Status(ctx context.Context) []QuotaCheck {
	tenantID := tenant.ID(ctx)
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]QuotaCheck, 0, len(g.limits))
	for _, limit := range g.limits {
		out = append(out, EvaluateQuota(g.service.MetricValue(tenantID, limit.Metric), limit))
	}
	return out
}
