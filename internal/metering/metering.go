// Package metering records per-tenant usage events, aggregates them into
// billing periods, evaluates quota limits and computes billing records.
package metering

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/regsuite/governance/internal/storage"
	"github.com/regsuite/governance/internal/tenant"
)

// UsageEvent is one metered occurrence. Tenant id falls back to the
// ambient context when absent; explicit values win.
type UsageEvent struct {
	Type         string    `json:"type"`
	TenantID     string    `json:"tenant_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Quantity     int64     `json:"quantity"`
	TokensIn     int64     `json:"tokens_in,omitempty"`
	TokensOut    int64     `json:"tokens_out,omitempty"`
	BytesWritten int64     `json:"bytes_written,omitempty"`
	BytesRead    int64     `json:"bytes_read,omitempty"`
	AgentID      string    `json:"agent_id,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
}

// Aggregate sums a tenant's usage over one period.
type Aggregate struct {
	TenantID     string           `json:"tenant_id"`
	Period       string           `json:"period"`
	PeriodStart  time.Time        `json:"period_start"`
	PeriodEnd    time.Time        `json:"period_end"`
	EventCount   int              `json:"event_count"`
	Quantity     int64            `json:"quantity"`
	TokensIn     int64            `json:"tokens_in"`
	TokensOut    int64            `json:"tokens_out"`
	TotalTokens  int64            `json:"total_tokens"`
	BytesWritten int64            `json:"bytes_written"`
	BytesRead    int64            `json:"bytes_read"`
	TotalStorage int64            `json:"total_storage"`
	ByType       map[string]int64 `json:"by_type"`
}

// Service is the in-memory metering store. Events append to a per-tenant
// log; metric counters accumulate event quantities by type for quota
// evaluation.
type Service struct {
	mu      sync.RWMutex
	events  map[string][]*UsageEvent       // tenant -> log
	metrics map[string]map[string]int64    // tenant -> metric -> running total
	clock   storage.Clock

	eventCounter metric.Int64Counter
	tokenCounter metric.Int64Counter
	byteCounter  metric.Int64Counter
}

// NewService creates a metering service with OpenTelemetry counters
// registered on the global meter provider.
func NewService() *Service {
	meter := otel.Meter("governance/metering")
	eventCounter, _ := meter.Int64Counter("governance.usage.events",
		metric.WithDescription("Metered usage events recorded"))
	tokenCounter, _ := meter.Int64Counter("governance.usage.tokens",
		metric.WithDescription("Tokens consumed, in plus out"))
	byteCounter, _ := meter.Int64Counter("governance.usage.storage_bytes",
		metric.WithDescription("Storage bytes written plus read"))
	return &Service{
		events:       make(map[string][]*UsageEvent),
		metrics:      make(map[string]map[string]int64),
		clock:        storage.RealClock{},
		eventCounter: eventCounter,
		tokenCounter: tokenCounter,
		byteCounter:  byteCounter,
	}
}

// WithClock substitutes the clock, for tests.
func (s *Service) WithClock(clock storage.Clock) *Service {
	s.clock = clock
	return s
}

// RecordEvent captures one usage event. The tenant id is taken from the
// event when set, otherwise from the ambient context.
func (s *Service) RecordEvent(ctx context.Context, event *UsageEvent) error {
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}
	e := *event
	if e.TenantID == "" {
		e.TenantID = tenant.ID(ctx)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.clock.Now()
	}

	s.mu.Lock()
	s.events[e.TenantID] = append(s.events[e.TenantID], &e)
	tm, ok := s.metrics[e.TenantID]
	if !ok {
		tm = make(map[string]int64)
		s.metrics[e.TenantID] = tm
	}
	tm[e.Type] += e.Quantity
	s.mu.Unlock()

	attrs := metric.WithAttributes(
		attribute.String("tenant", e.TenantID),
		attribute.String("type", e.Type),
	)
	s.eventCounter.Add(ctx, 1, attrs)
	if tokens := e.TokensIn + e.TokensOut; tokens > 0 {
		s.tokenCounter.Add(ctx, tokens, attrs)
	}
	if bytes := e.BytesWritten + e.BytesRead; bytes > 0 {
		s.byteCounter.Add(ctx, bytes, attrs)
	}
	return nil
}

// MetricValue returns the running total for one tenant metric.
func (s *Service) MetricValue(tenantID, metricName string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics[tenantID][metricName]
}

// Aggregate sums the tenant's events inside [periodStart, periodEnd).
// Derived totals: totalTokens = tokensIn + tokensOut, totalStorage =
// bytesWritten + bytesRead.
func (s *Service) Aggregate(ctx context.Context, tenantID, period string, periodStart, periodEnd time.Time) *Aggregate {
	if tenantID == "" {
		tenantID = tenant.ID(ctx)
	}
	agg := &Aggregate{
		TenantID:    tenantID,
		Period:      period,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		ByType:      make(map[string]int64),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.events[tenantID] {
		if e.Timestamp.Before(periodStart) || !e.Timestamp.Before(periodEnd) {
			continue
		}
		agg.EventCount++
		agg.Quantity += e.Quantity
		agg.TokensIn += e.TokensIn
		agg.TokensOut += e.TokensOut
		agg.BytesWritten += e.BytesWritten
		agg.BytesRead += e.BytesRead
		agg.ByType[e.Type] += e.Quantity
	}
	agg.TotalTokens = agg.TokensIn + agg.TokensOut
	agg.TotalStorage = agg.BytesWritten + agg.BytesRead
	return agg
}
