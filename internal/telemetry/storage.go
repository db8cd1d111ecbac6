package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/regsuite/governance/internal/storage"
	"github.com/regsuite/governance/internal/types"
)

const storageScopeName = "github.com/regsuite/governance/storage"

// InstrumentedStorage wraps storage.Storage with OTel tracing and metrics.
// Every method gets a span and is counted in governance.storage.* metrics.
// Use WrapStorage to create one; it returns the original store unchanged when
// telemetry is disabled.
type InstrumentedStorage struct {
	inner  storage.Storage
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapStorage returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is with zero overhead.
func WrapStorage(s storage.Storage) storage.Storage {
	if !Enabled() {
		return s
	}
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("governance.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("governance.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("governance.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	return &InstrumentedStorage{
		inner:  s,
		tracer: Tracer(storageScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

// op starts a span and records a metric for the named storage operation.
func (s *InstrumentedStorage) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStorage) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

// ── Report catalog ──────────────────────────────────────────────────────────

func (s *InstrumentedStorage) GetCatalog(ctx context.Context) (*types.ReportCatalog, error) {
	ctx, span, t := s.op(ctx, "GetCatalog")
	v, err := s.inner.GetCatalog(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) SaveCatalog(ctx context.Context, catalog *types.ReportCatalog) error {
	attrs := []attribute.KeyValue{
		attribute.String("gov.catalog.status", string(catalog.Status)),
		attribute.Int("gov.report.count", len(catalog.Reports)),
	}
	ctx, span, t := s.op(ctx, "SaveCatalog", attrs...)
	err := s.inner.SaveCatalog(ctx, catalog)
	s.done(ctx, span, t, err, attrs...)
	return err
}

// ── Reports ─────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) GetReport(ctx context.Context, id string) (*types.RegulatoryReport, error) {
	attrs := []attribute.KeyValue{attribute.String("gov.report.id", id)}
	ctx, span, t := s.op(ctx, "GetReport", attrs...)
	v, err := s.inner.GetReport(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListReports(ctx context.Context) ([]*types.RegulatoryReport, error) {
	ctx, span, t := s.op(ctx, "ListReports")
	v, err := s.inner.ListReports(ctx)
	if err == nil {
		span.SetAttributes(attribute.Int("gov.result.count", len(v)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

// ── Cycles ──────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) CreateCycle(ctx context.Context, cycle *types.CycleInstance) error {
	attrs := []attribute.KeyValue{
		attribute.String("gov.cycle.id", cycle.ID),
		attribute.String("gov.report.id", cycle.ReportID),
	}
	ctx, span, t := s.op(ctx, "CreateCycle", attrs...)
	err := s.inner.CreateCycle(ctx, cycle)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) GetCycle(ctx context.Context, id string) (*types.CycleInstance, error) {
	attrs := []attribute.KeyValue{attribute.String("gov.cycle.id", id)}
	ctx, span, t := s.op(ctx, "GetCycle", attrs...)
	v, err := s.inner.GetCycle(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) UpdateCycle(ctx context.Context, cycle *types.CycleInstance) error {
	attrs := []attribute.KeyValue{
		attribute.String("gov.cycle.id", cycle.ID),
		attribute.String("gov.cycle.phase", string(cycle.CurrentPhase)),
		attribute.String("gov.cycle.status", string(cycle.Status)),
	}
	ctx, span, t := s.op(ctx, "UpdateCycle", attrs...)
	err := s.inner.UpdateCycle(ctx, cycle)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) ListCycles(ctx context.Context, filter storage.CycleFilter) ([]*types.CycleInstance, error) {
	ctx, span, t := s.op(ctx, "ListCycles")
	v, err := s.inner.ListCycles(ctx, filter)
	if err == nil {
		span.SetAttributes(attribute.Int("gov.result.count", len(v)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

// ── Human tasks ─────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) CreateHumanTask(ctx context.Context, task *types.HumanTask) error {
	attrs := []attribute.KeyValue{
		attribute.String("gov.task.id", task.ID),
		attribute.String("gov.task.type", task.Type),
	}
	ctx, span, t := s.op(ctx, "CreateHumanTask", attrs...)
	err := s.inner.CreateHumanTask(ctx, task)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) GetHumanTask(ctx context.Context, id string) (*types.HumanTask, error) {
	attrs := []attribute.KeyValue{attribute.String("gov.task.id", id)}
	ctx, span, t := s.op(ctx, "GetHumanTask", attrs...)
	v, err := s.inner.GetHumanTask(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) UpdateHumanTask(ctx context.Context, task *types.HumanTask) error {
	attrs := []attribute.KeyValue{
		attribute.String("gov.task.id", task.ID),
		attribute.String("gov.task.status", string(task.Status)),
	}
	ctx, span, t := s.op(ctx, "UpdateHumanTask", attrs...)
	err := s.inner.UpdateHumanTask(ctx, task)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) ListHumanTasks(ctx context.Context, filter storage.TaskFilter) ([]*types.HumanTask, error) {
	ctx, span, t := s.op(ctx, "ListHumanTasks")
	v, err := s.inner.ListHumanTasks(ctx, filter)
	if err == nil {
		span.SetAttributes(attribute.Int("gov.result.count", len(v)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

// ── Issues ──────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) CreateIssue(ctx context.Context, issue *types.Issue) error {
	attrs := []attribute.KeyValue{
		attribute.String("gov.issue.id", issue.ID),
		attribute.String("gov.issue.severity", string(issue.Severity)),
	}
	ctx, span, t := s.op(ctx, "CreateIssue", attrs...)
	err := s.inner.CreateIssue(ctx, issue)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	attrs := []attribute.KeyValue{attribute.String("gov.issue.id", id)}
	ctx, span, t := s.op(ctx, "GetIssue", attrs...)
	v, err := s.inner.GetIssue(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) UpdateIssue(ctx context.Context, issue *types.Issue) error {
	attrs := []attribute.KeyValue{
		attribute.String("gov.issue.id", issue.ID),
		attribute.String("gov.issue.status", string(issue.Status)),
	}
	ctx, span, t := s.op(ctx, "UpdateIssue", attrs...)
	err := s.inner.UpdateIssue(ctx, issue)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) DeleteIssue(ctx context.Context, id string) error {
	attrs := []attribute.KeyValue{attribute.String("gov.issue.id", id)}
	ctx, span, t := s.op(ctx, "DeleteIssue", attrs...)
	err := s.inner.DeleteIssue(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) SearchIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error) {
	ctx, span, t := s.op(ctx, "SearchIssues")
	v, err := s.inner.SearchIssues(ctx, filter)
	if err == nil {
		span.SetAttributes(attribute.Int("gov.result.count", len(v)))
	}
	s.done(ctx, span, t, err)
	return v, err
}

// ── CDE inventory and DQ rules ──────────────────────────────────────────────

func (s *InstrumentedStorage) SaveInventory(ctx context.Context, inv *types.CDEInventory) error {
	attrs := []attribute.KeyValue{attribute.Int("gov.cde.count", len(inv.Entries))}
	ctx, span, t := s.op(ctx, "SaveInventory", attrs...)
	err := s.inner.SaveInventory(ctx, inv)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) GetInventory(ctx context.Context) (*types.CDEInventory, error) {
	ctx, span, t := s.op(ctx, "GetInventory")
	v, err := s.inner.GetInventory(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) SaveDQRules(ctx context.Context, rules []*types.DQRule) error {
	attrs := []attribute.KeyValue{attribute.Int("gov.rule.count", len(rules))}
	ctx, span, t := s.op(ctx, "SaveDQRules", attrs...)
	err := s.inner.SaveDQRules(ctx, rules)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) ListDQRules(ctx context.Context, cdeID string) ([]*types.DQRule, error) {
	attrs := []attribute.KeyValue{attribute.String("gov.cde.id", cdeID)}
	ctx, span, t := s.op(ctx, "ListDQRules", attrs...)
	v, err := s.inner.ListDQRules(ctx, cdeID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Lifecycle ───────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
