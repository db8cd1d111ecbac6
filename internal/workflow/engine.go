// Package workflow implements the report cycle engine: catalog review
// state, the phased cycle pipeline with checkpoint gates, agent triggers
// and the human task lifecycle.
package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/regsuite/governance/internal/auditchain"
	"github.com/regsuite/governance/internal/eventbus"
	"github.com/regsuite/governance/internal/issues"
	"github.com/regsuite/governance/internal/storage"
	"github.com/regsuite/governance/internal/tenant"
	"github.com/regsuite/governance/internal/types"
)

// QuotaGuard is consulted before quota-bearing operations (cycle starts,
// task sends). Implementations return storage.ErrQuotaExceeded when the
// tenant metric is at or over its maximum.
type QuotaGuard interface {
	Check(ctx context.Context, metric string, quantity int64) error
}

// SourceScanner is the external collaborator that discovers regulatory
// report definitions and detects changes to already-known ones.
type SourceScanner interface {
	// Scan returns the reports currently published for the jurisdictions.
	Scan(ctx context.Context, jurisdictions []types.Jurisdiction) ([]*ReportChange, error)
	// Changes returns report changes detected since the given time.
	Changes(ctx context.Context, since time.Time) ([]*ReportChange, error)
}

// Engine drives the governance workflow. All commands are atomic at
// operation granularity; commands against one cycle serialize on a
// per-cycle mutex so their effects observe each other.
type Engine struct {
	store    storage.Storage
	audit    *auditchain.Store
	issues   *issues.Manager
	bus      *eventbus.Bus
	verifier *tenant.Verifier
	guard    QuotaGuard
	scanner  SourceScanner
	clock    storage.Clock

	mu       sync.Mutex
	cycleMus map[string]*sync.Mutex
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithBus attaches an event bus for notification fan-out.
func WithBus(bus *eventbus.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithVerifier attaches an identity verifier for privileged catalog calls.
func WithVerifier(v *tenant.Verifier) Option {
	return func(e *Engine) { e.verifier = v }
}

// WithGuard attaches a quota guard consulted on cycle starts.
func WithGuard(g QuotaGuard) Option {
	return func(e *Engine) { e.guard = g }
}

// WithScanner attaches a regulatory source scanner.
func WithScanner(s SourceScanner) Option {
	return func(e *Engine) { e.scanner = s }
}

// WithClock substitutes the clock, for tests.
func WithClock(c storage.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// New creates a workflow engine.
func New(store storage.Storage, audit *auditchain.Store, issueMgr *issues.Manager, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		audit:    audit,
		issues:   issueMgr,
		clock:    storage.RealClock{},
		cycleMus: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// cycleLock returns the mutex serializing commands against one cycle.
func (e *Engine) cycleLock(cycleID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	mu, ok := e.cycleMus[cycleID]
	if !ok {
		mu = &sync.Mutex{}
		e.cycleMus[cycleID] = mu
	}
	return mu
}

func (e *Engine) publish(ctx context.Context, t eventbus.EventType, entityType, entityID string, payload map[string]any) {
	if e.bus == nil {
		return
	}
	_ = e.bus.Publish(ctx, &eventbus.Event{
		Type:       t,
		TenantID:   tenant.ID(ctx),
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    payload,
		OccurredAt: e.clock.Now(),
	})
}
