package eventbus

import (
	"context"
	"time"
)

// EventType identifies a governance notification flowing through the bus.
type EventType string

const (
	// Issue lifecycle events.
	EventIssueCreated   EventType = "issue.created"
	EventIssueEscalated EventType = "issue.escalated"
	EventIssueResolved  EventType = "issue.resolved"

	// EventCriticalEscalation fires when a critical issue is escalated;
	// subscribers forward it to senior-management channels.
	EventCriticalEscalation EventType = "issue.critical_escalation"

	// Cycle lifecycle events.
	EventCycleStarted   EventType = "cycle.started"
	EventCyclePaused    EventType = "cycle.paused"
	EventCycleResumed   EventType = "cycle.resumed"
	EventPhaseAdvanced  EventType = "cycle.phase_advanced"
	EventCycleCompleted EventType = "cycle.completed"

	// Catalog events.
	EventCatalogSubmitted EventType = "catalog.submitted"
	EventCatalogApproved  EventType = "catalog.approved"
)

// Event is one notification.
type Event struct {
	Type       EventType      `json:"type"`
	TenantID   string         `json:"tenant_id,omitempty"`
	EntityType string         `json:"entity_type,omitempty"`
	EntityID   string         `json:"entity_id,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Handler processes events from the bus.
type Handler interface {
	// ID returns a stable handler identifier for logging.
	ID() string
	// Handles returns the event types the handler wants.
	Handles() []EventType
	// Priority orders handlers; lower runs first.
	Priority() int
	// Handle processes one event.
	Handle(ctx context.Context, event *Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	Name     string
	Types    []EventType
	Order    int
	Callback func(ctx context.Context, event *Event) error
}

// ID implements Handler.
func (h *HandlerFunc) ID() string { return h.Name }

// Handles implements Handler.
func (h *HandlerFunc) Handles() []EventType { return h.Types }

// Priority implements Handler.
func (h *HandlerFunc) Priority() int { return h.Order }

// Handle implements Handler.
func (h *HandlerFunc) Handle(ctx context.Context, event *Event) error {
	return h.Callback(ctx, event)
}
