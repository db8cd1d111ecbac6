package types

import (
	"fmt"
	"math"
	"time"
)

// TaskPriority orders task messages within a queue. Lower values are
// received first.
type TaskPriority int

// Task priority constants
const (
	PriorityCritical TaskPriority = 1
	PriorityHigh     TaskPriority = 2
	PriorityNormal   TaskPriority = 3
	PriorityLow      TaskPriority = 4
)

// IsValid checks if the priority value is valid
func (p TaskPriority) IsValid() bool {
	return p >= PriorityCritical && p <= PriorityLow
}

// String returns the canonical name for the priority.
func (p TaskPriority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// RetryPolicy controls redelivery backoff for failed tasks.
// Delay for attempt n is min(InitialDelay·Multiplierⁿ, MaxDelay).
type RetryPolicy struct {
	MaxRetries   int           `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay" mapstructure:"initial_delay"`
	Multiplier   float64       `json:"multiplier" yaml:"multiplier" mapstructure:"multiplier"`
	MaxDelay     time.Duration `json:"max_delay" yaml:"max_delay" mapstructure:"max_delay"`
}

// DefaultRetryPolicy returns the standard retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 2 * time.Second,
		Multiplier:   2,
		MaxDelay:     5 * time.Minute,
	}
}

// Delay returns the backoff delay for the given retry attempt (0-based).
func (r RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(r.InitialDelay) * math.Pow(r.Multiplier, float64(attempt))
	if max := float64(r.MaxDelay); r.MaxDelay > 0 && d > max {
		d = max
	}
	return time.Duration(d)
}

// TaskMessage is one unit of queued work.
type TaskMessage struct {
	ID           string         `json:"id"`
	TaskType     string         `json:"task_type"`
	Priority     TaskPriority   `json:"priority"`
	Payload      map[string]any `json:"payload,omitempty"`
	TenantID     string         `json:"tenant_id,omitempty"`
	DelaySeconds int            `json:"delay_seconds,omitempty"`
	Retry        RetryPolicy    `json:"retry_policy"`
	EnqueuedAt   time.Time      `json:"enqueued_at"`
}

// Validate checks message field values.
func (m *TaskMessage) Validate() error {
	if m.TaskType == "" {
		return fmt.Errorf("task_type is required")
	}
	if !m.Priority.IsValid() {
		return fmt.Errorf("invalid priority: %d", m.Priority)
	}
	if m.DelaySeconds < 0 {
		return fmt.Errorf("delay_seconds cannot be negative")
	}
	return nil
}

// VisibleAt returns the instant the message becomes receivable.
func (m *TaskMessage) VisibleAt() time.Time {
	return m.EnqueuedAt.Add(time.Duration(m.DelaySeconds) * time.Second)
}

// Clone returns an independent copy of the message. The payload map is
// copied one level deep.
func (m *TaskMessage) Clone() *TaskMessage {
	if m == nil {
		return nil
	}
	out := *m
	out.Payload = cloneState(m.Payload)
	return &out
}
