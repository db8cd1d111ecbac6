// Package taskqueue provides the provider-agnostic task queue, the worker
// loop with progress tracking, the worker pool and its auto-scaler.
//
// Two providers ship: an in-memory queue for tests and single-process
// deployments, and a NATS JetStream queue for distributed ones. Both
// deliver in priority order and honor per-message delays.
package taskqueue

import (
	"context"
	"errors"

	"github.com/regsuite/governance/internal/types"
)

// DLQSuffix names the dead-letter companion of a queue. Messages move
// there after retry exhaustion.
const DLQSuffix = ".dlq"

// ErrQueueNotFound is returned for operations against an unknown queue.
var ErrQueueNotFound = errors.New("queue not found")

// ErrUnknownReceipt is returned when deleting a task whose receipt is not
// in flight.
var ErrUnknownReceipt = errors.New("unknown receipt")

// ReceivedTask pairs a message with the receipt used to delete it.
type ReceivedTask struct {
	Receipt string
	Message *types.TaskMessage
}

// QueueStats is a point-in-time queue snapshot.
type QueueStats struct {
	ApproximateMessageCount int `json:"approximate_message_count"`
	InFlight                int `json:"in_flight"`
}

// Provider is the queue abstraction. Receive returns messages in priority
// order (critical before high before normal before low, ties by insertion
// order); delayed messages stay invisible until their delay elapses.
// Received messages are invisible until deleted or their visibility
// timeout expires, after which they are redelivered.
type Provider interface {
	CreateQueue(ctx context.Context, name string) error
	DeleteQueue(ctx context.Context, name string) error
	SendTask(ctx context.Context, queue string, msg *types.TaskMessage) error
	ReceiveTasks(ctx context.Context, queue string, max int) ([]*ReceivedTask, error)
	DeleteTask(ctx context.Context, queue, receipt string) error
	Stats(ctx context.Context, queue string) (QueueStats, error)
	Close() error
}
