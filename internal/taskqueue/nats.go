package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/regsuite/governance/internal/types"
)

// subjectPrefix roots every governance queue subject.
const subjectPrefix = "govq"

// NATSProvider is a JetStream-backed queue. Each queue is one stream with
// a subject per priority (govq.<queue>.p1 .. govq.<queue>.p4); receive
// drains higher priorities first, which gives priority ordering without a
// broker-side priority feature. Ack acts as the delete receipt; delayed
// and failed messages are re-delivered via NakWithDelay.
type NATSProvider struct {
	nc *nats.Conn
	js nats.JetStreamContext

	mu       sync.Mutex
	subs     map[string]*nats.Subscription // queue+subject -> pull consumer
	inflight map[string]*nats.Msg          // receipt -> message awaiting ack
}

// NewNATSProvider connects a provider to an existing NATS connection.
func NewNATSProvider(nc *nats.Conn) (*NATSProvider, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &NATSProvider{
		nc:       nc,
		js:       js,
		subs:     make(map[string]*nats.Subscription),
		inflight: make(map[string]*nats.Msg),
	}, nil
}

var _ Provider = (*NATSProvider)(nil)

func streamName(queue string) string { return subjectPrefix + "_" + queue }

func prioritySubject(queue string, p types.TaskPriority) string {
	return fmt.Sprintf("%s.%s.p%d", subjectPrefix, queue, int(p))
}

// poisonSubject is where undecodable payloads land: the lowest-priority
// subject of the queue's dead-letter stream.
func poisonSubject(queue string) string {
	return prioritySubject(queue+DLQSuffix, types.PriorityLow)
}

// CreateQueue provisions the stream and its dead-letter companion.
func (p *NATSProvider) CreateQueue(_ context.Context, name string) error {
	for _, q := range []string{name, name + DLQSuffix} {
		_, err := p.js.AddStream(&nats.StreamConfig{
			Name:      streamName(q),
			Subjects:  []string{fmt.Sprintf("%s.%s.>", subjectPrefix, q)},
			Retention: nats.WorkQueuePolicy,
		})
		if err != nil && err != nats.ErrStreamNameAlreadyInUse {
			return fmt.Errorf("add stream %s: %w", q, err)
		}
	}
	return nil
}

// DeleteQueue removes the stream and its dead-letter companion.
func (p *NATSProvider) DeleteQueue(_ context.Context, name string) error {
	for _, q := range []string{name, name + DLQSuffix} {
		if err := p.js.DeleteStream(streamName(q)); err != nil {
			if err == nats.ErrStreamNotFound {
				return fmt.Errorf("%s: %w", name, ErrQueueNotFound)
			}
			return fmt.Errorf("delete stream %s: %w", q, err)
		}
	}
	return nil
}

// SendTask publishes the message on its priority subject. Per-message
// delays ride on a header and are honored at receive time.
func (p *NATSProvider) SendTask(_ context.Context, queue string, msg *types.TaskMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	m := msg.Clone()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.EnqueuedAt.IsZero() {
		m.EnqueuedAt = time.Now().UTC()
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	_, err = p.js.Publish(prioritySubject(queue, m.Priority), data, nats.MsgId(m.ID))
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// ReceiveTasks fetches up to max messages, draining priority subjects in
// order. Messages whose delay has not elapsed are returned to the stream
// with NakWithDelay and do not count against max.
func (p *NATSProvider) ReceiveTasks(_ context.Context, queue string, max int) ([]*ReceivedTask, error) {
	var out []*ReceivedTask
	now := time.Now().UTC()

	for pr := types.PriorityCritical; pr <= types.PriorityLow && len(out) < max; pr++ {
		sub, err := p.pullSub(queue, pr)
		if err != nil {
			return nil, err
		}
		msgs, err := sub.Fetch(max-len(out), nats.MaxWait(100*time.Millisecond))
		if err != nil {
			if err == nats.ErrTimeout {
				continue
			}
			return nil, fmt.Errorf("fetch %s: %w", prioritySubject(queue, pr), err)
		}
		for _, natsMsg := range msgs {
			var tm types.TaskMessage
			if err := json.Unmarshal(natsMsg.Data, &tm); err != nil {
				// Undecodable payload. Park the raw bytes on the DLQ
				// stream, then drop the original from the work queue.
				if _, pubErr := p.js.Publish(poisonSubject(queue), natsMsg.Data); pubErr != nil {
					return nil, fmt.Errorf("dead-letter poison message: %w", pubErr)
				}
				_ = natsMsg.Term()
				continue
			}
			if wait := tm.VisibleAt().Sub(now); wait > 0 {
				_ = natsMsg.NakWithDelay(wait)
				continue
			}
			receipt := fmt.Sprintf("%s/%s", queue, tm.ID)
			p.mu.Lock()
			p.inflight[receipt] = natsMsg
			p.mu.Unlock()
			out = append(out, &ReceivedTask{Receipt: receipt, Message: &tm})
		}
	}
	return out, nil
}

func (p *NATSProvider) pullSub(queue string, pr types.TaskPriority) (*nats.Subscription, error) {
	subject := prioritySubject(queue, pr)
	p.mu.Lock()
	defer p.mu.Unlock()
	if sub, ok := p.subs[subject]; ok {
		return sub, nil
	}
	sub, err := p.js.PullSubscribe(subject, fmt.Sprintf("govq-%s-p%d", queue, int(pr)),
		nats.AckExplicit(), nats.BindStream(streamName(queue)))
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	p.subs[subject] = sub
	return sub, nil
}

// DeleteTask acks the in-flight message for the receipt.
func (p *NATSProvider) DeleteTask(_ context.Context, _ string, receipt string) error {
	p.mu.Lock()
	natsMsg, ok := p.inflight[receipt]
	if ok {
		delete(p.inflight, receipt)
	}
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", receipt, ErrUnknownReceipt)
	}
	return natsMsg.Ack()
}

// Stats reports the stream's pending message count and the provider's
// in-flight count.
func (p *NATSProvider) Stats(_ context.Context, queue string) (QueueStats, error) {
	info, err := p.js.StreamInfo(streamName(queue))
	if err != nil {
		if err == nats.ErrStreamNotFound {
			return QueueStats{}, fmt.Errorf("%s: %w", queue, ErrQueueNotFound)
		}
		return QueueStats{}, fmt.Errorf("stream info: %w", err)
	}
	p.mu.Lock()
	inFlight := len(p.inflight)
	p.mu.Unlock()
	return QueueStats{
		ApproximateMessageCount: int(info.State.Msgs),
		InFlight:                inFlight,
	}, nil
}

// Close drains the connection.
func (p *NATSProvider) Close() error {
	return p.nc.Drain()
}
