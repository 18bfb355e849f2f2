package intake

import (
	"context"
	"fmt"

	"github.com/wolfman30/guarded-reply/internal/events"
	"github.com/wolfman30/guarded-reply/pkg/logging"
)

// Publisher enqueues normalized inbound events for the pipeline worker.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
}

func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("intake: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, logger: logger}
}

// Publish enqueues one event, grouped by conversation and deduplicated by
// event id on FIFO queues.
func (p *Publisher) Publish(ctx context.Context, evt events.InboundEvent) error {
	payload, body, err := encodePayload(queuePayload{Event: evt})
	if err != nil {
		return err
	}
	out := outgoingMessage{
		Body:            body,
		GroupID:         evt.ConversationID,
		DeduplicationID: evt.EventID,
	}
	if err := p.queue.Send(ctx, out); err != nil {
		return fmt.Errorf("intake: enqueue event: %w", err)
	}

	p.logger.Debug("inbound event enqueued",
		"job_id", payload.ID,
		"event_id", evt.EventID,
		"tenant_id", evt.TenantID,
		"kind", evt.Kind,
	)
	return nil
}
