package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/guarded-reply/internal/events"
)

// Queue is the transport between the webhook and the pipeline workers.
// MemoryQueue and SQSQueue implement it.
type Queue interface {
	Send(ctx context.Context, msg outgoingMessage) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// outgoingMessage carries the ordering and dedup hints FIFO queues use.
type outgoingMessage struct {
	Body            string
	GroupID         string
	DeduplicationID string
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

type queuePayload struct {
	ID         string              `json:"id"`
	Event      events.InboundEvent `json:"event"`
	EnqueuedAt time.Time           `json:"enqueued_at"`
}

func encodePayload(payload queuePayload) (queuePayload, string, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}
	if payload.EnqueuedAt.IsZero() {
		payload.EnqueuedAt = time.Now().UTC()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return queuePayload{}, "", fmt.Errorf("intake: encode payload: %w", err)
	}
	return payload, string(body), nil
}
