package intake

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultMemoryBuffer      = 128
	defaultMemoryVisibility  = 30 * time.Second
	defaultMemoryMaxReceives = 5
	defaultMemoryDedupWindow = 5 * time.Minute
)

// MemoryQueue is an in-process Queue for single-binary deployments. It
// mirrors the SQS contract the worker depends on: a received message stays
// leased until Delete, and a lease that expires puts the message back so a
// retryable pipeline failure is attempted again. Sends that repeat a
// deduplication id inside the dedup window are dropped, the way an SQS FIFO
// queue drops a redelivered webhook event.
type MemoryQueue struct {
	ch          chan queueMessage
	visibility  time.Duration
	maxReceives int
	dedupWindow time.Duration
	now         func() time.Time

	mu       sync.Mutex
	inflight map[string]leasedMessage
	receives map[string]int
	seen     map[string]time.Time
	dropped  int
}

type leasedMessage struct {
	msg      queueMessage
	deadline time.Time
}

// MemoryQueueOption customizes a MemoryQueue.
type MemoryQueueOption func(*MemoryQueue)

// WithVisibilityTimeout sets how long a received message stays hidden.
func WithVisibilityTimeout(d time.Duration) MemoryQueueOption {
	return func(q *MemoryQueue) {
		if d > 0 {
			q.visibility = d
		}
	}
}

// WithMaxReceives caps deliveries of one message; after that it is dropped.
func WithMaxReceives(n int) MemoryQueueOption {
	return func(q *MemoryQueue) {
		if n > 0 {
			q.maxReceives = n
		}
	}
}

// WithDedupWindow sets how long a deduplication id suppresses repeats.
func WithDedupWindow(d time.Duration) MemoryQueueOption {
	return func(q *MemoryQueue) {
		if d >= 0 {
			q.dedupWindow = d
		}
	}
}

func NewMemoryQueue(buffer int, opts ...MemoryQueueOption) *MemoryQueue {
	if buffer <= 0 {
		buffer = defaultMemoryBuffer
	}
	q := &MemoryQueue{
		ch:          make(chan queueMessage, buffer),
		visibility:  defaultMemoryVisibility,
		maxReceives: defaultMemoryMaxReceives,
		dedupWindow: defaultMemoryDedupWindow,
		now:         time.Now,
		inflight:    make(map[string]leasedMessage),
		receives:    make(map[string]int),
		seen:        make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Send enqueues a message or blocks until ctx is done.
func (q *MemoryQueue) Send(ctx context.Context, out outgoingMessage) error {
	if q.isDuplicate(out.DeduplicationID) {
		return nil
	}
	msg := queueMessage{
		ID:   uuid.NewString(),
		Body: out.Body,
	}
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		q.forget(out.DeduplicationID)
		return ctx.Err()
	}
}

// Receive blocks until a message is available, ctx is done, or waitSeconds
// elapses. Returned messages are leased until Delete or the visibility
// timeout.
func (q *MemoryQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}
	q.requeueExpired()

	var timeout <-chan time.Time
	if waitSeconds > 0 {
		timer := time.NewTimer(time.Duration(waitSeconds) * time.Second)
		defer timer.Stop()
		timeout = timer.C
	}
	sweep := time.NewTicker(q.sweepInterval())
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			return nil, nil
		case <-sweep.C:
			q.requeueExpired()
		case msg := <-q.ch:
			return q.lease(q.collect(msg, maxMessages)), nil
		}
	}
}

// Delete acknowledges a leased message.
func (q *MemoryQueue) Delete(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	leased, ok := q.inflight[receiptHandle]
	if !ok {
		return nil
	}
	delete(q.inflight, receiptHandle)
	delete(q.receives, leased.msg.ID)
	return nil
}

// Dropped counts messages discarded after exhausting their receives.
func (q *MemoryQueue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *MemoryQueue) collect(first queueMessage, max int) []queueMessage {
	messages := make([]queueMessage, 0, max)
	messages = append(messages, first)
	for len(messages) < max {
		select {
		case msg := <-q.ch:
			messages = append(messages, msg)
		default:
			return messages
		}
	}
	return messages
}

func (q *MemoryQueue) lease(messages []queueMessage) []queueMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	deadline := q.now().Add(q.visibility)
	for i := range messages {
		messages[i].ReceiptHandle = uuid.NewString()
		q.receives[messages[i].ID]++
		q.inflight[messages[i].ReceiptHandle] = leasedMessage{msg: messages[i], deadline: deadline}
	}
	return messages
}

// requeueExpired returns timed-out leases to the channel. A message that was
// already received maxReceives times is dropped instead.
func (q *MemoryQueue) requeueExpired() {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	for handle, leased := range q.inflight {
		if now.Before(leased.deadline) {
			continue
		}
		if q.receives[leased.msg.ID] >= q.maxReceives {
			delete(q.inflight, handle)
			delete(q.receives, leased.msg.ID)
			q.dropped++
			continue
		}
		msg := leased.msg
		msg.ReceiptHandle = ""
		select {
		case q.ch <- msg:
			delete(q.inflight, handle)
		default:
			// Buffer full; try again on the next sweep.
		}
	}
}

func (q *MemoryQueue) sweepInterval() time.Duration {
	interval := q.visibility / 4
	if interval < 5*time.Millisecond {
		interval = 5 * time.Millisecond
	}
	if interval > time.Second {
		interval = time.Second
	}
	return interval
}

func (q *MemoryQueue) isDuplicate(dedupID string) bool {
	if dedupID == "" || q.dedupWindow == 0 {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	for id, at := range q.seen {
		if now.Sub(at) >= q.dedupWindow {
			delete(q.seen, id)
		}
	}
	if _, ok := q.seen[dedupID]; ok {
		return true
	}
	q.seen[dedupID] = now
	return false
}

func (q *MemoryQueue) forget(dedupID string) {
	if dedupID == "" {
		return
	}
	q.mu.Lock()
	delete(q.seen, dedupID)
	q.mu.Unlock()
}
