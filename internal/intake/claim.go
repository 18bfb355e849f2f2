package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/guarded-reply/internal/events"
	"github.com/wolfman30/guarded-reply/internal/usage"
	"github.com/wolfman30/guarded-reply/pkg/logging"
)

// ClaimStatus is the outcome of claiming an inbound event.
type ClaimStatus int

const (
	Claimed ClaimStatus = iota + 1
	AlreadyProcessed
	QuotaExceeded
	// NonMessage is a claimed event that is not a text message (follow,
	// sticker, etc.). It skips the quota check.
	NonMessage
)

func (s ClaimStatus) String() string {
	switch s {
	case Claimed:
		return "claimed"
	case AlreadyProcessed:
		return "already_processed"
	case QuotaExceeded:
		return "quota_exceeded"
	case NonMessage:
		return "non_message"
	default:
		return "unknown"
	}
}

// ClaimResult reports the claim status and, for text events, the usage
// counter read at claim time.
type ClaimResult struct {
	Status ClaimStatus
	Usage  usage.Counter
}

// Owned reports whether the caller holds the claim and must Complete or
// Release it.
func (r ClaimResult) Owned() bool {
	return r.Status != AlreadyProcessed
}

var ErrInvalidEvent = errors.New("intake: event id and tenant id are required")

type quotaChecker interface {
	Check(ctx context.Context, tenantID string) (usage.Counter, error)
}

// chargeLookup is implemented by quota stores that remember which events
// already consumed a unit. A redelivered event that was charged before is
// not turned away at the limit.
type chargeLookup interface {
	Charged(ctx context.Context, tenantID, eventID string) (bool, error)
}

// Claimer acquires inbound events exactly once through the dedup ledger and
// read-checks the tenant quota before any classification or generation.
type Claimer struct {
	ledger events.ClaimLedger
	quota  quotaChecker
	logger *logging.Logger
}

func NewClaimer(ledger events.ClaimLedger, quota quotaChecker, logger *logging.Logger) *Claimer {
	if ledger == nil {
		panic("intake: claim ledger cannot be nil")
	}
	if quota == nil {
		panic("intake: quota checker cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Claimer{ledger: ledger, quota: quota, logger: logger}
}

// Claim acquires the event. A second claim for the same event returns
// AlreadyProcessed without side effects. When the quota read fails the
// claim is released so the event can be presented again.
func (c *Claimer) Claim(ctx context.Context, evt events.InboundEvent) (ClaimResult, error) {
	if strings.TrimSpace(evt.EventID) == "" || strings.TrimSpace(evt.TenantID) == "" {
		return ClaimResult{}, ErrInvalidEvent
	}

	ok, err := c.ledger.Claim(ctx, evt.TenantID, evt.EventID)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("intake: claim event: %w", err)
	}
	if !ok {
		c.logger.Info("duplicate inbound event skipped",
			"event_id", evt.EventID,
			"tenant_id", evt.TenantID,
			"redelivery", evt.IsRedelivery,
		)
		return ClaimResult{Status: AlreadyProcessed}, nil
	}

	if evt.Kind != events.KindText {
		return ClaimResult{Status: NonMessage}, nil
	}

	counter, err := c.quota.Check(ctx, evt.TenantID)
	if err != nil {
		if relErr := c.ledger.Release(ctx, evt.TenantID, evt.EventID); relErr != nil {
			c.logger.Error("failed to release claim", "event_id", evt.EventID, "error", relErr)
		}
		return ClaimResult{}, fmt.Errorf("intake: check quota: %w", err)
	}
	if counter.Exceeded() && !c.alreadyCharged(ctx, evt) {
		return ClaimResult{Status: QuotaExceeded, Usage: counter}, nil
	}
	return ClaimResult{Status: Claimed, Usage: counter}, nil
}

func (c *Claimer) alreadyCharged(ctx context.Context, evt events.InboundEvent) bool {
	lookup, ok := c.quota.(chargeLookup)
	if !ok {
		return false
	}
	charged, err := lookup.Charged(ctx, evt.TenantID, evt.EventID)
	if err != nil {
		c.logger.Warn("usage charge lookup failed", "event_id", evt.EventID, "error", err)
		return false
	}
	return charged
}

// Complete marks the event as processed.
func (c *Claimer) Complete(ctx context.Context, evt events.InboundEvent) error {
	if err := c.ledger.Complete(ctx, evt.TenantID, evt.EventID); err != nil {
		return fmt.Errorf("intake: complete claim: %w", err)
	}
	return nil
}

// Release makes the event claimable again.
func (c *Claimer) Release(ctx context.Context, evt events.InboundEvent) error {
	if err := c.ledger.Release(ctx, evt.TenantID, evt.EventID); err != nil {
		return fmt.Errorf("intake: release claim: %w", err)
	}
	return nil
}
