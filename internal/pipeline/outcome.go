package pipeline

import (
	"github.com/google/uuid"

	"github.com/wolfman30/guarded-reply/internal/decision"
	"github.com/wolfman30/guarded-reply/internal/events"
	"github.com/wolfman30/guarded-reply/internal/guardrail"
	"github.com/wolfman30/guarded-reply/internal/risk"
	"github.com/wolfman30/guarded-reply/internal/tenant"
)

// OutcomeKind is the terminal state of one event.
type OutcomeKind string

const (
	OutcomeDecided       OutcomeKind = "decided"
	OutcomeDuplicate     OutcomeKind = "duplicate"
	OutcomeQuotaExceeded OutcomeKind = "quota_exceeded"
	OutcomeWelcome       OutcomeKind = "welcome"
	OutcomeIgnored       OutcomeKind = "ignored"
)

// ClaimContext is the unit of work handed to ProcessOneEvent. Settings are
// loaded from the tenant store when nil.
type ClaimContext struct {
	Event    events.InboundEvent
	Settings *tenant.Settings
}

// Outcome describes what happened to an event. Only OutcomeDecided carries a
// Decision.
type Outcome struct {
	Kind        OutcomeKind
	Decision    decision.Decision
	Assessment  risk.Assessment
	SourceCount int
	Confidence  decision.Confidence
	Guardrail   guardrail.Result
	DraftID     uuid.UUID

	// DeliveredText is what was sent to the user; Delivered is false when
	// the send failed or nothing was sent.
	DeliveredText string
	Delivered     bool
}
