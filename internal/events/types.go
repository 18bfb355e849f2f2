package events

import "time"

// CanonicalEvent is a versioned domain event written to the outbox.
type CanonicalEvent interface {
	EventType() string
}

const (
	EventTypeDecisionRecorded = "pipeline.decision.recorded.v1"
	EventTypeDraftCreated     = "pipeline.draft.created.v1"
)

// DecisionRecordedV1 is emitted after every terminal decision. Consumers use
// it to invalidate tenant analytics caches.
type DecisionRecordedV1 struct {
	EventID         string    `json:"event_id"`
	TenantID        string    `json:"tenant_id"`
	ConversationID  string    `json:"conversation_id"`
	Decision        string    `json:"decision"`
	RiskTier        string    `json:"risk_tier"`
	Confidence      float64   `json:"confidence"`
	GuardrailReason string    `json:"guardrail_reason,omitempty"`
	RecordedAt      time.Time `json:"recorded_at"`
}

func (DecisionRecordedV1) EventType() string { return EventTypeDecisionRecorded }

// DraftCreatedV1 is emitted when a suggestion draft awaits human review.
type DraftCreatedV1 struct {
	DraftID        string    `json:"draft_id"`
	EventID        string    `json:"event_id"`
	TenantID       string    `json:"tenant_id"`
	ConversationID string    `json:"conversation_id"`
	Decision       string    `json:"decision"`
	Category       string    `json:"category"`
	UserMessage    string    `json:"user_message"`
	SuggestedReply string    `json:"suggested_reply"`
	ExpiresAt      time.Time `json:"expires_at"`
}

func (DraftCreatedV1) EventType() string { return EventTypeDraftCreated }
