package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wolfman30/guarded-reply/pkg/logging"
)

// PipelineEvent is one structured decision-point record.
type PipelineEvent struct {
	Time           string         `json:"time"`
	Event          string         `json:"event"`
	EventID        string         `json:"event_id"`
	TenantID       string         `json:"tenant_id"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
}

// EventLogger emits one JSON line per decision point so a single event can
// be followed with grep:
//
//	grep '"event_id":"01HEVT"' /var/log/app.log
//	grep '"event":"guardrail_triggered"' /var/log/app.log
type EventLogger struct {
	logger *logging.Logger
}

func NewEventLogger(logger *logging.Logger) *EventLogger {
	return &EventLogger{logger: logger}
}

func (e *EventLogger) Log(_ context.Context, event string, ref eventRef, data map[string]any) {
	if e == nil || e.logger == nil {
		return
	}
	b, _ := json.Marshal(PipelineEvent{
		Time:           time.Now().UTC().Format(time.RFC3339Nano),
		Event:          event,
		EventID:        ref.eventID,
		TenantID:       ref.tenantID,
		ConversationID: ref.conversationID,
		Data:           data,
	})
	e.logger.Info(string(b))
}

type eventRef struct {
	eventID        string
	tenantID       string
	conversationID string
}

func (e *EventLogger) Claimed(ctx context.Context, ref eventRef, status string) {
	e.Log(ctx, "event_claimed", ref, map[string]any{"status": status})
}

func (e *EventLogger) RiskAssessed(ctx context.Context, ref eventRef, tier string, terms []string, structuredRefund bool) {
	e.Log(ctx, "risk_assessed", ref, map[string]any{
		"tier":              tier,
		"terms":             terms,
		"structured_refund": structuredRefund,
	})
}

func (e *EventLogger) GroundingFetched(ctx context.Context, ref eventRef, snippets, sources int, durationMs int64) {
	e.Log(ctx, "grounding_fetched", ref, map[string]any{
		"snippets":    snippets,
		"sources":     sources,
		"duration_ms": durationMs,
	})
}

func (e *EventLogger) ReplyGenerated(ctx context.Context, ref eventRef, durationMs int64, runes int) {
	e.Log(ctx, "reply_generated", ref, map[string]any{
		"duration_ms": durationMs,
		"runes":       runes,
	})
}

func (e *EventLogger) GuardrailTriggered(ctx context.Context, ref eventRef, reason string) {
	e.Log(ctx, "guardrail_triggered", ref, map[string]any{"reason": reason})
}

func (e *EventLogger) DecisionMade(ctx context.Context, ref eventRef, decision string, confidence float64, sources int) {
	e.Log(ctx, "decision_made", ref, map[string]any{
		"decision":   decision,
		"confidence": confidence,
		"sources":    sources,
	})
}

func (e *EventLogger) DeliveryFailed(ctx context.Context, ref eventRef, kind string, err error) {
	e.Log(ctx, "delivery_failed", ref, map[string]any{
		"kind":  kind,
		"error": err.Error(),
	})
}

func (e *EventLogger) Aborted(ctx context.Context, ref eventRef, step string, err error) {
	e.Log(ctx, "event_aborted", ref, map[string]any{
		"step":  step,
		"error": err.Error(),
	})
}
