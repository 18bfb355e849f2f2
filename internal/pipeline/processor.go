// Package pipeline turns one claimed inbound message into exactly one
// outbound action: an automatic reply, a reviewable draft, a clarifying
// question or a handoff.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/guarded-reply/internal/conversation"
	"github.com/wolfman30/guarded-reply/internal/decision"
	"github.com/wolfman30/guarded-reply/internal/drafts"
	"github.com/wolfman30/guarded-reply/internal/events"
	"github.com/wolfman30/guarded-reply/internal/guardrail"
	"github.com/wolfman30/guarded-reply/internal/intake"
	"github.com/wolfman30/guarded-reply/internal/knowledge"
	"github.com/wolfman30/guarded-reply/internal/llm"
	"github.com/wolfman30/guarded-reply/internal/observability/metrics"
	"github.com/wolfman30/guarded-reply/internal/prompt"
	"github.com/wolfman30/guarded-reply/internal/risk"
	"github.com/wolfman30/guarded-reply/internal/tenant"
	"github.com/wolfman30/guarded-reply/internal/usage"
	"github.com/wolfman30/guarded-reply/pkg/logging"
)

var tracer = otel.Tracer("guarded-reply/pipeline")

const DefaultGenerationTimeout = 20 * time.Second

// Claimer acquires, completes and releases inbound events.
type Claimer interface {
	Claim(ctx context.Context, evt events.InboundEvent) (intake.ClaimResult, error)
	Complete(ctx context.Context, evt events.InboundEvent) error
	Release(ctx context.Context, evt events.InboundEvent) error
}

type SettingsReader interface {
	Get(ctx context.Context, tenantID string) (*tenant.Settings, error)
}

// UsageIncrementer consumes one unit of a tenant's quota atomically, at
// most once per event.
type UsageIncrementer interface {
	Increment(ctx context.Context, tenantID, eventID string) (usage.Counter, error)
}

type MessageLog interface {
	Append(ctx context.Context, msg conversation.Message) (bool, error)
	Recent(ctx context.Context, conversationID string, limit int, excludeEventID string) ([]conversation.Message, error)
}

type DraftWriter interface {
	Insert(ctx context.Context, d drafts.Draft) (drafts.Draft, bool, error)
}

type OutboxWriter interface {
	Insert(ctx context.Context, tenantID string, evt events.CanonicalEvent) (uuid.UUID, error)
}

// Deliverer sends text to the user behind an inbound event.
type Deliverer interface {
	Deliver(ctx context.Context, evt events.InboundEvent, text string) error
}

// Dependencies are the collaborators of a Processor. Classifier and Guard
// default to the embedded taxonomy; Outbox is optional.
type Dependencies struct {
	Claimer    Claimer
	Settings   SettingsReader
	Usage      UsageIncrementer
	Classifier *risk.Classifier
	Grounding  knowledge.Searcher
	Generator  llm.ReplyGenerator
	Guard      *guardrail.Guard
	Messages   MessageLog
	Drafts     DraftWriter
	Outbox     OutboxWriter
	Deliverer  Deliverer
}

// Option customizes a Processor.
type Option func(*Processor)

// WithGenerationTimeout bounds each generator call.
func WithGenerationTimeout(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.generationTimeout = d
		}
	}
}

func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

func withClock(now func() time.Time) Option {
	return func(p *Processor) {
		p.now = now
	}
}

// Processor runs the reply pipeline for one event at a time. It holds no
// per-event state and is safe for concurrent use.
type Processor struct {
	deps              Dependencies
	generationTimeout time.Duration
	metrics           *metrics.PipelineMetrics
	logger            *logging.Logger
	events            *EventLogger
	now               func() time.Time
}

func NewProcessor(deps Dependencies, logger *logging.Logger, opts ...Option) *Processor {
	switch {
	case deps.Claimer == nil:
		panic("pipeline: claimer cannot be nil")
	case deps.Settings == nil:
		panic("pipeline: settings reader cannot be nil")
	case deps.Usage == nil:
		panic("pipeline: usage store cannot be nil")
	case deps.Grounding == nil:
		panic("pipeline: grounding searcher cannot be nil")
	case deps.Generator == nil:
		panic("pipeline: reply generator cannot be nil")
	case deps.Messages == nil:
		panic("pipeline: message log cannot be nil")
	case deps.Drafts == nil:
		panic("pipeline: draft store cannot be nil")
	case deps.Deliverer == nil:
		panic("pipeline: deliverer cannot be nil")
	}
	if deps.Classifier == nil {
		deps.Classifier = risk.NewClassifier(nil)
	}
	if deps.Guard == nil {
		deps.Guard = guardrail.New(deps.Classifier.Taxonomy())
	}
	if logger == nil {
		logger = logging.Default()
	}

	p := &Processor{
		deps:              deps,
		generationTimeout: DefaultGenerationTimeout,
		logger:            logger,
		events:            NewEventLogger(logger),
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process implements intake.EventProcessor. Only errors that left the event
// re-claimable are returned.
func (p *Processor) Process(ctx context.Context, evt events.InboundEvent) error {
	outcome, err := p.ProcessOneEvent(ctx, ClaimContext{Event: evt})
	if err != nil {
		if Retryable(err) {
			return err
		}
		p.logger.Error("inbound event dropped", "event_id", evt.EventID, "tenant_id", evt.TenantID, "error", err)
		return nil
	}
	p.logger.Debug("inbound event processed",
		"event_id", evt.EventID,
		"tenant_id", evt.TenantID,
		"outcome", outcome.Kind,
	)
	return nil
}

// run carries per-event values through the stages.
type run struct {
	evt      events.InboundEvent
	settings *tenant.Settings
	ref      eventRef
	span     trace.Span
}

// ProcessOneEvent claims the event and drives it to a terminal outcome.
func (p *Processor) ProcessOneEvent(ctx context.Context, cc ClaimContext) (Outcome, error) {
	evt := cc.Event
	ctx, span := tracer.Start(ctx, "pipeline.process_event")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", evt.TenantID),
		attribute.String("event.id", evt.EventID),
		attribute.String("event.kind", string(evt.Kind)),
	)

	r := &run{
		evt:  evt,
		span: span,
		ref:  eventRef{eventID: evt.EventID, tenantID: evt.TenantID, conversationID: evt.ConversationID},
	}

	claim, err := p.deps.Claimer.Claim(ctx, evt)
	if err != nil {
		p.metrics.ObserveClaim("error")
		if errors.Is(err, intake.ErrInvalidEvent) {
			return Outcome{}, err
		}
		return Outcome{}, fmt.Errorf("%w: claim: %w", ErrPersistenceFailed, err)
	}
	p.metrics.ObserveClaim(claim.Status.String())
	p.events.Claimed(ctx, r.ref, claim.Status.String())
	if !claim.Owned() {
		return Outcome{Kind: OutcomeDuplicate}, nil
	}

	r.settings = cc.Settings
	if r.settings == nil {
		r.settings, err = p.deps.Settings.Get(ctx, evt.TenantID)
		if err != nil {
			return Outcome{}, p.abort(ctx, r, "settings", fmt.Errorf("%w: load settings: %w", ErrPersistenceFailed, err))
		}
	}
	r.settings.Normalize()

	var outcome Outcome
	switch claim.Status {
	case intake.NonMessage:
		outcome = p.handleNonMessage(ctx, r)
	case intake.QuotaExceeded:
		outcome = p.handleQuotaExceeded(ctx, r)
	default:
		outcome, err = p.handleMessage(ctx, r)
		if err != nil {
			return Outcome{}, p.abort(ctx, r, "process", err)
		}
	}

	if err := p.deps.Claimer.Complete(ctx, evt); err != nil {
		p.logger.Error("failed to complete claim", "event_id", evt.EventID, "tenant_id", evt.TenantID, "error", err)
	}
	span.SetAttributes(attribute.String("pipeline.outcome", string(outcome.Kind)))
	return outcome, nil
}

func (p *Processor) handleNonMessage(ctx context.Context, r *run) Outcome {
	if r.evt.Kind != events.KindFollow || !r.settings.WelcomeEnabled() {
		return Outcome{Kind: OutcomeIgnored}
	}
	text, ok := p.deliver(ctx, r, "welcome", r.settings.WelcomeMessage)
	return Outcome{Kind: OutcomeWelcome, DeliveredText: text, Delivered: ok}
}

// handleQuotaExceeded sends the fixed notice. The user message is not
// persisted and nothing is classified or generated.
func (p *Processor) handleQuotaExceeded(ctx context.Context, r *run) Outcome {
	text, ok := p.deliver(ctx, r, "notice", QuotaNotice)
	return Outcome{Kind: OutcomeQuotaExceeded, DeliveredText: text, Delivered: ok}
}

func (p *Processor) handleMessage(ctx context.Context, r *run) (Outcome, error) {
	start := time.Now()
	assessment := p.deps.Classifier.Classify(r.evt.Text)
	p.metrics.ObserveStage("classify", time.Since(start).Seconds())
	p.events.RiskAssessed(ctx, r.ref, assessment.Tier.String(), assessment.MatchedTerms, assessment.IsStructuredRefund)
	r.span.SetAttributes(attribute.String("risk.tier", assessment.Tier.String()))

	if d, short := decision.RoutePreGeneration(assessment); short {
		return p.shortCircuit(ctx, r, assessment, d)
	}
	return p.generateAndRoute(ctx, r, assessment)
}

// shortCircuit handles high-risk messages without calling the generator:
// the user message and a draft are persisted, then a fixed acknowledgement
// is delivered.
func (p *Processor) shortCircuit(ctx context.Context, r *run, a risk.Assessment, d decision.Decision) (Outcome, error) {
	var ack, suggested string
	switch d {
	case decision.SuggestDraft:
		ack = RefundAck
		suggested = refundConfirmationDraft(strings.ToUpper(a.OrderNumber))
	case decision.AskClarification:
		ack = OrderNumberRequest
		suggested = OrderNumberRequest
	default:
		ack = HandoffAck
		suggested = HandoffAck
	}

	if err := p.appendUserMessage(ctx, r, a); err != nil {
		return Outcome{}, err
	}
	draft, err := p.insertDraft(ctx, r, drafts.Draft{
		Decision:       d.String(),
		SuggestedReply: suggested,
		RiskTier:       a.Tier.String(),
		Category:       a.PrimaryCategory(),
		MatchedTerms:   a.MatchedTerms,
	})
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{
		Kind:       OutcomeDecided,
		Decision:   d,
		Assessment: a,
		DraftID:    draft.ID,
	}
	out.DeliveredText, out.Delivered = p.deliver(ctx, r, "ack", ack)
	p.recordDecision(ctx, r, out, draft)
	return out, nil
}

func (p *Processor) generateAndRoute(ctx context.Context, r *run, a risk.Assessment) (Outcome, error) {
	s := r.settings

	grounding := p.ground(ctx, r)
	sources := grounding.SourceCount()
	systemPrompt := prompt.Compose(s.BasePrompt, grounding, a)
	history := p.history(ctx, r)

	if _, err := p.deps.Usage.Increment(ctx, r.evt.TenantID, r.evt.EventID); err != nil {
		if errors.Is(err, usage.ErrQuotaExceeded) {
			return p.handleQuotaExceeded(ctx, r), nil
		}
		return Outcome{}, fmt.Errorf("%w: increment usage: %w", ErrPersistenceFailed, err)
	}

	raw, err := p.generate(ctx, r, llm.GenerateRequest{
		UserMessage:    r.evt.Text,
		SystemPrompt:   systemPrompt,
		Model:          s.Model,
		TenantID:       r.evt.TenantID,
		ConversationID: r.evt.ConversationID,
		History:        history,
		MaxLength:      s.MaxReplyLength,
	})
	if err != nil {
		return Outcome{}, err
	}

	guarded := p.deps.Guard.Apply(raw, s.MaxReplyLength)
	if guarded.Triggered {
		p.metrics.ObserveGuardrail(string(guarded.Reason))
		p.events.GuardrailTriggered(ctx, r.ref, string(guarded.Reason))
	}
	confidence := decision.Score(sources, guarded.Triggered)
	d := decision.RoutePostGeneration(sources, confidence.Value, s.ConfidenceThreshold)

	out := Outcome{
		Kind:        OutcomeDecided,
		Decision:    d,
		Assessment:  a,
		SourceCount: sources,
		Confidence:  confidence,
		Guardrail:   guarded,
	}

	if err := p.appendUserMessage(ctx, r, a); err != nil {
		return Outcome{}, err
	}

	var draft drafts.Draft
	if d == decision.AutoReply {
		conf := confidence.Value
		_, err := p.deps.Messages.Append(ctx, conversation.Message{
			TenantID:       r.evt.TenantID,
			ConversationID: r.evt.ConversationID,
			EventID:        r.evt.EventID,
			Role:           conversation.RoleAssistant,
			Text:           guarded.FinalText,
			ResolvedBy:     conversation.ResolvedByAI,
			IsResolved:     true,
			Confidence:     &conf,
			RiskTier:       a.Tier.String(),
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("%w: append assistant message: %w", ErrPersistenceFailed, err)
		}
		out.DeliveredText, out.Delivered = p.deliver(ctx, r, "reply", guarded.FinalText)
	} else {
		draft, err = p.insertDraft(ctx, r, drafts.Draft{
			Decision:        d.String(),
			SuggestedReply:  guarded.FinalText,
			SourceCount:     sources,
			Confidence:      confidence.Value,
			RiskTier:        a.Tier.String(),
			Category:        a.PrimaryCategory(),
			MatchedTerms:    a.MatchedTerms,
			GuardrailReason: string(guarded.Reason),
		})
		if err != nil {
			return Outcome{}, err
		}
		out.DraftID = draft.ID
		out.DeliveredText, out.Delivered = p.deliver(ctx, r, "notice", LowConfidenceNotice)
	}

	p.recordDecision(ctx, r, out, draft)
	return out, nil
}

// ground treats a failing search as no grounding.
func (p *Processor) ground(ctx context.Context, r *run) knowledge.Result {
	ctx, span := tracer.Start(ctx, "pipeline.ground")
	defer span.End()

	start := time.Now()
	res, err := p.deps.Grounding.Search(ctx, r.evt.TenantID, r.evt.Text, r.settings.GroundingMaxSnippets, r.settings.GroundingMaxChars)
	elapsed := time.Since(start)
	p.metrics.ObserveStage("ground", elapsed.Seconds())
	if err != nil {
		span.RecordError(err)
		p.logger.Warn("grounding failed; continuing without sources",
			"event_id", r.evt.EventID,
			"tenant_id", r.evt.TenantID,
			"error", err,
		)
		return knowledge.Result{}
	}
	span.SetAttributes(attribute.Int("grounding.sources", res.SourceCount()))
	p.events.GroundingFetched(ctx, r.ref, len(res.Snippets), res.SourceCount(), elapsed.Milliseconds())
	return res
}

// history returns the most recent turns, oldest first. A failed read
// degrades to no history.
func (p *Processor) history(ctx context.Context, r *run) []llm.Turn {
	if r.settings.MemoryWindow <= 0 {
		return nil
	}
	msgs, err := p.deps.Messages.Recent(ctx, r.evt.ConversationID, r.settings.MemoryWindow, r.evt.EventID)
	if err != nil {
		p.logger.Warn("failed to load conversation history",
			"conversation_id", r.evt.ConversationID,
			"error", err,
		)
		return nil
	}
	turns := make([]llm.Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, llm.Turn{Role: m.Role, Text: m.Text})
	}
	return turns
}

func (p *Processor) generate(ctx context.Context, r *run, req llm.GenerateRequest) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, p.generationTimeout)
	defer cancel()
	genCtx, span := tracer.Start(genCtx, "pipeline.generate")
	defer span.End()

	start := time.Now()
	text, err := p.deps.Generator.Generate(genCtx, req)
	elapsed := time.Since(start)
	p.metrics.ObserveStage("generate", elapsed.Seconds())
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("%w: generate: %w", ErrProviderUnavailable, err)
	}
	p.events.ReplyGenerated(ctx, r.ref, elapsed.Milliseconds(), utf8.RuneCountInString(text))
	return text, nil
}

func (p *Processor) appendUserMessage(ctx context.Context, r *run, a risk.Assessment) error {
	_, err := p.deps.Messages.Append(ctx, conversation.Message{
		TenantID:       r.evt.TenantID,
		ConversationID: r.evt.ConversationID,
		EventID:        r.evt.EventID,
		Role:           conversation.RoleUser,
		Text:           r.evt.Text,
		RiskTier:       a.Tier.String(),
		RiskTerms:      a.MatchedTerms,
	})
	if err != nil {
		return fmt.Errorf("%w: append user message: %w", ErrPersistenceFailed, err)
	}
	return nil
}

func (p *Processor) insertDraft(ctx context.Context, r *run, d drafts.Draft) (drafts.Draft, error) {
	d.TenantID = r.evt.TenantID
	d.ConversationID = r.evt.ConversationID
	d.EventID = r.evt.EventID
	d.UserMessage = r.evt.Text
	d.SuggestedReply = guardrail.Truncate(d.SuggestedReply, r.settings.MaxReplyLength)

	saved, created, err := p.deps.Drafts.Insert(ctx, d)
	if err != nil {
		return drafts.Draft{}, fmt.Errorf("%w: insert draft: %w", ErrPersistenceFailed, err)
	}
	if !created {
		p.logger.Info("draft already existed for event", "event_id", r.evt.EventID, "draft_id", saved.ID)
	}
	return saved, nil
}

// deliver truncates text to the tenant maximum and sends it. Failures are
// logged and never undo earlier writes.
func (p *Processor) deliver(ctx context.Context, r *run, kind, text string) (string, bool) {
	text = guardrail.Truncate(text, r.settings.MaxReplyLength)
	if err := p.deps.Deliverer.Deliver(ctx, r.evt, text); err != nil {
		err = fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
		p.metrics.ObserveDelivery(kind, false)
		p.events.DeliveryFailed(ctx, r.ref, kind, err)
		return text, false
	}
	p.metrics.ObserveDelivery(kind, true)
	return text, true
}

// recordDecision logs the decision and writes outbox entries. Outbox
// failures are logged; the decision stands.
func (p *Processor) recordDecision(ctx context.Context, r *run, out Outcome, draft drafts.Draft) {
	tier := out.Assessment.Tier.String()
	p.metrics.ObserveDecision(out.Decision.String(), tier)
	p.events.DecisionMade(ctx, r.ref, out.Decision.String(), out.Confidence.Value, out.SourceCount)
	r.span.SetAttributes(attribute.String("pipeline.decision", out.Decision.String()))

	if p.deps.Outbox == nil {
		return
	}
	recorded := events.DecisionRecordedV1{
		EventID:         r.evt.EventID,
		TenantID:        r.evt.TenantID,
		ConversationID:  r.evt.ConversationID,
		Decision:        out.Decision.String(),
		RiskTier:        tier,
		Confidence:      out.Confidence.Value,
		GuardrailReason: string(out.Guardrail.Reason),
		RecordedAt:      p.now().UTC(),
	}
	if _, err := p.deps.Outbox.Insert(ctx, r.evt.TenantID, recorded); err != nil {
		p.logger.Warn("failed to record decision in outbox", "event_id", r.evt.EventID, "error", err)
	}

	if draft.ID == uuid.Nil {
		return
	}
	created := events.DraftCreatedV1{
		DraftID:        draft.ID.String(),
		EventID:        r.evt.EventID,
		TenantID:       r.evt.TenantID,
		ConversationID: r.evt.ConversationID,
		Decision:       out.Decision.String(),
		Category:       draft.Category,
		UserMessage:    r.evt.Text,
		SuggestedReply: draft.SuggestedReply,
		ExpiresAt:      draft.ExpiresAt,
	}
	if _, err := p.deps.Outbox.Insert(ctx, r.evt.TenantID, created); err != nil {
		p.logger.Warn("failed to record draft in outbox", "event_id", r.evt.EventID, "error", err)
	}
}

// abort releases the claim so the event can be presented again.
func (p *Processor) abort(ctx context.Context, r *run, step string, err error) error {
	r.span.RecordError(err)
	p.events.Aborted(ctx, r.ref, step, err)
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if relErr := p.deps.Claimer.Release(releaseCtx, r.evt); relErr != nil {
		p.logger.Error("failed to release claim", "event_id", r.evt.EventID, "error", relErr)
	}
	return err
}
