package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/guarded-reply/internal/conversation"
	"github.com/wolfman30/guarded-reply/internal/drafts"
	"github.com/wolfman30/guarded-reply/internal/events"
	"github.com/wolfman30/guarded-reply/internal/intake"
	"github.com/wolfman30/guarded-reply/internal/knowledge"
	"github.com/wolfman30/guarded-reply/internal/llm"
	"github.com/wolfman30/guarded-reply/internal/tenant"
	"github.com/wolfman30/guarded-reply/internal/usage"
)

// fakeUsage serves both the claim-time read and the pre-generation increment.
type fakeUsage struct {
	mu         sync.Mutex
	consumed   int
	limit      int
	increments int
	err        error

	exhaustOnIncrement bool
	charged            map[string]bool
}

func (f *fakeUsage) Check(_ context.Context, tenantID string) (usage.Counter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return usage.Counter{}, f.err
	}
	return usage.Counter{TenantID: tenantID, Consumed: f.consumed, Limit: f.limit}, nil
}

func (f *fakeUsage) Increment(_ context.Context, tenantID, eventID string) (usage.Counter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := usage.Counter{TenantID: tenantID, Consumed: f.consumed, Limit: f.limit}
	if f.charged[eventID] {
		return c, nil
	}
	if c.Exceeded() || f.exhaustOnIncrement {
		return c, usage.ErrQuotaExceeded
	}
	if f.charged == nil {
		f.charged = map[string]bool{}
	}
	f.charged[eventID] = true
	f.consumed++
	f.increments++
	c.Consumed = f.consumed
	return c, nil
}

func (f *fakeUsage) Charged(_ context.Context, _ string, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.charged[eventID], nil
}

type fakeSettings struct {
	settings *tenant.Settings
	err      error
}

func (f *fakeSettings) Get(_ context.Context, tenantID string) (*tenant.Settings, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.settings == nil {
		return tenant.DefaultSettings(tenantID), nil
	}
	copied := *f.settings
	return &copied, nil
}

type fakeGrounding struct {
	result knowledge.Result
	err    error
	calls  int
}

func (f *fakeGrounding) Search(context.Context, string, string, int, int) (knowledge.Result, error) {
	f.calls++
	return f.result, f.err
}

func groundingWith(sourceIDs ...string) knowledge.Result {
	res := knowledge.Result{HasAnySource: len(sourceIDs) > 0}
	for i, id := range sourceIDs {
		res.Snippets = append(res.Snippets, knowledge.Snippet{
			SourceID: id,
			Title:    "營業資訊",
			Text:     "門市營業時間為每日上午十點至晚上九點。",
			Score:    0.9 - float64(i)*0.1,
		})
	}
	return res
}

// scriptedGenerator returns its reply and counts calls.
type scriptedGenerator struct {
	mu       sync.Mutex
	reply    string
	err      error
	block    bool
	calls    int
	requests []llm.GenerateRequest
}

func (g *scriptedGenerator) Generate(ctx context.Context, req llm.GenerateRequest) (string, error) {
	g.mu.Lock()
	g.calls++
	g.requests = append(g.requests, req)
	block, reply, err := g.block, g.reply, g.err
	g.mu.Unlock()
	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return reply, err
}

func (g *scriptedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// memMessages is idempotent on (event_id, role) like the SQL store.
type memMessages struct {
	mu        sync.Mutex
	messages  []conversation.Message
	appendErr error
}

func (m *memMessages) Append(_ context.Context, msg conversation.Message) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return false, m.appendErr
	}
	for _, existing := range m.messages {
		if existing.EventID == msg.EventID && existing.Role == msg.Role {
			return false, nil
		}
	}
	msg.ID = uuid.New()
	msg.CreatedAt = time.Now()
	m.messages = append(m.messages, msg)
	return true, nil
}

func (m *memMessages) Recent(_ context.Context, conversationID string, limit int, excludeEventID string) ([]conversation.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []conversation.Message
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID && msg.EventID != excludeEventID {
			out = append(out, msg)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memMessages) byRole(role string) []conversation.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []conversation.Message
	for _, msg := range m.messages {
		if msg.Role == role {
			out = append(out, msg)
		}
	}
	return out
}

type memDrafts struct {
	mu     sync.Mutex
	drafts map[string]drafts.Draft
	err    error
}

func (m *memDrafts) Insert(_ context.Context, d drafts.Draft) (drafts.Draft, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return drafts.Draft{}, false, m.err
	}
	if m.drafts == nil {
		m.drafts = map[string]drafts.Draft{}
	}
	if existing, ok := m.drafts[d.EventID]; ok {
		return existing, false, nil
	}
	d.ID = uuid.New()
	d.Status = drafts.StatusDraft
	d.ExpiresAt = time.Now().Add(drafts.DefaultReviewWindow)
	m.drafts[d.EventID] = d
	return d, true, nil
}

func (m *memDrafts) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.drafts)
}

type memOutbox struct {
	mu      sync.Mutex
	entries []events.CanonicalEvent
	err     error
}

func (m *memOutbox) Insert(_ context.Context, _ string, evt events.CanonicalEvent) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return uuid.Nil, m.err
	}
	m.entries = append(m.entries, evt)
	return uuid.New(), nil
}

func (m *memOutbox) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.EventType())
	}
	return out
}

type recordingDeliverer struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (d *recordingDeliverer) Deliver(_ context.Context, _ events.InboundEvent, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.texts = append(d.texts, text)
	return d.err
}

func (d *recordingDeliverer) sent() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.texts...)
}

type harness struct {
	processor *Processor
	usage     *fakeUsage
	settings  *fakeSettings
	grounding *fakeGrounding
	generator *scriptedGenerator
	messages  *memMessages
	drafts    *memDrafts
	outbox    *memOutbox
	deliverer *recordingDeliverer
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	h := &harness{
		usage:     &fakeUsage{limit: usage.Unlimited},
		settings:  &fakeSettings{},
		grounding: &fakeGrounding{},
		generator: &scriptedGenerator{reply: "我們的門市營業時間是每天上午十點到晚上九點，歡迎光臨。"},
		messages:  &memMessages{},
		drafts:    &memDrafts{},
		outbox:    &memOutbox{},
		deliverer: &recordingDeliverer{},
	}
	claimer := intake.NewClaimer(events.NewRedisClaimLedger(client, time.Minute), h.usage, nil)
	h.processor = NewProcessor(Dependencies{
		Claimer:   claimer,
		Settings:  h.settings,
		Usage:     h.usage,
		Grounding: h.grounding,
		Generator: h.generator,
		Messages:  h.messages,
		Drafts:    h.drafts,
		Outbox:    h.outbox,
		Deliverer: h.deliverer,
	}, nil, opts...)
	return h
}

func textEvent(text string) events.InboundEvent {
	return events.InboundEvent{
		EventID:        "evt-" + uuid.NewString(),
		TenantID:       "tenant-1",
		Channel:        "line",
		ChannelUserID:  "U1",
		ConversationID: "line:tenant-1:U1",
		Kind:           events.KindText,
		Text:           text,
		ReceivedAt:     time.Now(),
	}
}

var errBoom = errors.New("boom")
