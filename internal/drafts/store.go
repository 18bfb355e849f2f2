// Package drafts persists suggestion drafts awaiting human review.
package drafts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Status is the review state of a draft.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// DefaultReviewWindow is how long a draft waits for review before expiring.
const DefaultReviewWindow = 24 * time.Hour

// Draft is a human-reviewable candidate reply.
type Draft struct {
	ID              uuid.UUID
	TenantID        string
	ConversationID  string
	EventID         string
	Decision        string
	UserMessage     string
	SuggestedReply  string
	SourceCount     int
	Confidence      float64
	RiskTier        string
	Category        string
	MatchedTerms    []string
	GuardrailReason string
	Status          Status
	ExpiresAt       time.Time
	CreatedAt       time.Time
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore writes drafts to suggestion_drafts. There is at most one draft per
// inbound event.
type PGStore struct {
	pool   rowQuerier
	window time.Duration
	now    func() time.Time
}

func NewPGStore(pool *pgxpool.Pool, reviewWindow time.Duration) *PGStore {
	if pool == nil {
		panic("drafts: pgx pool required")
	}
	return newPGStoreWithExec(pool, reviewWindow)
}

func newPGStoreWithExec(exec rowQuerier, reviewWindow time.Duration) *PGStore {
	if exec == nil {
		panic("drafts: exec required")
	}
	if reviewWindow <= 0 {
		reviewWindow = DefaultReviewWindow
	}
	return &PGStore{pool: exec, window: reviewWindow, now: time.Now}
}

// Insert stores d with status draft and an expiry one review window out. When
// a draft already exists for the event, the existing id is returned with
// created=false.
func (s *PGStore) Insert(ctx context.Context, d Draft) (Draft, bool, error) {
	if d.EventID == "" || d.TenantID == "" {
		return Draft{}, false, errors.New("drafts: tenant id and event id required")
	}
	now := s.now().UTC()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.Status = StatusDraft
	d.CreatedAt = now
	d.ExpiresAt = now.Add(s.window)
	if d.MatchedTerms == nil {
		d.MatchedTerms = []string{}
	}

	query := `
		INSERT INTO suggestion_drafts (
			id, tenant_id, conversation_id, event_id, decision, user_message, suggested_reply,
			source_count, confidence, risk_tier, category, matched_terms, guardrail_reason,
			status, expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (event_id) DO NOTHING
		RETURNING id
	`
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, query,
		d.ID, d.TenantID, d.ConversationID, d.EventID, d.Decision, d.UserMessage, d.SuggestedReply,
		d.SourceCount, d.Confidence, d.RiskTier, d.Category, d.MatchedTerms, d.GuardrailReason,
		string(d.Status), d.ExpiresAt, d.CreatedAt,
	).Scan(&id)
	if err == nil {
		d.ID = id
		return d, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Draft{}, false, fmt.Errorf("drafts: insert: %w", err)
	}

	existing := `SELECT id FROM suggestion_drafts WHERE event_id = $1`
	if err := s.pool.QueryRow(ctx, existing, d.EventID).Scan(&id); err != nil {
		return Draft{}, false, fmt.Errorf("drafts: load existing: %w", err)
	}
	d.ID = id
	return d, false, nil
}

// ExpireStale marks drafts past their review window as expired.
func (s *PGStore) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE suggestion_drafts
		SET status = 'expired', updated_at = now()
		WHERE status = 'draft' AND expires_at <= $1
	`
	ct, err := s.pool.Exec(ctx, query, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("drafts: expire stale: %w", err)
	}
	return ct.RowsAffected(), nil
}
