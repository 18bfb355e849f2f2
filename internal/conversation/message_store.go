package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	ResolvedByAI    = "ai"
	ResolvedByHuman = "human"
)

// Message is one entry of the append-only conversation log.
type Message struct {
	ID             uuid.UUID
	TenantID       string
	ConversationID string
	EventID        string
	Role           string
	Text           string
	ResolvedBy     string
	IsResolved     bool
	Confidence     *float64
	RiskTier       string
	RiskTerms      []string
	CreatedAt      time.Time
}

// MessageStore persists conversation messages to PostgreSQL.
type MessageStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewMessageStore creates a store over a lib/pq database handle.
func NewMessageStore(db *sql.DB) *MessageStore {
	if db == nil {
		panic("conversation: db required")
	}
	return &MessageStore{db: db, now: time.Now}
}

// Append inserts msg. A second append for the same (event_id, role) is a
// no-op and returns false, so re-presented events never duplicate a turn.
func (s *MessageStore) Append(ctx context.Context, msg Message) (bool, error) {
	if msg.ConversationID == "" || msg.EventID == "" {
		return false, fmt.Errorf("conversation: conversation id and event id required")
	}
	if msg.Role != RoleUser && msg.Role != RoleAssistant {
		return false, fmt.Errorf("conversation: invalid role %q", msg.Role)
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now().UTC()
	}

	var confidence sql.NullFloat64
	if msg.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *msg.Confidence, Valid: true}
	}
	var resolvedBy sql.NullString
	if msg.ResolvedBy != "" {
		resolvedBy = sql.NullString{String: msg.ResolvedBy, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_messages (
			id, tenant_id, conversation_id, event_id, role, content,
			resolved_by, is_resolved, confidence, risk_tier, risk_terms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (event_id, role) DO NOTHING
	`, msg.ID, msg.TenantID, msg.ConversationID, msg.EventID, msg.Role, msg.Text,
		resolvedBy, msg.IsResolved, confidence, msg.RiskTier, pq.Array(msg.RiskTerms), msg.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("conversation: append message: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("conversation: append message: %w", err)
	}
	return n > 0, nil
}

// Recent returns up to limit latest messages of a conversation, oldest first.
// Messages of excludeEventID are skipped so the current turn is not echoed
// back as history.
func (s *MessageStore) Recent(ctx context.Context, conversationID string, limit int, excludeEventID string) ([]Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, conversation_id, event_id, role, content, created_at
		FROM conversation_messages
		WHERE conversation_id = $1 AND event_id <> $2
		ORDER BY created_at DESC
		LIMIT $3
	`, conversationID, excludeEventID, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: load recent: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.TenantID, &m.ConversationID, &m.EventID, &m.Role, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: iterate messages: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
