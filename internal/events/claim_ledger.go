package events

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultClaimLease is how long a claim holds before another worker may take
// it over. It must exceed the worst-case processing time of one event.
const DefaultClaimLease = 5 * time.Minute

// ClaimLedger is the dedup ledger. Claim is the only synchronization point
// between concurrent workers for the same event.
type ClaimLedger interface {
	// Claim returns true when the caller now owns the event.
	Claim(ctx context.Context, tenantID, eventID string) (bool, error)
	// Complete marks the event permanently processed.
	Complete(ctx context.Context, tenantID, eventID string) error
	// Release drops an unfinished claim so redelivery is processed.
	Release(ctx context.Context, tenantID, eventID string) error
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGClaimLedger stores claims in the processed_events table.
type PGClaimLedger struct {
	pool  rowQuerier
	lease time.Duration
}

func NewPGClaimLedger(pool *pgxpool.Pool, lease time.Duration) *PGClaimLedger {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return newPGClaimLedgerWithExec(pool, lease)
}

func newPGClaimLedgerWithExec(exec rowQuerier, lease time.Duration) *PGClaimLedger {
	if exec == nil {
		panic("events: exec required")
	}
	if lease <= 0 {
		lease = DefaultClaimLease
	}
	return &PGClaimLedger{pool: exec, lease: lease}
}

// Claim inserts the event, or takes over a claim whose lease expired.
// Completed events are never re-claimed.
func (l *PGClaimLedger) Claim(ctx context.Context, tenantID, eventID string) (bool, error) {
	query := `
		INSERT INTO processed_events (tenant_id, event_id, status, claimed_at)
		VALUES ($1, $2, 'claimed', now())
		ON CONFLICT (tenant_id, event_id) DO UPDATE
		SET claimed_at = now()
		WHERE processed_events.status = 'claimed'
		  AND processed_events.claimed_at < now() - make_interval(secs => $3)
	`
	ct, err := l.pool.Exec(ctx, query, tenantID, eventID, l.lease.Seconds())
	if err != nil {
		return false, fmt.Errorf("events: claim %s: %w", eventID, err)
	}
	return ct.RowsAffected() > 0, nil
}

func (l *PGClaimLedger) Complete(ctx context.Context, tenantID, eventID string) error {
	query := `
		UPDATE processed_events
		SET status = 'completed', completed_at = now()
		WHERE tenant_id = $1 AND event_id = $2
	`
	if _, err := l.pool.Exec(ctx, query, tenantID, eventID); err != nil {
		return fmt.Errorf("events: complete %s: %w", eventID, err)
	}
	return nil
}

func (l *PGClaimLedger) Release(ctx context.Context, tenantID, eventID string) error {
	query := `DELETE FROM processed_events WHERE tenant_id = $1 AND event_id = $2 AND status = 'claimed'`
	if _, err := l.pool.Exec(ctx, query, tenantID, eventID); err != nil {
		return fmt.Errorf("events: release %s: %w", eventID, err)
	}
	return nil
}
