// Package usage tracks per-tenant monthly reply quotas in Postgres.
package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Unlimited marks a counter with no cap.
const Unlimited = -1

// Counter is a tenant's usage for one billing period.
type Counter struct {
	TenantID    string
	PeriodStart time.Time
	Consumed    int
	Limit       int
}

// Exceeded reports whether no further generation is allowed this period.
func (c Counter) Exceeded() bool {
	return c.Limit != Unlimited && c.Consumed >= c.Limit
}

// Remaining is the number of generations left, or -1 when unlimited.
func (c Counter) Remaining() int {
	if c.Limit == Unlimited {
		return Unlimited
	}
	if c.Consumed >= c.Limit {
		return 0
	}
	return c.Limit - c.Consumed
}

// ErrQuotaExceeded is returned by Increment when the counter is at its limit.
var ErrQuotaExceeded = errors.New("usage: quota exceeded")

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txBeginner interface {
	rowQuerier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PGStore keeps counters in usage_counters. Increment charges at most once
// per (tenant, event) through usage_charges and never pushes consumed past
// limit, even with concurrent workers.
type PGStore struct {
	pool         txBeginner
	defaultLimit int
	now          func() time.Time
}

func NewPGStore(pool *pgxpool.Pool, defaultLimit int) *PGStore {
	if pool == nil {
		panic("usage: pgx pool required")
	}
	return newPGStoreWithExec(pool, defaultLimit)
}

func newPGStoreWithExec(exec txBeginner, defaultLimit int) *PGStore {
	if exec == nil {
		panic("usage: exec required")
	}
	if defaultLimit == 0 || defaultLimit < Unlimited {
		defaultLimit = Unlimited
	}
	return &PGStore{pool: exec, defaultLimit: defaultLimit, now: time.Now}
}

// Check reads the current period's counter without modifying it.
func (s *PGStore) Check(ctx context.Context, tenantID string) (Counter, error) {
	return s.readCounter(ctx, s.pool, tenantID, PeriodStart(s.now()))
}

func (s *PGStore) readCounter(ctx context.Context, q rowQuerier, tenantID string, period time.Time) (Counter, error) {
	c := Counter{TenantID: tenantID, PeriodStart: period, Limit: s.defaultLimit}

	query := `
		SELECT consumed, limit_count
		FROM usage_counters
		WHERE tenant_id = $1 AND period_start = $2
	`
	err := q.QueryRow(ctx, query, tenantID, period).Scan(&c.Consumed, &c.Limit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c, nil
		}
		return Counter{}, fmt.Errorf("usage: read counter: %w", err)
	}
	return c, nil
}

// Increment consumes one unit on behalf of eventID. A repeated call for an
// event that was already charged returns the current counter without
// consuming again. At the limit it returns ErrQuotaExceeded with the
// unchanged counter and records no charge.
func (s *PGStore) Increment(ctx context.Context, tenantID, eventID string) (Counter, error) {
	if eventID == "" {
		return Counter{}, errors.New("usage: event id required")
	}
	period := PeriodStart(s.now())
	c := Counter{TenantID: tenantID, PeriodStart: period}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Counter{}, fmt.Errorf("usage: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	ensure := `
		INSERT INTO usage_counters (tenant_id, period_start, consumed, limit_count)
		VALUES ($1, $2, 0, $3)
		ON CONFLICT (tenant_id, period_start) DO NOTHING
	`
	if _, err := tx.Exec(ctx, ensure, tenantID, period, s.defaultLimit); err != nil {
		return Counter{}, fmt.Errorf("usage: ensure counter: %w", err)
	}

	charge := `
		INSERT INTO usage_charges (tenant_id, event_id, period_start)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, event_id) DO NOTHING
	`
	tag, err := tx.Exec(ctx, charge, tenantID, eventID, period)
	if err != nil {
		return Counter{}, fmt.Errorf("usage: record charge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		current, err := s.readCounter(ctx, tx, tenantID, period)
		if err != nil {
			return Counter{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return Counter{}, fmt.Errorf("usage: commit: %w", err)
		}
		return current, nil
	}

	update := `
		UPDATE usage_counters
		SET consumed = consumed + 1, updated_at = now()
		WHERE tenant_id = $1 AND period_start = $2
		  AND (limit_count < 0 OR consumed < limit_count)
		RETURNING consumed, limit_count
	`
	err = tx.QueryRow(ctx, update, tenantID, period).Scan(&c.Consumed, &c.Limit)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return Counter{}, fmt.Errorf("usage: increment counter: %w", err)
		}
		current, err := s.readCounter(ctx, tx, tenantID, period)
		if err != nil {
			return Counter{}, err
		}
		return current, ErrQuotaExceeded
	}
	if err := tx.Commit(ctx); err != nil {
		return Counter{}, fmt.Errorf("usage: commit: %w", err)
	}
	return c, nil
}

// Charged reports whether eventID already consumed a unit.
func (s *PGStore) Charged(ctx context.Context, tenantID, eventID string) (bool, error) {
	var charged bool
	query := `SELECT EXISTS (SELECT 1 FROM usage_charges WHERE tenant_id = $1 AND event_id = $2)`
	if err := s.pool.QueryRow(ctx, query, tenantID, eventID).Scan(&charged); err != nil {
		return false, fmt.Errorf("usage: read charge: %w", err)
	}
	return charged, nil
}

// SetLimit overrides the cap for the current period, creating the row if needed.
func (s *PGStore) SetLimit(ctx context.Context, tenantID string, limit int) error {
	query := `
		INSERT INTO usage_counters (tenant_id, period_start, consumed, limit_count)
		VALUES ($1, $2, 0, $3)
		ON CONFLICT (tenant_id, period_start) DO UPDATE SET limit_count = EXCLUDED.limit_count, updated_at = now()
	`
	if _, err := s.pool.Exec(ctx, query, tenantID, PeriodStart(s.now()), limit); err != nil {
		return fmt.Errorf("usage: set limit: %w", err)
	}
	return nil
}

// PeriodStart is the first instant of t's calendar month in UTC.
func PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
