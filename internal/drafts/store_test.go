package drafts

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*PGStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store := newPGStoreWithExec(mock, 0)
	store.now = func() time.Time { return fixedNow }
	return store, mock
}

func sampleDraft() Draft {
	return Draft{
		TenantID:       "tenant-1",
		ConversationID: "line:tenant-1:U1",
		EventID:        "evt-1",
		Decision:       "SUGGEST_DRAFT",
		UserMessage:    "訂單編號12345要退款",
		SuggestedReply: "已收到您的退款申請",
		RiskTier:       "high",
		Category:       "refund",
		MatchedTerms:   []string{"退款"},
	}
}

func TestInsertCreatesDraft(t *testing.T) {
	store, mock := newTestStore(t)
	id := uuid.New()

	mock.ExpectQuery("INSERT INTO suggestion_drafts").
		WithArgs(pgxmock.AnyArg(), "tenant-1", "line:tenant-1:U1", "evt-1", "SUGGEST_DRAFT",
			"訂單編號12345要退款", "已收到您的退款申請", 0, 0.0, "high", "refund", []string{"退款"}, "",
			"draft", fixedNow.Add(DefaultReviewWindow), fixedNow).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(id))

	d, created, err := store.Insert(context.Background(), sampleDraft())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, id, d.ID)
	assert.Equal(t, StatusDraft, d.Status)
	assert.Equal(t, fixedNow.Add(24*time.Hour), d.ExpiresAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertDuplicateReturnsExisting(t *testing.T) {
	store, mock := newTestStore(t)
	existing := uuid.New()

	mock.ExpectQuery("INSERT INTO suggestion_drafts").WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT id FROM suggestion_drafts").WithArgs("evt-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(existing))

	d, created, err := store.Insert(context.Background(), sampleDraft())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existing, d.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertValidationAndErrors(t *testing.T) {
	store, mock := newTestStore(t)

	_, _, err := store.Insert(context.Background(), Draft{TenantID: "t"})
	assert.Error(t, err)

	mock.ExpectQuery("INSERT INTO suggestion_drafts").WillReturnError(errors.New("deadlock"))
	_, _, err = store.Insert(context.Background(), sampleDraft())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drafts: insert")
}

func TestExpireStale(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectExec("UPDATE suggestion_drafts").WithArgs(fixedNow).WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := store.ExpireStale(context.Background(), fixedNow)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

type countingExpirer struct{ calls atomic.Int32 }

func (c *countingExpirer) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	c.calls.Add(1)
	return 1, nil
}

func TestSweeperRunsImmediatelyAndStops(t *testing.T) {
	exp := &countingExpirer{}
	s := NewSweeper(exp, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return exp.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
