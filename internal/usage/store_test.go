package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 17, 9, 30, 0, 0, time.UTC)

func newTestStore(t *testing.T, limit int) (*PGStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store := newPGStoreWithExec(mock, limit)
	store.now = func() time.Time { return fixedNow }
	return store, mock
}

func TestPeriodStart(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	got := PeriodStart(time.Date(2026, 4, 1, 3, 0, 0, 0, loc))
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestCheckMissingRowUsesDefault(t *testing.T) {
	store, mock := newTestStore(t, 100)
	period := PeriodStart(fixedNow)

	mock.ExpectQuery("SELECT consumed, limit_count").WithArgs("tenant-1", period).WillReturnError(pgx.ErrNoRows)
	c, err := store.Check(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, 0, c.Consumed)
	assert.Equal(t, 100, c.Limit)
	assert.False(t, c.Exceeded())
	assert.Equal(t, 100, c.Remaining())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckAtLimit(t *testing.T) {
	store, mock := newTestStore(t, 100)
	period := PeriodStart(fixedNow)

	mock.ExpectQuery("SELECT consumed, limit_count").WithArgs("tenant-1", period).
		WillReturnRows(pgxmock.NewRows([]string{"consumed", "limit_count"}).AddRow(50, 50))
	c, err := store.Check(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.True(t, c.Exceeded())
	assert.Equal(t, 0, c.Remaining())
}

func TestIncrement(t *testing.T) {
	store, mock := newTestStore(t, 100)
	period := PeriodStart(fixedNow)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO usage_counters").WithArgs("tenant-1", period, 100).WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec("INSERT INTO usage_charges").WithArgs("tenant-1", "evt-1", period).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("UPDATE usage_counters").WithArgs("tenant-1", period).
		WillReturnRows(pgxmock.NewRows([]string{"consumed", "limit_count"}).AddRow(8, 100))
	mock.ExpectCommit()

	c, err := store.Increment(context.Background(), "tenant-1", "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 8, c.Consumed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementChargesEachEventOnce(t *testing.T) {
	store, mock := newTestStore(t, 100)
	period := PeriodStart(fixedNow)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO usage_counters").WithArgs("tenant-1", period, 100).WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec("INSERT INTO usage_charges").WithArgs("tenant-1", "evt-1", period).WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("SELECT consumed, limit_count").WithArgs("tenant-1", period).
		WillReturnRows(pgxmock.NewRows([]string{"consumed", "limit_count"}).AddRow(8, 100))
	mock.ExpectCommit()

	c, err := store.Increment(context.Background(), "tenant-1", "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 8, c.Consumed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementAtLimitDoesNotCount(t *testing.T) {
	store, mock := newTestStore(t, 100)
	period := PeriodStart(fixedNow)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO usage_counters").WithArgs("tenant-1", period, 100).WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec("INSERT INTO usage_charges").WithArgs("tenant-1", "evt-1", period).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("UPDATE usage_counters").WithArgs("tenant-1", period).WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT consumed, limit_count").WithArgs("tenant-1", period).
		WillReturnRows(pgxmock.NewRows([]string{"consumed", "limit_count"}).AddRow(100, 100))
	mock.ExpectRollback()

	c, err := store.Increment(context.Background(), "tenant-1", "evt-1")
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, 100, c.Consumed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementPropagatesErrors(t *testing.T) {
	store, mock := newTestStore(t, 100)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO usage_counters").WillReturnError(errors.New("db down"))
	mock.ExpectRollback()

	_, err := store.Increment(context.Background(), "tenant-1", "evt-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrQuotaExceeded)
}

func TestIncrementRequiresEventID(t *testing.T) {
	store, _ := newTestStore(t, 100)
	_, err := store.Increment(context.Background(), "tenant-1", "")
	require.Error(t, err)
}

func TestCharged(t *testing.T) {
	store, mock := newTestStore(t, 100)
	mock.ExpectQuery("SELECT EXISTS").WithArgs("tenant-1", "evt-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	charged, err := store.Charged(context.Background(), "tenant-1", "evt-1")
	require.NoError(t, err)
	assert.True(t, charged)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnlimited(t *testing.T) {
	c := Counter{Consumed: 1_000_000, Limit: Unlimited}
	assert.False(t, c.Exceeded())
	assert.Equal(t, Unlimited, c.Remaining())

	store, _ := newTestStore(t, 0)
	assert.Equal(t, Unlimited, store.defaultLimit)
}

func TestSetLimit(t *testing.T) {
	store, mock := newTestStore(t, 100)
	mock.ExpectExec("INSERT INTO usage_counters").WithArgs("tenant-1", PeriodStart(fixedNow), 5).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, store.SetLimit(context.Background(), "tenant-1", 5))
	require.NoError(t, mock.ExpectationsWereMet())
}
