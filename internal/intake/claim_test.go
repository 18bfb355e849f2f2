package intake

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/guarded-reply/internal/events"
	"github.com/wolfman30/guarded-reply/internal/usage"
)

type stubQuota struct {
	counter usage.Counter
	err     error
	calls   int32
}

func (s *stubQuota) Check(context.Context, string) (usage.Counter, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.counter, s.err
}

func newRedisLedger(t *testing.T) *events.RedisClaimLedger {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return events.NewRedisClaimLedger(client, time.Minute)
}

func textEvent(id string) events.InboundEvent {
	return events.InboundEvent{
		EventID:        id,
		TenantID:       "t1",
		Channel:        "line",
		ChannelUserID:  "U1",
		ConversationID: "line:t1:U1",
		Kind:           events.KindText,
		Text:           "營業時間？",
	}
}

func TestClaimIsExclusive(t *testing.T) {
	quota := &stubQuota{counter: usage.Counter{Limit: usage.Unlimited}}
	claimer := NewClaimer(newRedisLedger(t), quota, nil)

	first, err := claimer.Claim(context.Background(), textEvent("evt-1"))
	require.NoError(t, err)
	assert.Equal(t, Claimed, first.Status)

	second, err := claimer.Claim(context.Background(), textEvent("evt-1"))
	require.NoError(t, err)
	assert.Equal(t, AlreadyProcessed, second.Status)
	assert.False(t, second.Owned())
	assert.EqualValues(t, 1, quota.calls)
}

func TestClaimConcurrentSingleWinner(t *testing.T) {
	claimer := NewClaimer(newRedisLedger(t), &stubQuota{counter: usage.Counter{Limit: usage.Unlimited}}, nil)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := claimer.Claim(context.Background(), textEvent("evt-race"))
			if err == nil && res.Status == Claimed {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins)
}

func TestClaimQuotaExceeded(t *testing.T) {
	quota := &stubQuota{counter: usage.Counter{TenantID: "t1", Consumed: 100, Limit: 100}}
	claimer := NewClaimer(newRedisLedger(t), quota, nil)

	res, err := claimer.Claim(context.Background(), textEvent("evt-q"))
	require.NoError(t, err)
	assert.Equal(t, QuotaExceeded, res.Status)
	assert.True(t, res.Owned())
	assert.Equal(t, 100, res.Usage.Consumed)
}

type chargingQuota struct {
	stubQuota
	charged map[string]bool
}

func (c *chargingQuota) Charged(_ context.Context, _ string, eventID string) (bool, error) {
	return c.charged[eventID], nil
}

func TestClaimAtLimitAdmitsAlreadyChargedEvent(t *testing.T) {
	quota := &chargingQuota{
		stubQuota: stubQuota{counter: usage.Counter{TenantID: "t1", Consumed: 10, Limit: 10}},
		charged:   map[string]bool{"evt-retry": true},
	}
	claimer := NewClaimer(newRedisLedger(t), quota, nil)

	res, err := claimer.Claim(context.Background(), textEvent("evt-retry"))
	require.NoError(t, err)
	assert.Equal(t, Claimed, res.Status)

	res, err = claimer.Claim(context.Background(), textEvent("evt-new"))
	require.NoError(t, err)
	assert.Equal(t, QuotaExceeded, res.Status)
}

func TestClaimNonMessageSkipsQuota(t *testing.T) {
	quota := &stubQuota{counter: usage.Counter{Consumed: 5, Limit: 5}}
	claimer := NewClaimer(newRedisLedger(t), quota, nil)

	evt := textEvent("evt-follow")
	evt.Kind = events.KindFollow
	evt.Text = ""

	res, err := claimer.Claim(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, NonMessage, res.Status)
	assert.EqualValues(t, 0, quota.calls)
}

func TestClaimQuotaErrorReleases(t *testing.T) {
	ledger := newRedisLedger(t)
	quota := &stubQuota{err: errors.New("db down")}
	claimer := NewClaimer(ledger, quota, nil)

	_, err := claimer.Claim(context.Background(), textEvent("evt-err"))
	require.Error(t, err)

	quota.err = nil
	quota.counter = usage.Counter{Limit: usage.Unlimited}
	res, err := claimer.Claim(context.Background(), textEvent("evt-err"))
	require.NoError(t, err)
	assert.Equal(t, Claimed, res.Status)
}

func TestClaimRejectsMissingIDs(t *testing.T) {
	claimer := NewClaimer(newRedisLedger(t), &stubQuota{}, nil)
	_, err := claimer.Claim(context.Background(), events.InboundEvent{TenantID: "t1"})
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestReleaseMakesEventClaimable(t *testing.T) {
	claimer := NewClaimer(newRedisLedger(t), &stubQuota{counter: usage.Counter{Limit: usage.Unlimited}}, nil)
	evt := textEvent("evt-rel")

	_, err := claimer.Claim(context.Background(), evt)
	require.NoError(t, err)
	require.NoError(t, claimer.Release(context.Background(), evt))

	res, err := claimer.Claim(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, Claimed, res.Status)

	require.NoError(t, claimer.Complete(context.Background(), evt))
	res, err = claimer.Claim(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, AlreadyProcessed, res.Status)
}
