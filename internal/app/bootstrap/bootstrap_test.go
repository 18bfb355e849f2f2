package bootstrap

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/guarded-reply/internal/config"
	"github.com/wolfman30/guarded-reply/internal/events"
	"github.com/wolfman30/guarded-reply/internal/intake"
	"github.com/wolfman30/guarded-reply/internal/notify"
	"github.com/wolfman30/guarded-reply/internal/tenant"
	"github.com/wolfman30/guarded-reply/pkg/logging"
)

func testRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestBuildClaimLedger(t *testing.T) {
	_, client := testRedis(t)
	awsCfg := aws.Config{Region: "ap-northeast-1"}

	ledger, err := BuildClaimLedger(&appconfig.Config{ClaimBackend: ClaimBackendRedis}, LedgerDeps{Redis: client})
	require.NoError(t, err)
	assert.IsType(t, &events.RedisClaimLedger{}, ledger)

	ledger, err = BuildClaimLedger(&appconfig.Config{ClaimBackend: ClaimBackendDynamo, ClaimTable: "claims"}, LedgerDeps{AWS: &awsCfg})
	require.NoError(t, err)
	assert.IsType(t, &events.DynamoClaimLedger{}, ledger)

	_, err = BuildClaimLedger(&appconfig.Config{ClaimBackend: ClaimBackendPostgres}, LedgerDeps{})
	assert.Error(t, err)
	_, err = BuildClaimLedger(&appconfig.Config{ClaimBackend: "etcd"}, LedgerDeps{Redis: client})
	assert.ErrorContains(t, err, "unknown claim backend")
	_, err = BuildClaimLedger(nil, LedgerDeps{})
	assert.Error(t, err)
}

func TestBuildQueue(t *testing.T) {
	q, err := BuildQueue(&appconfig.Config{UseMemoryQueue: true}, nil)
	require.NoError(t, err)
	assert.IsType(t, &intake.MemoryQueue{}, q)

	_, err = BuildQueue(&appconfig.Config{}, nil)
	assert.ErrorContains(t, err, "EVENT_QUEUE_URL")

	awsCfg := aws.Config{Region: "ap-northeast-1"}
	q, err = BuildQueue(&appconfig.Config{EventQueueURL: "https://sqs.example/123/events.fifo"}, &awsCfg)
	require.NoError(t, err)
	assert.IsType(t, &intake.SQSQueue{}, q)
}

func TestBuildGenerator(t *testing.T) {
	logger := logging.New("error")
	_, err := BuildGenerator(context.Background(), &appconfig.Config{}, nil, logger)
	assert.ErrorContains(t, err, "no reply generator configured")

	_, err = BuildGenerator(context.Background(), &appconfig.Config{BedrockModelID: "anthropic.claude"}, nil, logger)
	assert.ErrorContains(t, err, "aws config")

	awsCfg := aws.Config{Region: "us-east-1"}
	gen, err := BuildGenerator(context.Background(), &appconfig.Config{BedrockModelID: "anthropic.claude"}, &awsCfg, logger)
	require.NoError(t, err)
	assert.NotNil(t, gen)
}

func TestBuildEmailSenderSelection(t *testing.T) {
	logger := logging.New("error")

	sender, provider := BuildEmailSender(&appconfig.Config{SendGridAPIKey: "SG.key", SendGridFromEmail: "bot@example.com"}, nil, logger)
	assert.Equal(t, "sendgrid", provider)
	assert.IsType(t, &notify.SendGridSender{}, sender)

	awsCfg := aws.Config{Region: "us-east-1"}
	sender, provider = BuildEmailSender(&appconfig.Config{SESFromEmail: "bot@example.com"}, &awsCfg, logger)
	assert.Equal(t, "ses", provider)
	assert.IsType(t, &notify.SESSender{}, sender)

	_, provider = BuildEmailSender(&appconfig.Config{SESFromEmail: "bot@example.com"}, nil, logger)
	assert.Equal(t, "stub", provider)
}

func TestOutboxHandlerInvalidatesAnalyticsOnDecision(t *testing.T) {
	mr, client := testRedis(t)
	require.NoError(t, mr.Set("analytics:t1:daily", "cached"))
	require.NoError(t, mr.Set("analytics:t2:daily", "cached"))

	handler := BuildOutboxHandler(&appconfig.Config{}, nil, client, tenant.NewStore(client), logging.New("error"))

	payload, err := json.Marshal(events.DecisionRecordedV1{TenantID: "t1", Decision: "AUTO_REPLY"})
	require.NoError(t, err)
	err = handler.Handle(context.Background(), events.OutboxEntry{
		ID:       uuid.New(),
		TenantID: "t1",
		Type:     events.EventTypeDecisionRecorded,
		Payload:  payload,
	})
	require.NoError(t, err)

	assert.False(t, mr.Exists("analytics:t1:daily"))
	assert.True(t, mr.Exists("analytics:t2:daily"))
}

func TestBuildIngressRequiresRedisAndDatabase(t *testing.T) {
	_, err := BuildIngress(Infra{Config: &appconfig.Config{UseMemoryQueue: true}})
	assert.ErrorContains(t, err, "redis")

	_, client := testRedis(t)
	_, err = BuildIngress(Infra{Config: &appconfig.Config{UseMemoryQueue: true}, Redis: client})
	assert.ErrorContains(t, err, "database")
}
