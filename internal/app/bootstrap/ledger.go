package bootstrap

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/guarded-reply/internal/config"
	"github.com/wolfman30/guarded-reply/internal/events"
)

const (
	ClaimBackendPostgres = "postgres"
	ClaimBackendRedis    = "redis"
	ClaimBackendDynamo   = "dynamodb"
)

// LedgerDeps are the handles a claim ledger may be built on. Only the one
// matching CLAIM_BACKEND is required.
type LedgerDeps struct {
	Pool  *pgxpool.Pool
	Redis redis.Cmdable
	AWS   *aws.Config
}

// BuildClaimLedger selects the dedup ledger named by CLAIM_BACKEND.
func BuildClaimLedger(cfg *appconfig.Config, deps LedgerDeps) (events.ClaimLedger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	switch cfg.ClaimBackend {
	case ClaimBackendPostgres, "":
		if deps.Pool == nil {
			return nil, fmt.Errorf("bootstrap: postgres claim ledger needs a database")
		}
		return events.NewPGClaimLedger(deps.Pool, cfg.ClaimLease), nil
	case ClaimBackendRedis:
		if deps.Redis == nil {
			return nil, fmt.Errorf("bootstrap: redis claim ledger needs REDIS_ADDR")
		}
		return events.NewRedisClaimLedger(deps.Redis, cfg.ClaimLease), nil
	case ClaimBackendDynamo:
		if deps.AWS == nil {
			return nil, fmt.Errorf("bootstrap: dynamodb claim ledger needs aws config")
		}
		return events.NewDynamoClaimLedger(dynamodb.NewFromConfig(*deps.AWS), cfg.ClaimTable, cfg.ClaimLease), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown claim backend %q", cfg.ClaimBackend)
	}
}
