package bootstrap

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/guarded-reply/internal/channels/line"
	appconfig "github.com/wolfman30/guarded-reply/internal/config"
	"github.com/wolfman30/guarded-reply/internal/conversation"
	"github.com/wolfman30/guarded-reply/internal/drafts"
	"github.com/wolfman30/guarded-reply/internal/events"
	"github.com/wolfman30/guarded-reply/internal/intake"
	"github.com/wolfman30/guarded-reply/internal/knowledge"
	"github.com/wolfman30/guarded-reply/internal/observability/metrics"
	"github.com/wolfman30/guarded-reply/internal/pipeline"
	"github.com/wolfman30/guarded-reply/internal/tenant"
	"github.com/wolfman30/guarded-reply/internal/usage"
	"github.com/wolfman30/guarded-reply/pkg/logging"
)

// Infra holds the shared connections both binaries open at startup.
type Infra struct {
	Config  *appconfig.Config
	Logger  *logging.Logger
	DB      *Databases
	Redis   *redis.Client
	AWS     *aws.Config
	Metrics *metrics.PipelineMetrics
}

// Ingress is what the webhook side needs: tenant lookups and the queue.
type Ingress struct {
	Settings  *tenant.Store
	Knowledge *knowledge.RedisRepository
	Usage     *usage.PGStore
	Queue     intake.Queue
	Publisher *intake.Publisher
}

// BuildIngress wires tenant storage and the event queue.
func BuildIngress(infra Infra) (*Ingress, error) {
	if infra.Config == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if infra.Redis == nil {
		return nil, fmt.Errorf("bootstrap: redis is required for tenant settings")
	}
	if infra.DB == nil || infra.DB.Pool == nil {
		return nil, fmt.Errorf("bootstrap: database is required")
	}
	queue, err := BuildQueue(infra.Config, infra.AWS)
	if err != nil {
		return nil, err
	}
	return &Ingress{
		Settings:  tenant.NewStore(infra.Redis),
		Knowledge: knowledge.NewRedisRepository(infra.Redis, infra.Logger),
		Usage:     usage.NewPGStore(infra.DB.Pool, infra.Config.DefaultMonthlyQuota),
		Queue:     queue,
		Publisher: intake.NewPublisher(queue, infra.Logger),
	}, nil
}

// Consumer runs the reply pipeline and its background jobs.
type Consumer struct {
	Processor *pipeline.Processor
	Worker    *intake.Worker
	Outbox    *events.Deliverer
	Sweeper   *drafts.Sweeper

	wg sync.WaitGroup
}

// BuildConsumer wires the pipeline processor onto an Ingress.
func BuildConsumer(ctx context.Context, infra Infra, in *Ingress) (*Consumer, error) {
	if in == nil {
		return nil, fmt.Errorf("bootstrap: ingress is required")
	}
	cfg, logger := infra.Config, infra.Logger
	if logger == nil {
		logger = logging.Default()
	}
	if infra.DB == nil || infra.DB.SQL == nil {
		return nil, fmt.Errorf("bootstrap: database is required")
	}

	ledger, err := BuildClaimLedger(cfg, LedgerDeps{Pool: infra.DB.Pool, Redis: infra.Redis, AWS: infra.AWS})
	if err != nil {
		return nil, err
	}
	generator, err := BuildGenerator(ctx, cfg, infra.AWS, logger)
	if err != nil {
		return nil, err
	}

	draftStore := drafts.NewPGStore(infra.DB.Pool, cfg.DraftReviewWindow)
	outboxStore := events.NewOutboxStore(infra.DB.Pool)

	processor := pipeline.NewProcessor(pipeline.Dependencies{
		Claimer:   intake.NewClaimer(ledger, in.Usage, logger),
		Settings:  in.Settings,
		Usage:     in.Usage,
		Grounding: in.Knowledge,
		Generator: generator,
		Messages:  conversation.NewMessageStore(infra.DB.SQL),
		Drafts:    draftStore,
		Outbox:    outboxStore,
		Deliverer: line.NewDeliverer(in.Settings, cfg.LineAPIBase, nil, logger),
	}, logger,
		pipeline.WithGenerationTimeout(cfg.GenerationTimeout),
		pipeline.WithMetrics(infra.Metrics),
	)

	handler := BuildOutboxHandler(cfg, infra.AWS, infra.Redis, in.Settings, logger)
	logger.Info("pipeline consumer wired", "claim_backend", cfg.ClaimBackend, "workers", cfg.WorkerCount, "memory_queue", cfg.UseMemoryQueue)

	return &Consumer{
		Processor: processor,
		Worker:    intake.NewWorker(processor, in.Queue, logger, intake.WithWorkerCount(cfg.WorkerCount)),
		Outbox:    events.NewDeliverer(outboxStore, handler, logger).WithInterval(cfg.OutboxPollInterval),
		Sweeper:   drafts.NewSweeper(draftStore, cfg.DraftSweepInterval, logger),
	}, nil
}

// Start launches the queue workers, the outbox deliverer and the draft
// sweeper. They stop when ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) {
	c.Worker.Start(ctx)
	for _, run := range []func(context.Context){c.Outbox.Start, c.Sweeper.Start} {
		c.wg.Add(1)
		go func(run func(context.Context)) {
			defer c.wg.Done()
			run(ctx)
		}(run)
	}
}

// Wait blocks until everything started by Start has returned.
func (c *Consumer) Wait() {
	c.Worker.Wait()
	c.wg.Wait()
}
