package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/guarded-reply/cmd/mainconfig"
	"github.com/wolfman30/guarded-reply/internal/api/router"
	"github.com/wolfman30/guarded-reply/internal/app/bootstrap"
	"github.com/wolfman30/guarded-reply/internal/channels/line"
	appconfig "github.com/wolfman30/guarded-reply/internal/config"
	"github.com/wolfman30/guarded-reply/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/guarded-reply/internal/http/middleware"
	"github.com/wolfman30/guarded-reply/internal/observability/metrics"
	"github.com/wolfman30/guarded-reply/pkg/logging"
)

func main() {
	appconfig.LoadDotEnv()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting guarded-reply API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"memory_queue", cfg.UseMemoryQueue,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	dbs, err := bootstrap.OpenDatabases(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer dbs.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient == nil {
		logger.Error("redis is required")
		os.Exit(1)
	}
	defer redisClient.Close()

	metricsHandler, pipelineMetrics := setupMetrics()
	infra := bootstrap.Infra{
		Config:  cfg,
		Logger:  logger,
		DB:      dbs,
		Redis:   redisClient,
		AWS:     &awsCfg,
		Metrics: pipelineMetrics,
	}
	ingress, err := bootstrap.BuildIngress(infra)
	if err != nil {
		logger.Error("failed to wire ingress", "error", err)
		os.Exit(1)
	}

	// The memory queue only exists in this process, so its consumer must too.
	var consumer *bootstrap.Consumer
	if cfg.UseMemoryQueue {
		consumer, err = bootstrap.BuildConsumer(ctx, infra, ingress)
		if err != nil {
			logger.Error("failed to wire inline consumer", "error", err)
			os.Exit(1)
		}
		consumer.Start(ctx)
		logger.Info("inline pipeline consumer started")
	}

	ready := func(ctx context.Context) error {
		if err := dbs.Ping(ctx); err != nil {
			return err
		}
		return redisClient.Ping(ctx).Err()
	}
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      buildRouter(cfg, logger, ingress, pipelineMetrics, metricsHandler, ready),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancel()
	if consumer != nil {
		waitForConsumer(consumer, logger, 30*time.Second)
	}
	logger.Info("server stopped")
}

func setupMetrics() (http.Handler, *metrics.PipelineMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewPipelineMetrics(reg)
}

func buildRouter(cfg *appconfig.Config, logger *logging.Logger, in *bootstrap.Ingress, m *metrics.PipelineMetrics, metricsHandler http.Handler, ready func(context.Context) error) http.Handler {
	var quota handlers.QuotaStore
	if in.Usage != nil {
		quota = in.Usage
	}
	return router.New(&router.Config{
		Logger:          logger,
		LineWebhook:     line.NewWebhookHandler(in.Settings, in.Publisher.Publish, logger),
		WebhookLimiter:  httpmiddleware.NewKeyedLimiter(cfg.WebhookRateLimit, cfg.WebhookRateBurst),
		Metrics:         m,
		MetricsHandler:  metricsHandler,
		Ready:           ready,
		AdminAuthSecret: cfg.AdminJWTSecret,
		AdminTenants:    handlers.NewAdminTenantsHandler(in.Settings, quota, logger),
		AdminKnowledge:  handlers.NewAdminKnowledgeHandler(in.Knowledge, logger),
	})
}

func waitForConsumer(c *bootstrap.Consumer, logger *logging.Logger, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		c.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("inline pipeline consumer stopped")
	case <-time.After(timeout):
		logger.Error("inline pipeline consumer shutdown timed out")
	}
}
