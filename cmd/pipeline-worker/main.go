package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/guarded-reply/cmd/mainconfig"
	"github.com/wolfman30/guarded-reply/internal/app/bootstrap"
	appconfig "github.com/wolfman30/guarded-reply/internal/config"
	"github.com/wolfman30/guarded-reply/internal/observability/metrics"
	"github.com/wolfman30/guarded-reply/pkg/logging"
)

func main() {
	appconfig.LoadDotEnv()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.UseMemoryQueue {
		logger.Error("USE_MEMORY_QUEUE runs the consumer inside the api process; the worker needs EVENT_QUEUE_URL")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsConfig, err := mainconfig.LoadAWSConfig(ctx, cfg)
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

	reg := prometheus.NewRegistry()
	infra := bootstrap.Infra{
		Config:  cfg,
		Logger:  logger,
		DB:      dbs,
		Redis:   redisClient,
		AWS:     &awsConfig,
		Metrics: metrics.NewPipelineMetrics(reg),
	}
	ingress, err := bootstrap.BuildIngress(infra)
	if err != nil {
		logger.Error("failed to wire ingress", "error", err)
		os.Exit(1)
	}
	consumer, err := bootstrap.BuildConsumer(ctx, infra, ingress)
	if err != nil {
		logger.Error("failed to wire pipeline consumer", "error", err)
		os.Exit(1)
	}
	consumer.Start(ctx)

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down pipeline worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()
	_ = metricsSrv.Shutdown(doneCtx)

	waitCh := make(chan struct{})
	go func() {
		consumer.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("pipeline worker stopped")
	case <-doneCtx.Done():
		logger.Error("pipeline worker shutdown timed out", "error", doneCtx.Err())
	}
}
