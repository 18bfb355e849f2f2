package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/guarded-reply/internal/app/bootstrap"
	appconfig "github.com/wolfman30/guarded-reply/internal/config"
	"github.com/wolfman30/guarded-reply/internal/intake"
	"github.com/wolfman30/guarded-reply/internal/knowledge"
	"github.com/wolfman30/guarded-reply/internal/tenant"
	"github.com/wolfman30/guarded-reply/pkg/logging"
)

func TestSetupMetricsExposesMetrics(t *testing.T) {
	handler, m := setupMetrics()
	if handler == nil || m == nil {
		t.Fatalf("expected non-nil handler and metrics")
	}

	m.ObserveWebhook("line", http.StatusOK)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "guarded_reply_webhook_requests_total") {
		t.Fatalf("expected webhook counter to be exported")
	}
}

func TestBuildRouterServesHealthAndWebhook(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := logging.New("error")
	queue := intake.NewMemoryQueue(4)
	in := &bootstrap.Ingress{
		Settings:  tenant.NewStore(client),
		Knowledge: knowledge.NewRedisRepository(client, logger),
		Queue:     queue,
		Publisher: intake.NewPublisher(queue, logger),
	}
	metricsHandler, m := setupMetrics()
	h := buildRouter(&appconfig.Config{WebhookRateLimit: 10, WebhookRateBurst: 10}, logger, in, m, metricsHandler, func(context.Context) error { return nil })

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected ready, got %d", rr.Code)
	}

	// No channel secret stored for the tenant: signature cannot verify.
	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/line/t1", strings.NewReader(`{"events":[]}`))
	req.Header.Set("X-Line-Signature", "abc")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unsigned tenant, got %d", rr.Code)
	}
}
