package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/histograms for the reply pipeline.
type PipelineMetrics struct {
	claimsTotal     *prometheus.CounterVec
	decisionsTotal  *prometheus.CounterVec
	guardrailTotal  *prometheus.CounterVec
	deliveriesTotal *prometheus.CounterVec
	webhookTotal    *prometheus.CounterVec
	stageLatency    *prometheus.HistogramVec
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		claimsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guarded_reply",
			Subsystem: "pipeline",
			Name:      "claims_total",
			Help:      "Inbound event claims by result",
		}, []string{"status"}),
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guarded_reply",
			Subsystem: "pipeline",
			Name:      "decisions_total",
			Help:      "Routing decisions by action and risk tier",
		}, []string{"decision", "risk_tier"}),
		guardrailTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guarded_reply",
			Subsystem: "pipeline",
			Name:      "guardrail_triggers_total",
			Help:      "Output guardrail substitutions by reason",
		}, []string{"reason"}),
		deliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guarded_reply",
			Subsystem: "pipeline",
			Name:      "deliveries_total",
			Help:      "Outbound deliveries by kind and status",
		}, []string{"kind", "status"}),
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guarded_reply",
			Subsystem: "webhook",
			Name:      "requests_total",
			Help:      "Inbound channel webhook requests",
		}, []string{"channel", "status"}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "guarded_reply",
			Subsystem: "pipeline",
			Name:      "stage_latency_seconds",
			Help:      "Latency of pipeline stages",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.claimsTotal, m.decisionsTotal, m.guardrailTotal, m.deliveriesTotal, m.webhookTotal, m.stageLatency)
	return m
}

func (m *PipelineMetrics) ObserveClaim(status string) {
	if m == nil {
		return
	}
	m.claimsTotal.WithLabelValues(status).Inc()
}

func (m *PipelineMetrics) ObserveDecision(decision, riskTier string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(decision, riskTier).Inc()
}

func (m *PipelineMetrics) ObserveGuardrail(reason string) {
	if m == nil {
		return
	}
	m.guardrailTotal.WithLabelValues(reason).Inc()
}

// ObserveDelivery records an outbound send; kind is reply, ack, notice or welcome.
func (m *PipelineMetrics) ObserveDelivery(kind string, ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.deliveriesTotal.WithLabelValues(kind, status).Inc()
}

func (m *PipelineMetrics) ObserveWebhook(channel string, statusCode int) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(channel, statusClass(statusCode)).Inc()
}

func (m *PipelineMetrics) ObserveStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.stageLatency.WithLabelValues(stage).Observe(seconds)
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 200 && code < 300:
		return "2xx"
	default:
		return "other"
	}
}
