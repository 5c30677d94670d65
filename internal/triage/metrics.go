package triage

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/sift/internal/ticket"
)

// Metrics holds Prometheus metrics for the triage pipeline.
type Metrics struct {
	RunsTotal          *prometheus.CounterVec
	RunDuration        *prometheus.HistogramVec
	DedupeHits         *prometheus.CounterVec
	WebhookDeliveries  *prometheus.CounterVec
	SubmitsTotal       *prometheus.CounterVec
	RateLimitRejects   prometheus.Counter
	OutboxSends        *prometheus.CounterVec
	RunLogWrites       *prometheus.CounterVec
	KBSnippetsReturned prometheus.Histogram
}

// NewMetrics registers and returns pipeline metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_triage_runs_total",
			Help: "Total triage workflow runs by terminal ticket status.",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sift_triage_run_duration_seconds",
			Help:    "Duration of triage workflow runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s .. ~128s
		}, []string{"status"}),
		DedupeHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_dedupe_hits_total",
			Help: "Inbound messages attached to an existing ticket, by match type.",
		}, []string{"type"}),
		WebhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_webhook_deliveries_total",
			Help: "Webhook delivery outcomes.",
		}, []string{"event", "outcome"}),
		SubmitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_submits_total",
			Help: "Ticket submissions by result.",
		}, []string{"result"}),
		RateLimitRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sift_rate_limit_rejects_total",
			Help: "Submissions rejected by the rate limiter.",
		}),
		OutboxSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_outbox_sends_total",
			Help: "Outbox email send outcomes.",
		}, []string{"outcome"}),
		RunLogWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_run_log_writes_total",
			Help: "Run-log entries written, by step and status.",
		}, []string{"step", "status"}),
		KBSnippetsReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sift_kb_snippets_returned",
			Help:    "KB snippets returned per retrieval.",
			Buckets: prometheus.LinearBuckets(0, 1, 4), // 0 .. 3
		}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.DedupeHits,
		m.WebhookDeliveries,
		m.SubmitsTotal,
		m.RateLimitRejects,
		m.OutboxSends,
		m.RunLogWrites,
		m.KBSnippetsReturned,
	)

	return m
}

// WorkflowHooks returns Hooks that update run metrics on completion.
func (m *Metrics) WorkflowHooks() Hooks {
	return Hooks{
		OnComplete: func(status ticket.Status, duration time.Duration) {
			m.RunsTotal.WithLabelValues(string(status)).Inc()
			m.RunDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
		},
	}
}
