package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CreditMetrics records ledger decisions and balance movements.
type CreditMetrics struct {
	decisions  *prometheus.CounterVec
	committed  *prometheus.CounterVec
	autoTopUps *prometheus.CounterVec
	underflows *prometheus.CounterVec
}

// NewCreditMetrics registers the credit metrics on the provided registerer.
func NewCreditMetrics(reg prometheus.Registerer) *CreditMetrics {
	if reg == nil {
		return &CreditMetrics{}
	}
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "credit_decisions_total",
		Help: "Admission decisions by plan and outcome.",
	}, []string{"plan", "outcome"})
	committed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "credits_committed_total",
		Help: "Credits committed to the usage log.",
	}, []string{"plan"})
	autoTopUps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "credit_auto_top_ups_total",
		Help: "Automatic top-ups applied before admission.",
	}, []string{"plan"})
	underflows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "credit_underflows_total",
		Help: "Commits rejected because the balance could not cover them.",
	}, []string{"plan"})
	reg.MustRegister(decisions, committed, autoTopUps, underflows)
	return &CreditMetrics{
		decisions:  decisions,
		committed:  committed,
		autoTopUps: autoTopUps,
		underflows: underflows,
	}
}

// ObserveDecision counts an admission decision.
func (c *CreditMetrics) ObserveDecision(plan string, allowed bool) {
	if c == nil || c.decisions == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	c.decisions.WithLabelValues(normalizeLabel(plan), outcome).Inc()
}

// AddCommitted adds committed credits for the plan.
func (c *CreditMetrics) AddCommitted(plan string, amount int) {
	if c == nil || c.committed == nil || amount <= 0 {
		return
	}
	c.committed.WithLabelValues(normalizeLabel(plan)).Add(float64(amount))
}

// IncAutoTopUp counts an automatic top-up.
func (c *CreditMetrics) IncAutoTopUp(plan string) {
	if c == nil || c.autoTopUps == nil {
		return
	}
	c.autoTopUps.WithLabelValues(normalizeLabel(plan)).Inc()
}

// IncUnderflow counts a rejected commit.
func (c *CreditMetrics) IncUnderflow(plan string) {
	if c == nil || c.underflows == nil {
		return
	}
	c.underflows.WithLabelValues(normalizeLabel(plan)).Inc()
}

// WebhookMetrics records billing webhook processing.
type WebhookMetrics struct {
	duration *prometheus.HistogramVec
	handled  *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_duration_seconds",
		Help:    "Duration of webhook handling in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type"})
	handled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Webhook events by type and result.",
	}, []string{"event_type", "result"})
	reg.MustRegister(duration, handled)
	return &WebhookMetrics{duration: duration, handled: handled}
}

// Observe records one handled event.
func (w *WebhookMetrics) Observe(eventType, result string, duration time.Duration) {
	if w == nil || w.duration == nil {
		return
	}
	eventType = normalizeLabel(eventType)
	w.duration.WithLabelValues(eventType).Observe(duration.Seconds())
	w.handled.WithLabelValues(eventType, normalizeLabel(result)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
