package metrics

import "github.com/prometheus/client_golang/prometheus"

// SettlementMetrics exposes counters/histograms for the settlement flows.
type SettlementMetrics struct {
	webhookTotal   *prometheus.CounterVec
	sagaSteps      *prometheus.CounterVec
	refundsTotal   *prometheus.CounterVec
	ledgerRetries  prometheus.Counter
	webhookLatency *prometheus.HistogramVec
	orphanedHolds  prometheus.Gauge
}

func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	m := &SettlementMetrics{
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "careslot",
			Subsystem: "settlement",
			Name:      "webhook_events_total",
			Help:      "Total gateway webhook events received",
		}, []string{"event_type", "status"}),
		sagaSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "careslot",
			Subsystem: "settlement",
			Name:      "saga_steps_total",
			Help:      "Confirmation saga step outcomes",
		}, []string{"step", "outcome"}),
		refundsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "careslot",
			Subsystem: "settlement",
			Name:      "refunds_total",
			Help:      "Refund attempts by outcome",
		}, []string{"outcome"}),
		ledgerRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "careslot",
			Subsystem: "settlement",
			Name:      "ledger_retries_total",
			Help:      "Ledger RPC retry attempts",
		}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "careslot",
			Subsystem: "settlement",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of gateway webhook acknowledgement",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
		orphanedHolds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "careslot",
			Subsystem: "settlement",
			Name:      "orphaned_pending_holds",
			Help:      "Pending appointments without a payment intent, per sweep",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.webhookTotal, m.sagaSteps, m.refundsTotal, m.ledgerRetries, m.webhookLatency, m.orphanedHolds)
	return m
}

func (m *SettlementMetrics) ObserveWebhook(eventType, status string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(eventType, status).Inc()
}

func (m *SettlementMetrics) ObserveSagaStep(step, outcome string) {
	if m == nil {
		return
	}
	m.sagaSteps.WithLabelValues(step, outcome).Inc()
}

func (m *SettlementMetrics) ObserveRefund(outcome string) {
	if m == nil {
		return
	}
	m.refundsTotal.WithLabelValues(outcome).Inc()
}

func (m *SettlementMetrics) ObserveLedgerRetry() {
	if m == nil {
		return
	}
	m.ledgerRetries.Inc()
}

func (m *SettlementMetrics) SetOrphanedHolds(n int) {
	if m == nil {
		return
	}
	m.orphanedHolds.Set(float64(n))
}

func (m *SettlementMetrics) ObserveWebhookLatency(eventType string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(eventType).Observe(seconds)
}
