package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	WebhookOutcomeAccepted  = "accepted"
	WebhookOutcomeDuplicate = "duplicate"
	WebhookOutcomeIgnored   = "ignored"
	WebhookOutcomeRejected  = "rejected"
	WebhookOutcomeError     = "error"
)

// Metrics captures reconciliation health signals.
type Metrics struct {
	webhooks        *prometheus.CounterVec
	settlements     *prometheus.CounterVec
	orphanEvents    *prometheus.CounterVec
	effectFailures  *prometheus.CounterVec
	ledgerMutations *prometheus.CounterVec
	sweepDuration   prometheus.Histogram
	sweepBatch      prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// Default returns the singleton metrics registry.
func Default() *Metrics {
	metricsOnce.Do(func() {
		metrics = newMetrics(prometheus.DefaultRegisterer)
	})
	return metrics
}

// ResetForTest resets the metrics singleton for tests.
func ResetForTest() {
	metricsOnce = sync.Once{}
	metrics = nil
}

func newMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ovation_webhooks_total",
			Help: "Webhook deliveries by provider and outcome.",
		}, []string{"provider", "outcome"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ovation_settlements_total",
			Help: "Settlement attempts by provider and result.",
		}, []string{"provider", "result"}),
		orphanEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ovation_orphan_events_total",
			Help: "Payment events with no matching transaction.",
		}, []string{"provider"}),
		effectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ovation_settlement_effect_failures_total",
			Help: "Best-effort downstream failures after a settlement committed.",
		}, []string{"effect"}),
		ledgerMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ovation_wallet_ledger_mutations_total",
			Help: "Wallet ledger entries by type.",
		}, []string{"type"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ovation_reconciler_sweep_duration_seconds",
			Help:    "Duration of one reconciler sweep.",
			Buckets: prometheus.DefBuckets,
		}),
		sweepBatch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ovation_reconciler_sweep_batch_size",
			Help:    "Transactions inspected per reconciler sweep.",
			Buckets: []float64{0, 1, 5, 10, 25, 50},
		}),
	}

	registerer.MustRegister(
		m.webhooks,
		m.settlements,
		m.orphanEvents,
		m.effectFailures,
		m.ledgerMutations,
		m.sweepDuration,
		m.sweepBatch,
	)
	return m
}

func (m *Metrics) IncWebhook(provider, outcome string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) IncSettlement(provider, result string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) IncOrphanEvent(provider string) {
	if m == nil {
		return
	}
	m.orphanEvents.WithLabelValues(provider).Inc()
}

func (m *Metrics) IncEffectFailure(effect string) {
	if m == nil {
		return
	}
	m.effectFailures.WithLabelValues(effect).Inc()
}

func (m *Metrics) IncLedgerMutation(entryType string) {
	if m == nil {
		return
	}
	m.ledgerMutations.WithLabelValues(entryType).Inc()
}

func (m *Metrics) ObserveSweep(d time.Duration, batch int) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(d.Seconds())
	m.sweepBatch.Observe(float64(batch))
}
