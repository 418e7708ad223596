// Package metrics exposes prometheus instrumentation for the issuance and
// verification paths.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Issuances           *prometheus.CounterVec
	Verifications       *prometheus.CounterVec
	LedgerSubmissions   *prometheus.CounterVec
	StatusTransitions   *prometheus.CounterVec
	ConfirmationLatency prometheus.Histogram
	PendingTransactions prometheus.Gauge
}

// New registers the certledger collectors on the given registerer. Passing
// nil registers on the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Issuances: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "certledger",
			Name:      "issuances_total",
			Help:      "Certificate issuance attempts by outcome.",
		}, []string{"outcome"}),
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "certledger",
			Name:      "verifications_total",
			Help:      "Verification requests by outcome.",
		}, []string{"outcome"}),
		LedgerSubmissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "certledger",
			Name:      "ledger_submissions_total",
			Help:      "Ledger write submissions by operation and outcome.",
		}, []string{"operation", "outcome"}),
		StatusTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "certledger",
			Name:      "status_transitions_total",
			Help:      "Certificate status transitions by target status.",
		}, []string{"to"}),
		ConfirmationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "certledger",
			Name:      "confirmation_latency_seconds",
			Help:      "Time from ledger submission to confirmation.",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 120, 300, 600},
		}),
		PendingTransactions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "certledger",
			Name:      "pending_transactions",
			Help:      "Ledger transactions awaiting confirmation.",
		}),
	}
}

// Nop returns metrics backed by a private registry, for tests and for
// callers that do not scrape.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}

// The recording helpers below are nil-safe so callers can leave Metrics
// unset in tests.

func (m *Metrics) ObserveIssuance(outcome string) {
	if m == nil {
		return
	}
	m.Issuances.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveVerification(outcome string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveLedgerSubmission(operation, outcome string) {
	if m == nil {
		return
	}
	m.LedgerSubmissions.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) ObserveStatusTransition(to string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) ObserveConfirmationLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.ConfirmationLatency.Observe(d.Seconds())
}

func (m *Metrics) SetPendingTransactions(n int) {
	if m == nil {
		return
	}
	m.PendingTransactions.Set(float64(n))
}
