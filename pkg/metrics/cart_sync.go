package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CartSyncMetrics records client-side cart persistence outcomes.
type CartSyncMetrics struct {
	persistDuration *prometheus.HistogramVec
	persistSuccess  *prometheus.CounterVec
	persistFailure  *prometheus.CounterVec
	hydrations      *prometheus.CounterVec
	transitions     *prometheus.CounterVec
}

// NewCartSyncMetrics registers the cart sync metrics on the provided registerer.
func NewCartSyncMetrics(reg prometheus.Registerer) *CartSyncMetrics {
	if reg == nil {
		return &CartSyncMetrics{}
	}
	persistDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cart_persist_duration_seconds",
		Help:    "Duration of cart writes per adapter.",
		Buckets: prometheus.DefBuckets,
	}, []string{"adapter"})
	persistSuccess := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_persist_success_total",
		Help: "Successful cart writes per adapter.",
	}, []string{"adapter"})
	persistFailure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_persist_failure_total",
		Help: "Failed cart writes per adapter.",
	}, []string{"adapter"})
	hydrations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_hydrations_total",
		Help: "Cart hydrations by winning source and outcome.",
	}, []string{"source", "outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_authority_transitions_total",
		Help: "Identity transitions that moved cart authority.",
	}, []string{"from", "to"})
	reg.MustRegister(persistDuration, persistSuccess, persistFailure, hydrations, transitions)
	return &CartSyncMetrics{
		persistDuration: persistDuration,
		persistSuccess:  persistSuccess,
		persistFailure:  persistFailure,
		hydrations:      hydrations,
		transitions:     transitions,
	}
}

// ObservePersist records one write attempt against an adapter.
func (c *CartSyncMetrics) ObservePersist(adapter string, duration time.Duration, err error) {
	if c == nil || c.persistDuration == nil {
		return
	}
	label := normalizeLabel(adapter)
	c.persistDuration.WithLabelValues(label).Observe(duration.Seconds())
	if err != nil {
		c.persistFailure.WithLabelValues(label).Inc()
		return
	}
	c.persistSuccess.WithLabelValues(label).Inc()
}

// IncHydration counts a hydration outcome ("adopted", "empty", "seeded", "failed").
func (c *CartSyncMetrics) IncHydration(source, outcome string) {
	if c == nil || c.hydrations == nil {
		return
	}
	c.hydrations.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
}

func (c *CartSyncMetrics) IncTransition(from, to string) {
	if c == nil || c.transitions == nil {
		return
	}
	c.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
