// Package metrics provides Prometheus metrics for step-up auth operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for step-up auth operations.
type Metrics struct {
	enabled bool

	// Ceremony metrics
	ceremoniesTotal  *prometheus.CounterVec
	ceremonyDuration prometheus.Histogram

	// Session refresh metrics
	refreshOutcomesTotal *prometheus.CounterVec
	refreshRetriesTotal  prometheus.Counter

	// Identity cache metrics
	cacheHitsTotal   prometheus.Counter
	cacheMissesTotal prometheus.Counter

	// Gate metrics
	gateDecisionsTotal *prometheus.CounterVec
	probeDuration      prometheus.Histogram
}

// New creates and registers Prometheus metrics.
// If enabled is false, returns a no-op Metrics instance.
func New(enabled bool) *Metrics {
	m := &Metrics{enabled: enabled}

	if !enabled {
		return m
	}

	m.ceremoniesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stepauth_ceremonies_total",
		Help: "Total WebAuthn ceremonies by kind and result",
	}, []string{"kind", "result"})

	m.ceremonyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stepauth_ceremony_duration_seconds",
		Help:    "Ceremony duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	m.refreshOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stepauth_refresh_outcomes_total",
		Help: "Total silent-refresh chain outcomes",
	}, []string{"outcome"})

	m.refreshRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stepauth_refresh_retries_total",
		Help: "Total silent-refresh retry attempts",
	})

	m.cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stepauth_identity_cache_hits_total",
		Help: "Total identity cache hits on cold start",
	})

	m.cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stepauth_identity_cache_misses_total",
		Help: "Total identity cache misses or expiries on cold start",
	})

	m.gateDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stepauth_gate_decisions_total",
		Help: "Total admin-access gate view decisions",
	}, []string{"state"})

	m.probeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stepauth_probe_duration_seconds",
		Help:    "Allow-list probe duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	return m
}

// RecordCeremony records a ceremony outcome.
func (m *Metrics) RecordCeremony(kind, result string, durationSeconds float64) {
	if !m.enabled {
		return
	}
	m.ceremoniesTotal.WithLabelValues(kind, result).Inc()
	m.ceremonyDuration.Observe(durationSeconds)
}

// RecordRefreshOutcome records how a silent-refresh chain ended.
func (m *Metrics) RecordRefreshOutcome(outcome string) {
	if !m.enabled {
		return
	}
	m.refreshOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordRefreshRetry records one retry attempt within a refresh chain.
func (m *Metrics) RecordRefreshRetry() {
	if !m.enabled {
		return
	}
	m.refreshRetriesTotal.Inc()
}

// RecordCacheHit records an identity cache hit.
func (m *Metrics) RecordCacheHit() {
	if !m.enabled {
		return
	}
	m.cacheHitsTotal.Inc()
}

// RecordCacheMiss records an identity cache miss or expiry.
func (m *Metrics) RecordCacheMiss() {
	if !m.enabled {
		return
	}
	m.cacheMissesTotal.Inc()
}

// RecordGateDecision records the view state the gate settled on.
func (m *Metrics) RecordGateDecision(state string) {
	if !m.enabled {
		return
	}
	m.gateDecisionsTotal.WithLabelValues(state).Inc()
}

// RecordProbe records an allow-list probe duration.
func (m *Metrics) RecordProbe(durationSeconds float64) {
	if !m.enabled {
		return
	}
	m.probeDuration.Observe(durationSeconds)
}
