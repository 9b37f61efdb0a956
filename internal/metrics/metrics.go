// Package metrics exposes Prometheus collectors for briefing generation.
// Every method is safe to call on a nil *Metrics, so components that
// were built without metrics need no guard checks.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "daybreak"

// Metrics groups the collectors reported by the briefing pipeline.
type Metrics struct {
	generations      *prometheus.CounterVec
	providerFailures *prometheus.CounterVec
	providerFetch    *prometheus.HistogramVec
	aiUnavailable    *prometheus.CounterVec
	settingsLookups  *prometheus.CounterVec
}

// MustNewMetrics constructs the collectors and registers them with reg
// (prometheus.DefaultRegisterer when nil). Collectors that are already
// registered are reused, which keeps repeated construction in tests
// from panicking. Any other registration error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	return &Metrics{
		generations: mustRegister(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "summary",
				Name:      "generations_total",
				Help:      "Summaries generated, by the strategy that produced the text.",
			},
			[]string{"strategy"},
		)),
		providerFailures: mustRegister(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "failures_total",
				Help:      "Context source fetches that failed and were treated as absent.",
			},
			[]string{"source"},
		)),
		providerFetch: mustRegister(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "fetch_seconds",
				Help:      "Duration of context source fetches.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"source", "outcome"},
		)),
		aiUnavailable: mustRegister(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ai",
				Name:      "unavailable_total",
				Help:      "Generative backend attempts that fell back to the template, by reason.",
			},
			[]string{"reason"},
		)),
		settingsLookups: mustRegister(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "settings",
				Name:      "cache_lookups_total",
				Help:      "Behavior settings cache lookups by result (hit, miss, error).",
			},
			[]string{"result"},
		)),
	}
}

func mustRegister[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveGeneration counts a finished summary for strategy ("ai" or "template").
func (m *Metrics) ObserveGeneration(strategy string) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(strategy).Inc()
}

// ObserveFetch records one context source fetch. A non-nil err also
// counts as a provider failure.
func (m *Metrics) ObserveFetch(source string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		m.providerFailures.WithLabelValues(source).Inc()
	}
	m.providerFetch.WithLabelValues(source, outcome).Observe(d.Seconds())
}

// ObserveAIUnavailable counts a fallback from the generative backend.
func (m *Metrics) ObserveAIUnavailable(reason string) {
	if m == nil {
		return
	}
	m.aiUnavailable.WithLabelValues(reason).Inc()
}

// ObserveSettingsLookup counts a behavior settings cache lookup.
func (m *Metrics) ObserveSettingsLookup(result string) {
	if m == nil {
		return
	}
	m.settingsLookups.WithLabelValues(result).Inc()
}
