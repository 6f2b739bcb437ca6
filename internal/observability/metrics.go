// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records papp lifecycle events. It implements papp.Observer.
type Metrics struct {
	LoadsTotal        *prometheus.CounterVec
	UnloadsTotal      *prometheus.CounterVec
	LoadFailuresTotal *prometheus.CounterVec
	LoadDuration      *prometheus.HistogramVec
	Loaded            prometheus.Gauge
}

// NewMetrics creates the papp metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "papphost_papp_loads_total",
				Help: "Total number of successful papp loads by papp",
			},
			[]string{"papp"},
		),
		UnloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "papphost_papp_unloads_total",
				Help: "Total number of papp unloads by papp",
			},
			[]string{"papp"},
		),
		LoadFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "papphost_papp_load_failures_total",
				Help: "Total number of failed papp loads by papp and error code",
			},
			[]string{"papp", "code"},
		),
		LoadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "papphost_papp_load_duration_seconds",
				Help:    "Time taken to load a papp, including its start hook",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"papp"},
		),
		Loaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papphost_papps_loaded",
			Help: "Number of papps currently loaded",
		}),
	}

	reg.MustRegister(m.LoadsTotal, m.UnloadsTotal, m.LoadFailuresTotal, m.LoadDuration, m.Loaded)
	return m
}

// PappLoaded records a successful load.
func (m *Metrics) PappLoaded(name string, d time.Duration) {
	m.LoadsTotal.WithLabelValues(name).Inc()
	m.LoadDuration.WithLabelValues(name).Observe(d.Seconds())
	m.Loaded.Inc()
}

// PappUnloaded records an unload.
func (m *Metrics) PappUnloaded(name string) {
	m.UnloadsTotal.WithLabelValues(name).Inc()
	m.Loaded.Dec()
}

// PappLoadFailed records a failed load. Errors without a code are counted
// as "unknown".
func (m *Metrics) PappLoadFailed(name, code string) {
	if code == "" {
		code = "unknown"
	}
	m.LoadFailuresTotal.WithLabelValues(name, code).Inc()
}
