// Package metrics exposes Prometheus collectors for snapshot and report runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "augur"

// Metrics holds the collectors of one process on a private registry.
type Metrics struct {
	RunsTotal        *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	AccountOutcomes  *prometheus.CounterVec
	EventsAppended   *prometheus.CounterVec
	ObserverLatency  *prometheus.HistogramVec
	LastRunTimestamp *prometheus.GaugeVec

	registry *prometheus.Registry
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Completed runs by job and status",
	}, []string{"job", "status"})

	m.RunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of a run",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"job"})

	m.AccountOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "account_outcomes_total",
		Help:      "Per-account snapshot outcomes",
	}, []string{"chain", "outcome"}) // ok, failed, unsupported

	m.EventsAppended = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_appended_total",
		Help:      "Events appended to the vault",
	}, []string{"chain", "kind"})

	m.ObserverLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "observer_call_seconds",
		Help:      "Latency of observer calls",
		Buckets:   prometheus.DefBuckets,
	}, []string{"chain", "op"})

	m.LastRunTimestamp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time of the last successful run",
	}, []string{"job"})

	m.registry.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.AccountOutcomes,
		m.EventsAppended,
		m.ObserverLatency,
		m.LastRunTimestamp,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the private registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRun records a finished run. A nil receiver is a no-op.
func (m *Metrics) ObserveRun(job string, started time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.RunsTotal.WithLabelValues(job, status).Inc()
	m.RunDuration.WithLabelValues(job).Observe(time.Since(started).Seconds())
	if err == nil {
		m.LastRunTimestamp.WithLabelValues(job).SetToCurrentTime()
	}
}

func (m *Metrics) Account(chain, outcome string) {
	if m == nil {
		return
	}
	m.AccountOutcomes.WithLabelValues(chain, outcome).Inc()
}

func (m *Metrics) Event(chain, kind string) {
	if m == nil {
		return
	}
	m.EventsAppended.WithLabelValues(chain, kind).Inc()
}

func (m *Metrics) ObserverCall(chain, op string, d time.Duration) {
	if m == nil {
		return
	}
	m.ObserverLatency.WithLabelValues(chain, op).Observe(d.Seconds())
}
