package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry       *prometheus.Registry
	runs           *prometheus.CounterVec // reconciliation runs by status
	runsSkipped    prometheus.Counter     // ticks skipped by the idle gate
	runDuration    prometheus.Histogram   // time per run
	changeOps      *prometheus.CounterVec // change applications
	applyRetries   prometheus.Counter     // retried apply attempts
	fetchRequests  *prometheus.CounterVec // fetches by plugin
	pluginLoads    *prometheus.CounterVec // plugin constructions
	badgerRequests *prometheus.CounterVec // badger registry requests
}

// Public interface for metrics operations
func (m *Metrics) IncRun(status string) {
	if !isValidStatus(status) {
		return
	}
	m.runs.WithLabelValues(status).Inc()
}

func (m *Metrics) IncRunSkipped() {
	m.runsSkipped.Inc()
}

func (m *Metrics) SetRunDuration(duration time.Duration) {
	m.runDuration.Observe(duration.Seconds())
}

func (m *Metrics) IncChangeOp(action string, success bool) {
	if !isValidAction(action) {
		return
	}
	m.changeOps.WithLabelValues(action, boolToResult(success)).Inc()
}

func (m *Metrics) IncApplyRetry() {
	m.applyRetries.Inc()
}

func (m *Metrics) IncFetch(plugin string, success bool) {
	if plugin == "" {
		return
	}
	m.fetchRequests.WithLabelValues(plugin, boolToResult(success)).Inc()
}

func (m *Metrics) IncPluginLoad(plugin string, success bool) {
	if plugin == "" {
		return
	}
	m.pluginLoads.WithLabelValues(plugin, boolToResult(success)).Inc()
}

func (m *Metrics) IncBadgerRequest(operation string, success bool) {
	if !isValidBadgerOp(operation) {
		return
	}
	m.badgerRequests.WithLabelValues(operation, boolToResult(success)).Inc()
}

// Validation helpers
func boolToResult(b bool) string {
	if b {
		return "success"
	}
	return "failure"
}

func isValidStatus(status string) bool {
	switch status {
	case "SUCCESS", "PARTIAL", "FAILED":
		return true
	}
	return false
}

func isValidAction(action string) bool {
	switch action {
	case "CREATE", "UPDATE", "DELETE":
		return true
	}
	return false
}

func isValidBadgerOp(op string) bool {
	switch op {
	case "read", "write", "delete":
		return true
	}
	return false
}

func New(register bool) *Metrics {
	registry := prometheus.NewRegistry()
	namespace := "dns_reconciler"

	m := &Metrics{
		registry: registry,

		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of reconciliation runs by final status",
		}, []string{"status"}),

		runsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_skipped_total",
			Help:      "Total scheduler ticks skipped because a run was in flight",
		}),

		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of reconciliation runs in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		changeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_operations_total",
			Help:      "Total change applications by action and result",
		}, []string{"action", "result"}),

		applyRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apply_retries_total",
			Help:      "Total retried change applications",
		}),

		fetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Total record state fetches by plugin and result",
		}, []string{"plugin", "result"}),

		pluginLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plugin_loads_total",
			Help:      "Total plugin constructions by plugin and result",
		}, []string{"plugin", "result"}),

		badgerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "badgerdb_requests_total",
			Help:      "Total badgerdb registry requests",
		}, []string{"operation", "result"}),
	}

	if register {
		registry.MustRegister(
			m.runs,
			m.runsSkipped,
			m.runDuration,
			m.changeOps,
			m.applyRetries,
			m.fetchRequests,
			m.pluginLoads,
			m.badgerRequests,
		)
	}
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
