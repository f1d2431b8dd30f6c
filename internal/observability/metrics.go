// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "symbol_price_recorder"

// Metrics holds the recorder's metrics on a private registry, so a run can
// be pushed to a Pushgateway without the process-wide default collectors.
type Metrics struct {
	registry *prometheus.Registry

	// Ledger metrics
	DaysRecorded  prometheus.Counter
	DaysSkipped   prometheus.Counter
	DaysDeleted   prometheus.Counter
	Announcements *prometheus.CounterVec
	NodeLatency   *prometheus.HistogramVec
	Confirmations *prometheus.CounterVec

	// Price API metrics
	PriceFetches      *prometheus.CounterVec
	LastRecordedPrice prometheus.Gauge

	// Run metrics
	RunDuration     *prometheus.HistogramVec
	RunsTotal       *prometheus.CounterVec
	LastSuccessTime prometheus.Gauge
	JournalErrors   prometheus.Counter
}

// NewMetrics creates a Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		DaysRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "days_recorded_total",
			Help:      "Days whose price was announced",
		}),
		DaysSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "days_skipped_total",
			Help:      "Days already recorded on the ledger",
		}),
		DaysDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "days_deleted_total",
			Help:      "Days whose entry was cleared",
		}),
		Announcements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "announcements_total",
			Help:      "Transactions announced by action and status",
		}, []string{"action", "status"}),
		NodeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "node_call_latency_seconds",
			Help:      "Symbol node REST call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"call"}),
		Confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "confirmations_total",
			Help:      "Awaited confirmations by outcome",
		}, []string{"outcome"}),
		PriceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "fetches_total",
			Help:      "Price API calls by status",
		}, []string{"status"}),
		LastRecordedPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "last_recorded_price",
			Help:      "Most recently recorded fiat price",
		}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Run duration in seconds by mode",
			Buckets:   []float64{1, 5, 30, 60, 300, 900, 3600, 14400},
		}, []string{"mode"}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "runs_total",
			Help:      "Runs by mode and status",
		}, []string{"mode", "status"}),
		LastSuccessTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "last_success_timestamp",
			Help:      "Unix timestamp of the last successful run",
		}),
		JournalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "append_errors_total",
			Help:      "Journal appends that failed",
		}),
	}

	m.registry.MustRegister(
		m.DaysRecorded, m.DaysSkipped, m.DaysDeleted, m.Announcements, m.NodeLatency,
		m.Confirmations, m.PriceFetches, m.LastRecordedPrice, m.RunDuration, m.RunsTotal,
		m.LastSuccessTime, m.JournalErrors,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns an HTTP handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveNodeCall records the latency of a node REST call started at start.
func (m *Metrics) ObserveNodeCall(call string, start time.Time) {
	if m == nil {
		return
	}
	m.NodeLatency.WithLabelValues(call).Observe(time.Since(start).Seconds())
}

// RecordAnnouncement records an announce attempt.
func (m *Metrics) RecordAnnouncement(action string, err error) {
	if m == nil {
		return
	}
	m.Announcements.WithLabelValues(action, status(err)).Inc()
}

// RecordPriceFetch records a price API call.
func (m *Metrics) RecordPriceFetch(err error) {
	if m == nil {
		return
	}
	m.PriceFetches.WithLabelValues(status(err)).Inc()
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(mode string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(mode, status(err)).Inc()
	m.RunDuration.WithLabelValues(mode).Observe(duration.Seconds())
	if err == nil {
		m.LastSuccessTime.SetToCurrentTime()
	}
}

// Push sends the registry to a Pushgateway under job, grouped by mode.
func (m *Metrics) Push(ctx context.Context, gatewayURL, job, mode string) error {
	pusher := push.New(gatewayURL, job).
		Gatherer(m.registry).
		Grouping("mode", mode)
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
