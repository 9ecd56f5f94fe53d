// Package metrics exposes Prometheus collectors for the client pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the client
type Metrics struct {
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Retries         *prometheus.CounterVec

	ColdStartNotices prometheus.Counter
	ExpiryRecoveries prometheus.Counter
	ExpiryDropped    prometheus.Counter

	Reconciliations *prometheus.CounterVec
	GuardDecisions  *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mealdraw_client_requests_total",
				Help: "Total number of request attempts by method and status class",
			},
			[]string{"method", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mealdraw_client_request_duration_seconds",
				Help:    "Round-trip duration of request attempts in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 30},
			},
			[]string{"method"},
		),
		Retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mealdraw_client_retries_total",
				Help: "Total number of resubmitted requests",
			},
			[]string{"method"},
		),
		ColdStartNotices: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mealdraw_client_cold_start_notices_total",
				Help: "Total number of cold-start notices shown",
			},
		),
		ExpiryRecoveries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mealdraw_client_expiry_recoveries_total",
				Help: "Total number of session-expiry recovery sequences",
			},
		),
		ExpiryDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mealdraw_client_expiry_dropped_total",
				Help: "Total number of 401 responses ignored during an active recovery window",
			},
		),
		Reconciliations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mealdraw_reconciliations_total",
				Help: "Total number of pending-action reconciliations by outcome",
			},
			[]string{"outcome"},
		),
		GuardDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mealdraw_guard_decisions_total",
				Help: "Total number of route guard decisions",
			},
			[]string{"allowed", "reason"},
		),
	}
}

// StatusClass buckets an HTTP status into "2xx".."5xx", or "error" for
// transport failures (status 0).
func StatusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}

func (m *Metrics) RecordRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(method, StatusClass(status)).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) RecordRetry(method string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(method).Inc()
}

func (m *Metrics) RecordColdStartNotice() {
	if m == nil {
		return
	}
	m.ColdStartNotices.Inc()
}

func (m *Metrics) RecordExpiryRecovery() {
	if m == nil {
		return
	}
	m.ExpiryRecoveries.Inc()
}

func (m *Metrics) RecordExpiryDropped() {
	if m == nil {
		return
	}
	m.ExpiryDropped.Inc()
}

func (m *Metrics) RecordReconciliation(outcome string) {
	if m == nil {
		return
	}
	m.Reconciliations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordGuardDecision(allowed bool, reason string) {
	if m == nil {
		return
	}
	m.GuardDecisions.WithLabelValues(strconv.FormatBool(allowed), reason).Inc()
}
