// Package metrics provides Prometheus metrics for the inbox gateway.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BackendRequests counts calls to the event-planning backend by operation and outcome.
	BackendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_backend_requests_total",
			Help: "Total number of backend requests by operation and status",
		},
		[]string{"op", "status"},
	)

	// BackendDuration tracks backend request latency.
	BackendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inbox_backend_request_duration_seconds",
			Help:    "Duration of backend requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// ActiveSessions tracks the number of mounted inbox sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inbox_active_sessions",
			Help: "Number of currently mounted inbox sessions",
		},
	)

	// ThreadPolls counts poll ticks by outcome.
	ThreadPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_thread_polls_total",
			Help: "Total number of thread poll refreshes",
		},
		[]string{"outcome"},
	)

	// StaleResponses counts responses dropped because their thread or directory was superseded.
	StaleResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_stale_responses_total",
			Help: "Total number of discarded out-of-order responses",
		},
		[]string{"kind"},
	)

	// MessagesSent counts send pipeline outcomes.
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_messages_sent_total",
			Help: "Total number of send attempts by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordBackendRequest records one backend call. status is 0 for transport failures.
func RecordBackendRequest(op string, status int, took time.Duration) {
	label := "transport_error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	BackendRequests.WithLabelValues(op, label).Inc()
	BackendDuration.WithLabelValues(op).Observe(took.Seconds())
}

// RecordPoll records a poll tick outcome.
func RecordPoll(outcome string) {
	ThreadPolls.WithLabelValues(outcome).Inc()
}

// RecordStale records a discarded response.
func RecordStale(kind string) {
	StaleResponses.WithLabelValues(kind).Inc()
}

// RecordSend records a send pipeline outcome.
func RecordSend(outcome string) {
	MessagesSent.WithLabelValues(outcome).Inc()
}

// RecordSessionMounted increments the active session gauge.
func RecordSessionMounted() {
	ActiveSessions.Inc()
}

// RecordSessionUnmounted decrements the active session gauge.
func RecordSessionUnmounted() {
	ActiveSessions.Dec()
}
