// Package metrics provides Prometheus instrumentation for the workflow engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path", "status"},
	)

	// APICallsTotal counts JSON API method calls by outcome kind.
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_calls_total",
			Help: "JSON API method calls by result kind",
		},
		[]string{"method", "result"},
	)

	// ConversationsCreated counts conversations durably created (not reused).
	ConversationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conversations_created_total",
			Help: "Conversations created",
		},
	)

	// MessagesAppended counts appended messages.
	MessagesAppended = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messages_appended_total",
			Help: "Messages appended to conversations",
		},
	)

	// MessageReplays counts sends deduplicated by client token.
	MessageReplays = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "message_idempotent_replays_total",
			Help: "Message sends answered from an earlier attempt with the same client token",
		},
	)

	// InquiriesSubmitted counts inquiries by type.
	InquiriesSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquiries_submitted_total",
			Help: "Inquiries submitted",
		},
		[]string{"type"},
	)

	// StatusTransitions counts applied state machine transitions.
	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "status_transitions_total",
			Help: "Applied inquiry and verification transitions",
		},
		[]string{"machine", "to"},
	)

	// StoreUnavailable counts store operations that timed out or lost connectivity.
	StoreUnavailable = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_unavailable_total",
			Help: "Store operations that failed as unavailable",
		},
		[]string{"operation"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
}

// RecordTransition records an applied state change.
func RecordTransition(machine, to string) {
	StatusTransitions.WithLabelValues(machine, to).Inc()
}
