package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APIRequestsTotal tracks outbound calls to the study marketplace API.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotclaim_api_requests_total",
			Help: "Total number of upstream API requests (by operation and status).",
		},
		[]string{"operation", "status"},
	)

	// APIRequestDuration measures the duration of upstream API calls.
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slotclaim_api_request_duration_seconds",
			Help:    "Duration of upstream API requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms → ~10s
		},
		[]string{"operation"},
	)

	// LoopTransitions counts state machine transitions.
	LoopTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotclaim_loop_transitions_total",
			Help: "Poll-reserve loop transitions (by source and target state).",
		},
		[]string{"from", "to"},
	)

	// ReservationOutcomes counts reserve calls by classified outcome.
	ReservationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotclaim_reservation_outcomes_total",
			Help: "Reservation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// TokenRenewals counts credential renewals by result.
	TokenRenewals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotclaim_token_renewals_total",
			Help: "Bearer token renewals (by result).",
		},
		[]string{"result"},
	)

	// NATSPublishErrors tracks NATS publish failures by subject.
	NATSPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotclaim_nats_publish_errors_total",
			Help: "Number of NATS publish failures by subject.",
		},
		[]string{"subject"},
	)
)

// IncAPIRequest increments the API request counter.
func IncAPIRequest(operation, status string) {
	APIRequestsTotal.WithLabelValues(operation, status).Inc()
}

// IncTransition records one loop transition.
func IncTransition(from, to string) {
	LoopTransitions.WithLabelValues(from, to).Inc()
}

// IncReservation records one reservation outcome.
func IncReservation(outcome string) {
	ReservationOutcomes.WithLabelValues(outcome).Inc()
}

// IncRenewal records one renewal attempt result ("ok" or "error").
func IncRenewal(result string) {
	TokenRenewals.WithLabelValues(result).Inc()
}

// IncNATSPublishError increments the NATS publish error counter for the given subject.
func IncNATSPublishError(subject string) {
	NATSPublishErrors.WithLabelValues(subject).Inc()
}

// ObserveDuration records elapsed time since start into a HistogramVec or SummaryVec.
func ObserveDuration(v any, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()
	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	}
}
