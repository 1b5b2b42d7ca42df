// Package metrics exposes Prometheus collectors for the gate service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScansTotal counts scan outcomes by result and reason
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_scans_total",
			Help: "Total scans by result",
		},
		[]string{"result", "reason"},
	)

	// TransitionsTotal counts successful compare-and-set status changes
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_ticket_transitions_total",
			Help: "Ticket status transitions",
		},
		[]string{"from", "to"},
	)

	// ConflictsTotal counts lost compare-and-set races
	ConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_ticket_conflicts_total",
			Help: "Compare-and-set attempts that lost to a concurrent update",
		},
		[]string{"operation"},
	)

	// OTPIssuedTotal counts issued challenges
	OTPIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gate_otp_issued_total",
			Help: "OTP challenges issued",
		},
	)

	// OTPVerificationsTotal counts verify calls by outcome
	OTPVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_otp_verifications_total",
			Help: "OTP verifications by outcome",
		},
		[]string{"outcome"},
	)

	// TicketsIssuedTotal counts issued tickets by type
	TicketsIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_tickets_issued_total",
			Help: "Tickets issued by type",
		},
		[]string{"type"},
	)

	// TicketsExpiredTotal counts tickets closed by the expiry worker or lazily on scan
	TicketsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gate_tickets_expired_total",
			Help: "Tickets moved to expired",
		},
	)

	// SecurityEventsTotal counts signature failures and OTP lockouts
	SecurityEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_security_events_total",
			Help: "Security relevant failures",
		},
		[]string{"type"},
	)

	// RequestDuration observes HTTP handling time
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gate_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "route", "status"},
	)

	// PublishFailuresTotal counts events or OTP dispatches that could not be delivered
	PublishFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_publish_failures_total",
			Help: "Failed Kafka publishes",
		},
		[]string{"topic"},
	)
)

// ObserveRequest records one HTTP request
func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	RequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
