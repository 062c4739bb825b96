package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Booking attempt outcomes.
const (
	OutcomeBooked      = "booked"
	OutcomeConflict    = "conflict"
	OutcomeUnavailable = "unavailable"
	OutcomeInvalid     = "invalid"
	OutcomeError       = "error"
)

// SchedulingMetrics exposes counters for slot generation and booking flows.
type SchedulingMetrics struct {
	bookingAttempts *prometheus.CounterVec
	slotsGenerated  prometheus.Counter
	transitions     *prometheus.CounterVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotbook",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking attempts by entry mode and outcome",
		}, []string{"mode", "outcome"}),
		slotsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slotbook",
			Subsystem: "generator",
			Name:      "slots_created_total",
			Help:      "Slots newly inserted by generation runs",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotbook",
			Subsystem: "booking",
			Name:      "transitions_total",
			Help:      "Booking lifecycle transitions by action and result",
		}, []string{"action", "result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingAttempts, m.slotsGenerated, m.transitions)
	return m
}

func (m *SchedulingMetrics) ObserveBooking(mode, outcome string) {
	if m == nil {
		return
	}
	m.bookingAttempts.WithLabelValues(mode, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveGenerated(created int64) {
	if m == nil || created <= 0 {
		return
	}
	m.slotsGenerated.Add(float64(created))
}

func (m *SchedulingMetrics) ObserveTransition(action, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action, result).Inc()
}

// HTTPMetrics records request latency per route pattern.
type HTTPMetrics struct {
	duration *prometheus.HistogramVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "slotbook",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.duration)
	return m
}

func (m *HTTPMetrics) ObserveRequest(method, route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(method, route, status).Observe(elapsed.Seconds())
}
