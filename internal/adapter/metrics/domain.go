package metrics

import (
	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// DomainMetrics holds Prometheus metrics for pack rollouts and bookings.
type DomainMetrics struct {
	RolloutTransitions *prometheus.CounterVec
	AutoAdvances       prometheus.Counter
	Resolutions        *prometheus.CounterVec
	Bookings           *prometheus.CounterVec
}

// NewDomainMetrics creates and registers rollout and booking metrics on the given registry.
func NewDomainMetrics(reg prometheus.Registerer) *DomainMetrics {
	m := &DomainMetrics{
		RolloutTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rollout",
			Name:      "transitions_total",
			Help:      "Total number of pack version changes, by audit action.",
		}, []string{"action"}),
		AutoAdvances: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rollout",
			Name:      "auto_advances_total",
			Help:      "Total number of stages advanced by the rollout ticker.",
		}),
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rollout",
			Name:      "resolutions_total",
			Help:      "Total number of pack resolutions, by source.",
		}, []string{"source"}),
		Bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Total number of booking attempts, by source and result.",
		}, []string{"source", "result"}),
	}

	reg.MustRegister(m.RolloutTransitions, m.AutoAdvances, m.Resolutions, m.Bookings)
	return m
}

func (m *DomainMetrics) RolloutTransition(action domain.AuditAction) {
	m.RolloutTransitions.WithLabelValues(string(action)).Inc()
}

func (m *DomainMetrics) AutoAdvanced() {
	m.AutoAdvances.Inc()
}

func (m *DomainMetrics) Resolved(source domain.ResolutionSource) {
	m.Resolutions.WithLabelValues(string(source)).Inc()
}

func (m *DomainMetrics) BookingAttempt(source domain.BookingSource, result string) {
	m.Bookings.WithLabelValues(string(source), result).Inc()
}
