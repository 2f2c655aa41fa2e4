package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the membership core.
type Metrics struct {
	Joins             prometheus.Counter
	Promotions        prometheus.Counter
	CapacityConflicts prometheus.Counter
	Bans              prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		Joins: promauto.NewCounter(prometheus.CounterOpts{
			Name: "miglee_membership_joins_total",
			Help: "Total number of memberships that reached JOINED",
		}),
		Promotions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "miglee_waitlist_promotions_total",
			Help: "Total number of waitlist members promoted to JOINED",
		}),
		CapacityConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "miglee_capacity_conflicts_total",
			Help: "Total number of lost capacity-reservation races",
		}),
		Bans: promauto.NewCounter(prometheus.CounterOpts{
			Name: "miglee_membership_bans_total",
			Help: "Total number of members banned",
		}),
	}
}

// IncrementJoins increments the joined-members counter by 1.
func (m *Metrics) IncrementJoins() {
	if m != nil {
		m.Joins.Inc()
	}
}

// IncrementPromotions increments the waitlist-promotion counter by 1.
func (m *Metrics) IncrementPromotions() {
	if m != nil {
		m.Promotions.Inc()
	}
}

// IncrementCapacityConflicts increments the lost-race counter by 1.
func (m *Metrics) IncrementCapacityConflicts() {
	if m != nil {
		m.CapacityConflicts.Inc()
	}
}

// IncrementBans increments the ban counter by 1.
func (m *Metrics) IncrementBans() {
	if m != nil {
		m.Bans.Inc()
	}
}
