// Package metrics exposes Prometheus instruments for the reservation flow.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "seat_reservation"

type Metrics struct {
	holds         *prometheus.CounterVec
	releases      *prometheus.CounterVec
	confirms      *prometheus.CounterVec
	reclaimed     prometheus.Counter
	reclaimFailed prometheus.Counter
	reapDuration  prometheus.Histogram
	waitlistJoins *prometheus.CounterVec
	waitlistPops  prometheus.Counter
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		holds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "holds_total",
			Help:      "Seat hold attempts by result.",
		}, []string{"result"}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "releases_total",
			Help:      "Explicit hold releases by result.",
		}, []string{"result"}),
		confirms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirmations_total",
			Help:      "Booking confirmations by result.",
		}, []string{"result"}),
		reclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaper_reclaimed_total",
			Help:      "Abandoned holds returned to AVAILABLE.",
		}),
		reclaimFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaper_failed_total",
			Help:      "Seats the reaper failed to reclaim.",
		}),
		reapDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reaper_tick_duration_seconds",
			Help:      "Duration of a reaper tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		waitlistJoins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "waitlist_joins_total",
			Help:      "Waitlist join attempts by result.",
		}, []string{"result"}),
		waitlistPops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "waitlist_pops_total",
			Help:      "Users popped from a waitlist after a seat was freed.",
		}),
	}
	reg.MustRegister(m.holds, m.releases, m.confirms, m.reclaimed, m.reclaimFailed,
		m.reapDuration, m.waitlistJoins, m.waitlistPops)
	return m
}

func (m *Metrics) Hold(result string) {
	if m == nil {
		return
	}
	m.holds.WithLabelValues(result).Inc()
}

func (m *Metrics) Release(result string) {
	if m == nil {
		return
	}
	m.releases.WithLabelValues(result).Inc()
}

func (m *Metrics) Confirm(result string) {
	if m == nil {
		return
	}
	m.confirms.WithLabelValues(result).Inc()
}

// ReapTick records one reaper pass.
func (m *Metrics) ReapTick(reclaimed, failed int, took time.Duration) {
	if m == nil {
		return
	}
	m.reclaimed.Add(float64(reclaimed))
	m.reclaimFailed.Add(float64(failed))
	m.reapDuration.Observe(took.Seconds())
}

func (m *Metrics) WaitlistJoin(result string) {
	if m == nil {
		return
	}
	m.waitlistJoins.WithLabelValues(result).Inc()
}

func (m *Metrics) WaitlistPop() {
	if m == nil {
		return
	}
	m.waitlistPops.Inc()
}
