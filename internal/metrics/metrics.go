// Package metrics exposes the ledger's prometheus instruments.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mmynk/splitledger/internal/ledger"
)

var _ ledger.Recorder = (*Metrics)(nil)

// Metrics implements ledger.Recorder and the scheduler's sweep observer.
// A nil *Metrics records nothing.
type Metrics struct {
	membership  *prometheus.CounterVec
	allocations *prometheus.CounterVec
	rollovers   *prometheus.CounterVec
	sweeps      prometheus.Histogram
	sweepSize   prometheus.Histogram
}

// New creates the instruments and registers them with registerer.
// A nil registerer means prometheus.DefaultRegisterer.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		membership: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splitledger_membership_mutations_total",
			Help: "Group and topic mutations by operation and result.",
		}, []string{"op", "result"}),
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splitledger_allocation_batches_total",
			Help: "Allocation batches by result.",
		}, []string{"result"}),
		rollovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "splitledger_rollovers_total",
			Help: "Rollover attempts by result: rolled, skipped or error.",
		}, []string{"result"}),
		sweeps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "splitledger_rollover_sweep_duration_seconds",
			Help:    "Duration of one rollover sweep over due expenses.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		sweepSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "splitledger_rollover_sweep_expenses",
			Help:    "Due expenses picked up by one rollover sweep.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
	registerer.MustRegister(m.membership, m.allocations, m.rollovers, m.sweeps, m.sweepSize)
	return m
}

// MembershipMutation counts a group or topic mutation.
func (m *Metrics) MembershipMutation(op, result string) {
	if m == nil {
		return
	}
	m.membership.WithLabelValues(op, result).Inc()
}

// AllocationBatch counts an allocation batch.
func (m *Metrics) AllocationBatch(result string) {
	if m == nil {
		return
	}
	m.allocations.WithLabelValues(result).Inc()
}

// Rollover counts a rollover attempt.
func (m *Metrics) Rollover(result string) {
	if m == nil {
		return
	}
	m.rollovers.WithLabelValues(result).Inc()
}

// ObserveSweep records one scheduler sweep.
func (m *Metrics) ObserveSweep(elapsed time.Duration, expenses int) {
	if m == nil {
		return
	}
	m.sweeps.Observe(elapsed.Seconds())
	m.sweepSize.Observe(float64(expenses))
}
