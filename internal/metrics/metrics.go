package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is nil-safe: a nil *Metrics records nothing.
type Metrics struct {
	classifications *prometheus.CounterVec
	assignments     *prometheus.CounterVec
	batchItems      *prometheus.CounterVec
	rebalanceMoves  prometheus.Counter
	passes          *prometheus.CounterVec
	passDuration    *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_classifications_total",
			Help: "Complaint classifications by source.",
		}, []string{"source"}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_assignments_total",
			Help: "Committed assignments by action.",
		}, []string{"action"}),
		batchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_batch_items_total",
			Help: "Batch items by outcome.",
		}, []string{"outcome"}),
		rebalanceMoves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triage_rebalance_moves_total",
			Help: "Complaints moved by workload rebalancing.",
		}),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_automation_passes_total",
			Help: "Automation passes by kind and result.",
		}, []string{"kind", "result"}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "triage_automation_pass_seconds",
			Help:    "Automation pass duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.classifications, m.assignments, m.batchItems, m.rebalanceMoves, m.passes, m.passDuration)
	}
	return m
}

func (m *Metrics) Classification(source string) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(source).Inc()
}

func (m *Metrics) Assignment(action string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(action).Inc()
}

func (m *Metrics) BatchItem(outcome string) {
	if m == nil {
		return
	}
	m.batchItems.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RebalanceMove() {
	if m == nil {
		return
	}
	m.rebalanceMoves.Inc()
}

func (m *Metrics) Pass(kind, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(kind, result).Inc()
	if d > 0 {
		m.passDuration.WithLabelValues(kind).Observe(d.Seconds())
	}
}
