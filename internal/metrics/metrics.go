// Package metrics exposes executor activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch outcomes.
const (
	OutcomeMoved    = "moved"
	OutcomeReleased = "released"
	OutcomeErrored  = "errored"
	OutcomeFailed   = "failed"
	OutcomeTimeout  = "timeout"
	OutcomeStopped  = "stopped"
	OutcomeAbandon  = "abandoned"
)

// Recorder holds the executor's collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	claimsTotal      *prometheus.CounterVec
	dispatchesTotal  *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	busy             *prometheus.GaugeVec
	expiredTotal     prometheus.Counter
	tickErrorsTotal  *prometheus.CounterVec
}

// NewRecorder registers the collectors on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		claimsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openlares_task_claims_total",
				Help: "Tasks claimed by an executor",
			},
			[]string{"agent_id"},
		),
		dispatchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openlares_dispatches_total",
				Help: "Finished dispatches by outcome",
			},
			[]string{"agent_id", "outcome"},
		),
		dispatchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "openlares_dispatch_duration_seconds",
				Help:    "Time from dispatch to resolution",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
			},
			[]string{"agent_id"},
		),
		busy: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "openlares_executor_busy",
				Help: "1 while the executor holds a task",
			},
			[]string{"agent_id"},
		),
		expiredTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "openlares_stale_claims_expired_total",
				Help: "Claims errored for exceeding the execution timeout",
			},
		),
		tickErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openlares_tick_errors_total",
				Help: "Poll steps that failed to reach the store",
			},
			[]string{"agent_id"},
		),
	}
}

// Claimed counts a claim and marks the executor busy.
func (r *Recorder) Claimed(agentID string) {
	if r == nil {
		return
	}
	r.claimsTotal.WithLabelValues(agentID).Inc()
	r.busy.WithLabelValues(agentID).Set(1)
}

// Finished records the outcome and duration of a dispatch and marks the
// executor idle.
func (r *Recorder) Finished(agentID, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.dispatchesTotal.WithLabelValues(agentID, outcome).Inc()
	r.dispatchDuration.WithLabelValues(agentID).Observe(d.Seconds())
	r.busy.WithLabelValues(agentID).Set(0)
}

// Expired counts claims errored by the stale-claim sweep.
func (r *Recorder) Expired(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.expiredTotal.Add(float64(n))
}

// TickError counts a failed poll step.
func (r *Recorder) TickError(agentID string) {
	if r == nil {
		return
	}
	r.tickErrorsTotal.WithLabelValues(agentID).Inc()
}
