package timer

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"eiprobe/lib/tracer"
)

var phaseDuration = promauto.NewSummaryVec(prometheus.SummaryOpts{
	Name: "smoke_phase_duration_seconds",
	Help: "Duration of the phases of an endpoint smoke run",
	Objectives: map[float64]float64{
		0.50: 0.05,
		0.90: 0.05,
		0.99: 0.01,
	},
}, []string{"phase"})

var phaseFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "smoke_phase_failures_total",
	Help: "Number of failed phases of an endpoint smoke run",
}, []string{"phase"})

// Timer measures one phase. It also owns the span of that phase, so callers
// should run the phase with Context().
type Timer struct {
	phase string
	timer *prometheus.Timer
	span  tracer.Span
}

func (t Timer) Context() context.Context {
	return t.span.Context()
}

// Stop records the duration of the phase, and a failure when err is non-nil.
func (t Timer) Stop(err error) {
	t.timer.ObserveDuration()
	record(t.span.Context(), t.phase)
	if err != nil {
		phaseFailures.WithLabelValues(t.phase).Inc()
	}
	t.span.RecordError(err)
	t.span.End()
}

func Start(ctx context.Context, phase string) Timer {
	return Timer{
		phase: phase,
		timer: prometheus.NewTimer(phaseDuration.WithLabelValues(phase)),
		span:  tracer.StartSpan(ctx, phase),
	}
}
