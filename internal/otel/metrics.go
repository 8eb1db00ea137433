package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the instruments recorded by hooks and the refresher.
type Metrics struct {
	HookInvocations   metric.Int64Counter
	PriorityAssigned  metric.Int64Counter
	RecomputeDuration metric.Float64Histogram
	QueryErrors       metric.Int64Counter
	RCWriteErrors     metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.HookInvocations, err = meter.Int64Counter("need.hook.invocations",
		metric.WithDescription("Hook runs by hook name and outcome"),
	)
	if err != nil {
		return nil, err
	}

	m.PriorityAssigned, err = meter.Int64Counter("need.priority.assigned",
		metric.WithDescription("Priorities written by a hook, by level and source"),
	)
	if err != nil {
		return nil, err
	}

	m.RecomputeDuration, err = meter.Float64Histogram("need.recompute.duration",
		metric.WithDescription("Context recomputation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.QueryErrors, err = meter.Int64Counter("need.query.errors",
		metric.WithDescription("Failed per-level count queries"),
	)
	if err != nil {
		return nil, err
	}

	m.RCWriteErrors, err = meter.Int64Counter("need.rc.write_errors",
		metric.WithDescription("Failed rc file writes"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// The helpers below accept a nil *Metrics so callers can run uninstrumented.

func (m *Metrics) RecordHook(ctx context.Context, hook, outcome string) {
	if m == nil {
		return
	}
	m.HookInvocations.Add(ctx, 1, metric.WithAttributes(AttrHook.String(hook), AttrOutcome.String(outcome)))
}

func (m *Metrics) RecordAssigned(ctx context.Context, level int, source string) {
	if m == nil {
		return
	}
	m.PriorityAssigned.Add(ctx, 1, metric.WithAttributes(AttrLevel.Int(level), AttrSource.String(source)))
}

func (m *Metrics) RecordRecompute(ctx context.Context, trigger string, d time.Duration, queryErrors int, writeFailed bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(AttrTrigger.String(trigger))
	m.RecomputeDuration.Record(ctx, d.Seconds(), attrs)
	if queryErrors > 0 {
		m.QueryErrors.Add(ctx, int64(queryErrors), attrs)
	}
	if writeFailed {
		m.RCWriteErrors.Add(ctx, 1, attrs)
	}
}
