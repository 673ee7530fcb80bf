package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the service-level instruments. A zero Metrics records nothing.
type Metrics struct {
	transitions     metric.Int64Counter
	transitionFails metric.Int64Counter
	statsLatency    metric.Float64Histogram
	cacheLookups    metric.Int64Counter
	autoCompleted   metric.Int64Counter
}

// NewMetrics registers instruments on meter, or the global provider when nil.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	var (
		m   Metrics
		err error
	)
	if m.transitions, err = meter.Int64Counter("orders.status.transitions",
		metric.WithDescription("Accepted order status transitions")); err != nil {
		return nil, err
	}
	if m.transitionFails, err = meter.Int64Counter("orders.status.rejections",
		metric.WithDescription("Rejected order status transition attempts")); err != nil {
		return nil, err
	}
	if m.statsLatency, err = meter.Float64Histogram("statistics.compute.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Time spent computing a statistics report")); err != nil {
		return nil, err
	}
	if m.cacheLookups, err = meter.Int64Counter("statistics.cache.lookups",
		metric.WithDescription("Statistics cache lookups by outcome")); err != nil {
		return nil, err
	}
	if m.autoCompleted, err = meter.Int64Counter("orders.autocomplete.completed",
		metric.WithDescription("Delivered orders closed by the auto-complete job")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("from", from), attribute.String("to", to)))
}

func (m *Metrics) RecordRejection(ctx context.Context, reason string) {
	if m == nil || m.transitionFails == nil {
		return
	}
	m.transitionFails.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) RecordStatistics(ctx context.Context, report string, elapsed time.Duration) {
	if m == nil || m.statsLatency == nil {
		return
	}
	m.statsLatency.Record(ctx, float64(elapsed)/float64(time.Millisecond), metric.WithAttributes(attribute.String("report", report)))
}

func (m *Metrics) RecordCacheLookup(ctx context.Context, report string, hit bool) {
	if m == nil || m.cacheLookups == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("report", report), attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordAutoCompleted(ctx context.Context, n int) {
	if m == nil || m.autoCompleted == nil || n == 0 {
		return
	}
	m.autoCompleted.Add(ctx, int64(n))
}
