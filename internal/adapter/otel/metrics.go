package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "syncbridge"

// Metrics holds the engine's metric instruments.
type Metrics struct {
	Enqueued  metric.Int64Counter
	Completed metric.Int64Counter
	Failed    metric.Int64Counter
	Conflicts metric.Int64Counter
	Duration  metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Enqueued, err = meter.Int64Counter("syncbridge.entities.enqueued",
		metric.WithDescription("Number of entities enqueued for reconciliation"))
	if err != nil {
		return nil, err
	}

	m.Completed, err = meter.Int64Counter("syncbridge.reconciliations.completed",
		metric.WithDescription("Number of reconciliation attempts that completed"))
	if err != nil {
		return nil, err
	}

	m.Failed, err = meter.Int64Counter("syncbridge.reconciliations.failed",
		metric.WithDescription("Number of reconciliation attempts that failed"))
	if err != nil {
		return nil, err
	}

	m.Conflicts, err = meter.Int64Counter("syncbridge.reconciliations.conflicts",
		metric.WithDescription("Number of reconciliation attempts that ended in conflict"))
	if err != nil {
		return nil, err
	}

	m.Duration, err = meter.Float64Histogram("syncbridge.reconcile.duration_seconds",
		metric.WithDescription("Reconciliation attempt duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RegisterQueueDepth exposes the work queue depth as an observable gauge.
func RegisterQueueDepth(depth func() int) error {
	meter := otel.Meter(meterName)
	gauge, err := meter.Int64ObservableGauge("syncbridge.queue.depth",
		metric.WithDescription("Entity IDs currently awaiting reconciliation"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(gauge, int64(depth()))
		return nil
	}, gauge)
	return err
}
