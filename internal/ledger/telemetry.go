package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/fintech-dev/ledger/internal/ledger"

type telemetry struct {
	tracer    trace.Tracer
	transfers metric.Int64Counter
	retries   metric.Int64Counter
	duration  metric.Float64Histogram
}

func newTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) (*telemetry, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	transfers, err := meter.Int64Counter("ledger.transfers",
		metric.WithDescription("Transfers by outcome"))
	if err != nil {
		return nil, fmt.Errorf("creating transfers counter: %w", err)
	}
	retries, err := meter.Int64Counter("ledger.transfer.retries",
		metric.WithDescription("Transfer attempts retried after a conflict or timeout"))
	if err != nil {
		return nil, fmt.Errorf("creating retries counter: %w", err)
	}
	duration, err := meter.Float64Histogram("ledger.transfer.duration",
		metric.WithDescription("Transfer latency including retries"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	return &telemetry{
		tracer:    tp.Tracer(instrumentationName),
		transfers: transfers,
		retries:   retries,
		duration:  duration,
	}, nil
}

// outcome is the metric label for a transfer result.
func outcome(err error) string {
	if err == nil {
		return "completed"
	}
	if k := KindOf(err); k != "" {
		return strings.ToLower(string(k))
	}
	return "error"
}

func (t *telemetry) finish(ctx context.Context, span trace.Span, strategy Strategy, start time.Time, err error) {
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome(err)),
		attribute.String("strategy", string(strategy)),
	)
	t.transfers.Add(ctx, 1, attrs)
	t.duration.Record(ctx, time.Since(start).Seconds(), attrs)

	span.SetAttributes(attribute.String("ledger.outcome", outcome(err)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

func (t *telemetry) retried(ctx context.Context, strategy Strategy, err error) {
	t.retries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", outcome(err)),
		attribute.String("strategy", string(strategy)),
	))
}
