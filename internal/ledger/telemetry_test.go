package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/fintech-dev/ledger/internal/store"
	"github.com/fintech-dev/ledger/internal/store/memory"
)

func TestTransfer_Telemetry(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	s := memory.New()
	seedPair(t, s)
	cfg := testConfig(nil)
	cfg.TracerProvider = tp
	cfg.MeterProvider = mp
	e, err := New(s, cfg)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = e.Transfer(ctx, req30)
	require.NoError(t, err)
	_, err = e.Transfer(ctx, TransferRequest{Caller: alice, SourceAccountID: "acc-s", DestinationAccountNumber: "000000000002", Amount: dec("0")})
	require.ErrorIs(t, err, ErrInvalidAmount)

	ended := spans.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "ledger.transfer", ended[0].Name())
	assert.Equal(t, codes.Ok, ended[0].Status().Code)
	assert.Equal(t, codes.Error, ended[1].Status().Code)
	assert.Contains(t, ended[1].Attributes(), attribute.String("ledger.outcome", "invalid_amount"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	counts := map[string]int64{}
	var sawHistogram bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if m.Name != "ledger.transfers" {
					continue
				}
				for _, dp := range data.DataPoints {
					v, _ := dp.Attributes.Value("outcome")
					counts[v.AsString()] += dp.Value
				}
			case metricdata.Histogram[float64]:
				if m.Name == "ledger.transfer.duration" {
					sawHistogram = true
				}
			}
		}
	}
	assert.Equal(t, int64(1), counts["completed"])
	assert.Equal(t, int64(1), counts["invalid_amount"])
	assert.True(t, sawHistogram)
}

func TestTransfer_RetryMetric(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	s := &casStore{Store: memory.New(), failOn: map[int]error{1: store.ErrConflict}}
	seedPair(t, s)
	cfg := testConfig(nil)
	cfg.MeterProvider = mp
	e, err := New(s, cfg)
	require.NoError(t, err)

	_, err = e.Transfer(context.Background(), req30)
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var retries int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok && m.Name == "ledger.transfer.retries" {
				for _, dp := range sum.DataPoints {
					retries += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(1), retries)
}
