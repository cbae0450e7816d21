package weaver

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetricsRecordPassAgainstRealReader(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	m, err := NewMetrics(provider.Meter("weaver_test"))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.recordPass(context.Background(), PassResult{NewChildren: 2, NewEdges: 3, FailedChildren: 1, FailedParents: 1})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(rm.ScopeMetrics) == 0 || len(rm.ScopeMetrics[0].Metrics) != 3 {
		t.Fatalf("expected 3 recorded counters, got scope metrics: %+v", rm.ScopeMetrics)
	}
}

func TestMetricsNilMeterIsNoop(t *testing.T) {
	m, err := NewMetrics(nil)
	if err != nil {
		t.Fatalf("NewMetrics(nil): %v", err)
	}
	// Must not panic with no counters wired.
	m.recordPass(context.Background(), PassResult{NewChildren: 1})
}
