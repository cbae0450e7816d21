package weaver

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the pass-level counters the driver reports through,
// grounded on the teacher's internal/hooks/hooks_otel.go (which attaches
// OpenTelemetry instrumentation to hook execution) adapted here from
// spans to counters, since a BFS pass is better described by "how many
// new_children/new_edges/failed this pass" than by a single span.
type Metrics struct {
	newEntities metric.Int64Counter
	newEdges    metric.Int64Counter
	failed      metric.Int64Counter
}

// NewMetrics instruments meter with the three run_* counters. A nil
// meter yields a Metrics whose recordPass calls are no-ops, so Engine can be
// used without any telemetry wired up at all.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	if meter == nil {
		return Metrics{}, nil
	}
	newEntities, err := meter.Int64Counter("run_new_entities",
		metric.WithDescription("entities newly observed across every BFS pass"))
	if err != nil {
		return Metrics{}, err
	}
	newEdges, err := meter.Int64Counter("run_new_edges",
		metric.WithDescription("edges newly committed across every BFS pass"))
	if err != nil {
		return Metrics{}, err
	}
	failed, err := meter.Int64Counter("run_failed",
		metric.WithDescription("failed parent and child fetches across every BFS pass"))
	if err != nil {
		return Metrics{}, err
	}
	return Metrics{newEntities: newEntities, newEdges: newEdges, failed: failed}, nil
}

func (m Metrics) recordPass(ctx context.Context, pr PassResult) {
	if m.newEntities == nil {
		return
	}
	m.newEntities.Add(ctx, int64(pr.NewChildren))
	m.newEdges.Add(ctx, int64(pr.NewEdges))
	m.failed.Add(ctx, int64(pr.FailedChildren+pr.FailedParents))
}
