package proactive

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/xiaoban/internal/telemetry"
)

type engineMetrics struct {
	ticks         metric.Int64Counter
	skipped       metric.Int64Counter
	fired         metric.Int64Counter
	synthFailures metric.Int64Counter
}

// newEngineMetrics registers the engine's instruments. Registration errors
// leave a no-op instrument in place.
func newEngineMetrics(e *Engine) *engineMetrics {
	meter := telemetry.Meter("xiaoban/proactive")

	m := &engineMetrics{}
	m.ticks, _ = meter.Int64Counter("xiaoban.proactive.ticks",
		metric.WithDescription("Scheduled evaluation passes run"))
	m.skipped, _ = meter.Int64Counter("xiaoban.proactive.ticks_skipped",
		metric.WithDescription("Ticks skipped because the previous pass was still running"))
	m.fired, _ = meter.Int64Counter("xiaoban.proactive.fired",
		metric.WithDescription("Rules that fired and produced a message"))
	m.synthFailures, _ = meter.Int64Counter("xiaoban.proactive.synthesis_failures",
		metric.WithDescription("Fired rules whose message generation failed"))

	_, _ = meter.Int64ObservableGauge("xiaoban.proactive.pending",
		metric.WithDescription("Messages waiting in the pending queue"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(e.queue.Len()))
			return nil
		}),
	)
	return m
}

func (m *engineMetrics) recordFired(ctx context.Context, ruleID string) {
	m.fired.Add(ctx, 1, metric.WithAttributes(attribute.String("rule_id", ruleID)))
}
