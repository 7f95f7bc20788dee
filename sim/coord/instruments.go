package coord

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/JasonLKelly/cosense-cloud/sim/risk"
)

const instrumentationName = "github.com/JasonLKelly/cosense-cloud/sim/coord"

// instruments are the coordinator's OTel metrics. Without an installed SDK
// provider they are no-ops.
type instruments struct {
	assessments    metric.Int64Counter
	decisions      metric.Int64Counter
	feedbackErrors metric.Int64Counter
	riskScore      metric.Float64Histogram
}

func newInstruments(mp metric.MeterProvider) (*instruments, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	m := mp.Meter(instrumentationName)
	inst := &instruments{}

	var err error
	inst.assessments, err = m.Int64Counter(
		"coord.assessments",
		metric.WithDescription("Robot telemetry samples scored"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating assessments counter: %w", err)
	}

	inst.decisions, err = m.Int64Counter(
		"coord.decisions",
		metric.WithDescription("Coordination decisions emitted"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating decisions counter: %w", err)
	}

	inst.feedbackErrors, err = m.Int64Counter(
		"coord.feedback.errors",
		metric.WithDescription("Decisions that could not be delivered to the simulator"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating feedback error counter: %w", err)
	}

	inst.riskScore, err = m.Float64Histogram(
		"coord.risk.score",
		metric.WithDescription("Risk score per assessment"),
		metric.WithExplicitBucketBoundaries(0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1),
	)
	if err != nil {
		return nil, fmt.Errorf("creating risk histogram: %w", err)
	}

	return inst, nil
}

func (i *instruments) recordAssessment(ctx context.Context, a risk.Assessment) {
	attrs := metric.WithAttributes(attribute.String("action", string(a.Action)))
	i.assessments.Add(ctx, 1, attrs)
	i.riskScore.Record(ctx, a.RiskScore, attrs)
}

func (i *instruments) recordDecision(ctx context.Context, d Decision) {
	i.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", string(d.Action)),
		attribute.String("primary_reason", string(d.PrimaryReason)),
	))
}

func (i *instruments) recordFeedbackError(ctx context.Context, d Decision) {
	i.feedbackErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("action", string(d.Action))))
}
