package assessment

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/governance-platform/assessment/pkg/evaluation"
)

const meterName = "github.com/governance-platform/assessment"

type metrics struct {
	transitions metric.Int64Counter
	errors      metric.Int64Counter
	finalScore  metric.Int64Histogram
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	transitions, err := meter.Int64Counter("assessment.transitions",
		metric.WithDescription("Evaluation status transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}
	errs, err := meter.Int64Counter("assessment.operations.errors",
		metric.WithDescription("Failed assessment operations by kind"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}
	finalScore, err := meter.Int64Histogram("assessment.final_score",
		metric.WithDescription("Final score of approved evaluations"),
		metric.WithUnit("%"),
		metric.WithExplicitBucketBoundaries(50, 65, 80, 90, 100),
	)
	if err != nil {
		return nil, err
	}
	return &metrics{transitions: transitions, errors: errs, finalScore: finalScore}, nil
}

func (m *metrics) transition(ctx context.Context, from, to evaluation.Status) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
}

func (m *metrics) failure(ctx context.Context, op string, err error) {
	m.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("kind", ErrorKind(err)),
	))
}

func (m *metrics) approved(ctx context.Context, finalScore int, label string) {
	m.finalScore.Record(ctx, int64(finalScore), metric.WithAttributes(attribute.String("label", label)))
}

// ErrorKind classifies err by the sentinel it matches.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, evaluation.ErrValidation):
		return "validation"
	case errors.Is(err, evaluation.ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, evaluation.ErrNotFound):
		return "not_found"
	case errors.Is(err, evaluation.ErrIllegalTransition):
		return "illegal_transition"
	case errors.Is(err, evaluation.ErrForbidden):
		return "forbidden"
	case errors.Is(err, evaluation.ErrConflict):
		return "conflict"
	}
	return "internal"
}
