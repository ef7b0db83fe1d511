package application

import (
	"context"

	"github.com/arkade-os/marketd/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/arkade-os/marketd/internal/core/application"

// opMetrics counts operations by outcome. Without a configured meter provider the global
// no-op one is used.
type opMetrics struct {
	operations metric.Int64Counter
	failures   metric.Int64Counter
}

func newOpMetrics() (*opMetrics, error) {
	meter := otel.Meter(meterName)

	operations, err := meter.Int64Counter(
		"marketd.operations",
		metric.WithDescription("Number of market operations processed"),
	)
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter(
		"marketd.operations.failed",
		metric.WithDescription("Number of market operations rejected, by error code"),
	)
	if err != nil {
		return nil, err
	}
	return &opMetrics{operations, failures}, nil
}

func (m *opMetrics) record(ctx context.Context, op string, err errors.Error) {
	if m == nil {
		return
	}
	opAttr := attribute.String("operation", op)
	m.operations.Add(ctx, 1, metric.WithAttributes(opAttr))
	if err != nil {
		m.failures.Add(ctx, 1, metric.WithAttributes(
			opAttr, attribute.String("code", err.CodeName()),
		))
	}
}
