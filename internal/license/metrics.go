package license

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const MeterName = "license-engine"

// Metrics holds the engine's OpenTelemetry instruments. A nil *Metrics is
// valid and records nothing, so tests can build engines without a meter.
type Metrics struct {
	Issued      metric.Int64Counter
	Validations metric.Int64Counter
	Revocations metric.Int64Counter
	Duration    metric.Float64Histogram
}

// NewMetrics creates the engine's instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error
	m.Issued, err = meter.Int64Counter(
		"license_issued_total",
		metric.WithDescription("Total number of licenses issued"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create issued counter: %w", err)
	}

	m.Validations, err = meter.Int64Counter(
		"license_validations_total",
		metric.WithDescription("Total number of license validations by verdict"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validations counter: %w", err)
	}

	m.Revocations, err = meter.Int64Counter(
		"license_revocations_total",
		metric.WithDescription("Total number of license revocations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create revocations counter: %w", err)
	}

	m.Duration, err = meter.Float64Histogram(
		"license_operation_duration_seconds",
		metric.WithDescription("License engine operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return m, nil
}

func (m *Metrics) recordIssued(ctx context.Context) {
	if m == nil || m.Issued == nil {
		return
	}
	m.Issued.Add(ctx, 1)
}

func (m *Metrics) recordValidation(ctx context.Context, verdict Verdict) {
	if m == nil || m.Validations == nil {
		return
	}
	m.Validations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("verdict", string(verdict)),
	))
}

func (m *Metrics) recordRevocation(ctx context.Context) {
	if m == nil || m.Revocations == nil {
		return
	}
	m.Revocations.Add(ctx, 1)
}

func (m *Metrics) recordDuration(ctx context.Context, operation string, start time.Time) {
	if m == nil || m.Duration == nil {
		return
	}
	m.Duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("operation", operation),
	))
}
