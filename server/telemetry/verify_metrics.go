package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// VerifyMetrics are all metrics related to request signature verification
type VerifyMetrics struct {
	verificationCounter  metric.Int64Counter
	verificationDuration metric.Int64Histogram
	diagnosisCounter     metric.Int64Counter
	ctx                  context.Context
}

// NewVerifyMetrics creates an instance of VerifyMetrics
func NewVerifyMetrics(ctx context.Context, meter metric.Meter) (*VerifyMetrics, error) {
	verificationCounter, err := meter.Int64Counter("meshboard.verify.result.counter", metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	verificationDuration, err := meter.Int64Histogram("meshboard.verify.duration.ms", metric.WithUnit("milliseconds"))
	if err != nil {
		return nil, err
	}

	diagnosisCounter, err := meter.Int64Counter("meshboard.verify.diagnosis.counter", metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	return &VerifyMetrics{
		verificationCounter:  verificationCounter,
		verificationDuration: verificationDuration,
		diagnosisCounter:     diagnosisCounter,
		ctx:                  ctx,
	}, nil
}

// CountVerification counts one verification outcome by status and records how long it took
func (metrics *VerifyMetrics) CountVerification(status string, duration time.Duration) {
	opts := metric.WithAttributeSet(attribute.NewSet(attribute.String("status", status)))
	metrics.verificationCounter.Add(metrics.ctx, 1, opts)
	metrics.verificationDuration.Record(metrics.ctx, duration.Milliseconds(), opts)
}

// CountDiagnosis counts one mismatch diagnosis run and whether a variant matched
func (metrics *VerifyMetrics) CountDiagnosis(matched bool) {
	opts := metric.WithAttributeSet(attribute.NewSet(attribute.Bool("matched", matched)))
	metrics.diagnosisCounter.Add(metrics.ctx, 1, opts)
}
