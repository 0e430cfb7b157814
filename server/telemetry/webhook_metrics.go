package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// WebhookMetrics are all metrics related to outbound webhook deliveries
type WebhookMetrics struct {
	deliveryCounter  metric.Int64Counter
	deliveryDuration metric.Int64Histogram
	retryCounter     metric.Int64Counter
	ctx              context.Context
}

// NewWebhookMetrics creates an instance of WebhookMetrics
func NewWebhookMetrics(ctx context.Context, meter metric.Meter) (*WebhookMetrics, error) {
	deliveryCounter, err := meter.Int64Counter("meshboard.webhook.delivery.counter", metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	deliveryDuration, err := meter.Int64Histogram("meshboard.webhook.delivery.duration.ms", metric.WithUnit("milliseconds"))
	if err != nil {
		return nil, err
	}

	retryCounter, err := meter.Int64Counter("meshboard.webhook.retry.counter", metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	return &WebhookMetrics{
		deliveryCounter:  deliveryCounter,
		deliveryDuration: deliveryDuration,
		retryCounter:     retryCounter,
		ctx:              ctx,
	}, nil
}

// CountDelivery counts one finished delivery attempt chain by outcome and records its duration
func (metrics *WebhookMetrics) CountDelivery(success bool, duration time.Duration) {
	opts := metric.WithAttributeSet(attribute.NewSet(attribute.Bool("success", success)))
	metrics.deliveryCounter.Add(metrics.ctx, 1, opts)
	metrics.deliveryDuration.Record(metrics.ctx, duration.Milliseconds(), opts)
}

// CountRetry counts one delivery retry
func (metrics *WebhookMetrics) CountRetry() {
	metrics.retryCounter.Add(metrics.ctx, 1)
}
