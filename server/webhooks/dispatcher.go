package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/meshboardio/meshboard/server/store"
	"github.com/meshboardio/meshboard/server/telemetry"
)

// HookSignatureHeader carries the hex HMAC-SHA256 of the delivery body,
// prefixed with "sha256=". Sent only when the webhook has a secret.
const HookSignatureHeader = "X-MB-Hook-Signature"

const (
	dispatchTimeout       = 5 * time.Second
	dispatchRetryInterval = 2 * time.Second
	// two retries after the initial attempt
	dispatchMaxRetries     = 2
	dispatchMaxConcurrent  = 8
	dispatchRatePerSecond  = 10
	dispatchBudget         = 30 * time.Second
	deliveryStatusMaxChars = 200
)

// Dispatcher fans board events out to the subscribed webhooks of a project.
// Implementations must not block the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, projectID, event string, payload any)
}

// DeliveryBody is the JSON document POSTed to a webhook URL.
type DeliveryBody struct {
	Event     string `json:"event"`
	ProjectID string `json:"project_id"`
	Payload   any    `json:"payload"`
}

// HTTPDispatcher delivers webhook payloads over HTTP, fire-and-forget per
// delivery: constant-interval retries, a global rate cap and a concurrency
// cap shared by all deliveries. Outcomes land on the webhook row.
type HTTPDispatcher struct {
	store   store.Store
	metrics *telemetry.WebhookMetrics
	client  *http.Client
	limiter *rate.Limiter
	sem     *semaphore.Weighted

	retryInterval time.Duration
}

// NewDispatcher creates a dispatcher with the default delivery tuning.
// metrics may be nil.
func NewDispatcher(store store.Store, metrics *telemetry.WebhookMetrics) *HTTPDispatcher {
	return &HTTPDispatcher{
		store:         store,
		metrics:       metrics,
		client:        &http.Client{Timeout: dispatchTimeout},
		limiter:       rate.NewLimiter(rate.Limit(dispatchRatePerSecond), 2*dispatchRatePerSecond),
		sem:           semaphore.NewWeighted(dispatchMaxConcurrent),
		retryInterval: dispatchRetryInterval,
	}
}

// Dispatch fans the event out to every active subscribed webhook of the
// project and returns immediately. Deliveries run detached from the request.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, projectID, event string, payload any) {
	webhooks, err := d.store.GetProjectWebhooks(ctx, store.LockingStrengthShare, projectID)
	if err != nil {
		log.WithContext(ctx).Errorf("failed to load webhooks for delivery: %s", err)
		return
	}

	body, err := json.Marshal(&DeliveryBody{Event: event, ProjectID: projectID, Payload: payload})
	if err != nil {
		log.WithContext(ctx).Errorf("failed to marshal the webhook payload: %s", err)
		return
	}

	for _, webhook := range webhooks {
		if !webhook.Subscribed(event) {
			continue
		}
		go d.deliver(webhook.ID, webhook.URL, webhook.Secret, event, body)
	}
}

func (d *HTTPDispatcher) deliver(webhookID, targetURL, secret, event string, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchBudget)
	defer cancel()

	if err := d.sem.Acquire(ctx, 1); err != nil {
		log.WithContext(ctx).Warnf("webhook %s delivery for %s dropped, no slot within the budget", webhookID, event)
		return
	}
	defer d.sem.Release(1)

	if err := d.limiter.Wait(ctx); err != nil {
		log.WithContext(ctx).Warnf("webhook %s delivery for %s dropped by the rate cap: %s", webhookID, event, err)
		return
	}

	start := time.Now()
	attempt := 0
	operation := func() error {
		attempt++
		if attempt > 1 && d.metrics != nil {
			d.metrics.CountRetry()
		}
		return d.post(ctx, targetURL, secret, body)
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(d.retryInterval), dispatchMaxRetries), ctx))

	deliveryStatus := "success"
	if err != nil {
		deliveryStatus = truncateStatus(fmt.Sprintf("error: %s", err))
		log.WithContext(ctx).Warnf("webhook %s delivery for %s failed after %d attempts: %s", webhookID, event, attempt, err)
	} else {
		log.WithContext(ctx).Debugf("webhook %s delivered %s in %d attempts", webhookID, event, attempt)
	}
	if d.metrics != nil {
		d.metrics.CountDelivery(err == nil, time.Since(start))
	}

	if err := d.store.SaveWebhookDelivery(ctx, webhookID, deliveryStatus, time.Now().UTC()); err != nil {
		log.WithContext(ctx).Warnf("failed to record the delivery outcome of webhook %s: %s", webhookID, err)
	}
}

func (d *HTTPDispatcher) post(ctx context.Context, targetURL, secret string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(HookSignatureHeader, SignDeliveryBody(secret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("unexpected response status: %s", resp.Status)
	}
	return nil
}

// SignDeliveryBody computes the HMAC header value receivers use to
// authenticate a delivery.
func SignDeliveryBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func truncateStatus(s string) string {
	if len(s) <= deliveryStatusMaxChars {
		return s
	}
	return s[:deliveryStatusMaxChars]
}
