// Package webhook implements the Webhook Dispatcher: fanning job lifecycle
// events out to subscriber URLs with signed payloads, at-least-once
// delivery, and bounded exponential-backoff retries.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/careerforge/backend/internal/common"
	"github.com/careerforge/backend/internal/interfaces"
	"github.com/careerforge/backend/internal/models"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// maxResponseSnippet bounds how much of a subscriber's response body gets
// recorded in a DeliveryAttempt.
const maxResponseSnippet = 512

// Dispatcher implements interfaces.WebhookDispatcher against a WebhookStore
// and plain net/http, signing every outbound payload with the subscription's
// secret the way a bearer API signs a webhook body for its consumers.
type Dispatcher struct {
	store  interfaces.WebhookStore
	jobSvc interfaces.JobService
	client *http.Client
	cfg    *common.WebhookConfig
	logger *common.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a new Dispatcher. jobSvc is used to drive webhook_delivery
// jobs through the same create-then-enqueue protocol and retry/backoff
// state machine as every other domain (spec §6's "webhook delivery test" is
// just another job submission).
func New(store interfaces.WebhookStore, jobSvc interfaces.JobService, cfg *common.WebhookConfig, logger *common.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		jobSvc:   jobSvc,
		client:   &http.Client{Timeout: cfg.GetTimeout()},
		cfg:      cfg,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (d *Dispatcher) limiterFor(subscriptionID string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l, ok := d.limiters[subscriptionID]; ok {
		return l
	}
	rps := d.cfg.GetRatePerSecond()
	l := rate.NewLimiter(rate.Limit(rps), rps+1)
	d.limiters[subscriptionID] = l
	return l
}

// deliveryPayload is the Job.Payload shape of a webhook_delivery job: the
// originating event plus enough context for the Processor to locate its
// WebhookDelivery Domain Record (linked by Job.ExternalID, spec §3).
type deliveryPayload struct {
	SubscriptionID string `json:"subscription_id"`
	EventType      string `json:"event_type"`
	SourceJobID    string `json:"source_job_id,omitempty"`
	Body           any    `json:"body"`
}

// Notify fans an event out to every active subscription matching it,
// creating one WebhookDelivery (the Domain Record) and one webhook_delivery
// Job per match. The Job Service's own retry/backoff state machine drives
// delivery attempts from there, exactly like any other domain.
func (d *Dispatcher) Notify(ctx context.Context, eventType string, jobExternalID string, payload any) error {
	subs, err := d.store.ListActiveSubscriptionsForEvent(ctx, eventType)
	if err != nil {
		return common.Wrap(common.ErrKindTransient, "webhook.Dispatcher.Notify", err)
	}

	for _, sub := range subs {
		maxRetries := sub.MaxRetries
		if maxRetries <= 0 {
			maxRetries = d.cfg.GetMaxRetries()
		}
		deliveryJobID := uuid.New().String()

		delivery := &models.WebhookDelivery{
			SubscriptionID: sub.ID,
			JobExternalID:  deliveryJobID,
			SourceJobID:    jobExternalID,
			EventType:      eventType,
			Payload:        payload,
			Status:         models.DeliveryStatusPending,
		}
		if err := d.store.InsertDelivery(ctx, nil, delivery); err != nil {
			d.logger.Warn().Err(err).Str("subscription_id", sub.ID).Str("event", eventType).
				Msg("webhook: failed to record delivery, skipping subscriber")
			continue
		}

		np := deliveryPayload{SubscriptionID: sub.ID, EventType: eventType, SourceJobID: jobExternalID, Body: payload}
		_, _, err := d.jobSvc.CreateJob(ctx, models.JobTypeWebhookDelivery, np, interfaces.CreateJobOptions{
			ExternalID: deliveryJobID,
			OwnerID:    sub.OwnerID,
			MaxRetries: maxRetries,
		})
		if err != nil {
			d.logger.Warn().Err(err).Str("subscription_id", sub.ID).Str("event", eventType).
				Msg("webhook: failed to queue delivery job")
		}
	}
	return nil
}

// Deliver performs a single HTTP attempt against a pending/retrying delivery
// and records its outcome, scheduling a retry or marking it exhausted.
func (d *Dispatcher) Deliver(ctx context.Context, deliveryID string) error {
	delivery, err := d.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return common.Wrap(common.ErrKindTransient, "webhook.Dispatcher.Deliver", err)
	}
	if delivery == nil {
		return common.New(common.ErrKindNotFound, "webhook.Dispatcher.Deliver", "delivery not found: "+deliveryID)
	}
	if delivery.Status == models.DeliveryStatusSuccess || delivery.Status == models.DeliveryStatusExhausted {
		return nil
	}

	sub, err := d.store.GetSubscription(ctx, delivery.SubscriptionID)
	if err != nil {
		return common.Wrap(common.ErrKindTransient, "webhook.Dispatcher.Deliver", err)
	}
	if sub == nil || !sub.Active {
		_, _ = d.store.AppendAttempt(ctx, delivery.ID, models.DeliveryAttempt{
			AttemptNum: len(delivery.Attempts) + 1,
			Timestamp:  time.Now(),
			Error:      "subscription inactive or deleted",
		}, models.DeliveryStatusExhausted, nil)
		return common.New(common.ErrKindFatal, "webhook.Dispatcher.Deliver", "subscription inactive: "+delivery.SubscriptionID)
	}

	if err := d.limiterFor(sub.ID).Wait(ctx); err != nil {
		return common.Wrap(common.ErrKindCancelled, "webhook.Dispatcher.Deliver", err)
	}

	attemptNum := len(delivery.Attempts) + 1
	start := time.Now()
	statusCode, bodySnippet, sendErr := d.send(ctx, sub, delivery)
	duration := time.Since(start)

	attempt := models.DeliveryAttempt{
		AttemptNum:   attemptNum,
		Timestamp:    start,
		StatusCode:   statusCode,
		ResponseBody: bodySnippet,
		DurationMS:   duration.Milliseconds(),
	}
	if sendErr != nil {
		attempt.Error = sendErr.Error()
	}

	success := sendErr == nil && models.IsSuccessStatusCode(statusCode)
	maxRetries := sub.MaxRetries
	if maxRetries <= 0 {
		maxRetries = d.cfg.GetMaxRetries()
	}

	var newStatus string
	var nextRetryAt *time.Time
	switch {
	case success:
		newStatus = models.DeliveryStatusSuccess
	case attemptNum > maxRetries:
		newStatus = models.DeliveryStatusExhausted
	default:
		newStatus = models.DeliveryStatusRetrying
		when := time.Now().Add(backoffWithJitter(sub.BackoffMultiplier, attemptNum))
		nextRetryAt = &when
	}

	if _, err := d.store.AppendAttempt(ctx, delivery.ID, attempt, newStatus, nextRetryAt); err != nil {
		d.logger.Warn().Err(err).Str("delivery_id", delivery.ID).Msg("webhook: failed to record delivery attempt")
	}
	if err := d.store.IncrementSubscriptionCounters(ctx, sub.ID, success); err != nil {
		d.logger.Warn().Err(err).Str("subscription_id", sub.ID).Msg("webhook: failed to update subscriber counters")
	}

	if !success {
		if sendErr != nil {
			return common.Wrap(common.ErrKindTransient, "webhook.Dispatcher.Deliver", sendErr)
		}
		return common.New(common.ErrKindTransient, "webhook.Dispatcher.Deliver",
			fmt.Sprintf("subscriber responded with status %d", statusCode))
	}
	return nil
}

// send performs the actual signed HTTP POST, returning the response status
// code, a bounded snippet of its body, and any transport-level error.
func (d *Dispatcher) send(ctx context.Context, sub *models.WebhookSubscription, delivery *models.WebhookDelivery) (int, string, error) {
	body, err := json.Marshal(struct {
		Event     string    `json:"event"`
		JobID     string    `json:"jobId,omitempty"`
		Payload   any       `json:"payload"`
		Timestamp time.Time `json:"timestamp"`
	}{
		Event:     delivery.EventType,
		JobID:     delivery.SourceJobID,
		Payload:   delivery.Payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		return 0, "", fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CareerForge-Event", delivery.EventType)
	req.Header.Set("X-CareerForge-Delivery", delivery.ID)
	req.Header.Set("X-CareerForge-Signature", sign(sub.Secret, body))
	for k, v := range sub.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("webhook POST failed: %w", err)
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSnippet))
	return resp.StatusCode, string(snippet), nil
}

// sign computes an HMAC-SHA256 signature over body using secret, hex-encoded
// and prefixed the way most webhook consumers expect ("sha256=<hex>").
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// backoffWithJitter mirrors the Job Service's retry policy: exponential
// growth bounded by the subscription's multiplier, capped at 5 minutes,
// with +/-20% jitter to avoid thundering-herd retries against one subscriber.
func backoffWithJitter(multiplier float64, attempt int) time.Duration {
	if multiplier < 1 {
		multiplier = 2
	}
	if multiplier > 5 {
		multiplier = 5
	}
	base := time.Second
	factor := math.Pow(multiplier, float64(attempt-1))
	d := time.Duration(float64(base) * factor)
	const maxBackoff = 5 * time.Minute
	if d > maxBackoff {
		d = maxBackoff
	}
	jitter := 1 + (rand.Float64()*0.4 - 0.2)
	return time.Duration(float64(d) * jitter)
}

// SweepRetries finds deliveries whose next_retry_at has elapsed and
// re-enqueues their linked webhook_delivery Job. This is a backstop for the
// Queue Broker's own stalled-redelivery sweep (spec §4.2): retry timing is
// owned by the Job Service, this only guards against a dropped enqueue.
func (d *Dispatcher) SweepRetries(ctx context.Context) (int, error) {
	due, err := d.store.ListDueForRetry(ctx, 100)
	if err != nil {
		return 0, common.Wrap(common.ErrKindTransient, "webhook.Dispatcher.SweepRetries", err)
	}
	requeued := 0
	for _, delivery := range due {
		job, err := d.jobSvc.FindJobByID(ctx, delivery.JobExternalID)
		if err != nil || job == nil || job.Status != models.JobStatusRetrying {
			continue
		}
		if job.NextRetryAt != nil && job.NextRetryAt.After(time.Now()) {
			continue
		}
		if err := d.jobSvc.EnqueueJob(ctx, job); err != nil {
			d.logger.Debug().Err(err).Str("delivery_id", delivery.ID).Msg("webhook: retry re-enqueue failed")
			continue
		}
		requeued++
	}
	return requeued, nil
}

// Run starts the periodic retry-sweep loop; it blocks until ctx is
// cancelled, the way the Queue Broker's sweepLoop runs for each channel.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := d.SweepRetries(ctx)
			if err != nil {
				d.logger.Warn().Err(err).Msg("webhook: retry sweep failed")
				continue
			}
			if n > 0 {
				d.logger.Debug().Int("count", n).Msg("webhook: retry sweep attempted deliveries")
			}
		}
	}
}

var _ interfaces.WebhookDispatcher = (*Dispatcher)(nil)
