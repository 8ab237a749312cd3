package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/careerforge/backend/internal/common"
	"github.com/careerforge/backend/internal/interfaces"
	"github.com/careerforge/backend/internal/models"
	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// WebhookStore implements interfaces.WebhookStore using SurrealDB.
type WebhookStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewWebhookStore creates a new WebhookStore.
func NewWebhookStore(db *surrealdb.DB, logger *common.Logger) *WebhookStore {
	return &WebhookStore{db: db, logger: logger}
}

func (s *WebhookStore) SaveSubscription(ctx context.Context, sub *models.WebhookSubscription) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	now := time.Now()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now

	sql := `UPDATE $rid MERGE {
		owner_id: $owner_id, url: $url, events: $events, secret: $secret, active: $active,
		headers: $headers, max_retries: $max_retries, backoff_multiplier: $backoff_multiplier,
		successful_deliveries: $successful_deliveries, failed_deliveries: $failed_deliveries,
		created_at: $created_at, updated_at: $updated_at
	}`
	vars := map[string]any{
		"rid":                    surrealmodels.NewRecordID("webhook_subscription", sub.ID),
		"owner_id":               sub.OwnerID,
		"url":                    sub.URL,
		"events":                 sub.Events,
		"secret":                 sub.Secret,
		"active":                 sub.Active,
		"headers":                sub.Headers,
		"max_retries":            sub.MaxRetries,
		"backoff_multiplier":     sub.BackoffMultiplier,
		"successful_deliveries":  sub.SuccessfulDeliveries,
		"failed_deliveries":      sub.FailedDeliveries,
		"created_at":             sub.CreatedAt,
		"updated_at":             sub.UpdatedAt,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return common.Wrap(common.ErrKindTransient, "surrealdb.WebhookStore.SaveSubscription", err)
	}
	return nil
}

func (s *WebhookStore) GetSubscription(ctx context.Context, id string) (*models.WebhookSubscription, error) {
	rid := surrealmodels.NewRecordID("webhook_subscription", id)
	result, err := surrealdb.Select[models.WebhookSubscription](ctx, s.db, rid)
	if err != nil {
		return nil, common.Wrap(common.ErrKindTransient, "surrealdb.WebhookStore.GetSubscription", err)
	}
	if result == nil {
		return nil, nil
	}
	result.ID = id
	return result, nil
}

func (s *WebhookStore) ListActiveSubscriptionsForEvent(ctx context.Context, eventType string) ([]*models.WebhookSubscription, error) {
	sql := `SELECT * FROM webhook_subscription WHERE active = true AND $event IN events`
	vars := map[string]any{"event": eventType}

	results, err := surrealdb.Query[[]models.WebhookSubscription](ctx, s.db, sql, vars)
	if err != nil {
		return nil, common.Wrap(common.ErrKindTransient, "surrealdb.WebhookStore.ListActiveSubscriptionsForEvent", err)
	}
	var subs []*models.WebhookSubscription
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			subs = append(subs, &(*results)[0].Result[i])
		}
	}
	return subs, nil
}

func (s *WebhookStore) IncrementSubscriptionCounters(ctx context.Context, id string, success bool) error {
	field := "failed_deliveries"
	if success {
		field = "successful_deliveries"
	}
	sql := fmt.Sprintf("UPDATE $rid SET %s += 1, updated_at = $updated_at", field)
	vars := map[string]any{
		"rid":        surrealmodels.NewRecordID("webhook_subscription", id),
		"updated_at": time.Now(),
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return common.Wrap(common.ErrKindTransient, "surrealdb.WebhookStore.IncrementSubscriptionCounters", err)
	}
	return nil
}

func (s *WebhookStore) DeleteSubscription(ctx context.Context, id string) error {
	rid := surrealmodels.NewRecordID("webhook_subscription", id)
	if _, err := surrealdb.Delete[models.WebhookSubscription](ctx, s.db, rid); err != nil {
		return common.Wrap(common.ErrKindTransient, "surrealdb.WebhookStore.DeleteSubscription", err)
	}
	return nil
}

func (s *WebhookStore) InsertDelivery(ctx context.Context, tx interfaces.Tx, delivery *models.WebhookDelivery) error {
	if delivery.ID == "" {
		delivery.ID = uuid.New().String()
	}
	now := time.Now()
	if delivery.CreatedAt.IsZero() {
		delivery.CreatedAt = now
	}
	delivery.UpdatedAt = now
	if delivery.Status == "" {
		delivery.Status = models.DeliveryStatusPending
	}

	sql := `CREATE $rid SET subscription_id = $subscription_id, job_external_id = $job_external_id,
		event_type = $event_type, payload = $payload, status = $status, attempts = $attempts,
		next_retry_at = $next_retry_at, created_at = $created_at, updated_at = $updated_at,
		completed_at = $completed_at`
	vars := map[string]any{
		"rid":             surrealmodels.NewRecordID("webhook_delivery", delivery.ID),
		"subscription_id": delivery.SubscriptionID,
		"job_external_id": delivery.JobExternalID,
		"event_type":      delivery.EventType,
		"payload":         delivery.Payload,
		"status":          delivery.Status,
		"attempts":        delivery.Attempts,
		"next_retry_at":   delivery.NextRetryAt,
		"created_at":      delivery.CreatedAt,
		"updated_at":      delivery.UpdatedAt,
		"completed_at":    delivery.CompletedAt,
	}

	if stx, ok := tx.(*surrealTx); ok && stx != nil {
		stx.buf.append(sql, vars)
		return nil
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return common.Wrap(common.ErrKindTransient, "surrealdb.WebhookStore.InsertDelivery", err)
	}
	return nil
}

func (s *WebhookStore) GetDelivery(ctx context.Context, id string) (*models.WebhookDelivery, error) {
	rid := surrealmodels.NewRecordID("webhook_delivery", id)
	result, err := surrealdb.Select[models.WebhookDelivery](ctx, s.db, rid)
	if err != nil {
		return nil, common.Wrap(common.ErrKindTransient, "surrealdb.WebhookStore.GetDelivery", err)
	}
	if result == nil {
		return nil, nil
	}
	result.ID = id
	return result, nil
}

func (s *WebhookStore) GetDeliveryByJob(ctx context.Context, jobExternalID string) (*models.WebhookDelivery, error) {
	sql := `SELECT * FROM webhook_delivery WHERE job_external_id = $job_external_id LIMIT 1`
	vars := map[string]any{"job_external_id": jobExternalID}

	results, err := surrealdb.Query[[]models.WebhookDelivery](ctx, s.db, sql, vars)
	if err != nil {
		return nil, common.Wrap(common.ErrKindTransient, "surrealdb.WebhookStore.GetDeliveryByJob", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	d := (*results)[0].Result[0]
	return &d, nil
}

func (s *WebhookStore) AppendAttempt(ctx context.Context, id string, attempt models.DeliveryAttempt, newStatus string, nextRetryAt *time.Time) (*models.WebhookDelivery, error) {
	now := time.Now()
	sql := `UPDATE $rid SET attempts += [$attempt], status = $status, updated_at = $updated_at,
		next_retry_at = $next_retry_at`
	if newStatus == models.DeliveryStatusSuccess || newStatus == models.DeliveryStatusExhausted {
		sql += ", completed_at = $completed_at"
	}
	vars := map[string]any{
		"rid":           surrealmodels.NewRecordID("webhook_delivery", id),
		"attempt":       attempt,
		"status":        newStatus,
		"updated_at":    now,
		"next_retry_at": nextRetryAt,
		"completed_at":  now,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return nil, common.Wrap(common.ErrKindTransient, "surrealdb.WebhookStore.AppendAttempt", err)
	}
	return s.GetDelivery(ctx, id)
}

func (s *WebhookStore) ListDueForRetry(ctx context.Context, limit int) ([]*models.WebhookDelivery, error) {
	if limit <= 0 {
		limit = 100
	}
	sql := `SELECT * FROM webhook_delivery WHERE status = $retrying AND next_retry_at <= $now LIMIT $limit`
	vars := map[string]any{
		"retrying": models.DeliveryStatusRetrying,
		"now":      time.Now(),
		"limit":    limit,
	}
	results, err := surrealdb.Query[[]models.WebhookDelivery](ctx, s.db, sql, vars)
	if err != nil {
		return nil, common.Wrap(common.ErrKindTransient, "surrealdb.WebhookStore.ListDueForRetry", err)
	}
	var out []*models.WebhookDelivery
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			out = append(out, &(*results)[0].Result[i])
		}
	}
	return out, nil
}

func (s *WebhookStore) PurgeOldSuccessful(ctx context.Context, olderThan time.Time) (int, error) {
	sql := `DELETE FROM webhook_delivery WHERE status = $success AND completed_at < $cutoff`
	vars := map[string]any{
		"success": models.DeliveryStatusSuccess,
		"cutoff":  olderThan,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return 0, common.Wrap(common.ErrKindTransient, "surrealdb.WebhookStore.PurgeOldSuccessful", err)
	}
	return 0, nil
}

func (s *WebhookStore) Close() error { return nil }

var _ interfaces.WebhookStore = (*WebhookStore)(nil)
