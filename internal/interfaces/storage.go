// Package interfaces defines storage and service contracts for the
// CareerForge job orchestration core.
package interfaces

import (
	"context"
	"time"

	"github.com/careerforge/backend/internal/models"
)

// StorageManager coordinates the backing stores the core depends on.
type StorageManager interface {
	JobStore() JobStore
	WebhookStore() WebhookStore
	UserStore() UserStore

	// ExecuteAtomic is the Transaction Coordinator entry point (spec §4.5):
	// fn receives a transaction handle when the backend supports one, or nil
	// when it degrades to best-effort sequential execution. Implementations
	// must accept both.
	ExecuteAtomic(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}

// Tx is an opaque transaction handle passed to operations that can join an
// outer transaction. A nil Tx means "run without transactional guarantees."
type Tx interface {
	// TxID is an implementation detail surfaced only for logging.
	TxID() string
}

// QueryOptions configures pagination/ordering for list queries.
type QueryOptions struct {
	Page    int
	PerPage int
	Status  string
	Type    string
	OwnerID string
	Sort    string // "created_at_desc" (default), "created_at_asc"
}

// JobStore is the persistent registry of Job records (spec §4.2). It owns
// durability; the Queue Broker owns delivery ordering.
type JobStore interface {
	// Insert persists a new Job in status "pending". Joins tx when non-nil.
	Insert(ctx context.Context, tx Tx, job *models.Job) error

	// GetByExternalID looks up a Job by its client-visible id.
	GetByExternalID(ctx context.Context, externalID string) (*models.Job, error)

	// UpdateStatus stamps updated_at, and sets started_at/completed_at when
	// appropriate, but must never overwrite an already-set started_at.
	UpdateStatus(ctx context.Context, tx Tx, externalID, newStatus string, extra map[string]any) (*models.Job, error)

	// UpdateProgress clamps progress to [0,100] and persists current_step/total_steps.
	UpdateProgress(ctx context.Context, externalID string, progress int, currentStep string, totalSteps int) error

	// ScheduleRetry increments retry_count, sets next_retry_at and status=retrying atomically.
	ScheduleRetry(ctx context.Context, externalID string, nextRetryAt time.Time) (*models.Job, error)

	// List returns jobs matching opts, paginated.
	List(ctx context.Context, opts QueryOptions) ([]*models.Job, int, error)

	// ListDueForDelivery returns queued/retrying jobs whose next_retry_at <= now,
	// used by the Queue Broker's durable-log poll.
	ListDueForDelivery(ctx context.Context, jobType string, limit int) ([]*models.Job, error)

	// ListStalled returns processing jobs whose lock (updated_at) is older
	// than lockDuration — candidates for the stalled-redelivery sweep.
	ListStalled(ctx context.Context, jobType string, lockDuration time.Duration, limit int) ([]*models.Job, error)

	// CountByStatus / CountByType back the stats endpoint and Health Monitor.
	CountByStatus(ctx context.Context, ownerID string) (map[string]int, error)
	CountByType(ctx context.Context, ownerID string) (map[string]int, error)

	// ActivityTrend returns a time-bucketed count of jobs created per day
	// over the last N days, for the stats endpoint.
	ActivityTrend(ctx context.Context, ownerID string, days int) (map[string]int, error)

	// CleanupOldJobs deletes terminal jobs whose max(completedAt, updatedAt)
	// is older than olderThan. Returns the count deleted.
	CleanupOldJobs(ctx context.Context, olderThan time.Time) (int, error)

	// InsertDomainRecord persists a DomainRecord in the same transaction as
	// its Job — the core's guarantee from spec §3.
	InsertDomainRecord(ctx context.Context, tx Tx, record *models.DomainRecord) error
	GetDomainRecord(ctx context.Context, jobExternalID string) (*models.DomainRecord, error)
	UpdateDomainRecord(ctx context.Context, record *models.DomainRecord) error

	Close() error
}

// WebhookStore persists WebhookSubscriptions and WebhookDeliveries.
type WebhookStore interface {
	SaveSubscription(ctx context.Context, sub *models.WebhookSubscription) error
	GetSubscription(ctx context.Context, id string) (*models.WebhookSubscription, error)
	ListActiveSubscriptionsForEvent(ctx context.Context, eventType string) ([]*models.WebhookSubscription, error)
	IncrementSubscriptionCounters(ctx context.Context, id string, success bool) error
	DeleteSubscription(ctx context.Context, id string) error

	InsertDelivery(ctx context.Context, tx Tx, delivery *models.WebhookDelivery) error
	GetDelivery(ctx context.Context, id string) (*models.WebhookDelivery, error)
	GetDeliveryByJob(ctx context.Context, jobExternalID string) (*models.WebhookDelivery, error)
	AppendAttempt(ctx context.Context, id string, attempt models.DeliveryAttempt, newStatus string, nextRetryAt *time.Time) (*models.WebhookDelivery, error)
	ListDueForRetry(ctx context.Context, limit int) ([]*models.WebhookDelivery, error)
	PurgeOldSuccessful(ctx context.Context, olderThan time.Time) (int, error)

	Close() error
}

// UserStore resolves bearer-token auth subjects to InternalUser records.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*models.InternalUser, error)
	GetUserByEmail(ctx context.Context, email string) (*models.InternalUser, error)
	SaveUser(ctx context.Context, user *models.InternalUser) error
	Close() error
}
