package interfaces

import (
	"context"
	"time"

	"github.com/careerforge/backend/internal/models"
)

// CreateJobOptions configures JobService.CreateJob (spec §4.1).
type CreateJobOptions struct {
	ExternalID      string // caller-controlled idempotency key; generated if empty
	OwnerID         string
	Priority        string
	MaxRetries      int
	RelatedEntityID string
	Tags            []string
	Metadata        map[string]any
	DelayMS         int64
	QueueOpts       models.QueueOptions

	// ExternalTx, when non-nil, means the caller already opened a
	// transaction: CreateJob joins it and returns without enqueueing —
	// enqueueing is deferred to the caller via the returned EnqueueFunc.
	ExternalTx Tx
}

// EnqueueFunc is returned by CreateJob when the caller supplied an external
// transaction; the caller invokes it after commit to push the Job onto the
// Queue Broker. This formalizes the create-then-enqueue protocol (spec §9).
type EnqueueFunc func(ctx context.Context) error

// JobService is the sole legitimate mutator of Job state (spec §4.1).
type JobService interface {
	// CreateJob persists a new Job in "pending" and, absent an external
	// transaction, enqueues it on commit. When options.ExternalTx is set,
	// the returned EnqueueFunc must be invoked by the caller after commit.
	CreateJob(ctx context.Context, jobType string, payload any, opts CreateJobOptions) (*models.Job, EnqueueFunc, error)

	// EnqueueJob pushes an already-persisted "pending" Job onto the Queue
	// Broker and transitions it to "queued". On broker failure the Job is
	// moved to "failed" with a structured JobError recording the broker error.
	EnqueueJob(ctx context.Context, job *models.Job) error

	// GetJob retries once after a short delay on miss, to tolerate
	// commit-to-read lag.
	GetJob(ctx context.Context, externalID string) (*models.Job, error)

	// FindJobByID returns nil, nil on miss (no retry).
	FindJobByID(ctx context.Context, externalID string) (*models.Job, error)

	// UpdateJobStatus is the gatekeeper for every worker-driven mutation.
	UpdateJobStatus(ctx context.Context, externalID, newStatus string, extra map[string]any) (*models.Job, error)

	// UpdateJobProgress clamps to [0,100] and emits PROGRESS.
	UpdateJobProgress(ctx context.Context, externalID string, progress int, currentStep string, totalSteps int) error

	CompleteJob(ctx context.Context, externalID string, result any) (*models.Job, error)
	FailJob(ctx context.Context, externalID string, jobErr *models.JobError) (*models.Job, error)
	CancelJob(ctx context.Context, externalID string) (*models.Job, error)
	RetryJob(ctx context.Context, externalID string) (*models.Job, error)

	// ProcessJobResult is the worker entry point called after each attempt.
	ProcessJobResult(ctx context.Context, externalID string, success bool, result any, jobErr *models.JobError) error

	// ListJobs / Stats back the REST history and stats endpoints.
	ListJobs(ctx context.Context, opts QueryOptions) ([]*models.Job, int, error)
	Stats(ctx context.Context, ownerID string) (*JobStats, error)

	// Subscribe registers a listener for JobEvents; cancel stops delivery.
	Subscribe(listener func(models.JobEvent)) (cancel func())
}

// JobStats is the aggregate view backing GET /v1/<domain>/stats.
type JobStats struct {
	ByStatus     map[string]int `json:"by_status"`
	ByType       map[string]int `json:"by_type"`
	ActivityDays map[string]int `json:"activity_last_week"`
}

// QueueEntry is what the Queue Broker hands to a consumer.
type QueueEntry struct {
	ExternalID string
	Payload    any
	Priority   int
	Attempt    int
	MaxAttempts int
}

// QueueBroker is the durable, multi-channel priority queue (spec §4.3).
type QueueBroker interface {
	// Enqueue pushes a job onto its type's channel with delayMs visibility.
	Enqueue(ctx context.Context, jobType string, job *models.Job) error

	// Consume registers a consumer for jobType with the given concurrency.
	// handler must ack (return nil) or nack (return error) every entry.
	// Consume blocks until ctx is cancelled; Close does not end it.
	Consume(ctx context.Context, jobType string, concurrency int, handler func(context.Context, QueueEntry) error) error

	// Remove best-effort removes a not-yet-claimed entry (used by cancel).
	Remove(ctx context.Context, jobType, externalID string) error

	// Depth reports waiting/delayed counts for a channel (Health Monitor).
	Depth(ctx context.Context, jobType string) (ChannelDepth, error)

	// Close releases the broker's resources. It does not cancel running
	// consumers; they stop when the context passed to Consume is cancelled.
	Close() error
}

// ChannelDepth is a snapshot of one channel's queue state.
type ChannelDepth struct {
	Waiting   int
	Active    int
	Delayed   int
	Failed    int
	Completed int
}

// Processor is a thin adapter between a Queue Broker consumer callback and a
// Domain Service (spec §4.4).
type Processor interface {
	// JobType is the channel this processor is bound to.
	JobType() string

	// Execute performs the real work. The returned error should be produced
	// via common.New/common.Wrap so the base can classify retryable vs terminal.
	Execute(ctx context.Context, job *models.Job) (result any, err error)

	// OnFinalFailure is called after retries are exhausted; must leave the
	// Domain Record consistent (e.g. marked failed).
	OnFinalFailure(ctx context.Context, job *models.Job, err error)
}

// DomainService is the external collaborator interface every Processor
// wraps: parsing, enhancement, evaluation, and generation adapters all
// implement this (spec §2's "Domain Services" bullet).
type DomainService interface {
	// Name identifies the adapter for logging ("parsing", "enhancement", ...).
	Name() string

	// Process consumes the opaque job payload and returns an opaque result,
	// optionally reporting progress via the supplied callback.
	Process(ctx context.Context, payload any, progress func(pct int, step string)) (result any, err error)
}

// WebhookDispatcher delivers event notifications to subscriber URLs with
// at-least-once semantics and bounded retries (spec §4.7).
type WebhookDispatcher interface {
	// Notify fans an event out to every active subscription matching it,
	// creating one WebhookDelivery (and one webhook_delivery Job) per match.
	Notify(ctx context.Context, eventType string, jobExternalID string, payload any) error

	// Deliver performs a single attempt against a pending/retrying delivery.
	Deliver(ctx context.Context, deliveryID string) error

	// SweepRetries finds deliveries due for retry and re-enqueues them.
	SweepRetries(ctx context.Context) (int, error)
}

// HealthMonitor periodically snapshots broker/worker/memory state (spec §4.8).
type HealthMonitor interface {
	Snapshot(ctx context.Context) (HealthSnapshot, error)
	// Start runs the periodic collector loop until ctx is cancelled.
	Start(ctx context.Context, interval time.Duration)
}

// HealthSnapshot is the Health Monitor's read-only output.
type HealthSnapshot struct {
	Timestamp        time.Time                `json:"timestamp"`
	BrokerReachable  bool                      `json:"broker_reachable"`
	BrokerLatencyMS  int64                     `json:"broker_latency_ms"`
	Channels         map[string]ChannelDepth   `json:"channels"`
	MemoryRSSBytes   uint64                    `json:"memory_rss_bytes"`
	MemoryHeapBytes  uint64                    `json:"memory_heap_bytes"`
	HeapPercent      float64                   `json:"heap_percent"`
	Warnings         []string                  `json:"warnings,omitempty"`
}
