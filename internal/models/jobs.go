package models

import "time"

// Job is the central entity of the orchestration core: a durable record of
// deferred work tracked through a strict status lifecycle. ExternalID is the
// stable, client-visible identifier; ID is the storage row id.
type Job struct {
	ID         string `json:"id,omitempty"`
	ExternalID string `json:"external_id"`

	Type     string `json:"type"`
	Payload  any    `json:"payload"`
	Priority string `json:"priority"` // low|normal|high|urgent|critical

	Status      string `json:"status"`
	Progress    int    `json:"progress"` // 0-100
	CurrentStep string `json:"current_step,omitempty"`
	TotalSteps  int    `json:"total_steps,omitempty"`

	RetryCount int          `json:"retry_count"`
	MaxRetries int          `json:"max_retries"`
	DelayMS    int64        `json:"delay_ms,omitempty"`
	QueueOpts  QueueOptions `json:"queue_options"`

	OwnerID         string         `json:"owner_id"`
	RelatedEntityID string         `json:"related_entity_id,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`

	Result any       `json:"result,omitempty"`
	Error  *JobError `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
}

// QueueOptions carries the Queue Broker's per-job delivery knobs: backoff
// kind/base delay and retention policy (how long to keep the broker entry
// around after it leaves the active state).
type QueueOptions struct {
	BackoffKind        string `json:"backoff_kind,omitempty"` // "exponential" (default), "fixed"
	BackoffBaseMS      int64  `json:"backoff_base_ms,omitempty"`
	RemoveOnComplete   int    `json:"remove_on_complete,omitempty"` // keep last N completed entries
	RemoveOnFailAgeSec int64  `json:"remove_on_fail_age_sec,omitempty"`
}

// JobError is the structured error persisted on a Job's terminal failure.
// Mirrors common.Error's shape without importing common, since the Job Store
// persists it as a schemaless document.
type JobError struct {
	Kind      string         `json:"kind"`
	Message   string         `json:"message"`
	Context   string         `json:"context,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Retryable bool           `json:"retryable"`
}

// Job type constants — the five domains the core dispatches to.
const (
	JobTypeParsing         = "parsing"
	JobTypeEnhancement     = "enhancement"
	JobTypeEvaluation      = "evaluation"
	JobTypeGeneration      = "generation"
	JobTypeWebhookDelivery = "webhook_delivery"
)

// AllJobTypes lists every channel the Queue Broker and Worker Runtime bind to.
var AllJobTypes = []string{
	JobTypeParsing,
	JobTypeEnhancement,
	JobTypeEvaluation,
	JobTypeGeneration,
	JobTypeWebhookDelivery,
}

// Job status constants — the state machine's vertex set (spec §4.1).
const (
	JobStatusPending    = "pending"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusFailed     = "failed"
	JobStatusRetrying   = "retrying"
	JobStatusCompleted  = "completed"
	JobStatusCancelled  = "cancelled"
)

// jobTransitions is the state machine's adjacency list. A transition not
// listed here, and not a same-state no-op, is refused with an InvalidState error.
var jobTransitions = map[string]map[string]bool{
	JobStatusPending: {
		JobStatusQueued:    true,
		JobStatusCancelled: true,
	},
	JobStatusQueued: {
		JobStatusProcessing: true,
		JobStatusCompleted:  true,
		JobStatusFailed:     true,
		JobStatusCancelled:  true,
	},
	JobStatusProcessing: {
		JobStatusCompleted: true,
		JobStatusFailed:    true,
		JobStatusCancelled: true,
	},
	JobStatusFailed: {
		JobStatusProcessing: true,
		JobStatusRetrying:   true,
		JobStatusCancelled:  true,
	},
	JobStatusRetrying: {
		JobStatusQueued:     true,
		JobStatusProcessing: true,
		JobStatusFailed:     true,
		JobStatusCancelled:  true,
	},
	JobStatusCompleted: {},
	JobStatusCancelled: {},
}

// IsTerminal reports whether status accepts no further mutations.
func IsTerminal(status string) bool {
	return status == JobStatusCompleted || status == JobStatusCancelled
}

// CanTransition reports whether from -> to is a legal Job status transition:
// an edge in the state machine, or a same-state no-op.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	edges, ok := jobTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// Priority constants and their numeric order (higher sorts first).
const (
	PriorityLow      = "low"
	PriorityNormal   = "normal"
	PriorityHigh     = "high"
	PriorityUrgent   = "urgent"
	PriorityCritical = "critical"
)

var priorityWeights = map[string]int{
	PriorityLow:      1,
	PriorityNormal:   5,
	PriorityHigh:     10,
	PriorityUrgent:   15,
	PriorityCritical: 20,
}

// PriorityWeight maps a priority label to its numeric queue order. Unknown
// priorities collapse to "normal": priority mapping must be deterministic
// and single-valued.
func PriorityWeight(priority string) int {
	if w, ok := priorityWeights[priority]; ok {
		return w
	}
	return priorityWeights[PriorityNormal]
}

// NormalizePriority returns priority if recognized, else "normal".
func NormalizePriority(priority string) string {
	if _, ok := priorityWeights[priority]; ok {
		return priority
	}
	return PriorityNormal
}

// JobEvent is broadcast to in-process listeners (and optionally fanned out
// over the internal WebSocket hub) when Job state changes.
type JobEvent struct {
	Type      string    `json:"type"`
	Job       *Job      `json:"job"`
	Timestamp time.Time `json:"timestamp"`
	QueueSize int       `json:"queue_size,omitempty"`
}

// JobEvent type constants — the full event set named in spec.md §9.
const (
	JobEventCreated   = "CREATED"
	JobEventQueued    = "QUEUED"
	JobEventStarted   = "STARTED"
	JobEventProgress  = "PROGRESS"
	JobEventCompleted = "COMPLETED"
	JobEventFailed    = "FAILED"
	JobEventCancelled = "CANCELLED"
	JobEventRetrying  = "RETRYING"
)

// DomainRecord is the Domain Record named in spec.md §3: the calling domain
// owns it, but the core guarantees it is written in the same transaction as
// its Job, and links the two by external id.
type DomainRecord struct {
	ID            string         `json:"id,omitempty"`
	JobExternalID string         `json:"job_external_id"`
	Kind          string         `json:"kind"` // mirrors Job.Type
	OwnerID       string         `json:"owner_id"`
	Status        string         `json:"status"`
	Payload       any            `json:"payload,omitempty"`
	Result        any            `json:"result,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// WebhookSubscription is a registered URL with an event mask, secret, and a
// per-subscription retry policy. Webhook Delivery jobs reference it by id.
type WebhookSubscription struct {
	ID      string            `json:"id,omitempty"`
	OwnerID string            `json:"owner_id"`
	URL     string            `json:"url"`
	Events  []string          `json:"events"` // e.g. "job.completed", "job.failed"
	Secret  string            `json:"secret"`
	Active  bool              `json:"active"`
	Headers map[string]string `json:"headers,omitempty"`

	MaxRetries        int     `json:"max_retries"`
	BackoffMultiplier float64 `json:"backoff_multiplier"` // >= 1, <= 5

	SuccessfulDeliveries int64 `json:"successful_deliveries"`
	FailedDeliveries     int64 `json:"failed_deliveries"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WebhookDelivery is one attempted POST to a WebhookSubscription.
type WebhookDelivery struct {
	ID             string `json:"id,omitempty"`
	SubscriptionID string `json:"subscription_id"`
	// JobExternalID links this Domain Record to its own webhook_delivery Job
	// (spec §3: core guarantees they're written in the same transaction).
	JobExternalID string `json:"job_external_id,omitempty"`
	// SourceJobID is the originating job (parsing/enhancement/...) whose
	// lifecycle event this delivery reports, sent to subscribers as "jobId".
	SourceJobID string `json:"source_job_id,omitempty"`
	EventType   string `json:"event_type"`
	Payload     any    `json:"payload"`

	Status      string            `json:"status"` // pending|success|failed|retrying|exhausted
	Attempts    []DeliveryAttempt `json:"attempts"`
	NextRetryAt *time.Time        `json:"next_retry_at,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// DeliveryAttempt is one recorded HTTP attempt within a WebhookDelivery's history.
type DeliveryAttempt struct {
	AttemptNum   int       `json:"attempt_num"`
	Timestamp    time.Time `json:"timestamp"`
	StatusCode   int       `json:"status_code,omitempty"`
	ResponseBody string    `json:"response_snippet,omitempty"`
	Error        string    `json:"error,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
}

// Delivery status constants.
const (
	DeliveryStatusPending   = "pending"
	DeliveryStatusSuccess   = "success"
	DeliveryStatusFailed    = "failed"
	DeliveryStatusRetrying  = "retrying"
	DeliveryStatusExhausted = "exhausted"
)

// IsSuccessStatusCode reports whether an HTTP status code counts as a
// successful webhook delivery attempt (2xx).
func IsSuccessStatusCode(code int) bool {
	return code >= 200 && code <= 299
}
