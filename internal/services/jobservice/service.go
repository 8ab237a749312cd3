// Package jobservice implements the Job Service: the sole legitimate mutator
// of Job state, enforcing the orchestration state machine and the
// create-then-enqueue transactional protocol.
package jobservice

import (
	"context"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"github.com/careerforge/backend/internal/common"
	"github.com/careerforge/backend/internal/interfaces"
	"github.com/careerforge/backend/internal/models"
	"github.com/google/uuid"
)

// Service implements interfaces.JobService.
type Service struct {
	storage interfaces.StorageManager
	broker  interfaces.QueueBroker
	logger  *common.Logger
	config  *common.Config

	mu        sync.RWMutex
	listeners map[int]func(models.JobEvent)
	nextID    int
}

// New creates a new Job Service.
func New(storage interfaces.StorageManager, broker interfaces.QueueBroker, logger *common.Logger, config *common.Config) *Service {
	return &Service{
		storage:   storage,
		broker:    broker,
		logger:    logger,
		config:    config,
		listeners: make(map[int]func(models.JobEvent)),
	}
}

// CreateJob persists a new Job in "pending" and, absent an external
// transaction, enqueues it on commit (spec §4.1, §9).
func (s *Service) CreateJob(ctx context.Context, jobType string, payload any, opts interfaces.CreateJobOptions) (*models.Job, interfaces.EnqueueFunc, error) {
	job := &models.Job{
		ExternalID:      opts.ExternalID,
		Type:            jobType,
		Payload:         payload,
		Priority:        models.NormalizePriority(opts.Priority),
		Status:          models.JobStatusPending,
		MaxRetries:      opts.MaxRetries,
		OwnerID:         opts.OwnerID,
		RelatedEntityID: opts.RelatedEntityID,
		Tags:            opts.Tags,
		Metadata:        opts.Metadata,
		DelayMS:         opts.DelayMS,
		QueueOpts:       opts.QueueOpts,
	}
	if job.ExternalID == "" {
		job.ExternalID = uuid.New().String()
	}
	if job.MaxRetries <= 0 {
		job.MaxRetries = s.config.JobManager.GetMaxRetries()
	}

	enqueue := func(ctx context.Context) error {
		return s.EnqueueJob(ctx, job)
	}

	if opts.ExternalTx != nil {
		if err := s.storage.JobStore().Insert(ctx, opts.ExternalTx, job); err != nil {
			return nil, nil, fmt.Errorf("jobservice: create job: %w", err)
		}
		s.emit(models.JobEventCreated, job)
		return job, enqueue, nil
	}

	if err := s.storage.ExecuteAtomic(ctx, func(tx interfaces.Tx) error {
		return s.storage.JobStore().Insert(ctx, tx, job)
	}); err != nil {
		return nil, nil, fmt.Errorf("jobservice: create job: %w", err)
	}
	s.emit(models.JobEventCreated, job)

	if err := enqueue(ctx); err != nil {
		return job, nil, err
	}
	return job, nil, nil
}

// EnqueueJob pushes an already-persisted "pending" Job onto the Queue Broker
// and transitions it to "queued". On broker failure the Job moves to
// "failed" with a structured error.
func (s *Service) EnqueueJob(ctx context.Context, job *models.Job) error {
	if err := s.broker.Enqueue(ctx, job.Type, job); err != nil {
		brokerErr := common.Wrap(common.ErrKindTransient, "jobservice.EnqueueJob", err)
		jobErr := &models.JobError{Kind: string(brokerErr.Kind), Message: "broker enqueue failed: " + err.Error(), Retryable: false}
		if _, ferr := s.storage.JobStore().UpdateStatus(ctx, nil, job.ExternalID, models.JobStatusFailed, map[string]any{"error": jobErr}); ferr != nil {
			s.logger.Warn().Err(ferr).Str("external_id", job.ExternalID).Msg("failed to mark job failed after broker enqueue error")
		}
		job.Status = models.JobStatusFailed
		job.Error = jobErr
		s.emit(models.JobEventFailed, job)
		return brokerErr
	}

	updated, err := s.storage.JobStore().UpdateStatus(ctx, nil, job.ExternalID, models.JobStatusQueued, nil)
	if err != nil {
		return fmt.Errorf("jobservice: enqueue job: %w", err)
	}
	if updated != nil {
		*job = *updated
	} else {
		job.Status = models.JobStatusQueued
	}
	s.emit(models.JobEventQueued, job)
	return nil
}

// GetJob retries once after a short delay on miss, to tolerate
// commit-to-read lag against an eventually-consistent read path.
func (s *Service) GetJob(ctx context.Context, externalID string) (*models.Job, error) {
	job, err := s.storage.JobStore().GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if job != nil {
		return job, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(150 * time.Millisecond):
	}
	return s.storage.JobStore().GetByExternalID(ctx, externalID)
}

// FindJobByID returns nil, nil on miss (no retry).
func (s *Service) FindJobByID(ctx context.Context, externalID string) (*models.Job, error) {
	return s.storage.JobStore().GetByExternalID(ctx, externalID)
}

// UpdateJobStatus is the gatekeeper for every worker-driven mutation: it
// refuses any transition not present in the state machine (spec §4.1).
func (s *Service) UpdateJobStatus(ctx context.Context, externalID, newStatus string, extra map[string]any) (*models.Job, error) {
	current, err := s.storage.JobStore().GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, common.New(common.ErrKindNotFound, "jobservice.UpdateJobStatus", "job not found: "+externalID)
	}
	if models.IsTerminal(current.Status) && current.Status != newStatus {
		return current, nil
	}
	if !models.CanTransition(current.Status, newStatus) {
		return nil, common.New(common.ErrKindConflict, "jobservice.UpdateJobStatus",
			fmt.Sprintf("invalid transition %s -> %s for job %s", current.Status, newStatus, externalID))
	}

	updated, err := s.storage.JobStore().UpdateStatus(ctx, nil, externalID, newStatus, extra)
	if err != nil {
		return nil, err
	}
	s.emit(eventForStatus(newStatus), updated)
	return updated, nil
}

func eventForStatus(status string) string {
	switch status {
	case models.JobStatusQueued:
		return models.JobEventQueued
	case models.JobStatusProcessing:
		return models.JobEventStarted
	case models.JobStatusCompleted:
		return models.JobEventCompleted
	case models.JobStatusFailed:
		return models.JobEventFailed
	case models.JobStatusCancelled:
		return models.JobEventCancelled
	case models.JobStatusRetrying:
		return models.JobEventRetrying
	default:
		return status
	}
}

// UpdateJobProgress clamps to [0,100] and emits PROGRESS.
func (s *Service) UpdateJobProgress(ctx context.Context, externalID string, progress int, currentStep string, totalSteps int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if err := s.storage.JobStore().UpdateProgress(ctx, externalID, progress, currentStep, totalSteps); err != nil {
		return err
	}
	job, err := s.storage.JobStore().GetByExternalID(ctx, externalID)
	if err == nil && job != nil {
		s.emit(models.JobEventProgress, job)
	}
	return nil
}

// CompleteJob transitions a Job to "completed" with its result.
func (s *Service) CompleteJob(ctx context.Context, externalID string, result any) (*models.Job, error) {
	return s.UpdateJobStatus(ctx, externalID, models.JobStatusCompleted, map[string]any{"result": result, "progress": 100})
}

// FailJob transitions a Job to "failed" with its structured error.
func (s *Service) FailJob(ctx context.Context, externalID string, jobErr *models.JobError) (*models.Job, error) {
	return s.UpdateJobStatus(ctx, externalID, models.JobStatusFailed, map[string]any{"error": jobErr})
}

// CancelJob cooperatively cancels a Job: transitions to "cancelled" and
// best-effort removes it from the broker if still queued.
func (s *Service) CancelJob(ctx context.Context, externalID string) (*models.Job, error) {
	job, err := s.storage.JobStore().GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, common.New(common.ErrKindNotFound, "jobservice.CancelJob", "job not found: "+externalID)
	}

	updated, err := s.UpdateJobStatus(ctx, externalID, models.JobStatusCancelled, nil)
	if err != nil {
		return nil, err
	}
	if err := s.broker.Remove(ctx, job.Type, externalID); err != nil {
		s.logger.Warn().Err(err).Str("external_id", externalID).Msg("failed to remove cancelled job from broker")
	}
	return updated, nil
}

// RetryJob manually re-queues a failed job, resetting its backoff state.
func (s *Service) RetryJob(ctx context.Context, externalID string) (*models.Job, error) {
	job, err := s.storage.JobStore().GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, common.New(common.ErrKindNotFound, "jobservice.RetryJob", "job not found: "+externalID)
	}
	if job.Status != models.JobStatusFailed && !models.CanTransition(job.Status, models.JobStatusQueued) {
		return nil, common.New(common.ErrKindConflict, "jobservice.RetryJob",
			fmt.Sprintf("job %s in status %s cannot be retried", externalID, job.Status))
	}
	if job.RetryCount >= job.MaxRetries {
		return nil, common.New(common.ErrKindMaxRetriesExceeded, "jobservice.RetryJob",
			fmt.Sprintf("job %s has exhausted its %d retries", externalID, job.MaxRetries))
	}
	if job.Status == models.JobStatusFailed {
		// failed -> queued is not a legal edge; go through retrying.
		if _, err := s.UpdateJobStatus(ctx, externalID, models.JobStatusRetrying, nil); err != nil {
			return nil, err
		}
	}

	if _, err := s.UpdateJobStatus(ctx, externalID, models.JobStatusQueued, map[string]any{"retry_count": job.RetryCount + 1, "next_retry_at": nil, "error": nil}); err != nil {
		return nil, err
	}
	current, err := s.storage.JobStore().GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if err := s.broker.Enqueue(ctx, current.Type, current); err != nil {
		return nil, common.Wrap(common.ErrKindTransient, "jobservice.RetryJob", err)
	}
	return current, nil
}

// ProcessJobResult is the worker entry point called after each attempt
// (spec §4.6): success completes the job; failure either schedules an
// exponential-backoff retry with jitter or terminally fails the job once
// max_retries is exhausted.
func (s *Service) ProcessJobResult(ctx context.Context, externalID string, success bool, result any, jobErr *models.JobError) error {
	if success {
		_, err := s.CompleteJob(ctx, externalID, result)
		return err
	}

	job, err := s.storage.JobStore().GetByExternalID(ctx, externalID)
	if err != nil {
		return err
	}
	if job == nil {
		return common.New(common.ErrKindNotFound, "jobservice.ProcessJobResult", "job not found: "+externalID)
	}

	retryable := jobErr == nil || jobErr.Retryable
	if retryable && job.RetryCount < job.MaxRetries {
		delay := backoffWithJitter(job.QueueOpts, job.RetryCount)
		nextRetryAt := time.Now().Add(delay)

		updated, err := s.storage.JobStore().ScheduleRetry(ctx, externalID, nextRetryAt)
		if err != nil {
			return err
		}
		if jobErr != nil {
			s.storage.JobStore().UpdateStatus(ctx, nil, externalID, models.JobStatusRetrying, map[string]any{"error": jobErr})
		}
		s.emit(models.JobEventRetrying, updated)
		return s.broker.Enqueue(ctx, job.Type, updated)
	}

	_, err = s.FailJob(ctx, externalID, jobErr)
	return err
}

// backoffWithJitter computes the next retry delay: exponential growth off
// the configured base, +/-20% jitter, matching the stalled-redelivery
// visibility window used elsewhere in the core.
func backoffWithJitter(opts models.QueueOptions, retryCount int) time.Duration {
	base := opts.BackoffBaseMS
	if base <= 0 {
		base = 1000
	}
	multiplier := int64(1)
	for i := 0; i < retryCount; i++ {
		multiplier *= 2
		if multiplier > 64 {
			multiplier = 64
			break
		}
	}
	delayMS := base * multiplier
	const maxDelayMS = int64(5 * time.Minute / time.Millisecond)
	if delayMS > maxDelayMS {
		delayMS = maxDelayMS
	}

	jitter := 0.8 + rand.Float64()*0.4 // +/-20%
	return time.Duration(float64(delayMS)*jitter) * time.Millisecond
}

// ListJobs backs the REST history endpoint.
func (s *Service) ListJobs(ctx context.Context, opts interfaces.QueryOptions) ([]*models.Job, int, error) {
	return s.storage.JobStore().List(ctx, opts)
}

// Stats backs the REST stats endpoint.
func (s *Service) Stats(ctx context.Context, ownerID string) (*interfaces.JobStats, error) {
	byStatus, err := s.storage.JobStore().CountByStatus(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	byType, err := s.storage.JobStore().CountByType(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	activity, err := s.storage.JobStore().ActivityTrend(ctx, ownerID, 7)
	if err != nil {
		return nil, err
	}
	return &interfaces.JobStats{ByStatus: byStatus, ByType: byType, ActivityDays: activity}, nil
}

// Subscribe registers a listener for JobEvents; cancel stops delivery.
func (s *Service) Subscribe(listener func(models.JobEvent)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Service) emit(eventType string, job *models.Job) {
	s.mu.RLock()
	listeners := make([]func(models.JobEvent), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.RUnlock()

	event := models.JobEvent{Type: eventType, Job: job, Timestamp: time.Now()}
	for _, l := range listeners {
		l := l
		go func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("recovered from panic in job event listener")
				}
			}()
			l(event)
		}()
	}
}

var _ interfaces.JobService = (*Service)(nil)
