// Package worker implements the Worker Runtime: it drains a Queue Broker
// channel, bounds concurrency, prevents double-processing of a given
// external id, and translates Processor outcomes into Job Service state
// transitions (spec §4.4, §4.6).
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/careerforge/backend/internal/common"
	"github.com/careerforge/backend/internal/interfaces"
	"github.com/careerforge/backend/internal/models"
)

// Runtime drives one Processor against its bound job type.
type Runtime struct {
	broker     interfaces.QueueBroker
	jobService interfaces.JobService
	logger     *common.Logger

	concurrency int
	sem         chan struct{}

	localLocks sync.Map // externalID -> *sync.Mutex, prevents double-processing within this process
}

// New creates a Worker Runtime bound to a single Processor.
func New(broker interfaces.QueueBroker, jobService interfaces.JobService, logger *common.Logger, concurrency int) *Runtime {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Runtime{
		broker:      broker,
		jobService:  jobService,
		logger:      logger,
		concurrency: concurrency,
		sem:         make(chan struct{}, concurrency),
	}
}

// Run blocks, consuming processor.JobType() jobs from the broker until ctx
// is cancelled.
func (r *Runtime) Run(ctx context.Context, processor interfaces.Processor) error {
	return r.broker.Consume(ctx, processor.JobType(), r.concurrency, func(ctx context.Context, entry interfaces.QueueEntry) error {
		select {
		case r.sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
		defer func() { <-r.sem }()

		return r.handle(ctx, processor, entry)
	})
}

func (r *Runtime) handle(ctx context.Context, processor interfaces.Processor, entry interfaces.QueueEntry) (runErr error) {
	lockIface, _ := r.localLocks.LoadOrStore(entry.ExternalID, &sync.Mutex{})
	lock := lockIface.(*sync.Mutex)
	if !lock.TryLock() {
		// Another goroutine in this process already owns this external id —
		// at-least-once delivery means the same id can surface twice.
		r.logger.Debug().Str("external_id", entry.ExternalID).Msg("worker: skipping duplicate in-flight delivery")
		return nil
	}
	defer func() {
		lock.Unlock()
		r.localLocks.Delete(entry.ExternalID)
	}()

	job, err := r.jobService.FindJobByID(ctx, entry.ExternalID)
	if err != nil {
		return fmt.Errorf("worker: lookup job %s: %w", entry.ExternalID, err)
	}
	if job == nil {
		r.logger.Warn().Str("external_id", entry.ExternalID).Msg("worker: job vanished before processing, dropping")
		return nil
	}
	if models.IsTerminal(job.Status) {
		// Cancelled/completed between enqueue and delivery — nothing to do.
		return nil
	}

	if _, err := r.jobService.UpdateJobStatus(ctx, job.ExternalID, models.JobStatusProcessing, nil); err != nil {
		r.logger.Warn().Err(err).Str("external_id", job.ExternalID).Msg("worker: failed to mark job processing")
		return err
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Interface("panic", rec).
				Str("stack", string(debug.Stack())).
				Str("external_id", job.ExternalID).
				Msg("recovered from panic in processor execution")
			jobErr := &models.JobError{Kind: string(common.ErrKindFatal), Message: fmt.Sprintf("panic: %v", rec), Retryable: false}
			processor.OnFinalFailure(ctx, job, fmt.Errorf("%v", rec))
			_ = r.jobService.ProcessJobResult(ctx, job.ExternalID, false, nil, jobErr)
			runErr = fmt.Errorf("worker: processor panic: %v", rec)
		}
	}()

	start := time.Now()
	result, execErr := processor.Execute(ctx, job)
	duration := time.Since(start)

	if execErr == nil {
		r.logger.Debug().Str("external_id", job.ExternalID).Str("job_type", job.Type).Dur("duration", duration).Msg("worker: job completed")
		return r.jobService.ProcessJobResult(ctx, job.ExternalID, true, result, nil)
	}

	jobErr := classify(execErr)
	r.logger.Warn().Err(execErr).Str("external_id", job.ExternalID).Str("job_type", job.Type).Dur("duration", duration).Msg("worker: job execution failed")

	if !jobErr.Retryable || job.RetryCount >= job.MaxRetries {
		processor.OnFinalFailure(ctx, job, execErr)
	}
	return r.jobService.ProcessJobResult(ctx, job.ExternalID, false, nil, jobErr)
}

// classify converts an arbitrary processor error into a models.JobError,
// preferring the structured common.Error classification when present.
func classify(err error) *models.JobError {
	if cErr, ok := common.AsError(err); ok {
		if !cErr.AlreadyLogged {
			cErr = cErr.MarkLogged()
		}
		return &models.JobError{
			Kind:      string(cErr.Kind),
			Message:   cErr.Message,
			Context:   cErr.Context,
			Metadata:  cErr.Metadata,
			Retryable: cErr.Retryable,
		}
	}
	// Unclassified errors from a Domain Service are treated as transient:
	// retry is the safer default when the cause is unknown.
	return &models.JobError{
		Kind:      string(common.ErrKindTransient),
		Message:   err.Error(),
		Retryable: true,
	}
}
