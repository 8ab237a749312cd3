// Package domain adapts the Domain Service contract (parsing, enhancement,
// evaluation, generation adapters) onto the Worker Runtime's Processor
// interface, and owns writing each job's Domain Record.
package domain

import (
	"context"
	"fmt"

	"github.com/careerforge/backend/internal/common"
	"github.com/careerforge/backend/internal/interfaces"
	"github.com/careerforge/backend/internal/models"
)

// Processor wraps a DomainService so it can be driven by the Worker Runtime.
// It keeps the job's Domain Record (spec §3) in sync with each attempt.
type Processor struct {
	jobType string
	service interfaces.DomainService
	storage interfaces.StorageManager
	jobSvc  interfaces.JobService
	logger  *common.Logger
}

// NewProcessor binds a DomainService to jobType.
func NewProcessor(jobType string, service interfaces.DomainService, storage interfaces.StorageManager, jobSvc interfaces.JobService, logger *common.Logger) *Processor {
	return &Processor{jobType: jobType, service: service, storage: storage, jobSvc: jobSvc, logger: logger}
}

// JobType is the channel this processor is bound to.
func (p *Processor) JobType() string { return p.jobType }

// Execute runs the wrapped DomainService and keeps the Domain Record in sync.
func (p *Processor) Execute(ctx context.Context, job *models.Job) (any, error) {
	record, err := p.storage.JobStore().GetDomainRecord(ctx, job.ExternalID)
	if err != nil {
		return nil, common.Wrap(common.ErrKindTransient, "domain.Processor.Execute", err)
	}
	if record == nil {
		record = &models.DomainRecord{
			JobExternalID: job.ExternalID,
			Kind:          p.jobType,
			OwnerID:       job.OwnerID,
			Status:        models.JobStatusProcessing,
			Payload:       job.Payload,
		}
		if err := p.storage.JobStore().InsertDomainRecord(ctx, nil, record); err != nil {
			return nil, common.Wrap(common.ErrKindTransient, "domain.Processor.Execute", err)
		}
	} else {
		record.Status = models.JobStatusProcessing
		if err := p.storage.JobStore().UpdateDomainRecord(ctx, record); err != nil {
			p.logger.Warn().Err(err).Str("external_id", job.ExternalID).Msg("failed to mark domain record processing")
		}
	}

	progress := func(pct int, step string) {
		if err := p.jobSvc.UpdateJobProgress(ctx, job.ExternalID, pct, step, 0); err != nil {
			p.logger.Warn().Err(err).Str("external_id", job.ExternalID).Msg("failed to report progress")
		}
	}

	result, err := p.service.Process(ctx, job.Payload, progress)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.service.Name(), err)
	}

	record.Result = result
	record.Status = models.JobStatusCompleted
	if err := p.storage.JobStore().UpdateDomainRecord(ctx, record); err != nil {
		p.logger.Warn().Err(err).Str("external_id", job.ExternalID).Msg("failed to persist domain record result")
	}

	return result, nil
}

// OnFinalFailure marks the Domain Record failed once retries are exhausted.
func (p *Processor) OnFinalFailure(ctx context.Context, job *models.Job, err error) {
	record, lookupErr := p.storage.JobStore().GetDomainRecord(ctx, job.ExternalID)
	if lookupErr != nil || record == nil {
		return
	}
	record.Status = models.JobStatusFailed
	record.Metadata = map[string]any{"final_error": err.Error()}
	if uerr := p.storage.JobStore().UpdateDomainRecord(ctx, record); uerr != nil {
		p.logger.Warn().Err(uerr).Str("external_id", job.ExternalID).Msg("failed to mark domain record failed")
	}
}

var _ interfaces.Processor = (*Processor)(nil)
