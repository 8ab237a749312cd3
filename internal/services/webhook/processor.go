package webhook

import (
	"context"

	"github.com/careerforge/backend/internal/common"
	"github.com/careerforge/backend/internal/interfaces"
	"github.com/careerforge/backend/internal/models"
)

// Processor drives a webhook_delivery Job through exactly one Dispatcher
// attempt per Execute call, the way domain.Processor drives the other four
// Domain Services — the Worker Runtime's own retry/backoff decision (via
// ProcessJobResult) governs whether a failed attempt gets tried again.
type Processor struct {
	dispatcher *Dispatcher
	store      interfaces.WebhookStore
	logger     *common.Logger
}

// NewProcessor binds a Dispatcher to the webhook_delivery channel.
func NewProcessor(dispatcher *Dispatcher, store interfaces.WebhookStore, logger *common.Logger) *Processor {
	return &Processor{dispatcher: dispatcher, store: store, logger: logger}
}

// JobType identifies the channel this processor is bound to.
func (p *Processor) JobType() string { return models.JobTypeWebhookDelivery }

// Execute looks up the Job's linked WebhookDelivery Domain Record and
// performs one signed HTTP attempt against it.
func (p *Processor) Execute(ctx context.Context, job *models.Job) (any, error) {
	delivery, err := p.store.GetDeliveryByJob(ctx, job.ExternalID)
	if err != nil {
		return nil, common.Wrap(common.ErrKindTransient, "webhook.Processor.Execute", err)
	}
	if delivery == nil {
		return nil, common.New(common.ErrKindFatal, "webhook.Processor.Execute", "no delivery record for job: "+job.ExternalID)
	}
	if err := p.dispatcher.Deliver(ctx, delivery.ID); err != nil {
		return nil, err
	}
	updated, err := p.store.GetDelivery(ctx, delivery.ID)
	if err != nil {
		return nil, common.Wrap(common.ErrKindTransient, "webhook.Processor.Execute", err)
	}
	return updated, nil
}

// OnFinalFailure is a no-op: Deliver already marks the WebhookDelivery
// Exhausted once its attempt count exceeds the subscription's max_retries,
// the same value Notify gives the job.
func (p *Processor) OnFinalFailure(ctx context.Context, job *models.Job, err error) {}

var _ interfaces.Processor = (*Processor)(nil)
