package webhook

import (
	"context"
	"sync"
	"time"

	"github.com/careerforge/backend/internal/interfaces"
	"github.com/careerforge/backend/internal/models"
)

// fakeStore is an in-memory interfaces.WebhookStore sufficient to exercise
// the Dispatcher without a real database.
type fakeStore struct {
	mu            sync.Mutex
	subs          map[string]*models.WebhookSubscription
	deliveries    map[string]*models.WebhookDelivery
	deliveriesSeq int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		subs:       make(map[string]*models.WebhookSubscription),
		deliveries: make(map[string]*models.WebhookDelivery),
	}
}

func (f *fakeStore) SaveSubscription(ctx context.Context, sub *models.WebhookSubscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[sub.ID] = sub
	return nil
}

func (f *fakeStore) GetSubscription(ctx context.Context, id string) (*models.WebhookSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[id], nil
}

func (f *fakeStore) ListActiveSubscriptionsForEvent(ctx context.Context, eventType string) ([]*models.WebhookSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.WebhookSubscription
	for _, s := range f.subs {
		if !s.Active {
			continue
		}
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) IncrementSubscriptionCounters(ctx context.Context, id string, success bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[id]
	if !ok {
		return nil
	}
	if success {
		sub.SuccessfulDeliveries++
	} else {
		sub.FailedDeliveries++
	}
	return nil
}

func (f *fakeStore) DeleteSubscription(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, id)
	return nil
}

func (f *fakeStore) InsertDelivery(ctx context.Context, tx interfaces.Tx, delivery *models.WebhookDelivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveriesSeq++
	if delivery.ID == "" {
		delivery.ID = "delivery-" + itoa(f.deliveriesSeq)
	}
	cp := *delivery
	f.deliveries[delivery.ID] = &cp
	return nil
}

func (f *fakeStore) GetDelivery(ctx context.Context, id string) (*models.WebhookDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deliveries[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (f *fakeStore) GetDeliveryByJob(ctx context.Context, jobExternalID string) (*models.WebhookDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.deliveries {
		if d.JobExternalID == jobExternalID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) AppendAttempt(ctx context.Context, id string, attempt models.DeliveryAttempt, newStatus string, nextRetryAt *time.Time) (*models.WebhookDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deliveries[id]
	if !ok {
		return nil, nil
	}
	d.Attempts = append(d.Attempts, attempt)
	d.Status = newStatus
	d.NextRetryAt = nextRetryAt
	cp := *d
	return &cp, nil
}

func (f *fakeStore) ListDueForRetry(ctx context.Context, limit int) ([]*models.WebhookDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.WebhookDelivery
	now := time.Now()
	for _, d := range f.deliveries {
		if d.Status == models.DeliveryStatusRetrying && d.NextRetryAt != nil && !d.NextRetryAt.After(now) {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) PurgeOldSuccessful(ctx context.Context, olderThan time.Time) (int, error) {
	return 0, nil
}

func (f *fakeStore) Close() error { return nil }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// fakeJobService is a minimal interfaces.JobService recording CreateJob and
// EnqueueJob/FindJobByID calls, enough to exercise Notify and SweepRetries.
type fakeJobService struct {
	mu       sync.Mutex
	jobs     map[string]*models.Job
	created  []string
	enqueued []string
}

func newFakeJobService() *fakeJobService {
	return &fakeJobService{jobs: make(map[string]*models.Job)}
}

func (f *fakeJobService) CreateJob(ctx context.Context, jobType string, payload any, opts interfaces.CreateJobOptions) (*models.Job, interfaces.EnqueueFunc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := &models.Job{ExternalID: opts.ExternalID, Type: jobType, Payload: payload, OwnerID: opts.OwnerID, Status: models.JobStatusQueued}
	f.jobs[job.ExternalID] = job
	f.created = append(f.created, job.ExternalID)
	return job, nil, nil
}

func (f *fakeJobService) EnqueueJob(ctx context.Context, job *models.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, job.ExternalID)
	return nil
}

func (f *fakeJobService) GetJob(ctx context.Context, externalID string) (*models.Job, error) {
	return f.FindJobByID(ctx, externalID)
}

func (f *fakeJobService) FindJobByID(ctx context.Context, externalID string) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[externalID], nil
}

func (f *fakeJobService) UpdateJobStatus(ctx context.Context, externalID, newStatus string, extra map[string]any) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[externalID]
	if !ok {
		return nil, nil
	}
	job.Status = newStatus
	return job, nil
}

func (f *fakeJobService) UpdateJobProgress(ctx context.Context, externalID string, progress int, currentStep string, totalSteps int) error {
	return nil
}
func (f *fakeJobService) CompleteJob(ctx context.Context, externalID string, result any) (*models.Job, error) {
	return f.UpdateJobStatus(ctx, externalID, models.JobStatusCompleted, nil)
}
func (f *fakeJobService) FailJob(ctx context.Context, externalID string, jobErr *models.JobError) (*models.Job, error) {
	return f.UpdateJobStatus(ctx, externalID, models.JobStatusFailed, nil)
}
func (f *fakeJobService) CancelJob(ctx context.Context, externalID string) (*models.Job, error) {
	return f.UpdateJobStatus(ctx, externalID, models.JobStatusCancelled, nil)
}
func (f *fakeJobService) RetryJob(ctx context.Context, externalID string) (*models.Job, error) {
	return f.UpdateJobStatus(ctx, externalID, models.JobStatusQueued, nil)
}
func (f *fakeJobService) ProcessJobResult(ctx context.Context, externalID string, success bool, result any, jobErr *models.JobError) error {
	return nil
}
func (f *fakeJobService) ListJobs(ctx context.Context, opts interfaces.QueryOptions) ([]*models.Job, int, error) {
	return nil, 0, nil
}
func (f *fakeJobService) Stats(ctx context.Context, ownerID string) (*interfaces.JobStats, error) {
	return &interfaces.JobStats{}, nil
}
func (f *fakeJobService) Subscribe(listener func(models.JobEvent)) (cancel func()) {
	return func() {}
}
