package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/careerforge/backend/internal/interfaces"
	"github.com/careerforge/backend/internal/models"
)

type fakeJobService struct {
	mu      sync.Mutex
	jobs    map[string]*models.Job
	nextID  int

	createErr  error
	enqueueErr error
	cancelErr  error
	retryErr   error
	statsErr   error
	listErr    error
}

func newFakeJobService() *fakeJobService {
	return &fakeJobService{jobs: make(map[string]*models.Job)}
}

func (f *fakeJobService) CreateJob(ctx context.Context, jobType string, payload any, opts interfaces.CreateJobOptions) (*models.Job, interfaces.EnqueueFunc, error) {
	if f.createErr != nil {
		return nil, nil, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	job := &models.Job{
		ExternalID: fmt.Sprintf("job-%d", f.nextID),
		Type:       jobType,
		Payload:    payload,
		Status:     models.JobStatusPending,
		OwnerID:    opts.OwnerID,
		UpdatedAt:  time.Now(),
	}
	f.jobs[job.ExternalID] = job
	return job, func(ctx context.Context) error { return f.enqueueErr }, nil
}

func (f *fakeJobService) EnqueueJob(ctx context.Context, job *models.Job) error { return nil }

func (f *fakeJobService) GetJob(ctx context.Context, externalID string) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[externalID], nil
}

func (f *fakeJobService) FindJobByID(ctx context.Context, externalID string) (*models.Job, error) {
	return f.GetJob(ctx, externalID)
}

func (f *fakeJobService) UpdateJobStatus(ctx context.Context, externalID, newStatus string, extra map[string]any) (*models.Job, error) {
	return nil, nil
}

func (f *fakeJobService) UpdateJobProgress(ctx context.Context, externalID string, progress int, currentStep string, totalSteps int) error {
	return nil
}

func (f *fakeJobService) CompleteJob(ctx context.Context, externalID string, result any) (*models.Job, error) {
	return nil, nil
}

func (f *fakeJobService) FailJob(ctx context.Context, externalID string, jobErr *models.JobError) (*models.Job, error) {
	return nil, nil
}

func (f *fakeJobService) CancelJob(ctx context.Context, externalID string) (*models.Job, error) {
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	job := f.jobs[externalID]
	if job != nil {
		job.Status = models.JobStatusCancelled
	}
	return job, nil
}

func (f *fakeJobService) RetryJob(ctx context.Context, externalID string) (*models.Job, error) {
	if f.retryErr != nil {
		return nil, f.retryErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	job := f.jobs[externalID]
	if job != nil {
		job.Status = models.JobStatusPending
	}
	return job, nil
}

func (f *fakeJobService) ProcessJobResult(ctx context.Context, externalID string, success bool, result any, jobErr *models.JobError) error {
	return nil
}

func (f *fakeJobService) ListJobs(ctx context.Context, opts interfaces.QueryOptions) ([]*models.Job, int, error) {
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Job
	for _, j := range f.jobs {
		if j.Type == opts.Type && j.OwnerID == opts.OwnerID {
			out = append(out, j)
		}
	}
	return out, len(out), nil
}

func (f *fakeJobService) Stats(ctx context.Context, ownerID string) (*interfaces.JobStats, error) {
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	return &interfaces.JobStats{ByStatus: map[string]int{"completed": 1}}, nil
}

func (f *fakeJobService) Subscribe(listener func(models.JobEvent)) (cancel func()) {
	return func() {}
}

type fakeUserStore struct {
	users map[string]*models.InternalUser
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*models.InternalUser)}
}

func (s *fakeUserStore) GetUser(ctx context.Context, userID string) (*models.InternalUser, error) {
	return s.users[userID], nil
}
func (s *fakeUserStore) GetUserByEmail(ctx context.Context, email string) (*models.InternalUser, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}
func (s *fakeUserStore) SaveUser(ctx context.Context, user *models.InternalUser) error {
	s.users[user.UserID] = user
	return nil
}
func (s *fakeUserStore) Close() error { return nil }

type fakeWebhookStore struct {
	mu   sync.Mutex
	subs map[string]*models.WebhookSubscription

	saveErr   error
	getErr    error
	deleteErr error
}

func newFakeWebhookStore() *fakeWebhookStore {
	return &fakeWebhookStore{subs: make(map[string]*models.WebhookSubscription)}
}

func (s *fakeWebhookStore) SaveSubscription(ctx context.Context, sub *models.WebhookSubscription) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == "" {
		sub.ID = "sub-1"
	}
	cp := *sub
	s.subs[sub.ID] = &cp
	return nil
}

func (s *fakeWebhookStore) GetSubscription(ctx context.Context, id string) (*models.WebhookSubscription, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs[id], nil
}

func (s *fakeWebhookStore) ListActiveSubscriptionsForEvent(ctx context.Context, eventType string) ([]*models.WebhookSubscription, error) {
	return nil, nil
}
func (s *fakeWebhookStore) IncrementSubscriptionCounters(ctx context.Context, id string, success bool) error {
	return nil
}
func (s *fakeWebhookStore) DeleteSubscription(ctx context.Context, id string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
	return nil
}
func (s *fakeWebhookStore) InsertDelivery(ctx context.Context, tx interfaces.Tx, delivery *models.WebhookDelivery) error {
	return nil
}
func (s *fakeWebhookStore) GetDelivery(ctx context.Context, id string) (*models.WebhookDelivery, error) {
	return nil, nil
}
func (s *fakeWebhookStore) GetDeliveryByJob(ctx context.Context, jobExternalID string) (*models.WebhookDelivery, error) {
	return nil, nil
}
func (s *fakeWebhookStore) AppendAttempt(ctx context.Context, id string, attempt models.DeliveryAttempt, newStatus string, nextRetryAt *time.Time) (*models.WebhookDelivery, error) {
	return nil, nil
}
func (s *fakeWebhookStore) ListDueForRetry(ctx context.Context, limit int) ([]*models.WebhookDelivery, error) {
	return nil, nil
}
func (s *fakeWebhookStore) PurgeOldSuccessful(ctx context.Context, olderThan time.Time) (int, error) {
	return 0, nil
}
func (s *fakeWebhookStore) Close() error { return nil }

type fakeStorage struct {
	jobs     interfaces.JobStore
	webhooks *fakeWebhookStore
	users    *fakeUserStore
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{webhooks: newFakeWebhookStore(), users: newFakeUserStore()}
}

func (s *fakeStorage) JobStore() interfaces.JobStore         { return s.jobs }
func (s *fakeStorage) WebhookStore() interfaces.WebhookStore { return s.webhooks }
func (s *fakeStorage) UserStore() interfaces.UserStore       { return s.users }
func (s *fakeStorage) Close() error                          { return nil }
func (s *fakeStorage) ExecuteAtomic(ctx context.Context, fn func(tx interfaces.Tx) error) error {
	return fn(nil)
}

type fakeMonitor struct {
	snapshot interfaces.HealthSnapshot
	err      error
}

func (m *fakeMonitor) Snapshot(ctx context.Context) (interfaces.HealthSnapshot, error) {
	return m.snapshot, m.err
}
func (m *fakeMonitor) Start(ctx context.Context, interval time.Duration) {}
