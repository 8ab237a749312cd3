package jobservice

import (
	"context"
	"sync"
	"time"

	"github.com/careerforge/backend/internal/common"
	"github.com/careerforge/backend/internal/interfaces"
	"github.com/careerforge/backend/internal/models"
)

// fakeTx is a no-op Tx handle for tests that don't care about transactional
// boundaries.
type fakeTx struct{}

func (fakeTx) TxID() string { return "fake-tx" }

// memStorage is an in-memory interfaces.StorageManager backed by a single
// memJobStore, grounded in the teacher's hand-rolled mock-client idiom
// (struct fields + call counters, no mocking library).
type memStorage struct {
	jobs     *memJobStore
	webhooks *memWebhookStore
	users    *memUserStore
}

func newMemStorage() *memStorage {
	return &memStorage{
		jobs:     newMemJobStore(),
		webhooks: &memWebhookStore{},
		users:    &memUserStore{},
	}
}

func (m *memStorage) JobStore() interfaces.JobStore         { return m.jobs }
func (m *memStorage) WebhookStore() interfaces.WebhookStore { return m.webhooks }
func (m *memStorage) UserStore() interfaces.UserStore       { return m.users }
func (m *memStorage) Close() error                          { return nil }

func (m *memStorage) ExecuteAtomic(ctx context.Context, fn func(tx interfaces.Tx) error) error {
	return fn(fakeTx{})
}

// memJobStore is a minimal in-memory JobStore sufficient to exercise the Job
// Service's state machine and backoff logic.
type memJobStore struct {
	mu   sync.Mutex
	byID map[string]*models.Job
}

func newMemJobStore() *memJobStore {
	return &memJobStore{byID: make(map[string]*models.Job)}
}

func (s *memJobStore) Insert(ctx context.Context, tx interfaces.Tx, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.byID[job.ExternalID] = &cp
	return nil
}

func (s *memJobStore) GetByExternalID(ctx context.Context, externalID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.byID[externalID]
	if !ok {
		return nil, nil
	}
	cp := *job
	return &cp, nil
}

func (s *memJobStore) UpdateStatus(ctx context.Context, tx interfaces.Tx, externalID, newStatus string, extra map[string]any) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.byID[externalID]
	if !ok {
		return nil, common.New(common.ErrKindNotFound, "memJobStore.UpdateStatus", "job not found")
	}
	job.Status = newStatus
	job.UpdatedAt = time.Now()
	if newStatus == models.JobStatusProcessing && job.StartedAt == nil {
		now := time.Now()
		job.StartedAt = &now
	}
	if models.IsTerminal(newStatus) && job.CompletedAt == nil {
		now := time.Now()
		job.CompletedAt = &now
	}
	for k, v := range extra {
		switch k {
		case "result":
			job.Result = v
		case "error":
			if v == nil {
				job.Error = nil
			} else if je, ok := v.(*models.JobError); ok {
				job.Error = je
			}
		case "progress":
			if p, ok := v.(int); ok {
				job.Progress = p
			}
		case "retry_count":
			if rc, ok := v.(int); ok {
				job.RetryCount = rc
			}
		case "next_retry_at":
			job.NextRetryAt = nil
		}
	}
	cp := *job
	return &cp, nil
}

func (s *memJobStore) UpdateProgress(ctx context.Context, externalID string, progress int, currentStep string, totalSteps int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.byID[externalID]
	if !ok {
		return common.New(common.ErrKindNotFound, "memJobStore.UpdateProgress", "job not found")
	}
	job.Progress = progress
	job.CurrentStep = currentStep
	job.TotalSteps = totalSteps
	return nil
}

func (s *memJobStore) ScheduleRetry(ctx context.Context, externalID string, nextRetryAt time.Time) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.byID[externalID]
	if !ok {
		return nil, common.New(common.ErrKindNotFound, "memJobStore.ScheduleRetry", "job not found")
	}
	job.Status = models.JobStatusRetrying
	job.RetryCount++
	t := nextRetryAt
	job.NextRetryAt = &t
	job.UpdatedAt = time.Now()
	cp := *job
	return &cp, nil
}

func (s *memJobStore) List(ctx context.Context, opts interfaces.QueryOptions) ([]*models.Job, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Job
	for _, j := range s.byID {
		if opts.OwnerID != "" && j.OwnerID != opts.OwnerID {
			continue
		}
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		if opts.Type != "" && j.Type != opts.Type {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (s *memJobStore) ListDueForDelivery(ctx context.Context, jobType string, limit int) ([]*models.Job, error) {
	return nil, nil
}

func (s *memJobStore) ListStalled(ctx context.Context, jobType string, lockDuration time.Duration, limit int) ([]*models.Job, error) {
	return nil, nil
}

func (s *memJobStore) CountByStatus(ctx context.Context, ownerID string) (map[string]int, error) {
	return map[string]int{}, nil
}

func (s *memJobStore) CountByType(ctx context.Context, ownerID string) (map[string]int, error) {
	return map[string]int{}, nil
}

func (s *memJobStore) ActivityTrend(ctx context.Context, ownerID string, days int) (map[string]int, error) {
	return map[string]int{}, nil
}

func (s *memJobStore) CleanupOldJobs(ctx context.Context, olderThan time.Time) (int, error) {
	return 0, nil
}

func (s *memJobStore) InsertDomainRecord(ctx context.Context, tx interfaces.Tx, record *models.DomainRecord) error {
	return nil
}

func (s *memJobStore) GetDomainRecord(ctx context.Context, jobExternalID string) (*models.DomainRecord, error) {
	return nil, nil
}

func (s *memJobStore) UpdateDomainRecord(ctx context.Context, record *models.DomainRecord) error {
	return nil
}

func (s *memJobStore) Close() error { return nil }

// memWebhookStore and memUserStore are unused by the Job Service but must be
// present to satisfy StorageManager.
type memWebhookStore struct{}

func (m *memWebhookStore) SaveSubscription(ctx context.Context, sub *models.WebhookSubscription) error {
	return nil
}
func (m *memWebhookStore) GetSubscription(ctx context.Context, id string) (*models.WebhookSubscription, error) {
	return nil, nil
}
func (m *memWebhookStore) ListActiveSubscriptionsForEvent(ctx context.Context, eventType string) ([]*models.WebhookSubscription, error) {
	return nil, nil
}
func (m *memWebhookStore) IncrementSubscriptionCounters(ctx context.Context, id string, success bool) error {
	return nil
}
func (m *memWebhookStore) DeleteSubscription(ctx context.Context, id string) error { return nil }
func (m *memWebhookStore) InsertDelivery(ctx context.Context, tx interfaces.Tx, delivery *models.WebhookDelivery) error {
	return nil
}
func (m *memWebhookStore) GetDelivery(ctx context.Context, id string) (*models.WebhookDelivery, error) {
	return nil, nil
}
func (m *memWebhookStore) GetDeliveryByJob(ctx context.Context, jobExternalID string) (*models.WebhookDelivery, error) {
	return nil, nil
}
func (m *memWebhookStore) AppendAttempt(ctx context.Context, id string, attempt models.DeliveryAttempt, newStatus string, nextRetryAt *time.Time) (*models.WebhookDelivery, error) {
	return nil, nil
}
func (m *memWebhookStore) ListDueForRetry(ctx context.Context, limit int) ([]*models.WebhookDelivery, error) {
	return nil, nil
}
func (m *memWebhookStore) PurgeOldSuccessful(ctx context.Context, olderThan time.Time) (int, error) {
	return 0, nil
}
func (m *memWebhookStore) Close() error { return nil }

type memUserStore struct{}

func (m *memUserStore) GetUser(ctx context.Context, userID string) (*models.InternalUser, error) {
	return nil, nil
}
func (m *memUserStore) GetUserByEmail(ctx context.Context, email string) (*models.InternalUser, error) {
	return nil, nil
}
func (m *memUserStore) SaveUser(ctx context.Context, user *models.InternalUser) error { return nil }
func (m *memUserStore) Close() error                                                 { return nil }

// memBroker is an in-memory QueueBroker recording every Enqueue/Remove call,
// with a switch to force enqueue failures for testing the broker-failure path.
type memBroker struct {
	mu          sync.Mutex
	enqueued    []*models.Job
	removed     []string
	failEnqueue bool
}

func (b *memBroker) Enqueue(ctx context.Context, jobType string, job *models.Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failEnqueue {
		return common.New(common.ErrKindTransient, "memBroker.Enqueue", "broker unavailable")
	}
	cp := *job
	b.enqueued = append(b.enqueued, &cp)
	return nil
}

func (b *memBroker) Consume(ctx context.Context, jobType string, concurrency int, handler func(context.Context, interfaces.QueueEntry) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func (b *memBroker) Remove(ctx context.Context, jobType, externalID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removed = append(b.removed, externalID)
	return nil
}

func (b *memBroker) Depth(ctx context.Context, jobType string) (interfaces.ChannelDepth, error) {
	return interfaces.ChannelDepth{}, nil
}

func (b *memBroker) Close() error { return nil }

func (b *memBroker) enqueueCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.enqueued)
}

func newTestConfig() *common.Config {
	cfg := &common.Config{}
	cfg.JobManager.MaxRetries = 3
	return cfg
}
