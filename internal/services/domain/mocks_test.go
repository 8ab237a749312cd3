package domain

import (
	"context"
	"sync"
	"time"

	"github.com/careerforge/backend/internal/interfaces"
	"github.com/careerforge/backend/internal/models"
)

// memJobStore is a minimal in-memory interfaces.JobStore that only
// implements the Domain Record operations this package's Processor uses;
// everything else is unused by these tests.
type memJobStore struct {
	mu      sync.Mutex
	records map[string]*models.DomainRecord
}

func newMemJobStore() *memJobStore {
	return &memJobStore{records: make(map[string]*models.DomainRecord)}
}

func (s *memJobStore) Insert(ctx context.Context, tx interfaces.Tx, job *models.Job) error { return nil }
func (s *memJobStore) GetByExternalID(ctx context.Context, externalID string) (*models.Job, error) {
	return nil, nil
}
func (s *memJobStore) UpdateStatus(ctx context.Context, tx interfaces.Tx, externalID, newStatus string, extra map[string]any) (*models.Job, error) {
	return nil, nil
}
func (s *memJobStore) UpdateProgress(ctx context.Context, externalID string, progress int, currentStep string, totalSteps int) error {
	return nil
}
func (s *memJobStore) ScheduleRetry(ctx context.Context, externalID string, nextRetryAt time.Time) (*models.Job, error) {
	return nil, nil
}
func (s *memJobStore) List(ctx context.Context, opts interfaces.QueryOptions) ([]*models.Job, int, error) {
	return nil, 0, nil
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
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *record
	s.records[record.JobExternalID] = &cp
	return nil
}

func (s *memJobStore) GetDomainRecord(ctx context.Context, jobExternalID string) (*models.DomainRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[jobExternalID]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *memJobStore) UpdateDomainRecord(ctx context.Context, record *models.DomainRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *record
	s.records[record.JobExternalID] = &cp
	return nil
}

func (s *memJobStore) Close() error { return nil }

type memStorage struct{ jobs *memJobStore }

func newMemStorage() *memStorage {
	return &memStorage{jobs: newMemJobStore()}
}

func (m *memStorage) JobStore() interfaces.JobStore         { return m.jobs }
func (m *memStorage) WebhookStore() interfaces.WebhookStore { return nil }
func (m *memStorage) UserStore() interfaces.UserStore       { return nil }
func (m *memStorage) Close() error                          { return nil }
func (m *memStorage) ExecuteAtomic(ctx context.Context, fn func(tx interfaces.Tx) error) error {
	return fn(nil)
}

// fakeJobService implements just enough of interfaces.JobService to receive
// progress callbacks from Processor.Execute.
type fakeJobService struct {
	mu              sync.Mutex
	progressReports int
}

func (f *fakeJobService) CreateJob(ctx context.Context, jobType string, payload any, opts interfaces.CreateJobOptions) (*models.Job, interfaces.EnqueueFunc, error) {
	return nil, nil, nil
}
func (f *fakeJobService) EnqueueJob(ctx context.Context, job *models.Job) error { return nil }
func (f *fakeJobService) GetJob(ctx context.Context, externalID string) (*models.Job, error) {
	return nil, nil
}
func (f *fakeJobService) FindJobByID(ctx context.Context, externalID string) (*models.Job, error) {
	return nil, nil
}
func (f *fakeJobService) UpdateJobStatus(ctx context.Context, externalID, newStatus string, extra map[string]any) (*models.Job, error) {
	return nil, nil
}
func (f *fakeJobService) UpdateJobProgress(ctx context.Context, externalID string, progress int, currentStep string, totalSteps int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progressReports++
	return nil
}
func (f *fakeJobService) CompleteJob(ctx context.Context, externalID string, result any) (*models.Job, error) {
	return nil, nil
}
func (f *fakeJobService) FailJob(ctx context.Context, externalID string, jobErr *models.JobError) (*models.Job, error) {
	return nil, nil
}
func (f *fakeJobService) CancelJob(ctx context.Context, externalID string) (*models.Job, error) {
	return nil, nil
}
func (f *fakeJobService) RetryJob(ctx context.Context, externalID string) (*models.Job, error) {
	return nil, nil
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

// fakeDomainService lets each test control Process's outcome.
type fakeDomainService struct {
	name         string
	result       any
	err          error
	reportsSteps bool
}

func (s *fakeDomainService) Name() string { return s.name }

func (s *fakeDomainService) Process(ctx context.Context, payload any, progress func(pct int, step string)) (any, error) {
	if s.reportsSteps {
		progress(50, "halfway")
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}
