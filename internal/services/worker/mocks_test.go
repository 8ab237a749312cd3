package worker

import (
	"context"
	"sync"

	"github.com/careerforge/backend/internal/interfaces"
	"github.com/careerforge/backend/internal/models"
)

// fakeJobService is a minimal in-memory interfaces.JobService recording the
// calls the Worker Runtime makes against it, grounded in the teacher's
// hand-rolled mock-client idiom (struct fields + call counters).
type fakeJobService struct {
	mu sync.Mutex

	jobs map[string]*models.Job

	statusUpdates    []string
	processedResults []bool
	lastJobErr       *models.JobError
}

func newFakeJobService(job *models.Job) *fakeJobService {
	return &fakeJobService{jobs: map[string]*models.Job{job.ExternalID: job}}
}

func (f *fakeJobService) CreateJob(ctx context.Context, jobType string, payload any, opts interfaces.CreateJobOptions) (*models.Job, interfaces.EnqueueFunc, error) {
	return nil, nil, nil
}
func (f *fakeJobService) EnqueueJob(ctx context.Context, job *models.Job) error { return nil }

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
	f.statusUpdates = append(f.statusUpdates, newStatus)
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
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processedResults = append(f.processedResults, success)
	f.lastJobErr = jobErr
	if job, ok := f.jobs[externalID]; ok {
		if success {
			job.Status = models.JobStatusCompleted
		} else {
			job.Status = models.JobStatusFailed
		}
	}
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

// fakeProcessor lets each test control Execute's outcome and observe whether
// OnFinalFailure was invoked.
type fakeProcessor struct {
	jobType         string
	result          any
	err             error
	panicValue      any
	finalFailureHit bool
}

func (p *fakeProcessor) JobType() string { return p.jobType }

func (p *fakeProcessor) Execute(ctx context.Context, job *models.Job) (any, error) {
	if p.panicValue != nil {
		panic(p.panicValue)
	}
	return p.result, p.err
}

func (p *fakeProcessor) OnFinalFailure(ctx context.Context, job *models.Job, err error) {
	p.finalFailureHit = true
}

// fakeBroker is an unused-but-required interfaces.QueueBroker for Runtime's
// constructor; Runtime.handle is exercised directly in these tests, bypassing
// Run/Consume, so its methods are never called.
type fakeBroker struct{}

func (fakeBroker) Enqueue(ctx context.Context, jobType string, job *models.Job) error { return nil }
func (fakeBroker) Consume(ctx context.Context, jobType string, concurrency int, handler func(context.Context, interfaces.QueueEntry) error) error {
	return nil
}
func (fakeBroker) Remove(ctx context.Context, jobType, externalID string) error { return nil }
func (fakeBroker) Depth(ctx context.Context, jobType string) (interfaces.ChannelDepth, error) {
	return interfaces.ChannelDepth{}, nil
}
func (fakeBroker) Close() error { return nil }
