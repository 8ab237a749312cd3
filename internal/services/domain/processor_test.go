package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/careerforge/backend/internal/common"
	"github.com/careerforge/backend/internal/models"
)

func TestExecute_CreatesDomainRecordOnFirstAttempt(t *testing.T) {
	storage := newMemStorage()
	jobSvc := &fakeJobService{}
	service := &fakeDomainService{name: "parsing", result: map[string]any{"ok": true}}
	p := NewProcessor(models.JobTypeParsing, service, storage, jobSvc, common.NewSilentLogger())

	job := &models.Job{ExternalID: "job-1", OwnerID: "user-1", Payload: map[string]any{"cvId": "cv-1"}}
	result, err := p.Execute(context.Background(), job)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result == nil {
		t.Fatal("expected a non-nil result")
	}

	record, _ := storage.jobs.GetDomainRecord(context.Background(), "job-1")
	if record == nil {
		t.Fatal("expected a domain record to be created")
	}
	if record.Status != models.JobStatusCompleted {
		t.Errorf("expected domain record status completed, got %s", record.Status)
	}
	if record.Kind != models.JobTypeParsing {
		t.Errorf("expected domain record kind parsing, got %s", record.Kind)
	}
}

func TestExecute_ReusesExistingDomainRecordOnRetry(t *testing.T) {
	storage := newMemStorage()
	jobSvc := &fakeJobService{}
	service := &fakeDomainService{name: "parsing", result: "done"}
	p := NewProcessor(models.JobTypeParsing, service, storage, jobSvc, common.NewSilentLogger())

	storage.jobs.InsertDomainRecord(context.Background(), nil, &models.DomainRecord{
		JobExternalID: "job-1", Kind: models.JobTypeParsing, Status: models.JobStatusFailed,
	})

	job := &models.Job{ExternalID: "job-1", OwnerID: "user-1"}
	if _, err := p.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	record, _ := storage.jobs.GetDomainRecord(context.Background(), "job-1")
	if record.Status != models.JobStatusCompleted {
		t.Errorf("expected the retried record to end up completed, got %s", record.Status)
	}
}

func TestExecute_ServiceErrorIsWrappedWithServiceName(t *testing.T) {
	storage := newMemStorage()
	jobSvc := &fakeJobService{}
	service := &fakeDomainService{name: "enhancement", err: errors.New("upstream boom")}
	p := NewProcessor(models.JobTypeEnhancement, service, storage, jobSvc, common.NewSilentLogger())

	_, err := p.Execute(context.Background(), &models.Job{ExternalID: "job-1"})
	if err == nil {
		t.Fatal("expected an error when the domain service fails")
	}
	if err.Error() != "enhancement: upstream boom" {
		t.Errorf("expected the error to be prefixed with the service name, got %q", err.Error())
	}
}

func TestExecute_ProgressCallbackForwardsToJobService(t *testing.T) {
	storage := newMemStorage()
	jobSvc := &fakeJobService{}
	service := &fakeDomainService{name: "evaluation", result: "x", reportsSteps: true}
	p := NewProcessor(models.JobTypeEvaluation, service, storage, jobSvc, common.NewSilentLogger())

	if _, err := p.Execute(context.Background(), &models.Job{ExternalID: "job-1"}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if jobSvc.progressReports != 1 {
		t.Errorf("expected exactly one progress report forwarded, got %d", jobSvc.progressReports)
	}
}

func TestOnFinalFailure_MarksDomainRecordFailed(t *testing.T) {
	storage := newMemStorage()
	jobSvc := &fakeJobService{}
	service := &fakeDomainService{name: "generation"}
	p := NewProcessor(models.JobTypeGeneration, service, storage, jobSvc, common.NewSilentLogger())

	storage.jobs.InsertDomainRecord(context.Background(), nil, &models.DomainRecord{
		JobExternalID: "job-1", Kind: models.JobTypeGeneration, Status: models.JobStatusProcessing,
	})

	p.OnFinalFailure(context.Background(), &models.Job{ExternalID: "job-1"}, errors.New("exhausted"))

	record, _ := storage.jobs.GetDomainRecord(context.Background(), "job-1")
	if record.Status != models.JobStatusFailed {
		t.Errorf("expected domain record marked failed, got %s", record.Status)
	}
}

func TestOnFinalFailure_NoRecord_NoOp(t *testing.T) {
	storage := newMemStorage()
	jobSvc := &fakeJobService{}
	service := &fakeDomainService{name: "generation"}
	p := NewProcessor(models.JobTypeGeneration, service, storage, jobSvc, common.NewSilentLogger())

	// Must not panic when no domain record exists for the job.
	p.OnFinalFailure(context.Background(), &models.Job{ExternalID: "ghost-job"}, errors.New("exhausted"))
}

func TestJobType_ReturnsBoundType(t *testing.T) {
	p := NewProcessor(models.JobTypeEvaluation, &fakeDomainService{name: "evaluation"}, newMemStorage(), &fakeJobService{}, common.NewSilentLogger())
	if p.JobType() != models.JobTypeEvaluation {
		t.Errorf("expected job type evaluation, got %s", p.JobType())
	}
}
