package surrealdb

import (
	"context"
	"testing"
	"time"

	"github.com/careerforge/backend/internal/interfaces"
	"github.com/careerforge/backend/internal/models"
	"github.com/google/uuid"
)

func newTestJob(jobType string) *models.Job {
	now := time.Now()
	return &models.Job{
		ExternalID: uuid.New().String(),
		Type:       jobType,
		Payload:    map[string]any{"cvId": "cv-123"},
		Priority:   models.PriorityNormal,
		Status:     models.JobStatusPending,
		MaxRetries: 3,
		OwnerID:    "user-1",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestJobStore_InsertAndGet(t *testing.T) {
	db := testDB(t)
	store := NewJobStore(db, testLogger())
	ctx := context.Background()

	job := newTestJob(models.JobTypeParsing)
	if err := store.Insert(ctx, nil, job); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByExternalID(ctx, job.ExternalID)
	if err != nil {
		t.Fatalf("GetByExternalID failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected job, got nil")
	}
	if got.Status != models.JobStatusPending {
		t.Errorf("expected status pending, got %s", got.Status)
	}
	if got.Type != models.JobTypeParsing {
		t.Errorf("expected type parsing, got %s", got.Type)
	}
}

func TestJobStore_GetByExternalID_Miss(t *testing.T) {
	db := testDB(t)
	store := NewJobStore(db, testLogger())
	ctx := context.Background()

	got, err := store.GetByExternalID(ctx, "does-not-exist")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing job, got %+v", got)
	}
}

func TestJobStore_UpdateStatus_SetsStartedAtOnce(t *testing.T) {
	db := testDB(t)
	store := NewJobStore(db, testLogger())
	ctx := context.Background()

	job := newTestJob(models.JobTypeEnhancement)
	job.Status = models.JobStatusQueued
	if err := store.Insert(ctx, nil, job); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	updated, err := store.UpdateStatus(ctx, nil, job.ExternalID, models.JobStatusProcessing, nil)
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if updated.StartedAt == nil {
		t.Fatal("expected started_at to be set on transition to processing")
	}
	firstStart := *updated.StartedAt

	// A later status change must never overwrite the original started_at.
	if _, err := store.UpdateStatus(ctx, nil, job.ExternalID, models.JobStatusCompleted, nil); err != nil {
		t.Fatalf("UpdateStatus (completed) failed: %v", err)
	}
	got, err := store.GetByExternalID(ctx, job.ExternalID)
	if err != nil {
		t.Fatalf("GetByExternalID failed: %v", err)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(firstStart) {
		t.Errorf("expected started_at to remain %v, got %v", firstStart, got.StartedAt)
	}
	if got.CompletedAt == nil {
		t.Error("expected completed_at to be set on transition to completed")
	}
}

func TestJobStore_ScheduleRetry(t *testing.T) {
	db := testDB(t)
	store := NewJobStore(db, testLogger())
	ctx := context.Background()

	job := newTestJob(models.JobTypeGeneration)
	job.Status = models.JobStatusFailed
	if err := store.Insert(ctx, nil, job); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	next := time.Now().Add(5 * time.Minute)
	updated, err := store.ScheduleRetry(ctx, job.ExternalID, next)
	if err != nil {
		t.Fatalf("ScheduleRetry failed: %v", err)
	}
	if updated.Status != models.JobStatusRetrying {
		t.Errorf("expected status retrying, got %s", updated.Status)
	}
	if updated.RetryCount != 1 {
		t.Errorf("expected retry_count 1, got %d", updated.RetryCount)
	}
	if updated.NextRetryAt == nil || !updated.NextRetryAt.Equal(next) {
		t.Errorf("expected next_retry_at %v, got %v", next, updated.NextRetryAt)
	}
}

func TestJobStore_List_FiltersByOwnerAndStatus(t *testing.T) {
	db := testDB(t)
	store := NewJobStore(db, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		j := newTestJob(models.JobTypeParsing)
		j.OwnerID = "owner-a"
		if i == 0 {
			j.Status = models.JobStatusCompleted
		}
		store.Insert(ctx, nil, j)
	}
	other := newTestJob(models.JobTypeParsing)
	other.OwnerID = "owner-b"
	store.Insert(ctx, nil, other)

	jobs, total, err := store.List(ctx, interfaces.QueryOptions{
		Page: 1, PerPage: 10, OwnerID: "owner-a", Status: models.JobStatusCompleted,
	})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 1 || len(jobs) != 1 {
		t.Fatalf("expected exactly 1 completed job for owner-a, got total=%d len=%d", total, len(jobs))
	}
	if jobs[0].OwnerID != "owner-a" {
		t.Errorf("expected owner-a, got %s", jobs[0].OwnerID)
	}
}

func TestJobStore_DomainRecord_RoundTrip(t *testing.T) {
	db := testDB(t)
	store := NewJobStore(db, testLogger())
	ctx := context.Background()

	job := newTestJob(models.JobTypeEvaluation)
	if err := store.Insert(ctx, nil, job); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	now := time.Now()
	record := &models.DomainRecord{
		JobExternalID: job.ExternalID,
		Kind:          models.JobTypeEvaluation,
		OwnerID:       job.OwnerID,
		Status:        models.JobStatusProcessing,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := store.InsertDomainRecord(ctx, nil, record); err != nil {
		t.Fatalf("InsertDomainRecord failed: %v", err)
	}

	got, err := store.GetDomainRecord(ctx, job.ExternalID)
	if err != nil {
		t.Fatalf("GetDomainRecord failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected domain record, got nil")
	}

	got.Status = models.JobStatusCompleted
	got.Result = map[string]any{"score": 87}
	if err := store.UpdateDomainRecord(ctx, got); err != nil {
		t.Fatalf("UpdateDomainRecord failed: %v", err)
	}

	final, err := store.GetDomainRecord(ctx, job.ExternalID)
	if err != nil {
		t.Fatalf("GetDomainRecord (final) failed: %v", err)
	}
	if final.Status != models.JobStatusCompleted {
		t.Errorf("expected status completed, got %s", final.Status)
	}
}
