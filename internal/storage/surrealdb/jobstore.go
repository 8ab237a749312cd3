package surrealdb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/careerforge/backend/internal/common"
	"github.com/careerforge/backend/internal/interfaces"
	"github.com/careerforge/backend/internal/models"
	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// jobSelectFields lists the job columns read back into models.Job. The
// record id is not selected, so Job.ID is left empty on reads.
const jobSelectFields = "external_id, type, payload, priority, status, progress, current_step, " +
	"total_steps, retry_count, max_retries, delay_ms, queue_options, owner_id, related_entity_id, " +
	"tags, metadata, result, error, created_at, updated_at, started_at, completed_at, next_retry_at"

// txStatement is one buffered SurrealQL statement + its bound variables,
// queued by a store method when it receives a non-nil surrealTx instead of
// being executed immediately.
type txStatement struct {
	sql  string
	vars map[string]any
}

// txBuffer is the mutex-guarded statement queue a surrealTx (declared in
// manager.go) carries, so concurrent store calls within one ExecuteAtomic
// can append safely.
type txBuffer struct {
	mu         sync.Mutex
	statements []txStatement
}

func (b *txBuffer) append(sql string, vars map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statements = append(b.statements, txStatement{sql: sql, vars: vars})
}

// buildTransactionSQL merges buffered statements into a single
// BEGIN TRANSACTION; ...; COMMIT TRANSACTION; round trip, namespacing each
// statement's bound variables by index so identical parameter names across
// statements (e.g. two inserts both using $id) don't collide.
func buildTransactionSQL(statements []txStatement) (string, map[string]any) {
	var sb strings.Builder
	sb.WriteString("BEGIN TRANSACTION;\n")
	merged := make(map[string]any)

	for i, st := range statements {
		sql := st.sql
		keys := make([]string, 0, len(st.vars))
		for k := range st.vars {
			keys = append(keys, k)
		}
		// Longest-first so replacing "$id" doesn't clobber "$id_type".
		sort.Slice(keys, func(a, b int) bool { return len(keys[a]) > len(keys[b]) })
		for _, k := range keys {
			newKey := fmt.Sprintf("s%d_%s", i, k)
			sql = strings.ReplaceAll(sql, "$"+k, "$"+newKey)
			merged[newKey] = st.vars[k]
		}
		sb.WriteString(sql)
		sb.WriteString(";\n")
	}
	sb.WriteString("COMMIT TRANSACTION;")
	return sb.String(), merged
}

// JobStore implements interfaces.JobStore using SurrealDB.
type JobStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewJobStore creates a new JobStore.
func NewJobStore(db *surrealdb.DB, logger *common.Logger) *JobStore {
	return &JobStore{db: db, logger: logger}
}

func (s *JobStore) run(ctx context.Context, tx interfaces.Tx, sql string, vars map[string]any) error {
	if stx, ok := tx.(*surrealTx); ok && stx != nil {
		stx.buf.append(sql, vars)
		return nil
	}
	_, err := surrealdb.Query[any](ctx, s.db, sql, vars)
	return err
}

func (s *JobStore) Insert(ctx context.Context, tx interfaces.Tx, job *models.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.ExternalID == "" {
		job.ExternalID = fmt.Sprintf("%s%d%s", job.Type, time.Now().UnixNano(), uuid.New().String()[:8])
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if job.Priority == "" {
		job.Priority = models.PriorityNormal
	}
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	sql := `CREATE $rid SET
		external_id = $external_id, type = $type, payload = $payload, priority = $priority,
		status = $status, progress = $progress, current_step = $current_step, total_steps = $total_steps,
		retry_count = $retry_count, max_retries = $max_retries, delay_ms = $delay_ms,
		queue_options = $queue_options, owner_id = $owner_id, related_entity_id = $related_entity_id,
		tags = $tags, metadata = $metadata, result = $result, error = $error,
		created_at = $created_at, updated_at = $updated_at, started_at = $started_at,
		completed_at = $completed_at, next_retry_at = $next_retry_at`
	vars := map[string]any{
		"rid":               surrealmodels.NewRecordID("job", job.ID),
		"external_id":       job.ExternalID,
		"type":              job.Type,
		"payload":           job.Payload,
		"priority":          job.Priority,
		"status":            job.Status,
		"progress":          job.Progress,
		"current_step":      job.CurrentStep,
		"total_steps":       job.TotalSteps,
		"retry_count":       job.RetryCount,
		"max_retries":       job.MaxRetries,
		"delay_ms":          job.DelayMS,
		"queue_options":     job.QueueOpts,
		"owner_id":          job.OwnerID,
		"related_entity_id": job.RelatedEntityID,
		"tags":              job.Tags,
		"metadata":          job.Metadata,
		"result":            job.Result,
		"error":             job.Error,
		"created_at":        job.CreatedAt,
		"updated_at":        job.UpdatedAt,
		"started_at":        job.StartedAt,
		"completed_at":      job.CompletedAt,
		"next_retry_at":     job.NextRetryAt,
	}

	if err := s.run(ctx, tx, sql, vars); err != nil {
		return common.Wrap(common.ErrKindTransient, "surrealdb.JobStore.Insert", err)
	}
	return nil
}

func (s *JobStore) GetByExternalID(ctx context.Context, externalID string) (*models.Job, error) {
	sql := "SELECT " + jobSelectFields + " FROM job WHERE external_id = $external_id LIMIT 1"
	vars := map[string]any{"external_id": externalID}

	jobs, err := s.query(ctx, sql, vars)
	if err != nil {
		return nil, common.Wrap(common.ErrKindTransient, "surrealdb.JobStore.GetByExternalID", err)
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return jobs[0], nil
}

func (s *JobStore) UpdateStatus(ctx context.Context, tx interfaces.Tx, externalID, newStatus string, extra map[string]any) (*models.Job, error) {
	now := time.Now()
	setClauses := []string{"status = $status", "updated_at = $updated_at"}
	vars := map[string]any{
		"external_id": externalID,
		"status":      newStatus,
		"updated_at":  now,
	}

	if newStatus == models.JobStatusProcessing {
		// never overwrite an already-set started_at
		setClauses = append(setClauses, "started_at = (started_at OR $started_at)")
		vars["started_at"] = now
	}
	if models.IsTerminal(newStatus) {
		setClauses = append(setClauses, "completed_at = $completed_at")
		vars["completed_at"] = now
	}
	for k, v := range extra {
		setClauses = append(setClauses, fmt.Sprintf("%s = $extra_%s", k, k))
		vars["extra_"+k] = v
	}

	sql := fmt.Sprintf("UPDATE job SET %s WHERE external_id = $external_id", strings.Join(setClauses, ", "))
	if err := s.run(ctx, tx, sql, vars); err != nil {
		return nil, common.Wrap(common.ErrKindTransient, "surrealdb.JobStore.UpdateStatus", err)
	}
	if _, ok := tx.(*surrealTx); ok {
		// Deferred: caller reads the post-commit state separately.
		return nil, nil
	}
	return s.GetByExternalID(ctx, externalID)
}

func (s *JobStore) UpdateProgress(ctx context.Context, externalID string, progress int, currentStep string, totalSteps int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	sql := `UPDATE job SET progress = $progress, current_step = $current_step,
		total_steps = $total_steps, updated_at = $updated_at WHERE external_id = $external_id`
	vars := map[string]any{
		"external_id":  externalID,
		"progress":     progress,
		"current_step": currentStep,
		"total_steps":  totalSteps,
		"updated_at":   time.Now(),
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return common.Wrap(common.ErrKindTransient, "surrealdb.JobStore.UpdateProgress", err)
	}
	return nil
}

func (s *JobStore) ScheduleRetry(ctx context.Context, externalID string, nextRetryAt time.Time) (*models.Job, error) {
	sql := `UPDATE job SET status = $retrying, retry_count = retry_count + 1,
		next_retry_at = $next_retry_at, updated_at = $updated_at
		WHERE external_id = $external_id AND retry_count < max_retries`
	vars := map[string]any{
		"external_id":   externalID,
		"retrying":      models.JobStatusRetrying,
		"next_retry_at": nextRetryAt,
		"updated_at":    time.Now(),
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return nil, common.Wrap(common.ErrKindTransient, "surrealdb.JobStore.ScheduleRetry", err)
	}
	return s.GetByExternalID(ctx, externalID)
}

func (s *JobStore) List(ctx context.Context, opts interfaces.QueryOptions) ([]*models.Job, int, error) {
	conds := []string{}
	vars := map[string]any{}
	if opts.OwnerID != "" {
		conds = append(conds, "owner_id = $owner_id")
		vars["owner_id"] = opts.OwnerID
	}
	if opts.Status != "" {
		conds = append(conds, "status = $status")
		vars["status"] = opts.Status
	}
	if opts.Type != "" {
		conds = append(conds, "type = $type")
		vars["type"] = opts.Type
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	order := "created_at DESC"
	if opts.Sort == "created_at_asc" {
		order = "created_at ASC"
	}

	perPage := opts.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := opts.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * perPage

	sql := fmt.Sprintf("SELECT %s FROM job %s ORDER BY %s LIMIT $limit START $offset", jobSelectFields, where, order)
	vars["limit"] = perPage
	vars["offset"] = offset

	jobs, err := s.query(ctx, sql, vars)
	if err != nil {
		return nil, 0, common.Wrap(common.ErrKindTransient, "surrealdb.JobStore.List", err)
	}

	countSQL := fmt.Sprintf("SELECT count() AS cnt FROM job %s GROUP ALL", where)
	total, err := s.queryCount(ctx, countSQL, vars)
	if err != nil {
		return nil, 0, common.Wrap(common.ErrKindTransient, "surrealdb.JobStore.List.count", err)
	}

	return jobs, total, nil
}

func (s *JobStore) ListDueForDelivery(ctx context.Context, jobType string, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	sql := "SELECT " + jobSelectFields + ` FROM job WHERE type = $type
		AND status IN [$queued, $retrying]
		AND (next_retry_at IS NONE OR next_retry_at <= $now)
		ORDER BY priority DESC, created_at ASC LIMIT $limit`
	vars := map[string]any{
		"type":     jobType,
		"queued":   models.JobStatusQueued,
		"retrying": models.JobStatusRetrying,
		"now":      time.Now(),
		"limit":    limit,
	}
	jobs, err := s.query(ctx, sql, vars)
	if err != nil {
		return nil, common.Wrap(common.ErrKindTransient, "surrealdb.JobStore.ListDueForDelivery", err)
	}
	return jobs, nil
}

func (s *JobStore) ListStalled(ctx context.Context, jobType string, lockDuration time.Duration, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	cutoff := time.Now().Add(-lockDuration)
	sql := "SELECT " + jobSelectFields + ` FROM job WHERE type = $type
		AND status = $processing AND updated_at < $cutoff LIMIT $limit`
	vars := map[string]any{
		"type":       jobType,
		"processing": models.JobStatusProcessing,
		"cutoff":     cutoff,
		"limit":      limit,
	}
	jobs, err := s.query(ctx, sql, vars)
	if err != nil {
		return nil, common.Wrap(common.ErrKindTransient, "surrealdb.JobStore.ListStalled", err)
	}
	return jobs, nil
}

func (s *JobStore) CountByStatus(ctx context.Context, ownerID string) (map[string]int, error) {
	sql := "SELECT status, count() AS cnt FROM job"
	vars := map[string]any{}
	if ownerID != "" {
		sql += " WHERE owner_id = $owner_id"
		vars["owner_id"] = ownerID
	}
	sql += " GROUP BY status"
	return s.groupCount(ctx, sql, vars, "status")
}

func (s *JobStore) CountByType(ctx context.Context, ownerID string) (map[string]int, error) {
	sql := "SELECT type, count() AS cnt FROM job"
	vars := map[string]any{}
	if ownerID != "" {
		sql += " WHERE owner_id = $owner_id"
		vars["owner_id"] = ownerID
	}
	sql += " GROUP BY type"
	return s.groupCount(ctx, sql, vars, "type")
}

func (s *JobStore) ActivityTrend(ctx context.Context, ownerID string, days int) (map[string]int, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().AddDate(0, 0, -days)
	sql := "SELECT time::format(created_at, '%Y-%m-%d') AS day, count() AS cnt FROM job WHERE created_at >= $since"
	vars := map[string]any{"since": since}
	if ownerID != "" {
		sql += " AND owner_id = $owner_id"
		vars["owner_id"] = ownerID
	}
	sql += " GROUP BY day"
	return s.groupCount(ctx, sql, vars, "day")
}

func (s *JobStore) CleanupOldJobs(ctx context.Context, olderThan time.Time) (int, error) {
	// max(completedAt, updatedAt) per the Open Question decision recorded in
	// SPEC_FULL.md: a job qualifies only when updated_at and, if set,
	// completed_at are both before the cutoff.
	sql := `DELETE FROM job WHERE status IN [$completed, $cancelled]
		AND (completed_at ?? updated_at) < $cutoff AND updated_at < $cutoff RETURN BEFORE`
	vars := map[string]any{
		"completed": models.JobStatusCompleted,
		"cancelled": models.JobStatusCancelled,
		"cutoff":    olderThan,
	}
	results, err := surrealdb.Query[[]any](ctx, s.db, sql, vars)
	if err != nil {
		return 0, common.Wrap(common.ErrKindTransient, "surrealdb.JobStore.CleanupOldJobs", err)
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

func (s *JobStore) InsertDomainRecord(ctx context.Context, tx interfaces.Tx, record *models.DomainRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	sql := `CREATE $rid SET job_external_id = $job_external_id, kind = $kind, owner_id = $owner_id,
		status = $status, payload = $payload, result = $result, metadata = $metadata,
		created_at = $created_at, updated_at = $updated_at`
	vars := map[string]any{
		"rid":             surrealmodels.NewRecordID("domain_record", record.ID),
		"job_external_id": record.JobExternalID,
		"kind":            record.Kind,
		"owner_id":        record.OwnerID,
		"status":          record.Status,
		"payload":         record.Payload,
		"result":          record.Result,
		"metadata":        record.Metadata,
		"created_at":      record.CreatedAt,
		"updated_at":      record.UpdatedAt,
	}
	if err := s.run(ctx, tx, sql, vars); err != nil {
		return common.Wrap(common.ErrKindTransient, "surrealdb.JobStore.InsertDomainRecord", err)
	}
	return nil
}

func (s *JobStore) GetDomainRecord(ctx context.Context, jobExternalID string) (*models.DomainRecord, error) {
	sql := `SELECT job_external_id, kind, owner_id, status, payload, result, metadata, created_at, updated_at
		FROM domain_record WHERE job_external_id = $job_external_id LIMIT 1`
	vars := map[string]any{"job_external_id": jobExternalID}

	results, err := surrealdb.Query[[]models.DomainRecord](ctx, s.db, sql, vars)
	if err != nil {
		return nil, common.Wrap(common.ErrKindTransient, "surrealdb.JobStore.GetDomainRecord", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	rec := (*results)[0].Result[0]
	return &rec, nil
}

func (s *JobStore) UpdateDomainRecord(ctx context.Context, record *models.DomainRecord) error {
	sql := `UPDATE domain_record SET status = $status, result = $result, metadata = $metadata,
		updated_at = $updated_at WHERE job_external_id = $job_external_id`
	vars := map[string]any{
		"job_external_id": record.JobExternalID,
		"status":          record.Status,
		"result":          record.Result,
		"metadata":        record.Metadata,
		"updated_at":      time.Now(),
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return common.Wrap(common.ErrKindTransient, "surrealdb.JobStore.UpdateDomainRecord", err)
	}
	return nil
}

func (s *JobStore) Close() error { return nil }

func (s *JobStore) query(ctx context.Context, sql string, vars map[string]any) ([]*models.Job, error) {
	results, err := surrealdb.Query[[]models.Job](ctx, s.db, sql, vars)
	if err != nil {
		return nil, err
	}
	var jobs []*models.Job
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			jobs = append(jobs, &(*results)[0].Result[i])
		}
	}
	return jobs, nil
}

func (s *JobStore) queryCount(ctx context.Context, sql string, vars map[string]any) (int, error) {
	type countResult struct {
		Cnt int `json:"cnt"`
	}
	results, err := surrealdb.Query[[]countResult](ctx, s.db, sql, vars)
	if err != nil {
		return 0, err
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return (*results)[0].Result[0].Cnt, nil
	}
	return 0, nil
}

func (s *JobStore) groupCount(ctx context.Context, sql string, vars map[string]any, keyField string) (map[string]int, error) {
	type row map[string]any
	results, err := surrealdb.Query[[]row](ctx, s.db, sql, vars)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int)
	if results == nil || len(*results) == 0 {
		return out, nil
	}
	for _, r := range (*results)[0].Result {
		key, _ := r[keyField].(string)
		cnt, _ := r["cnt"].(int)
		if key != "" {
			out[key] = cnt
		}
	}
	return out, nil
}

var _ interfaces.JobStore = (*JobStore)(nil)
