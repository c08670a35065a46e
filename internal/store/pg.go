package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitabwire/recruitflow/model"
)

//go:embed schema.sql
var schemaSQL string

// PgStore is a PostgreSQL-backed Store using pgx/v5.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PostgreSQL store on an existing pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

var (
	_ Store             = (*PgStore)(nil)
	_ ExecutionRecorder = (*PgStore)(nil)
)

// Migrate creates the tables and indexes if they do not exist.
func (s *PgStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// HealthCheck pings the database.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *PgStore) Close() { s.pool.Close() }

// --- Workflows ---

const workflowColumns = `id, name, description, trigger_type, trigger_config,
	conditions, actions, status, created_by,
	execution_count, last_executed_at, created_at, updated_at`

// ListActiveWorkflows returns active workflows for a trigger, oldest first.
func (s *PgStore) ListActiveWorkflows(ctx context.Context, trigger model.TriggerType) ([]model.Workflow, error) {
	return s.queryWorkflows(ctx, `SELECT `+workflowColumns+`
		FROM workflows
		WHERE status = 'active' AND trigger_type = $1
		ORDER BY created_at ASC, id ASC`, string(trigger))
}

// ListWorkflows returns workflows matching filters, newest first.
func (s *PgStore) ListWorkflows(ctx context.Context, filters WorkflowFilters) ([]model.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE TRUE`
	var args []any
	argIdx := 1

	if filters.CreatedBy != "" {
		query += fmt.Sprintf(" AND created_by = $%d", argIdx)
		args = append(args, filters.CreatedBy)
		argIdx++
	}
	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(filters.Status))
		argIdx++
	}
	if filters.Trigger != "" {
		query += fmt.Sprintf(" AND trigger_type = $%d", argIdx)
		args = append(args, string(filters.Trigger))
		argIdx++
	}

	query += " ORDER BY created_at DESC, id DESC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filters.Limit)
		argIdx++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filters.Offset)
	}

	result, err := s.queryWorkflows(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = []model.Workflow{}
	}
	return result, nil
}

// GetWorkflow retrieves a workflow by ID.
func (s *PgStore) GetWorkflow(ctx context.Context, id string) (model.Workflow, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, id)
	wf, err := scanWorkflow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Workflow{}, workflowNotFound(id)
	}
	if err != nil {
		return model.Workflow{}, fmt.Errorf("query workflow: %w", err)
	}
	return wf, nil
}

// CreateWorkflow inserts a new workflow.
func (s *PgStore) CreateWorkflow(ctx context.Context, wf model.Workflow) (model.Workflow, error) {
	wf = prepareWorkflow(wf)
	enc, err := encodeWorkflow(wf)
	if err != nil {
		return model.Workflow{}, err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO workflows (`+workflowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		wf.ID, wf.Name, wf.Description, string(wf.Trigger.Type), enc.triggerConfig,
		enc.conditions, enc.actions, string(wf.Status), wf.CreatedBy,
		wf.ExecutionCount, wf.LastExecutedAt, wf.CreatedAt, wf.UpdatedAt,
	)
	if err != nil {
		return model.Workflow{}, fmt.Errorf("insert workflow: %w", err)
	}
	return wf, nil
}

// UpdateWorkflow merges patch into the stored workflow under a row lock.
func (s *PgStore) UpdateWorkflow(ctx context.Context, id string, patch model.WorkflowPatch) (model.Workflow, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Workflow{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = $1 FOR UPDATE`, id)
	wf, err := scanWorkflow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Workflow{}, workflowNotFound(id)
	}
	if err != nil {
		return model.Workflow{}, fmt.Errorf("query workflow: %w", err)
	}

	patch.Apply(&wf)
	wf.UpdatedAt = now()
	enc, err := encodeWorkflow(wf)
	if err != nil {
		return model.Workflow{}, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE workflows SET
			name = $1, description = $2, trigger_type = $3, trigger_config = $4,
			conditions = $5, actions = $6, status = $7, updated_at = $8
		WHERE id = $9`,
		wf.Name, wf.Description, string(wf.Trigger.Type), enc.triggerConfig,
		enc.conditions, enc.actions, string(wf.Status), wf.UpdatedAt, id,
	)
	if err != nil {
		return model.Workflow{}, fmt.Errorf("update workflow: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Workflow{}, fmt.Errorf("commit: %w", err)
	}
	return wf, nil
}

// DeleteWorkflow removes a workflow. Receipts stay in place.
func (s *PgStore) DeleteWorkflow(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return workflowNotFound(id)
	}
	return nil
}

// IncrementExecutionCount bumps the counter in a single UPDATE.
func (s *PgStore) IncrementExecutionCount(ctx context.Context, id string, at time.Time) error {
	return incrementExecutionCount(ctx, s.pool, id, at)
}

// dbExecer is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func incrementExecutionCount(ctx context.Context, db dbExecer, id string, at time.Time) error {
	tag, err := db.Exec(ctx, `
		UPDATE workflows SET
			execution_count = execution_count + 1,
			last_executed_at = $2
		WHERE id = $1`,
		id, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("increment execution count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return workflowNotFound(id)
	}
	return nil
}

// --- Executions ---

// CreateExecution inserts a receipt.
func (s *PgStore) CreateExecution(ctx context.Context, exec model.WorkflowExecution) (model.WorkflowExecution, error) {
	exec = prepareExecution(exec)
	if err := insertExecution(ctx, s.pool, exec); err != nil {
		return model.WorkflowExecution{}, err
	}
	return exec, nil
}

// RecordExecution bumps the workflow's bookkeeping and inserts the receipt in
// one transaction. A missing workflow rolls back and returns NOT_FOUND.
func (s *PgStore) RecordExecution(ctx context.Context, exec model.WorkflowExecution) (model.WorkflowExecution, error) {
	exec = prepareExecution(exec)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.WorkflowExecution{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := incrementExecutionCount(ctx, tx, exec.WorkflowID, exec.ExecutedAt); err != nil {
		return model.WorkflowExecution{}, err
	}
	if err := insertExecution(ctx, tx, exec); err != nil {
		return model.WorkflowExecution{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.WorkflowExecution{}, fmt.Errorf("commit: %w", err)
	}
	return exec, nil
}

func insertExecution(ctx context.Context, db dbExecer, exec model.WorkflowExecution) error {
	data, err := json.Marshal(exec.TriggerData)
	if err != nil {
		return fmt.Errorf("marshal trigger data: %w", err)
	}
	_, err = db.Exec(ctx, `
		INSERT INTO workflow_executions (id, workflow_id, executed_at, success, trigger_data, error)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		exec.ID, exec.WorkflowID, exec.ExecutedAt, exec.Success, data, exec.Error,
	)
	if err != nil {
		return fmt.Errorf("insert workflow execution: %w", err)
	}
	return nil
}

// ListExecutions returns receipts for a workflow, newest first.
func (s *PgStore) ListExecutions(ctx context.Context, workflowID string, limit int) ([]model.WorkflowExecution, error) {
	query := `SELECT id, workflow_id, executed_at, success, trigger_data, error
		FROM workflow_executions
		WHERE workflow_id = $1
		ORDER BY executed_at DESC, id DESC`
	args := []any{workflowID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query workflow executions: %w", err)
	}
	defer rows.Close()

	result := []model.WorkflowExecution{}
	for rows.Next() {
		var exec model.WorkflowExecution
		var data []byte
		if err := rows.Scan(&exec.ID, &exec.WorkflowID, &exec.ExecutedAt, &exec.Success, &data, &exec.Error); err != nil {
			return nil, fmt.Errorf("scan workflow execution: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &exec.TriggerData); err != nil {
				return nil, fmt.Errorf("unmarshal trigger data: %w", err)
			}
		}
		result = append(result, exec)
	}
	return result, rows.Err()
}

// --- Applications ---

const applicationColumns = `id, job_id, candidate_id, status, ai_score, notes, created_at, updated_at`

// CreateApplication inserts a new application.
func (s *PgStore) CreateApplication(ctx context.Context, app model.Application) (model.Application, error) {
	app = prepareApplication(app)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO applications (`+applicationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		app.ID, app.JobID, app.CandidateID, string(app.Status), app.AIScore,
		app.Notes, app.CreatedAt, app.UpdatedAt,
	)
	if err != nil {
		return model.Application{}, fmt.Errorf("insert application: %w", err)
	}
	return app, nil
}

// GetApplication retrieves an application by ID.
func (s *PgStore) GetApplication(ctx context.Context, id string) (model.Application, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id)
	app, err := scanApplication(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Application{}, applicationNotFound(id)
	}
	if err != nil {
		return model.Application{}, fmt.Errorf("query application: %w", err)
	}
	return app, nil
}

// UpdateApplication merges patch into an application in one statement.
// COALESCE keeps columns whose patch field is nil.
func (s *PgStore) UpdateApplication(ctx context.Context, id string, patch model.ApplicationPatch) (model.Application, error) {
	var status *string
	if patch.Status != nil {
		st := string(*patch.Status)
		status = &st
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE applications SET
			status = COALESCE($2, status),
			ai_score = COALESCE($3, ai_score),
			notes = COALESCE($4, notes),
			updated_at = $5
		WHERE id = $1
		RETURNING `+applicationColumns,
		id, status, patch.AIScore, patch.Notes, now(),
	)
	app, err := scanApplication(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Application{}, applicationNotFound(id)
	}
	if err != nil {
		return model.Application{}, fmt.Errorf("update application: %w", err)
	}
	return app, nil
}

// DeleteApplication removes an application.
func (s *PgStore) DeleteApplication(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM applications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return applicationNotFound(id)
	}
	return nil
}

// ListApplications returns applications matching filters, newest first.
func (s *PgStore) ListApplications(ctx context.Context, filters ApplicationFilters) ([]model.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE TRUE`
	var args []any
	argIdx := 1

	if filters.JobID != "" {
		query += fmt.Sprintf(" AND job_id = $%d", argIdx)
		args = append(args, filters.JobID)
		argIdx++
	}
	if filters.CandidateID != "" {
		query += fmt.Sprintf(" AND candidate_id = $%d", argIdx)
		args = append(args, filters.CandidateID)
		argIdx++
	}
	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(filters.Status))
		argIdx++
	}
	query += " ORDER BY created_at DESC"
	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filters.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query applications: %w", err)
	}
	defer rows.Close()

	result := []model.Application{}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		result = append(result, app)
	}
	return result, rows.Err()
}

// --- Jobs ---

// CreateJob inserts a new job.
func (s *PgStore) CreateJob(ctx context.Context, job model.Job) (model.Job, error) {
	job = prepareJob(job)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, title, department, location, status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.Title, job.Department, job.Location, job.Status,
		job.CreatedBy, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return model.Job{}, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// GetJob retrieves a job by ID.
func (s *PgStore) GetJob(ctx context.Context, id string) (model.Job, error) {
	var job model.Job
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, department, location, status, created_by, created_at, updated_at
		FROM jobs WHERE id = $1`, id,
	).Scan(&job.ID, &job.Title, &job.Department, &job.Location, &job.Status,
		&job.CreatedBy, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Job{}, jobNotFound(id)
	}
	if err != nil {
		return model.Job{}, fmt.Errorf("query job: %w", err)
	}
	return job, nil
}

// DeleteJob removes a job.
func (s *PgStore) DeleteJob(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return jobNotFound(id)
	}
	return nil
}

// ListJobs returns jobs, optionally restricted to one owner, newest first.
func (s *PgStore) ListJobs(ctx context.Context, createdBy string) ([]model.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, department, location, status, created_by, created_at, updated_at
		FROM jobs
		WHERE $1::text = '' OR created_by = $1
		ORDER BY created_at DESC`, createdBy)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	result := []model.Job{}
	for rows.Next() {
		var job model.Job
		if err := rows.Scan(&job.ID, &job.Title, &job.Department, &job.Location, &job.Status,
			&job.CreatedBy, &job.CreatedAt, &job.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

// --- Candidates ---

// CreateCandidate inserts a new candidate.
func (s *PgStore) CreateCandidate(ctx context.Context, c model.Candidate) (model.Candidate, error) {
	c = prepareCandidate(c)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO candidates (id, name, email, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Name, c.Email, c.Phone, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return model.Candidate{}, fmt.Errorf("insert candidate: %w", err)
	}
	return c, nil
}

// GetCandidate retrieves a candidate by ID.
func (s *PgStore) GetCandidate(ctx context.Context, id string) (model.Candidate, error) {
	var c model.Candidate
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at, updated_at
		FROM candidates WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Candidate{}, candidateNotFound(id)
	}
	if err != nil {
		return model.Candidate{}, fmt.Errorf("query candidate: %w", err)
	}
	return c, nil
}

// DeleteCandidate removes a candidate.
func (s *PgStore) DeleteCandidate(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM candidates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete candidate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return candidateNotFound(id)
	}
	return nil
}

// ListCandidates returns all candidates, newest first.
func (s *PgStore) ListCandidates(ctx context.Context) ([]model.Candidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, email, phone, created_at, updated_at
		FROM candidates ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	result := []model.Candidate{}
	for rows.Next() {
		var c model.Candidate
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// --- row codecs ---

type encodedWorkflow struct {
	triggerConfig []byte
	conditions    []byte
	actions       []byte
}

func encodeWorkflow(wf model.Workflow) (encodedWorkflow, error) {
	var enc encodedWorkflow
	var err error
	if wf.Trigger.Config != nil {
		if enc.triggerConfig, err = json.Marshal(wf.Trigger.Config); err != nil {
			return enc, fmt.Errorf("marshal trigger config: %w", err)
		}
	}
	conditions := wf.Conditions
	if conditions == nil {
		conditions = []model.Condition{}
	}
	if enc.conditions, err = json.Marshal(conditions); err != nil {
		return enc, fmt.Errorf("marshal conditions: %w", err)
	}
	actions := wf.Actions
	if actions == nil {
		actions = []model.Action{}
	}
	if enc.actions, err = json.Marshal(actions); err != nil {
		return enc, fmt.Errorf("marshal actions: %w", err)
	}
	return enc, nil
}

func scanWorkflow(row pgx.Row) (model.Workflow, error) {
	var (
		wf                                 model.Workflow
		trigger, status                    string
		triggerConfig, conditions, actions []byte
	)
	if err := row.Scan(
		&wf.ID, &wf.Name, &wf.Description, &trigger, &triggerConfig,
		&conditions, &actions, &status, &wf.CreatedBy,
		&wf.ExecutionCount, &wf.LastExecutedAt, &wf.CreatedAt, &wf.UpdatedAt,
	); err != nil {
		return model.Workflow{}, err
	}
	wf.Trigger.Type = model.TriggerType(trigger)
	wf.Status = model.WorkflowStatus(status)
	if len(triggerConfig) > 0 {
		if err := json.Unmarshal(triggerConfig, &wf.Trigger.Config); err != nil {
			return model.Workflow{}, fmt.Errorf("unmarshal trigger config: %w", err)
		}
	}
	if err := json.Unmarshal(conditions, &wf.Conditions); err != nil {
		return model.Workflow{}, fmt.Errorf("unmarshal conditions: %w", err)
	}
	if err := json.Unmarshal(actions, &wf.Actions); err != nil {
		return model.Workflow{}, fmt.Errorf("unmarshal actions: %w", err)
	}
	return wf, nil
}

func (s *PgStore) queryWorkflows(ctx context.Context, query string, args ...any) ([]model.Workflow, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query workflows: %w", err)
	}
	defer rows.Close()

	var result []model.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		result = append(result, wf)
	}
	return result, rows.Err()
}

func scanApplication(row pgx.Row) (model.Application, error) {
	var app model.Application
	var status string
	if err := row.Scan(
		&app.ID, &app.JobID, &app.CandidateID, &status, &app.AIScore,
		&app.Notes, &app.CreatedAt, &app.UpdatedAt,
	); err != nil {
		return model.Application{}, err
	}
	app.Status = model.ApplicationStatus(status)
	return app, nil
}
