// Package store defines the Record Store contract consumed by the workflow
// engine and the recruiting service, plus in-memory, PostgreSQL and MongoDB
// implementations of it.
package store

import (
	"context"
	"time"

	"github.com/pitabwire/recruitflow/model"
)

// WorkflowStore persists workflows.
type WorkflowStore interface {
	// ListActiveWorkflows returns every workflow with status active whose
	// trigger type equals trigger.
	ListActiveWorkflows(ctx context.Context, trigger model.TriggerType) ([]model.Workflow, error)

	// ListWorkflows returns workflows matching the filters, newest first.
	ListWorkflows(ctx context.Context, filters WorkflowFilters) ([]model.Workflow, error)

	// GetWorkflow returns NOT_FOUND if the workflow doesn't exist.
	GetWorkflow(ctx context.Context, id string) (model.Workflow, error)

	// CreateWorkflow persists wf and returns it with a generated id and
	// timestamps when those are unset.
	CreateWorkflow(ctx context.Context, wf model.Workflow) (model.Workflow, error)

	// UpdateWorkflow merges patch into the stored workflow and returns the
	// result, or NOT_FOUND.
	UpdateWorkflow(ctx context.Context, id string, patch model.WorkflowPatch) (model.Workflow, error)

	// DeleteWorkflow removes a workflow. Its execution receipts are kept for
	// audit.
	DeleteWorkflow(ctx context.Context, id string) error

	// IncrementExecutionCount atomically bumps executionCount by one and sets
	// lastExecutedAt. Returns NOT_FOUND if the workflow is gone.
	IncrementExecutionCount(ctx context.Context, id string, at time.Time) error
}

// ExecutionStore persists append-only workflow execution receipts.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, exec model.WorkflowExecution) (model.WorkflowExecution, error)

	// ListExecutions returns up to limit receipts for a workflow, newest
	// first. A limit <= 0 returns all of them.
	ListExecutions(ctx context.Context, workflowID string, limit int) ([]model.WorkflowExecution, error)
}

// ExecutionRecorder is implemented by stores that can write a receipt and bump
// the owning workflow's execution bookkeeping in one atomic step. When the
// workflow no longer exists it returns NOT_FOUND and writes nothing.
type ExecutionRecorder interface {
	RecordExecution(ctx context.Context, exec model.WorkflowExecution) (model.WorkflowExecution, error)
}

// ApplicationStore persists job applications.
type ApplicationStore interface {
	CreateApplication(ctx context.Context, app model.Application) (model.Application, error)
	GetApplication(ctx context.Context, id string) (model.Application, error)
	UpdateApplication(ctx context.Context, id string, patch model.ApplicationPatch) (model.Application, error)
	DeleteApplication(ctx context.Context, id string) error
	ListApplications(ctx context.Context, filters ApplicationFilters) ([]model.Application, error)
}

// JobStore persists job postings.
type JobStore interface {
	CreateJob(ctx context.Context, job model.Job) (model.Job, error)
	GetJob(ctx context.Context, id string) (model.Job, error)
	DeleteJob(ctx context.Context, id string) error
	ListJobs(ctx context.Context, createdBy string) ([]model.Job, error)
}

// CandidateStore persists candidates.
type CandidateStore interface {
	CreateCandidate(ctx context.Context, c model.Candidate) (model.Candidate, error)
	GetCandidate(ctx context.Context, id string) (model.Candidate, error)
	DeleteCandidate(ctx context.Context, id string) error
	ListCandidates(ctx context.Context) ([]model.Candidate, error)
}

// Store is the full Record Store a process is wired with.
type Store interface {
	WorkflowStore
	ExecutionStore
	ApplicationStore
	JobStore
	CandidateStore

	// HealthCheck reports whether the backing storage is reachable.
	HealthCheck(ctx context.Context) error

	Close()
}

// WorkflowFilters are optional filters for listing workflows.
type WorkflowFilters struct {
	CreatedBy string
	Status    model.WorkflowStatus
	Trigger   model.TriggerType
	Limit     int
	Offset    int
}

// ApplicationFilters are optional filters for listing applications.
type ApplicationFilters struct {
	JobID       string
	CandidateID string
	Status      model.ApplicationStatus
	Limit       int
}
