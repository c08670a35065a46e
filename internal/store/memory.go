package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pitabwire/recruitflow/model"
)

// MemoryStore is an in-memory Store. A single lock guards every collection,
// which makes RecordExecution atomic with respect to DeleteWorkflow and
// concurrent increments.
type MemoryStore struct {
	mu           sync.RWMutex
	workflows    map[string]model.Workflow
	executions   map[string][]model.WorkflowExecution // key: workflow ID
	applications map[string]model.Application
	jobs         map[string]model.Job
	candidates   map[string]model.Candidate
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows:    make(map[string]model.Workflow),
		executions:   make(map[string][]model.WorkflowExecution),
		applications: make(map[string]model.Application),
		jobs:         make(map[string]model.Job),
		candidates:   make(map[string]model.Candidate),
	}
}

var (
	_ Store             = (*MemoryStore)(nil)
	_ ExecutionRecorder = (*MemoryStore)(nil)
)

// --- Workflows ---

// ListActiveWorkflows returns active workflows for a trigger, oldest first.
func (s *MemoryStore) ListActiveWorkflows(_ context.Context, trigger model.TriggerType) ([]model.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Workflow
	for _, wf := range s.workflows {
		if wf.Status == model.WorkflowStatusActive && wf.Trigger.Type == trigger {
			result = append(result, cloneWorkflow(wf))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// ListWorkflows returns workflows matching filters, newest first.
func (s *MemoryStore) ListWorkflows(_ context.Context, filters WorkflowFilters) ([]model.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []model.Workflow{}
	for _, wf := range s.workflows {
		if filters.CreatedBy != "" && wf.CreatedBy != filters.CreatedBy {
			continue
		}
		if filters.Status != "" && wf.Status != filters.Status {
			continue
		}
		if filters.Trigger != "" && wf.Trigger.Type != filters.Trigger {
			continue
		}
		result = append(result, cloneWorkflow(wf))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filters.Offset > 0 {
		if filters.Offset >= len(result) {
			return []model.Workflow{}, nil
		}
		result = result[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(result) {
		result = result[:filters.Limit]
	}
	return result, nil
}

// GetWorkflow retrieves a workflow by ID.
func (s *MemoryStore) GetWorkflow(_ context.Context, id string) (model.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, ok := s.workflows[id]
	if !ok {
		return model.Workflow{}, workflowNotFound(id)
	}
	return cloneWorkflow(wf), nil
}

// CreateWorkflow persists a new workflow.
func (s *MemoryStore) CreateWorkflow(_ context.Context, wf model.Workflow) (model.Workflow, error) {
	wf = prepareWorkflow(wf)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[wf.ID]; exists {
		return model.Workflow{}, model.NewConflictError(
			fmt.Sprintf("workflow %q already exists", wf.ID),
		)
	}
	s.workflows[wf.ID] = wf
	return cloneWorkflow(wf), nil
}

// UpdateWorkflow merges patch into an existing workflow.
func (s *MemoryStore) UpdateWorkflow(_ context.Context, id string, patch model.WorkflowPatch) (model.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, ok := s.workflows[id]
	if !ok {
		return model.Workflow{}, workflowNotFound(id)
	}
	patch.Apply(&wf)
	wf.UpdatedAt = now()
	wf = cloneWorkflow(wf)
	s.workflows[id] = wf
	return cloneWorkflow(wf), nil
}

// DeleteWorkflow removes a workflow. Receipts stay in place.
func (s *MemoryStore) DeleteWorkflow(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[id]; !ok {
		return workflowNotFound(id)
	}
	delete(s.workflows, id)
	return nil
}

// IncrementExecutionCount bumps the execution counter and timestamp.
func (s *MemoryStore) IncrementExecutionCount(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incrementLocked(id, at)
}

func (s *MemoryStore) incrementLocked(id string, at time.Time) error {
	wf, ok := s.workflows[id]
	if !ok {
		return workflowNotFound(id)
	}
	wf.ExecutionCount++
	at = at.UTC()
	wf.LastExecutedAt = &at
	s.workflows[id] = wf
	return nil
}

// --- Executions ---

// CreateExecution appends a receipt.
func (s *MemoryStore) CreateExecution(_ context.Context, exec model.WorkflowExecution) (model.WorkflowExecution, error) {
	exec = prepareExecution(exec)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.executions[exec.WorkflowID] = append(s.executions[exec.WorkflowID], exec)
	return exec, nil
}

// RecordExecution appends a receipt and bumps the workflow's bookkeeping
// under one lock.
func (s *MemoryStore) RecordExecution(_ context.Context, exec model.WorkflowExecution) (model.WorkflowExecution, error) {
	exec = prepareExecution(exec)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.incrementLocked(exec.WorkflowID, exec.ExecutedAt); err != nil {
		return model.WorkflowExecution{}, err
	}
	s.executions[exec.WorkflowID] = append(s.executions[exec.WorkflowID], exec)
	return exec, nil
}

// ListExecutions returns receipts for a workflow, newest first.
func (s *MemoryStore) ListExecutions(_ context.Context, workflowID string, limit int) ([]model.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.executions[workflowID]
	result := make([]model.WorkflowExecution, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		exec := stored[i]
		exec.TriggerData = exec.TriggerData.Clone()
		result = append(result, exec)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ExecutedAt.After(result[j].ExecutedAt)
	})
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

// --- Applications ---

// CreateApplication persists a new application.
func (s *MemoryStore) CreateApplication(_ context.Context, app model.Application) (model.Application, error) {
	app = prepareApplication(app)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.applications[app.ID]; exists {
		return model.Application{}, model.NewConflictError(
			fmt.Sprintf("application %q already exists", app.ID),
		)
	}
	s.applications[app.ID] = app
	return cloneApplication(app), nil
}

// GetApplication retrieves an application by ID.
func (s *MemoryStore) GetApplication(_ context.Context, id string) (model.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, ok := s.applications[id]
	if !ok {
		return model.Application{}, applicationNotFound(id)
	}
	return cloneApplication(app), nil
}

// UpdateApplication merges patch into an existing application.
func (s *MemoryStore) UpdateApplication(_ context.Context, id string, patch model.ApplicationPatch) (model.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.applications[id]
	if !ok {
		return model.Application{}, applicationNotFound(id)
	}
	patch.Apply(&app)
	app.UpdatedAt = now()
	s.applications[id] = app
	return cloneApplication(app), nil
}

// DeleteApplication removes an application.
func (s *MemoryStore) DeleteApplication(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.applications[id]; !ok {
		return applicationNotFound(id)
	}
	delete(s.applications, id)
	return nil
}

// ListApplications returns applications matching filters, newest first.
func (s *MemoryStore) ListApplications(_ context.Context, filters ApplicationFilters) ([]model.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []model.Application{}
	for _, app := range s.applications {
		if filters.JobID != "" && app.JobID != filters.JobID {
			continue
		}
		if filters.CandidateID != "" && app.CandidateID != filters.CandidateID {
			continue
		}
		if filters.Status != "" && app.Status != filters.Status {
			continue
		}
		result = append(result, cloneApplication(app))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if filters.Limit > 0 && filters.Limit < len(result) {
		result = result[:filters.Limit]
	}
	return result, nil
}

// --- Jobs ---

// CreateJob persists a new job.
func (s *MemoryStore) CreateJob(_ context.Context, job model.Job) (model.Job, error) {
	job = prepareJob(job)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return model.Job{}, model.NewConflictError(fmt.Sprintf("job %q already exists", job.ID))
	}
	s.jobs[job.ID] = job
	return job, nil
}

// GetJob retrieves a job by ID.
func (s *MemoryStore) GetJob(_ context.Context, id string) (model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return model.Job{}, jobNotFound(id)
	}
	return job, nil
}

// DeleteJob removes a job.
func (s *MemoryStore) DeleteJob(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return jobNotFound(id)
	}
	delete(s.jobs, id)
	return nil
}

// ListJobs returns jobs, optionally restricted to one owner, newest first.
func (s *MemoryStore) ListJobs(_ context.Context, createdBy string) ([]model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []model.Job{}
	for _, job := range s.jobs {
		if createdBy != "" && job.CreatedBy != createdBy {
			continue
		}
		result = append(result, job)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// --- Candidates ---

// CreateCandidate persists a new candidate.
func (s *MemoryStore) CreateCandidate(_ context.Context, c model.Candidate) (model.Candidate, error) {
	c = prepareCandidate(c)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.candidates[c.ID]; exists {
		return model.Candidate{}, model.NewConflictError(fmt.Sprintf("candidate %q already exists", c.ID))
	}
	s.candidates[c.ID] = c
	return c, nil
}

// GetCandidate retrieves a candidate by ID.
func (s *MemoryStore) GetCandidate(_ context.Context, id string) (model.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.candidates[id]
	if !ok {
		return model.Candidate{}, candidateNotFound(id)
	}
	return c, nil
}

// DeleteCandidate removes a candidate.
func (s *MemoryStore) DeleteCandidate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.candidates[id]; !ok {
		return candidateNotFound(id)
	}
	delete(s.candidates, id)
	return nil
}

// ListCandidates returns all candidates, newest first.
func (s *MemoryStore) ListCandidates(_ context.Context) ([]model.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Candidate, 0, len(s.candidates))
	for _, c := range s.candidates {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// HealthCheck always succeeds.
func (s *MemoryStore) HealthCheck(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() {}

// Len returns the number of stored workflows. For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.workflows)
}
