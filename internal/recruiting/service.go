// Package recruiting persists jobs, candidates and applications and emits the
// workflow triggers that follow each application change.
package recruiting

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pitabwire/recruitflow/internal/store"
	"github.com/pitabwire/recruitflow/model"
)

// Payload fields added on top of the application record.
const (
	FieldOldStatus      = "oldStatus"
	FieldNewStatus      = "newStatus"
	FieldAIScore        = "aiScore"
	FieldJobTitle       = "jobTitle"
	FieldJobDepartment  = "jobDepartment"
	FieldJobLocation    = "jobLocation"
	FieldCandidateName  = "candidateName"
	FieldCandidateEmail = "candidateEmail"
)

// Records is the part of the Record Store the service writes to.
type Records interface {
	store.ApplicationStore
	store.JobStore
	store.CandidateStore
}

// TriggerRunner runs the workflows subscribed to a trigger.
// *workflow.Engine implements it.
type TriggerRunner interface {
	ExecuteForTrigger(ctx context.Context, trigger model.TriggerType, payload model.Payload) ([]model.RunResult, error)
}

// Outcome is an application after a write plus the workflow runs it caused.
// TriggerError is set when the workflows could not be selected; the write
// itself succeeded.
type Outcome struct {
	Application  model.Application `json:"application"`
	Runs         []model.RunResult `json:"runs"`
	TriggerError string            `json:"triggerError,omitempty"`
}

// Service is the event producer for application lifecycle triggers.
type Service struct {
	records Records
	runner  TriggerRunner
	logger  *zap.Logger
}

// NewService creates a recruiting service.
func NewService(records Records, runner TriggerRunner, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{records: records, runner: runner, logger: logger.Named("recruiting")}
}

// --- Jobs and candidates ---

// CreateJob opens a job owned by owner.
func (s *Service) CreateJob(ctx context.Context, owner string, job model.Job) (model.Job, error) {
	if owner == "" {
		return model.Job{}, model.NewUnauthorizedError("request has no subject")
	}
	if strings.TrimSpace(job.Title) == "" {
		return model.Job{}, requiredField("title")
	}
	job.ID = ""
	job.CreatedBy = owner
	return s.records.CreateJob(ctx, job)
}

// GetJob returns a job.
func (s *Service) GetJob(ctx context.Context, id string) (model.Job, error) {
	return s.records.GetJob(ctx, id)
}

// ListJobs returns the jobs owned by owner.
func (s *Service) ListJobs(ctx context.Context, owner string) ([]model.Job, error) {
	return s.records.ListJobs(ctx, owner)
}

// CreateCandidate registers a candidate.
func (s *Service) CreateCandidate(ctx context.Context, c model.Candidate) (model.Candidate, error) {
	var details []model.FieldError
	if strings.TrimSpace(c.Name) == "" {
		details = append(details, model.FieldError{Field: "name", Code: "REQUIRED", Message: "name is required"})
	}
	if c.Email != "" && !strings.Contains(c.Email, "@") {
		details = append(details, model.FieldError{Field: "email", Code: "INVALID", Message: "email is not an address"})
	}
	if len(details) > 0 {
		return model.Candidate{}, model.NewValidationError(details)
	}
	c.ID = ""
	return s.records.CreateCandidate(ctx, c)
}

// GetCandidate returns a candidate.
func (s *Service) GetCandidate(ctx context.Context, id string) (model.Candidate, error) {
	return s.records.GetCandidate(ctx, id)
}

// --- Applications ---

// GetApplication returns an application.
func (s *Service) GetApplication(ctx context.Context, id string) (model.Application, error) {
	return s.records.GetApplication(ctx, id)
}

// ListApplications returns applications matching filters.
func (s *Service) ListApplications(ctx context.Context, filters store.ApplicationFilters) ([]model.Application, error) {
	return s.records.ListApplications(ctx, filters)
}

// SubmitApplication persists a new application for an existing job and
// candidate, then fires application_created.
func (s *Service) SubmitApplication(ctx context.Context, jobID, candidateID string) (Outcome, error) {
	if jobID == "" || candidateID == "" {
		return Outcome{}, model.NewValidationError([]model.FieldError{
			{Field: "jobId", Code: "REQUIRED", Message: "jobId and candidateId are required"},
		})
	}
	if _, err := s.records.GetJob(ctx, jobID); err != nil {
		return Outcome{}, err
	}
	if _, err := s.records.GetCandidate(ctx, candidateID); err != nil {
		return Outcome{}, err
	}

	app, err := s.records.CreateApplication(ctx, model.Application{
		JobID:       jobID,
		CandidateID: candidateID,
		Status:      model.ApplicationApplied,
	})
	if err != nil {
		return Outcome{}, err
	}
	s.logger.Info("application submitted", zap.String("application_id", app.ID), zap.String("job_id", jobID))

	return s.fire(ctx, model.TriggerApplicationCreated, app, nil), nil
}

// ChangeStatus moves an application to status and fires
// application_status_changed with oldStatus and newStatus. Setting the
// current status again is a no-op and fires nothing.
func (s *Service) ChangeStatus(ctx context.Context, id string, status model.ApplicationStatus) (Outcome, error) {
	if !status.Valid() {
		return Outcome{}, model.NewValidationError([]model.FieldError{
			{Field: "status", Code: "INVALID", Message: fmt.Sprintf("unknown application status %q", status)},
		})
	}
	current, err := s.records.GetApplication(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	if current.Status == status {
		return Outcome{Application: current, Runs: []model.RunResult{}}, nil
	}

	app, err := s.records.UpdateApplication(ctx, id, model.ApplicationPatch{Status: &status})
	if err != nil {
		return Outcome{}, err
	}
	s.logger.Info("application status changed",
		zap.String("application_id", id),
		zap.String("old_status", string(current.Status)),
		zap.String("new_status", string(status)),
	)

	extra := model.Payload{
		FieldOldStatus: model.String(string(current.Status)),
		FieldNewStatus: model.String(string(status)),
	}
	return s.fire(ctx, model.TriggerApplicationStatusChanged, app, extra), nil
}

// RecordAIScore stores the scoring pipeline's result and fires
// ai_score_calculated. Scores must lie in [0, 100].
func (s *Service) RecordAIScore(ctx context.Context, id string, score float64) (Outcome, error) {
	if score < 0 || score > 100 {
		return Outcome{}, model.NewValidationError([]model.FieldError{
			{Field: "aiScore", Code: "INVALID", Message: "score must be between 0 and 100"},
		})
	}
	app, err := s.records.UpdateApplication(ctx, id, model.ApplicationPatch{AIScore: &score})
	if err != nil {
		return Outcome{}, err
	}
	s.logger.Info("ai score recorded", zap.String("application_id", id), zap.Float64("ai_score", score))

	return s.fire(ctx, model.TriggerAIScoreCalculated, app, nil), nil
}

// BuildPayload returns the trigger context for app: the application fields
// plus denormalized job and candidate fields. Missing jobs or candidates
// leave their fields absent.
func (s *Service) BuildPayload(ctx context.Context, app model.Application) model.Payload {
	p := model.Payload{
		"id":            model.String(app.ID),
		"applicationId": model.String(app.ID),
		"jobId":         model.String(app.JobID),
		"candidateId":   model.String(app.CandidateID),
		"status":        model.String(string(app.Status)),
		"notes":         model.String(app.Notes),
	}
	if app.AIScore != nil {
		p[FieldAIScore] = model.Number(*app.AIScore)
	}

	if job, err := s.records.GetJob(ctx, app.JobID); err == nil {
		p[FieldJobTitle] = model.String(job.Title)
		p[FieldJobDepartment] = model.String(job.Department)
		p[FieldJobLocation] = model.String(job.Location)
	} else {
		s.logger.Debug("job not denormalized", zap.String("job_id", app.JobID), zap.Error(err))
	}
	if c, err := s.records.GetCandidate(ctx, app.CandidateID); err == nil {
		p[FieldCandidateName] = model.String(c.Name)
		p[FieldCandidateEmail] = model.String(c.Email)
	} else {
		s.logger.Debug("candidate not denormalized", zap.String("candidate_id", app.CandidateID), zap.Error(err))
	}
	return p
}

// fire runs the workflows for trigger and returns the application as the
// workflows left it.
func (s *Service) fire(ctx context.Context, trigger model.TriggerType, app model.Application, extra model.Payload) Outcome {
	payload := s.BuildPayload(ctx, app).Merge(extra)

	out := Outcome{Application: app, Runs: []model.RunResult{}}
	runs, err := s.runner.ExecuteForTrigger(ctx, trigger, payload)
	if err != nil {
		s.logger.Error("trigger failed",
			zap.String("trigger", string(trigger)),
			zap.String("application_id", app.ID),
			zap.Error(err),
		)
		out.TriggerError = err.Error()
		return out
	}
	out.Runs = runs

	if len(runs) > 0 {
		if refreshed, err := s.records.GetApplication(ctx, app.ID); err == nil {
			out.Application = refreshed
		}
	}
	return out
}

func requiredField(name string) error {
	return model.NewValidationError([]model.FieldError{
		{Field: name, Code: "REQUIRED", Message: name + " is required"},
	})
}
