package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pitabwire/recruitflow/model"
)

func newID() string { return uuid.NewString() }

func now() time.Time { return time.Now().UTC() }

// prepare* fill in generated ids and timestamps for new records.

func prepareWorkflow(wf model.Workflow) model.Workflow {
	if wf.ID == "" {
		wf.ID = newID()
	}
	if wf.Status == "" {
		wf.Status = model.WorkflowStatusPaused
	}
	ts := now()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = ts
	}
	if wf.UpdatedAt.IsZero() {
		wf.UpdatedAt = wf.CreatedAt
	}
	return cloneWorkflow(wf)
}

func prepareExecution(exec model.WorkflowExecution) model.WorkflowExecution {
	if exec.ID == "" {
		exec.ID = newID()
	}
	if exec.ExecutedAt.IsZero() {
		exec.ExecutedAt = now()
	}
	exec.TriggerData = exec.TriggerData.Clone()
	return exec
}

func prepareApplication(app model.Application) model.Application {
	if app.ID == "" {
		app.ID = newID()
	}
	if app.Status == "" {
		app.Status = model.ApplicationApplied
	}
	ts := now()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = ts
	}
	if app.UpdatedAt.IsZero() {
		app.UpdatedAt = app.CreatedAt
	}
	return cloneApplication(app)
}

func prepareJob(job model.Job) model.Job {
	if job.ID == "" {
		job.ID = newID()
	}
	if job.Status == "" {
		job.Status = model.JobStatusOpen
	}
	ts := now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = ts
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	return job
}

func prepareCandidate(c model.Candidate) model.Candidate {
	if c.ID == "" {
		c.ID = newID()
	}
	ts := now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = ts
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	return c
}

// cloneWorkflow copies the slices and maps of wf so callers cannot mutate
// stored state.
func cloneWorkflow(wf model.Workflow) model.Workflow {
	wf.Trigger.Config = cloneConfig(wf.Trigger.Config)
	if wf.Conditions != nil {
		wf.Conditions = append([]model.Condition(nil), wf.Conditions...)
	}
	if wf.Actions != nil {
		actions := make([]model.Action, len(wf.Actions))
		for i, a := range wf.Actions {
			actions[i] = model.Action{Type: a.Type, Config: cloneConfig(a.Config)}
		}
		wf.Actions = actions
	}
	if wf.LastExecutedAt != nil {
		at := *wf.LastExecutedAt
		wf.LastExecutedAt = &at
	}
	return wf
}

func cloneApplication(app model.Application) model.Application {
	if app.AIScore != nil {
		score := *app.AIScore
		app.AIScore = &score
	}
	return app
}

func cloneConfig(cfg map[string]string) map[string]string {
	if cfg == nil {
		return nil
	}
	out := make(map[string]string, len(cfg))
	for k, v := range cfg {
		out[k] = v
	}
	return out
}

func workflowNotFound(id string) *model.ErrorEnvelope {
	return model.NewNotFoundError(fmt.Sprintf("workflow %q not found", id))
}

func applicationNotFound(id string) *model.ErrorEnvelope {
	return model.NewNotFoundError(fmt.Sprintf("application %q not found", id))
}

func jobNotFound(id string) *model.ErrorEnvelope {
	return model.NewNotFoundError(fmt.Sprintf("job %q not found", id))
}

func candidateNotFound(id string) *model.ErrorEnvelope {
	return model.NewNotFoundError(fmt.Sprintf("candidate %q not found", id))
}
