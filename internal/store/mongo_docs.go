package store

import (
	"time"

	"github.com/pitabwire/recruitflow/model"
)

// BSON document shapes. Condition operands and trigger data are stored as
// native BSON values so they stay queryable from the mongo shell.

type workflowDoc struct {
	ID             string            `bson:"_id"`
	Name           string            `bson:"name"`
	Description    string            `bson:"description"`
	TriggerType    string            `bson:"triggerType"`
	TriggerConfig  map[string]string `bson:"triggerConfig,omitempty"`
	Conditions     []conditionDoc    `bson:"conditions"`
	Actions        []actionDoc       `bson:"actions"`
	Status         string            `bson:"status"`
	CreatedBy      string            `bson:"createdBy"`
	ExecutionCount int64             `bson:"executionCount"`
	LastExecutedAt *time.Time        `bson:"lastExecutedAt,omitempty"`
	CreatedAt      time.Time         `bson:"createdAt"`
	UpdatedAt      time.Time         `bson:"updatedAt"`
}

type conditionDoc struct {
	Field    string `bson:"field"`
	Operator string `bson:"operator"`
	Value    any    `bson:"value"`
}

type actionDoc struct {
	Type   string            `bson:"type"`
	Config map[string]string `bson:"config"`
}

// payloadFieldDoc keeps dotted payload keys out of BSON field names.
type payloadFieldDoc struct {
	Key   string `bson:"k"`
	Value any    `bson:"v"`
}

type executionDoc struct {
	ID          string            `bson:"_id"`
	WorkflowID  string            `bson:"workflowId"`
	ExecutedAt  time.Time         `bson:"executedAt"`
	Success     bool              `bson:"success"`
	TriggerData []payloadFieldDoc `bson:"triggerData"`
	Error       string            `bson:"error,omitempty"`
}

type applicationDoc struct {
	ID          string    `bson:"_id"`
	JobID       string    `bson:"jobId"`
	CandidateID string    `bson:"candidateId"`
	Status      string    `bson:"status"`
	AIScore     *float64  `bson:"aiScore,omitempty"`
	Notes       string    `bson:"notes"`
	CreatedAt   time.Time `bson:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

// jobDoc and candidateDoc mirror the model field-for-field so they convert
// directly.
type jobDoc struct {
	ID         string    `bson:"_id"`
	Title      string    `bson:"title"`
	Department string    `bson:"department"`
	Location   string    `bson:"location"`
	Status     string    `bson:"status"`
	CreatedBy  string    `bson:"createdBy"`
	CreatedAt  time.Time `bson:"createdAt"`
	UpdatedAt  time.Time `bson:"updatedAt"`
}

type candidateDoc struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Email     string    `bson:"email"`
	Phone     string    `bson:"phone"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func workflowToDoc(wf model.Workflow) workflowDoc {
	return workflowDoc{
		ID:             wf.ID,
		Name:           wf.Name,
		Description:    wf.Description,
		TriggerType:    string(wf.Trigger.Type),
		TriggerConfig:  wf.Trigger.Config,
		Conditions:     conditionsToDocs(wf.Conditions),
		Actions:        actionsToDocs(wf.Actions),
		Status:         string(wf.Status),
		CreatedBy:      wf.CreatedBy,
		ExecutionCount: wf.ExecutionCount,
		LastExecutedAt: wf.LastExecutedAt,
		CreatedAt:      wf.CreatedAt,
		UpdatedAt:      wf.UpdatedAt,
	}
}

func (d workflowDoc) toModel() model.Workflow {
	wf := model.Workflow{
		ID:             d.ID,
		Name:           d.Name,
		Description:    d.Description,
		Trigger:        model.Trigger{Type: model.TriggerType(d.TriggerType), Config: d.TriggerConfig},
		Status:         model.WorkflowStatus(d.Status),
		CreatedBy:      d.CreatedBy,
		ExecutionCount: d.ExecutionCount,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	if d.LastExecutedAt != nil {
		at := d.LastExecutedAt.UTC()
		wf.LastExecutedAt = &at
	}
	wf.Conditions = make([]model.Condition, len(d.Conditions))
	for i, c := range d.Conditions {
		v, _ := model.ValueOf(c.Value)
		wf.Conditions[i] = model.Condition{Field: c.Field, Operator: model.Operator(c.Operator), Value: v}
	}
	wf.Actions = make([]model.Action, len(d.Actions))
	for i, a := range d.Actions {
		wf.Actions[i] = model.Action{Type: model.ActionType(a.Type), Config: a.Config}
	}
	return wf
}

func conditionsToDocs(conds []model.Condition) []conditionDoc {
	out := make([]conditionDoc, len(conds))
	for i, c := range conds {
		out[i] = conditionDoc{Field: c.Field, Operator: string(c.Operator), Value: c.Value.Native()}
	}
	return out
}

func actionsToDocs(actions []model.Action) []actionDoc {
	out := make([]actionDoc, len(actions))
	for i, a := range actions {
		out[i] = actionDoc{Type: string(a.Type), Config: a.Config}
	}
	return out
}

func executionToDoc(exec model.WorkflowExecution) executionDoc {
	fields := make([]payloadFieldDoc, 0, len(exec.TriggerData))
	for _, k := range exec.TriggerData.Keys() {
		fields = append(fields, payloadFieldDoc{Key: k, Value: exec.TriggerData[k].Native()})
	}
	return executionDoc{
		ID:          exec.ID,
		WorkflowID:  exec.WorkflowID,
		ExecutedAt:  exec.ExecutedAt,
		Success:     exec.Success,
		TriggerData: fields,
		Error:       exec.Error,
	}
}

func (d executionDoc) toModel() model.WorkflowExecution {
	data := make(model.Payload, len(d.TriggerData))
	for _, f := range d.TriggerData {
		data.Set(f.Key, f.Value)
	}
	return model.WorkflowExecution{
		ID:          d.ID,
		WorkflowID:  d.WorkflowID,
		ExecutedAt:  d.ExecutedAt.UTC(),
		Success:     d.Success,
		TriggerData: data,
		Error:       d.Error,
	}
}

func applicationToDoc(app model.Application) applicationDoc {
	return applicationDoc{
		ID:          app.ID,
		JobID:       app.JobID,
		CandidateID: app.CandidateID,
		Status:      string(app.Status),
		AIScore:     app.AIScore,
		Notes:       app.Notes,
		CreatedAt:   app.CreatedAt,
		UpdatedAt:   app.UpdatedAt,
	}
}

func (d applicationDoc) toModel() model.Application {
	return model.Application{
		ID:          d.ID,
		JobID:       d.JobID,
		CandidateID: d.CandidateID,
		Status:      model.ApplicationStatus(d.Status),
		AIScore:     d.AIScore,
		Notes:       d.Notes,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}
