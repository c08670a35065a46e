package model

import "time"

// TriggerType is the domain event a workflow subscribes to.
type TriggerType string

// Trigger types.
const (
	TriggerApplicationCreated       TriggerType = "application_created"
	TriggerApplicationStatusChanged TriggerType = "application_status_changed"
	TriggerAIScoreCalculated        TriggerType = "ai_score_calculated"
	TriggerManual                   TriggerType = "manual"
)

// Valid reports whether t is a known trigger type.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerApplicationCreated, TriggerApplicationStatusChanged,
		TriggerAIScoreCalculated, TriggerManual:
		return true
	}
	return false
}

// Operator is a condition comparison operator.
type Operator string

// Condition operators.
const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpContains    Operator = "contains"
)

// Valid reports whether o is a known operator.
func (o Operator) Valid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpContains:
		return true
	}
	return false
}

// ActionType identifies what an action does.
type ActionType string

// Action types.
const (
	ActionUpdateStatus     ActionType = "update_status"
	ActionSendNotification ActionType = "send_notification"
	ActionAddNote          ActionType = "add_note"
)

// Action config keys.
const (
	ConfigStatus    = "status"
	ConfigRecipient = "recipient"
	ConfigMessage   = "message"
	ConfigNote      = "note"
)

// RequiredConfig returns the config keys an action of type t must carry.
// Unknown types return nil.
func (t ActionType) RequiredConfig() []string {
	switch t {
	case ActionUpdateStatus:
		return []string{ConfigStatus}
	case ActionSendNotification:
		return []string{ConfigRecipient, ConfigMessage}
	case ActionAddNote:
		return []string{ConfigNote}
	}
	return nil
}

// Valid reports whether t is a known action type.
func (t ActionType) Valid() bool { return t.RequiredConfig() != nil }

// WorkflowStatus is the enablement state of a workflow.
type WorkflowStatus string

// Workflow statuses. Only active workflows are selected by triggers.
const (
	WorkflowStatusActive WorkflowStatus = "active"
	WorkflowStatusPaused WorkflowStatus = "paused"
)

// Valid reports whether s is a known workflow status.
func (s WorkflowStatus) Valid() bool {
	return s == WorkflowStatusActive || s == WorkflowStatusPaused
}

// Trigger selects the event type a workflow reacts to.
type Trigger struct {
	Type   TriggerType       `json:"type" yaml:"type"`
	Config map[string]string `json:"config,omitempty" yaml:"config,omitempty"`
}

// Condition is one comparison against a payload field. All conditions of a
// workflow are AND-ed.
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    Value    `json:"value" yaml:"value"`
}

// Action is one side-effecting step executed when a workflow matches.
type Action struct {
	Type   ActionType        `json:"type" yaml:"type"`
	Config map[string]string `json:"config" yaml:"config"`
}

// Workflow is a persisted automation rule.
type Workflow struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Trigger        Trigger        `json:"trigger"`
	Conditions     []Condition    `json:"conditions"`
	Actions        []Action       `json:"actions"`
	Status         WorkflowStatus `json:"status"`
	CreatedBy      string         `json:"createdBy"`
	ExecutionCount int64          `json:"executionCount"`
	LastExecutedAt *time.Time     `json:"lastExecutedAt,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// WorkflowDraft is the user-editable part of a workflow, used by the builder
// and by template instantiation.
type WorkflowDraft struct {
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description" yaml:"description"`
	Trigger     Trigger     `json:"trigger" yaml:"trigger"`
	Conditions  []Condition `json:"conditions" yaml:"conditions"`
	Actions     []Action    `json:"actions" yaml:"actions"`
}

// WorkflowPatch lists the fields to merge into an existing workflow. Nil
// fields are left untouched. Execution bookkeeping is not patchable; it only
// moves through IncrementExecutionCount.
type WorkflowPatch struct {
	Name        *string
	Description *string
	Trigger     *Trigger
	Conditions  *[]Condition
	Actions     *[]Action
	Status      *WorkflowStatus
}

// PatchFromDraft returns a patch replacing every editable field with the
// draft's values.
func PatchFromDraft(d WorkflowDraft) WorkflowPatch {
	return WorkflowPatch{
		Name:        &d.Name,
		Description: &d.Description,
		Trigger:     &d.Trigger,
		Conditions:  &d.Conditions,
		Actions:     &d.Actions,
	}
}

// Apply merges the patch into w.
func (p WorkflowPatch) Apply(w *Workflow) {
	if p.Name != nil {
		w.Name = *p.Name
	}
	if p.Description != nil {
		w.Description = *p.Description
	}
	if p.Trigger != nil {
		w.Trigger = *p.Trigger
	}
	if p.Conditions != nil {
		w.Conditions = *p.Conditions
	}
	if p.Actions != nil {
		w.Actions = *p.Actions
	}
	if p.Status != nil {
		w.Status = *p.Status
	}
}

// WorkflowExecution is the append-only receipt of one run whose conditions
// matched. Error is set iff Success is false.
type WorkflowExecution struct {
	ID          string    `json:"id"`
	WorkflowID  string    `json:"workflowId"`
	ExecutedAt  time.Time `json:"executedAt"`
	Success     bool      `json:"success"`
	TriggerData Payload   `json:"triggerData"`
	Error       string    `json:"error,omitempty"`
}

// RunResult is what the engine reports to event producers for each workflow
// that ran. Skipped is set when the conditions did not match, in which case
// nothing was executed or recorded.
type RunResult struct {
	WorkflowID  string `json:"workflowId"`
	ExecutionID string `json:"executionId,omitempty"`
	Success     bool   `json:"success"`
	Skipped     bool   `json:"skipped,omitempty"`
	Error       string `json:"error,omitempty"`
}
