package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pitabwire/recruitflow/internal/store"
	"github.com/pitabwire/recruitflow/model"
)

const defaultHistoryLimit = 50

// Manager owns the workflow lifecycle for recruiters: building, template
// instantiation, editing, enabling, deletion and execution history. Every
// operation is scoped to the owner; workflows of other owners are reported as
// not found.
type Manager struct {
	store        RunStore
	engine       *Engine
	catalog      *Catalog
	logger       *zap.Logger
	historyLimit int
}

// NewManager creates a workflow manager. historyLimit caps History when the
// caller asks for no explicit limit.
func NewManager(records RunStore, engine *Engine, catalog *Catalog, logger *zap.Logger, historyLimit int) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	if catalog == nil {
		catalog, _ = NewCatalog()
	}
	return &Manager{
		store:        records,
		engine:       engine,
		catalog:      catalog,
		logger:       logger,
		historyLimit: historyLimit,
	}
}

// Create validates draft and persists it as a paused workflow owned by owner.
func (m *Manager) Create(ctx context.Context, owner string, draft model.WorkflowDraft) (model.Workflow, error) {
	if err := requireOwner(owner); err != nil {
		return model.Workflow{}, err
	}
	if err := ValidateDraft(draft); err != nil {
		return model.Workflow{}, err
	}
	wf, err := m.store.CreateWorkflow(ctx, model.Workflow{
		Name:        draft.Name,
		Description: draft.Description,
		Trigger:     draft.Trigger,
		Conditions:  draft.Conditions,
		Actions:     draft.Actions,
		Status:      model.WorkflowStatusPaused,
		CreatedBy:   owner,
	})
	if err != nil {
		return model.Workflow{}, err
	}
	m.logger.Info("workflow created",
		zap.String("workflow_id", wf.ID),
		zap.String("owner", owner),
		zap.String("trigger", string(wf.Trigger.Type)),
	)
	return wf, nil
}

// Instantiate creates a paused workflow from a catalog template.
func (m *Manager) Instantiate(ctx context.Context, owner, templateID string) (model.Workflow, error) {
	t, ok := m.catalog.Get(templateID)
	if !ok {
		return model.Workflow{}, model.NewNotFoundError(fmt.Sprintf("template %q not found", templateID))
	}
	return m.Create(ctx, owner, cloneDraft(t.WorkflowDraft))
}

// Templates lists the catalog.
func (m *Manager) Templates() []Template {
	return m.catalog.List()
}

// Get returns a workflow owned by owner.
func (m *Manager) Get(ctx context.Context, owner, id string) (model.Workflow, error) {
	if err := requireOwner(owner); err != nil {
		return model.Workflow{}, err
	}
	wf, err := m.store.GetWorkflow(ctx, id)
	if err != nil {
		return model.Workflow{}, err
	}
	if wf.CreatedBy != owner {
		return model.Workflow{}, model.NewNotFoundError(fmt.Sprintf("workflow %q not found", id))
	}
	return wf, nil
}

// List returns the owner's workflows. The owner always overrides
// filters.CreatedBy.
func (m *Manager) List(ctx context.Context, owner string, filters store.WorkflowFilters) ([]model.Workflow, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	filters.CreatedBy = owner
	return m.store.ListWorkflows(ctx, filters)
}

// Update replaces the editable fields of a workflow with draft. Status and
// execution bookkeeping are preserved.
func (m *Manager) Update(ctx context.Context, owner, id string, draft model.WorkflowDraft) (model.Workflow, error) {
	if _, err := m.Get(ctx, owner, id); err != nil {
		return model.Workflow{}, err
	}
	if err := ValidateDraft(draft); err != nil {
		return model.Workflow{}, err
	}
	wf, err := m.store.UpdateWorkflow(ctx, id, model.PatchFromDraft(draft))
	if err != nil {
		return model.Workflow{}, err
	}
	m.logger.Info("workflow updated", zap.String("workflow_id", id), zap.String("owner", owner))
	return wf, nil
}

// SetStatus activates or pauses a workflow.
func (m *Manager) SetStatus(ctx context.Context, owner, id string, status model.WorkflowStatus) (model.Workflow, error) {
	if !status.Valid() {
		return model.Workflow{}, model.NewValidationError([]model.FieldError{{
			Field:   "status",
			Code:    codeInvalid,
			Message: fmt.Sprintf("unknown workflow status %q", status),
		}})
	}
	if _, err := m.Get(ctx, owner, id); err != nil {
		return model.Workflow{}, err
	}
	wf, err := m.store.UpdateWorkflow(ctx, id, model.WorkflowPatch{Status: &status})
	if err != nil {
		return model.Workflow{}, err
	}
	m.logger.Info("workflow status changed",
		zap.String("workflow_id", id),
		zap.String("status", string(status)),
	)
	return wf, nil
}

// Delete removes a workflow. Its execution history is retained.
func (m *Manager) Delete(ctx context.Context, owner, id string) error {
	if _, err := m.Get(ctx, owner, id); err != nil {
		return err
	}
	if err := m.store.DeleteWorkflow(ctx, id); err != nil {
		return err
	}
	m.logger.Info("workflow deleted", zap.String("workflow_id", id), zap.String("owner", owner))
	return nil
}

// History returns the newest execution receipts of a workflow. A limit <= 0
// uses the configured default.
func (m *Manager) History(ctx context.Context, owner, id string, limit int) ([]model.WorkflowExecution, error) {
	if _, err := m.Get(ctx, owner, id); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > m.historyLimit {
		limit = m.historyLimit
	}
	return m.store.ListExecutions(ctx, id, limit)
}

// Run is a test run of one workflow against payload. Paused workflows may be
// run; conditions are still evaluated.
func (m *Manager) Run(ctx context.Context, owner, id string, payload model.Payload) (model.RunResult, error) {
	wf, err := m.Get(ctx, owner, id)
	if err != nil {
		return model.RunResult{}, err
	}
	return m.engine.Run(ctx, wf, payload), nil
}

func requireOwner(owner string) error {
	if owner == "" {
		return model.NewUnauthorizedError("request has no subject")
	}
	return nil
}

func cloneDraft(d model.WorkflowDraft) model.WorkflowDraft {
	out := d
	if d.Trigger.Config != nil {
		out.Trigger.Config = make(map[string]string, len(d.Trigger.Config))
		for k, v := range d.Trigger.Config {
			out.Trigger.Config[k] = v
		}
	}
	out.Conditions = append([]model.Condition(nil), d.Conditions...)
	out.Actions = make([]model.Action, len(d.Actions))
	for i, a := range d.Actions {
		cfg := make(map[string]string, len(a.Config))
		for k, v := range a.Config {
			cfg[k] = v
		}
		out.Actions[i] = model.Action{Type: a.Type, Config: cfg}
	}
	return out
}
