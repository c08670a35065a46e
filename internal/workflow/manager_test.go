package workflow

import (
	"context"
	"testing"

	"github.com/pitabwire/recruitflow/internal/store"
	"github.com/pitabwire/recruitflow/model"
)

func newTestManager(t *testing.T) (*Manager, *fixture) {
	t.Helper()
	f := newFixture(t)
	catalog, err := NewCatalog(DefaultTemplates()...)
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	return NewManager(f.store, f.engine, catalog, nil, 2), f
}

// mustCreate creates validDraft for owner and fails the test on error.
func mustCreate(t *testing.T, m *Manager, owner string) model.Workflow {
	t.Helper()
	wf, err := m.Create(context.Background(), owner, validDraft())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return wf
}

func TestManager_CreateStartsPaused(t *testing.T) {
	m, _ := newTestManager(t)

	wf := mustCreate(t, m, "alice")
	if wf.Status != model.WorkflowStatusPaused {
		t.Errorf("status = %q, want paused", wf.Status)
	}
	if wf.CreatedBy != "alice" {
		t.Errorf("createdBy = %q, want alice", wf.CreatedBy)
	}
	if wf.ExecutionCount != 0 {
		t.Errorf("count = %d, want 0", wf.ExecutionCount)
	}
}

func TestManager_CreateValidates(t *testing.T) {
	m, _ := newTestManager(t)
	d := validDraft()
	d.Actions = nil

	_, err := m.Create(context.Background(), "alice", d)
	if code := model.CodeOf(err); code != model.ErrValidationError {
		t.Errorf("code = %q, want %q", code, model.ErrValidationError)
	}
}

func TestManager_RequiresOwner(t *testing.T) {
	m, _ := newTestManager(t)

	if _, err := m.Create(context.Background(), "", validDraft()); model.CodeOf(err) != model.ErrUnauthorized {
		t.Errorf("Create() error = %v, want unauthorized", err)
	}
	if _, err := m.List(context.Background(), "", store.WorkflowFilters{}); model.CodeOf(err) != model.ErrUnauthorized {
		t.Errorf("List() error = %v, want unauthorized", err)
	}
}

func TestManager_Instantiate(t *testing.T) {
	m, _ := newTestManager(t)

	wf, err := m.Instantiate(context.Background(), "alice", "reject-low-scores")
	if err != nil {
		t.Fatalf("Instantiate() error = %v", err)
	}
	if wf.Status != model.WorkflowStatusPaused {
		t.Errorf("status = %q, want paused", wf.Status)
	}
	if wf.Trigger.Type != model.TriggerAIScoreCalculated {
		t.Errorf("trigger = %q", wf.Trigger.Type)
	}
	if len(wf.Actions) != 2 {
		t.Fatalf("actions = %d, want 2", len(wf.Actions))
	}

	// Instances must not share config maps with the catalog.
	wf.Actions[0].Config[model.ConfigStatus] = "hired"
	tmpl, _ := m.catalog.Get("reject-low-scores")
	if got := tmpl.Actions[0].Config[model.ConfigStatus]; got != "rejected" {
		t.Errorf("catalog status = %q, want rejected", got)
	}

	if _, err := m.Instantiate(context.Background(), "alice", "no-such-template"); !model.IsNotFound(err) {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestManager_OwnerScoping(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	wf := mustCreate(t, m, "alice")

	if _, err := m.Get(ctx, "bob", wf.ID); !model.IsNotFound(err) {
		t.Errorf("Get() error = %v, want not found", err)
	}
	if _, err := m.SetStatus(ctx, "bob", wf.ID, model.WorkflowStatusActive); !model.IsNotFound(err) {
		t.Errorf("SetStatus() error = %v, want not found", err)
	}
	if err := m.Delete(ctx, "bob", wf.ID); !model.IsNotFound(err) {
		t.Errorf("Delete() error = %v, want not found", err)
	}
	if _, err := m.Run(ctx, "bob", wf.ID, model.Payload{}); !model.IsNotFound(err) {
		t.Errorf("Run() error = %v, want not found", err)
	}

	bobs, err := m.List(ctx, "bob", store.WorkflowFilters{CreatedBy: "alice"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(bobs) != 0 {
		t.Errorf("bob sees %d workflows, want 0", len(bobs))
	}

	alices, err := m.List(ctx, "alice", store.WorkflowFilters{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(alices) != 1 {
		t.Errorf("alice sees %d workflows, want 1", len(alices))
	}
}

func TestManager_UpdateKeepsStatusAndCounters(t *testing.T) {
	m, f := newTestManager(t)
	ctx := context.Background()
	f.seedApplication(t, "a1")

	wf := mustCreate(t, m, "alice")
	if _, err := m.SetStatus(ctx, "alice", wf.ID, model.WorkflowStatusActive); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	if _, err := m.Run(ctx, "alice", wf.ID, scorePayload(95, "a1")); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	d := validDraft()
	d.Name = "Advance v2"
	d.Conditions[0].Value = model.Number(90)
	updated, err := m.Update(ctx, "alice", wf.ID, d)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Name != "Advance v2" {
		t.Errorf("name = %q", updated.Name)
	}
	if updated.Status != model.WorkflowStatusActive {
		t.Errorf("status = %q, want active", updated.Status)
	}
	if updated.ExecutionCount != 1 {
		t.Errorf("count = %d, want 1", updated.ExecutionCount)
	}
	if !updated.Conditions[0].Value.Equal(model.Number(90)) {
		t.Errorf("condition value = %v, want 90", updated.Conditions[0].Value)
	}

	bad := validDraft()
	bad.Name = ""
	if _, err := m.Update(ctx, "alice", wf.ID, bad); model.CodeOf(err) != model.ErrValidationError {
		t.Errorf("Update() error = %v, want validation error", err)
	}
}

func TestManager_SetStatus(t *testing.T) {
	m, f := newTestManager(t)
	ctx := context.Background()
	f.seedApplication(t, "a1")

	wf, err := m.Create(ctx, "alice", model.WorkflowDraft{
		Name:    "advance on create",
		Trigger: model.Trigger{Type: model.TriggerApplicationCreated},
		Actions: []model.Action{{Type: model.ActionUpdateStatus, Config: map[string]string{model.ConfigStatus: "reviewing"}}},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Paused workflows ignore triggers until enabled.
	if results := f.trigger(t, model.TriggerApplicationCreated, scorePayload(1, "a1")); len(results) != 0 {
		t.Errorf("paused results = %+v, want none", results)
	}

	active, err := m.SetStatus(ctx, "alice", wf.ID, model.WorkflowStatusActive)
	if err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	if active.Status != model.WorkflowStatusActive {
		t.Errorf("status = %q, want active", active.Status)
	}

	if results := f.trigger(t, model.TriggerApplicationCreated, scorePayload(1, "a1")); len(results) != 1 {
		t.Errorf("active results = %d, want 1", len(results))
	}

	if _, err := m.SetStatus(ctx, "alice", wf.ID, "archived"); model.CodeOf(err) != model.ErrValidationError {
		t.Errorf("SetStatus(archived) error = %v, want validation error", err)
	}
}

func TestManager_HistoryAndDelete(t *testing.T) {
	m, f := newTestManager(t)
	ctx := context.Background()
	f.seedApplication(t, "a1")
	wf := mustCreate(t, m, "alice")

	for _, score := range []float64{90, 91, 92} {
		res, err := m.Run(ctx, "alice", wf.ID, scorePayload(score, "a1"))
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if !res.Success {
			t.Errorf("run %v = %+v", score, res)
		}
	}

	// History is capped at the configured limit of 2.
	history, err := m.History(ctx, "alice", wf.ID, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Errorf("history = %d, want 2", len(history))
	}

	one, err := m.History(ctx, "alice", wf.ID, 1)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(one) != 1 {
		t.Errorf("history = %d, want 1", len(one))
	}

	if err := m.Delete(ctx, "alice", wf.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := m.Get(ctx, "alice", wf.ID); !model.IsNotFound(err) {
		t.Errorf("Get() error = %v, want not found", err)
	}

	// Receipts outlive the workflow.
	if kept := f.executions(t, wf.ID); len(kept) != 3 {
		t.Errorf("receipts = %d, want 3", len(kept))
	}
}

func TestManager_RunSkipped(t *testing.T) {
	m, f := newTestManager(t)
	f.seedApplication(t, "a1")
	wf := mustCreate(t, m, "alice")

	res, err := m.Run(context.Background(), "alice", wf.ID, scorePayload(10, "a1"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Skipped || res.Success || res.ExecutionID != "" {
		t.Errorf("result = %+v, want skipped with no receipt", res)
	}
}

func TestManager_Templates(t *testing.T) {
	m, _ := newTestManager(t)
	if got, want := len(m.Templates()), len(DefaultTemplates()); got != want {
		t.Errorf("templates = %d, want %d", got, want)
	}
}
