package store

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pitabwire/recruitflow/model"
)

func TestMongoStore_contract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping mongodb container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	// Transactions need a replica set.
	mongoContainer, err := mongodb.Run(ctx, "mongo:7", mongodb.WithReplicaSet("rs0"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	uri, err := mongoContainer.ConnectionString(ctx)
	if err != nil {
		t.Fatal(err)
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetDirect(true))
	if err != nil {
		t.Fatal(err)
	}

	s := NewMongoStore(client, "recruitflow_test")
	defer s.Close()
	if err := s.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes error: %v", err)
	}

	runStoreContract(t, s)

	t.Run("list condition operand survives round trip", func(t *testing.T) {
		wf := testWorkflow("", "owner-list", model.TriggerApplicationCreated, model.WorkflowStatusActive)
		wf.Conditions = []model.Condition{{
			Field: "status", Operator: model.OpContains,
			Value: model.List(model.String("reviewing"), model.String("interviewing")),
		}}
		created, err := s.CreateWorkflow(ctx, wf)
		if err != nil {
			t.Fatalf("CreateWorkflow() error = %v", err)
		}

		got, err := s.GetWorkflow(ctx, created.ID)
		if err != nil {
			t.Fatalf("GetWorkflow() error = %v", err)
		}
		if len(got.Conditions) != 1 {
			t.Fatalf("conditions = %d, want 1", len(got.Conditions))
		}
		v := got.Conditions[0].Value
		if v.Kind() != model.KindList {
			t.Errorf("kind = %v, want list", v.Kind())
		}
		if v.Text() != "reviewing, interviewing" {
			t.Errorf("text = %q", v.Text())
		}
	})
}

func TestWorkflowDoc_round_trip(t *testing.T) {
	wf := testWorkflow("wf-doc", "owner", model.TriggerAIScoreCalculated, model.WorkflowStatusActive)
	got := workflowToDoc(wf).toModel()

	if got.ID != wf.ID || got.Trigger.Type != wf.Trigger.Type {
		t.Errorf("got %s/%s, want %s/%s", got.ID, got.Trigger.Type, wf.ID, wf.Trigger.Type)
	}
	if len(got.Conditions) != 1 {
		t.Fatalf("conditions = %d, want 1", len(got.Conditions))
	}
	if !got.Conditions[0].Value.Equal(model.Number(85)) {
		t.Errorf("condition value = %v, want 85", got.Conditions[0].Value)
	}
	if got.Actions[0].Config[model.ConfigStatus] != "reviewing" {
		t.Errorf("action config = %v", got.Actions[0].Config)
	}
}

func TestExecutionDoc_keeps_dotted_keys(t *testing.T) {
	exec := model.WorkflowExecution{
		ID:         "exec-1",
		WorkflowID: "wf-1",
		Success:    true,
		TriggerData: model.Payload{
			"candidate.name": model.String("Ada"),
			"aiScore":        model.Number(92),
		},
	}
	doc := executionToDoc(exec)
	if len(doc.TriggerData) != 2 {
		t.Fatalf("trigger data entries = %d, want 2", len(doc.TriggerData))
	}
	if doc.TriggerData[0].Key != "aiScore" {
		t.Errorf("first key = %q, want aiScore", doc.TriggerData[0].Key)
	}

	got := doc.toModel()
	if name := got.TriggerData.Lookup("candidate.name").Text(); name != "Ada" {
		t.Errorf("candidate.name = %q, want Ada", name)
	}
}
