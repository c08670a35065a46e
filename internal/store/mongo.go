package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/pitabwire/recruitflow/model"
)

// Collection names.
const (
	collWorkflows    = "workflows"
	collExecutions   = "workflow_executions"
	collApplications = "applications"
	collJobs         = "jobs"
	collCandidates   = "candidates"
)

// MongoStore is a MongoDB-backed Store. RecordExecution runs in a
// multi-document transaction, so the deployment must be a replica set.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore creates a store on the named database.
func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	return &MongoStore{client: client, db: client.Database(database)}
}

var (
	_ Store             = (*MongoStore)(nil)
	_ ExecutionRecorder = (*MongoStore)(nil)
)

// EnsureIndexes creates the secondary indexes the queries rely on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		collWorkflows: {
			{Keys: bson.D{{Key: "triggerType", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "createdBy", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		collExecutions: {
			{Keys: bson.D{{Key: "workflowId", Value: 1}, {Key: "executedAt", Value: -1}}},
		},
		collApplications: {
			{Keys: bson.D{{Key: "jobId", Value: 1}}},
			{Keys: bson.D{{Key: "candidateId", Value: 1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", coll, err)
		}
	}
	return nil
}

// HealthCheck pings the primary.
func (s *MongoStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *MongoStore) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.client.Disconnect(ctx)
}

// --- Workflows ---

// ListActiveWorkflows returns active workflows for a trigger, oldest first.
func (s *MongoStore) ListActiveWorkflows(ctx context.Context, trigger model.TriggerType) ([]model.Workflow, error) {
	filter := bson.M{"status": string(model.WorkflowStatusActive), "triggerType": string(trigger)}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	return s.findWorkflows(ctx, filter, opts)
}

// ListWorkflows returns workflows matching filters, newest first.
func (s *MongoStore) ListWorkflows(ctx context.Context, filters WorkflowFilters) ([]model.Workflow, error) {
	filter := bson.M{}
	if filters.CreatedBy != "" {
		filter["createdBy"] = filters.CreatedBy
	}
	if filters.Status != "" {
		filter["status"] = string(filters.Status)
	}
	if filters.Trigger != "" {
		filter["triggerType"] = string(filters.Trigger)
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if filters.Limit > 0 {
		opts.SetLimit(int64(filters.Limit))
	}
	if filters.Offset > 0 {
		opts.SetSkip(int64(filters.Offset))
	}
	return s.findWorkflows(ctx, filter, opts)
}

// GetWorkflow retrieves a workflow by ID.
func (s *MongoStore) GetWorkflow(ctx context.Context, id string) (model.Workflow, error) {
	var doc workflowDoc
	err := s.db.Collection(collWorkflows).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Workflow{}, workflowNotFound(id)
	}
	if err != nil {
		return model.Workflow{}, fmt.Errorf("find workflow: %w", err)
	}
	return doc.toModel(), nil
}

// CreateWorkflow inserts a new workflow.
func (s *MongoStore) CreateWorkflow(ctx context.Context, wf model.Workflow) (model.Workflow, error) {
	wf = prepareWorkflow(wf)
	if _, err := s.db.Collection(collWorkflows).InsertOne(ctx, workflowToDoc(wf)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return model.Workflow{}, model.NewConflictError(fmt.Sprintf("workflow %q already exists", wf.ID))
		}
		return model.Workflow{}, fmt.Errorf("insert workflow: %w", err)
	}
	return wf, nil
}

// UpdateWorkflow applies patch with a single $set so concurrent execution
// bookkeeping is never overwritten.
func (s *MongoStore) UpdateWorkflow(ctx context.Context, id string, patch model.WorkflowPatch) (model.Workflow, error) {
	set := bson.M{"updatedAt": now()}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Trigger != nil {
		set["triggerType"] = string(patch.Trigger.Type)
		set["triggerConfig"] = patch.Trigger.Config
	}
	if patch.Conditions != nil {
		set["conditions"] = conditionsToDocs(*patch.Conditions)
	}
	if patch.Actions != nil {
		set["actions"] = actionsToDocs(*patch.Actions)
	}
	if patch.Status != nil {
		set["status"] = string(*patch.Status)
	}

	var doc workflowDoc
	err := s.db.Collection(collWorkflows).FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Workflow{}, workflowNotFound(id)
	}
	if err != nil {
		return model.Workflow{}, fmt.Errorf("update workflow: %w", err)
	}
	return doc.toModel(), nil
}

// DeleteWorkflow removes a workflow. Receipts stay in place.
func (s *MongoStore) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.db.Collection(collWorkflows).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if res.DeletedCount == 0 {
		return workflowNotFound(id)
	}
	return nil
}

// IncrementExecutionCount bumps the counter with $inc.
func (s *MongoStore) IncrementExecutionCount(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.Collection(collWorkflows).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$inc": bson.M{"executionCount": 1},
			"$set": bson.M{"lastExecutedAt": at.UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("increment execution count: %w", err)
	}
	if res.MatchedCount == 0 {
		return workflowNotFound(id)
	}
	return nil
}

// --- Executions ---

// CreateExecution inserts a receipt.
func (s *MongoStore) CreateExecution(ctx context.Context, exec model.WorkflowExecution) (model.WorkflowExecution, error) {
	exec = prepareExecution(exec)
	if _, err := s.db.Collection(collExecutions).InsertOne(ctx, executionToDoc(exec)); err != nil {
		return model.WorkflowExecution{}, fmt.Errorf("insert workflow execution: %w", err)
	}
	return exec, nil
}

// RecordExecution bumps the workflow's bookkeeping and inserts the receipt in
// one transaction.
func (s *MongoStore) RecordExecution(ctx context.Context, exec model.WorkflowExecution) (model.WorkflowExecution, error) {
	exec = prepareExecution(exec)

	sess, err := s.client.StartSession()
	if err != nil {
		return model.WorkflowExecution{}, fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		if err := s.IncrementExecutionCount(sc, exec.WorkflowID, exec.ExecutedAt); err != nil {
			return nil, err
		}
		if _, err := s.db.Collection(collExecutions).InsertOne(sc, executionToDoc(exec)); err != nil {
			return nil, fmt.Errorf("insert workflow execution: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		return model.WorkflowExecution{}, err
	}
	return exec, nil
}

// ListExecutions returns receipts for a workflow, newest first.
func (s *MongoStore) ListExecutions(ctx context.Context, workflowID string, limit int) ([]model.WorkflowExecution, error) {
	opts := options.Find().SetSort(bson.D{{Key: "executedAt", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.db.Collection(collExecutions).Find(ctx, bson.M{"workflowId": workflowID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find workflow executions: %w", err)
	}
	var docs []executionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode workflow executions: %w", err)
	}
	result := make([]model.WorkflowExecution, len(docs))
	for i, d := range docs {
		result[i] = d.toModel()
	}
	return result, nil
}

// --- Applications ---

// CreateApplication inserts a new application.
func (s *MongoStore) CreateApplication(ctx context.Context, app model.Application) (model.Application, error) {
	app = prepareApplication(app)
	if _, err := s.db.Collection(collApplications).InsertOne(ctx, applicationToDoc(app)); err != nil {
		return model.Application{}, fmt.Errorf("insert application: %w", err)
	}
	return app, nil
}

// GetApplication retrieves an application by ID.
func (s *MongoStore) GetApplication(ctx context.Context, id string) (model.Application, error) {
	var doc applicationDoc
	err := s.db.Collection(collApplications).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Application{}, applicationNotFound(id)
	}
	if err != nil {
		return model.Application{}, fmt.Errorf("find application: %w", err)
	}
	return doc.toModel(), nil
}

// UpdateApplication applies patch with a single $set.
func (s *MongoStore) UpdateApplication(ctx context.Context, id string, patch model.ApplicationPatch) (model.Application, error) {
	set := bson.M{"updatedAt": now()}
	if patch.Status != nil {
		set["status"] = string(*patch.Status)
	}
	if patch.AIScore != nil {
		set["aiScore"] = *patch.AIScore
	}
	if patch.Notes != nil {
		set["notes"] = *patch.Notes
	}

	var doc applicationDoc
	err := s.db.Collection(collApplications).FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Application{}, applicationNotFound(id)
	}
	if err != nil {
		return model.Application{}, fmt.Errorf("update application: %w", err)
	}
	return doc.toModel(), nil
}

// DeleteApplication removes an application.
func (s *MongoStore) DeleteApplication(ctx context.Context, id string) error {
	res, err := s.db.Collection(collApplications).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	if res.DeletedCount == 0 {
		return applicationNotFound(id)
	}
	return nil
}

// ListApplications returns applications matching filters, newest first.
func (s *MongoStore) ListApplications(ctx context.Context, filters ApplicationFilters) ([]model.Application, error) {
	filter := bson.M{}
	if filters.JobID != "" {
		filter["jobId"] = filters.JobID
	}
	if filters.CandidateID != "" {
		filter["candidateId"] = filters.CandidateID
	}
	if filters.Status != "" {
		filter["status"] = string(filters.Status)
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if filters.Limit > 0 {
		opts.SetLimit(int64(filters.Limit))
	}

	cur, err := s.db.Collection(collApplications).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find applications: %w", err)
	}
	var docs []applicationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode applications: %w", err)
	}
	result := make([]model.Application, len(docs))
	for i, d := range docs {
		result[i] = d.toModel()
	}
	return result, nil
}

// --- Jobs ---

// CreateJob inserts a new job.
func (s *MongoStore) CreateJob(ctx context.Context, job model.Job) (model.Job, error) {
	job = prepareJob(job)
	if _, err := s.db.Collection(collJobs).InsertOne(ctx, jobDoc(job)); err != nil {
		return model.Job{}, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// GetJob retrieves a job by ID.
func (s *MongoStore) GetJob(ctx context.Context, id string) (model.Job, error) {
	var doc jobDoc
	err := s.db.Collection(collJobs).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Job{}, jobNotFound(id)
	}
	if err != nil {
		return model.Job{}, fmt.Errorf("find job: %w", err)
	}
	return model.Job(doc), nil
}

// DeleteJob removes a job.
func (s *MongoStore) DeleteJob(ctx context.Context, id string) error {
	res, err := s.db.Collection(collJobs).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if res.DeletedCount == 0 {
		return jobNotFound(id)
	}
	return nil
}

// ListJobs returns jobs, optionally restricted to one owner, newest first.
func (s *MongoStore) ListJobs(ctx context.Context, createdBy string) ([]model.Job, error) {
	filter := bson.M{}
	if createdBy != "" {
		filter["createdBy"] = createdBy
	}
	cur, err := s.db.Collection(collJobs).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("find jobs: %w", err)
	}
	var docs []jobDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}
	result := make([]model.Job, len(docs))
	for i, d := range docs {
		result[i] = model.Job(d)
	}
	return result, nil
}

// --- Candidates ---

// CreateCandidate inserts a new candidate.
func (s *MongoStore) CreateCandidate(ctx context.Context, c model.Candidate) (model.Candidate, error) {
	c = prepareCandidate(c)
	if _, err := s.db.Collection(collCandidates).InsertOne(ctx, candidateDoc(c)); err != nil {
		return model.Candidate{}, fmt.Errorf("insert candidate: %w", err)
	}
	return c, nil
}

// GetCandidate retrieves a candidate by ID.
func (s *MongoStore) GetCandidate(ctx context.Context, id string) (model.Candidate, error) {
	var doc candidateDoc
	err := s.db.Collection(collCandidates).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Candidate{}, candidateNotFound(id)
	}
	if err != nil {
		return model.Candidate{}, fmt.Errorf("find candidate: %w", err)
	}
	return model.Candidate(doc), nil
}

// DeleteCandidate removes a candidate.
func (s *MongoStore) DeleteCandidate(ctx context.Context, id string) error {
	res, err := s.db.Collection(collCandidates).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete candidate: %w", err)
	}
	if res.DeletedCount == 0 {
		return candidateNotFound(id)
	}
	return nil
}

// ListCandidates returns all candidates, newest first.
func (s *MongoStore) ListCandidates(ctx context.Context) ([]model.Candidate, error) {
	cur, err := s.db.Collection(collCandidates).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	var docs []candidateDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode candidates: %w", err)
	}
	result := make([]model.Candidate, len(docs))
	for i, d := range docs {
		result[i] = model.Candidate(d)
	}
	return result, nil
}

func (s *MongoStore) findWorkflows(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]model.Workflow, error) {
	cur, err := s.db.Collection(collWorkflows).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find workflows: %w", err)
	}
	var docs []workflowDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode workflows: %w", err)
	}
	result := make([]model.Workflow, len(docs))
	for i, d := range docs {
		result[i] = d.toModel()
	}
	return result, nil
}
