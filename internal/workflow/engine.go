package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/recruitflow/internal/observability"
	"github.com/pitabwire/recruitflow/internal/store"
	"github.com/pitabwire/recruitflow/model"
)

// Run outcomes reported to the metrics recorder.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// RunStore is the part of the Record Store the engine needs. Stores that also
// implement store.ExecutionRecorder get receipts and counters written
// atomically.
type RunStore interface {
	store.WorkflowStore
	store.ExecutionStore
}

// Recorder receives engine metrics. *observability.Metrics implements it.
type Recorder interface {
	RecordWorkflowRun(trigger, outcome string, duration time.Duration)
	RecordActionFailure(actionType string)
	RecordTriggerPass(trigger, status string)
}

type nopRecorder struct{}

func (nopRecorder) RecordWorkflowRun(string, string, time.Duration) {}
func (nopRecorder) RecordActionFailure(string)                      {}
func (nopRecorder) RecordTriggerPass(string, string)                {}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.metrics = r
		}
	}
}

// WithClock overrides the clock used for execution timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine selects workflows for trigger events, evaluates their conditions,
// dispatches their actions and records the outcome.
//
// Runs are processed sequentially and to completion before a call returns.
// The engine does not serialize concurrent events itself; execution counters
// stay consistent because the store increments them atomically.
type Engine struct {
	store      RunStore
	dispatcher *Dispatcher
	logger     *zap.Logger
	metrics    Recorder
	now        func() time.Time
}

// NewEngine creates a workflow engine.
func NewEngine(records RunStore, dispatcher *Dispatcher, opts ...Option) *Engine {
	e := &Engine{
		store:      records,
		dispatcher: dispatcher,
		logger:     zap.NewNop(),
		metrics:    nopRecorder{},
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteForTrigger runs every active workflow subscribed to trigger against
// payload and returns one result per workflow whose conditions matched.
//
// Only a failure to select workflows is returned as an error. Action and
// bookkeeping failures of one workflow are reported in its result and never
// stop the remaining workflows.
func (e *Engine) ExecuteForTrigger(ctx context.Context, trigger model.TriggerType, payload model.Payload) ([]model.RunResult, error) {
	ctx, span := observability.StartSpan(ctx, "workflow.trigger",
		observability.AttrTrigger.String(string(trigger)),
	)
	logger := observability.RequestLogger(ctx, e.logger)

	// 1. Select active workflows for the trigger.
	workflows, err := e.store.ListActiveWorkflows(ctx, trigger)
	if err != nil {
		logger.Error("select workflows failed", zap.String("trigger", string(trigger)), zap.Error(err))
		e.metrics.RecordTriggerPass(string(trigger), "error")
		err = fmt.Errorf("%w: %w", model.NewStoreUnavailableError("workflow selection failed"), err)
		observability.EndSpanWithError(span, err)
		return nil, err
	}

	// 2. Run each candidate; skipped runs are not reported.
	results := make([]model.RunResult, 0, len(workflows))
	for _, wf := range workflows {
		res := e.run(ctx, wf, trigger, payload)
		if res.Skipped {
			continue
		}
		results = append(results, res)
	}

	logger.Info("trigger processed",
		zap.String("trigger", string(trigger)),
		zap.Int("candidates", len(workflows)),
		zap.Int("executed", len(results)),
	)
	e.metrics.RecordTriggerPass(string(trigger), "ok")
	span.End()
	return results, nil
}

// ExecuteWorkflow runs one workflow regardless of its trigger type or status
// and reports whether it executed successfully. Unmatched conditions report
// false without recording anything.
func (e *Engine) ExecuteWorkflow(ctx context.Context, workflowID string, payload model.Payload) (bool, error) {
	res, err := e.RunWorkflow(ctx, workflowID, payload)
	if err != nil {
		return false, err
	}
	return res.Success, nil
}

// RunWorkflow is ExecuteWorkflow with the full result.
func (e *Engine) RunWorkflow(ctx context.Context, workflowID string, payload model.Payload) (model.RunResult, error) {
	wf, err := e.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return model.RunResult{}, err
	}
	return e.Run(ctx, wf, payload), nil
}

// Run executes an already loaded workflow as a manual run.
func (e *Engine) Run(ctx context.Context, wf model.Workflow, payload model.Payload) model.RunResult {
	return e.run(ctx, wf, model.TriggerManual, payload)
}

func (e *Engine) run(ctx context.Context, wf model.Workflow, trigger model.TriggerType, payload model.Payload) model.RunResult {
	started := time.Now()
	// A started run always finishes and leaves its receipt, even when the
	// caller's deadline passes or the client goes away.
	ctx = context.WithoutCancel(ctx)
	ctx, span := observability.StartSpan(ctx, "workflow.run",
		observability.WorkflowRunAttributes(wf.ID, string(trigger),
			model.SubjectFrom(ctx), TargetApplicationID(payload))...,
	)
	defer span.End()
	logger := observability.RequestLogger(ctx, e.logger).With(
		zap.String("workflow_id", wf.ID),
		zap.String("trigger", string(trigger)),
	)

	// 1. Evaluate conditions.
	if !EvaluateConditions(wf.Conditions, payload) {
		logger.Debug("workflow skipped, conditions not met")
		span.SetAttributes(observability.AttrOutcome.String(OutcomeSkipped))
		e.metrics.RecordWorkflowRun(string(trigger), OutcomeSkipped, time.Since(started))
		return model.RunResult{WorkflowID: wf.ID, Skipped: true}
	}

	// 2. Dispatch actions in order; a failed action never blocks the next.
	var failures []string
	for i, action := range wf.Actions {
		if err := e.dispatcher.Dispatch(ctx, wf, action, payload); err != nil {
			failures = append(failures, fmt.Sprintf("action %d (%s): %v", i+1, action.Type, err))
			e.metrics.RecordActionFailure(string(action.Type))
			observability.RecordActionError(span, i, string(action.Type), err)
			logger.Warn("workflow action failed",
				zap.Int("action_index", i),
				zap.String("action_type", string(action.Type)),
				zap.Error(err),
			)
		}
	}

	// 3. Record the receipt and bump the execution counter.
	exec := model.WorkflowExecution{
		WorkflowID:  wf.ID,
		ExecutedAt:  e.now(),
		Success:     len(failures) == 0,
		TriggerData: payload.Clone(),
		Error:       strings.Join(failures, "; "),
	}
	saved, err := e.record(ctx, exec)

	res := model.RunResult{
		WorkflowID:  wf.ID,
		ExecutionID: saved.ID,
		Success:     exec.Success,
		Error:       exec.Error,
	}
	if err != nil {
		logger.Error("record workflow execution failed", zap.Error(err))
		span.RecordError(err)
		res.Success = false
		res.Error = joinFailure(res.Error, "record execution: "+err.Error())
	}

	outcome := OutcomeSuccess
	if !res.Success {
		outcome = OutcomeFailure
	}
	span.SetAttributes(observability.AttrOutcome.String(outcome))
	e.metrics.RecordWorkflowRun(string(trigger), outcome, time.Since(started))
	logger.Info("workflow executed",
		zap.String("execution_id", res.ExecutionID),
		zap.Bool("success", res.Success),
		zap.Int("actions", len(wf.Actions)),
		zap.Int("failed_actions", len(failures)),
	)
	return res
}

func (e *Engine) record(ctx context.Context, exec model.WorkflowExecution) (model.WorkflowExecution, error) {
	if rec, ok := e.store.(store.ExecutionRecorder); ok {
		return rec.RecordExecution(ctx, exec)
	}
	saved, err := e.store.CreateExecution(ctx, exec)
	if err != nil {
		return model.WorkflowExecution{}, err
	}
	if err := e.store.IncrementExecutionCount(ctx, exec.WorkflowID, exec.ExecutedAt); err != nil {
		return saved, err
	}
	return saved, nil
}

func joinFailure(existing, msg string) string {
	if existing == "" {
		return msg
	}
	return existing + "; " + msg
}
