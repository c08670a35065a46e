package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/recruitflow/internal/config"
	"github.com/pitabwire/recruitflow/internal/idempotency"
	"github.com/pitabwire/recruitflow/internal/observability"
	"github.com/pitabwire/recruitflow/internal/recruiting"
	"github.com/pitabwire/recruitflow/internal/workflow"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Workflows  *workflow.Manager
	Triggers   recruiting.TriggerRunner
	Recruiting *recruiting.Service

	// Idempotency de-duplicates trigger submissions; nil disables it.
	Idempotency idempotency.Store
	Readiness   observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// identity middleware.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(Recovery(logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	if deps.Config.Observability.Tracing.Enabled {
		r.Use(observability.TracingMiddleware)
	}
	if deps.Metrics != nil {
		r.Use(deps.Metrics.MetricsMiddleware)
	}

	r.Get("/health", observability.HandleHealth())
	r.Get("/ready", observability.HandleReady(deps.Readiness))
	if deps.Config.Observability.Metrics.Enabled {
		path := deps.Config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, observability.Handler())
	}

	triggers := &triggerHandler{
		runner:  deps.Triggers,
		idem:    deps.Idempotency,
		ttl:     deps.Config.Idempotency.TTL,
		metrics: deps.Metrics,
		logger:  logger,
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Identity)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))

		r.Route("/workflows", func(r chi.Router) {
			r.Get("/", handleWorkflowList(deps.Workflows))
			r.Post("/", handleWorkflowCreate(deps.Workflows))
			r.Get("/{id}", handleWorkflowGet(deps.Workflows))
			r.Put("/{id}", handleWorkflowUpdate(deps.Workflows))
			r.Delete("/{id}", handleWorkflowDelete(deps.Workflows))
			r.Post("/{id}/status", handleWorkflowStatus(deps.Workflows))
			r.Post("/{id}/run", handleWorkflowRun(deps.Workflows))
			r.Get("/{id}/executions", handleWorkflowExecutions(deps.Workflows))
		})

		r.Get("/workflow-templates", handleTemplateList(deps.Workflows))
		r.Post("/workflow-templates/{templateId}/instantiate", handleTemplateInstantiate(deps.Workflows))

		r.Post("/triggers/{triggerType}", triggers.handleTrigger)

		r.Get("/jobs", handleJobList(deps.Recruiting))
		r.Post("/jobs", handleJobCreate(deps.Recruiting))
		r.Get("/jobs/{id}", handleJobGet(deps.Recruiting))
		r.Post("/candidates", handleCandidateCreate(deps.Recruiting))
		r.Get("/candidates/{id}", handleCandidateGet(deps.Recruiting))
		r.Get("/applications", handleApplicationList(deps.Recruiting))
		r.Post("/applications", handleApplicationSubmit(deps.Recruiting))
		r.Get("/applications/{id}", handleApplicationGet(deps.Recruiting))
		r.Post("/applications/{id}/status", handleApplicationStatus(deps.Recruiting))
		r.Post("/applications/{id}/score", handleApplicationScore(deps.Recruiting))
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, notFound("route"))
	})

	return r
}
