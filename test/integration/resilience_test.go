package integration

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/pitabwire/recruitflow/internal/notify"
	"github.com/pitabwire/recruitflow/internal/observability"
	"github.com/pitabwire/recruitflow/model"
)

type triggerResult struct {
	Runs []model.RunResult `json:"runs"`
}

func fireCreated(t *testing.T, h *TestHarness) model.RunResult {
	t.Helper()
	var resp triggerResult
	h.AssertJSON(t, h.POST("/api/v1/triggers/application_created", "event-bus", map[string]string{"candidateName": "Ada"}),
		http.StatusOK, &resp)
	if len(resp.Runs) != 1 {
		t.Fatalf("runs = %s, want 1", FormatJSON(resp.Runs))
	}
	return resp.Runs[0]
}

func TestResilience_BreakerOpensOnNotificationOutage(t *testing.T) {
	h := NewTestHarness(t, WithBreaker(2, time.Minute))
	wf := activateTemplate(t, h, "welcome-applicants")

	// Publishing on a closed connection fails immediately.
	h.Conn.Close()

	for i := 0; i < 2; i++ {
		run := fireCreated(t, h)
		if run.Success || !strings.Contains(run.Error, "deliver notification") {
			t.Fatalf("run %d = %+v, want delivery failure", i, run)
		}
	}
	if h.Notifier.State() != notify.BreakerOpen {
		t.Fatalf("breaker = %s, want open", h.Notifier.State())
	}

	// Deliveries now short-circuit but the run is still recorded.
	run := fireCreated(t, h)
	if run.Success || !strings.Contains(run.Error, "circuit open") {
		t.Errorf("run = %+v, want short-circuited delivery", run)
	}
	if run.ExecutionID == "" {
		t.Error("short-circuited run has no receipt")
	}

	var history struct {
		Data []model.WorkflowExecution `json:"data"`
	}
	h.AssertJSON(t, h.GET("/api/v1/workflows/"+wf.ID+"/executions", recruiter), http.StatusOK, &history)
	if len(history.Data) != 3 {
		t.Fatalf("history = %d receipts, want 3", len(history.Data))
	}
	for _, exec := range history.Data {
		if exec.Success || exec.Error == "" {
			t.Errorf("receipt %s = success %v, error %q", exec.ID, exec.Success, exec.Error)
		}
	}

	var ready observability.ReadinessResponse
	h.AssertJSON(t, h.GET("/ready", ""), http.StatusServiceUnavailable, &ready)
	if ready.Checks["notifier"].Status != "error" {
		t.Errorf("notifier = %+v, want error", ready.Checks["notifier"])
	}
}

func TestResilience_OtherActionsSurviveNotificationOutage(t *testing.T) {
	h := NewTestHarness(t, WithBreaker(1, time.Minute))
	activateTemplate(t, h, "auto-advance-high-scores")
	h.Conn.Close()

	var job model.Job
	h.AssertJSON(t, h.POST("/api/v1/jobs", recruiter, map[string]string{"title": "SRE"}), http.StatusCreated, &job)
	var cand model.Candidate
	h.AssertJSON(t, h.POST("/api/v1/candidates", recruiter, map[string]string{"name": "Lin", "email": "lin@example.com"}),
		http.StatusCreated, &cand)
	var submitted struct {
		Application model.Application `json:"application"`
	}
	h.AssertJSON(t, h.POST("/api/v1/applications", recruiter, map[string]string{"jobId": job.ID, "candidateId": cand.ID}),
		http.StatusCreated, &submitted)

	var scored struct {
		Application model.Application `json:"application"`
		Runs        []model.RunResult `json:"runs"`
	}
	h.AssertJSON(t, h.POST("/api/v1/applications/"+submitted.Application.ID+"/score", recruiter, map[string]float64{"score": 97}),
		http.StatusOK, &scored)

	if scored.Application.Status != model.ApplicationReviewing {
		t.Errorf("status = %q, want reviewing despite the failed notification", scored.Application.Status)
	}
	if len(scored.Runs) != 1 || scored.Runs[0].Success {
		t.Errorf("runs = %s, want one failed run", FormatJSON(scored.Runs))
	}
	if !strings.HasPrefix(scored.Runs[0].Error, "action 2 (send_notification)") {
		t.Errorf("error = %q, want the second action named", scored.Runs[0].Error)
	}
}
