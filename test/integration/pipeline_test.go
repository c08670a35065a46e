package integration

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pitabwire/recruitflow/internal/recruiting"
	"github.com/pitabwire/recruitflow/model"
)

const recruiter = "recruiter-1"

// activateTemplate instantiates a catalog template and activates it.
func activateTemplate(t *testing.T, h *TestHarness, templateID string) model.Workflow {
	t.Helper()
	var wf model.Workflow
	h.AssertJSON(t, h.POST("/api/v1/workflow-templates/"+templateID+"/instantiate", recruiter, nil),
		http.StatusCreated, &wf)
	h.AssertJSON(t, h.POST("/api/v1/workflows/"+wf.ID+"/status", recruiter, map[string]string{"status": "active"}),
		http.StatusOK, &wf)
	return wf
}

func receive(t *testing.T, msgs <-chan *nats.Msg) model.Notification {
	t.Helper()
	select {
	case msg := <-msgs:
		var n model.Notification
		if err := json.Unmarshal(msg.Data, &n); err != nil {
			t.Fatalf("decode notification: %v", err)
		}
		return n
	case <-time.After(5 * time.Second):
		t.Fatal("no notification received")
	}
	return model.Notification{}
}

func TestPipeline_ApplicationLifecycle(t *testing.T) {
	h := NewTestHarness(t)

	welcome := activateTemplate(t, h, "welcome-applicants")
	advance := activateTemplate(t, h, "auto-advance-high-scores")
	interview := activateTemplate(t, h, "interview-notice")

	candidateInbox := h.Subscribe("candidate")
	recruiterInbox := h.Subscribe("recruiter")

	var job model.Job
	h.AssertJSON(t, h.POST("/api/v1/jobs", recruiter, map[string]string{"title": "Platform Engineer"}),
		http.StatusCreated, &job)
	var cand model.Candidate
	h.AssertJSON(t, h.POST("/api/v1/candidates", recruiter, map[string]string{"name": "Ada Lovelace", "email": "ada@example.com"}),
		http.StatusCreated, &cand)

	// 1. Submission fires application_created.
	var submitted recruiting.Outcome
	h.AssertJSON(t, h.POST("/api/v1/applications", recruiter, map[string]string{"jobId": job.ID, "candidateId": cand.ID}),
		http.StatusCreated, &submitted)
	if len(submitted.Runs) != 1 || submitted.Runs[0].WorkflowID != welcome.ID || !submitted.Runs[0].Success {
		t.Fatalf("submission runs = %s", FormatJSON(submitted.Runs))
	}
	note := receive(t, candidateInbox)
	if !strings.Contains(note.Message, "Ada Lovelace") || !strings.Contains(note.Message, "Platform Engineer") {
		t.Errorf("welcome message = %q", note.Message)
	}
	appID := submitted.Application.ID
	if note.ApplicationID != appID {
		t.Errorf("notification applicationId = %q, want %q", note.ApplicationID, appID)
	}

	// 2. A high score advances the application and tells the recruiter.
	var scored recruiting.Outcome
	h.AssertJSON(t, h.POST("/api/v1/applications/"+appID+"/score", recruiter, map[string]float64{"score": 92}),
		http.StatusOK, &scored)
	if scored.Application.Status != model.ApplicationReviewing {
		t.Errorf("status after score = %q, want reviewing", scored.Application.Status)
	}
	if len(scored.Runs) != 1 || scored.Runs[0].WorkflowID != advance.ID {
		t.Errorf("score runs = %s", FormatJSON(scored.Runs))
	}
	if msg := receive(t, recruiterInbox).Message; !strings.Contains(msg, "Ada Lovelace") {
		t.Errorf("recruiter message = %q", msg)
	}

	// 3. Moving to interviewing sends the interview notice.
	var moved recruiting.Outcome
	h.AssertJSON(t, h.POST("/api/v1/applications/"+appID+"/status", recruiter, map[string]string{"status": "interviewing"}),
		http.StatusOK, &moved)
	if len(moved.Runs) != 1 || moved.Runs[0].WorkflowID != interview.ID {
		t.Errorf("status change runs = %s", FormatJSON(moved.Runs))
	}
	if msg := receive(t, candidateInbox).Message; !strings.Contains(msg, "interview") {
		t.Errorf("interview message = %q", msg)
	}

	// 4. Every run left a receipt and bumped its counter.
	for _, wf := range []model.Workflow{welcome, advance, interview} {
		var history struct {
			Data []model.WorkflowExecution `json:"data"`
		}
		h.AssertJSON(t, h.GET("/api/v1/workflows/"+wf.ID+"/executions", recruiter), http.StatusOK, &history)
		if len(history.Data) != 1 || !history.Data[0].Success {
			t.Errorf("%s history = %s", wf.Name, FormatJSON(history.Data))
		}

		var got model.Workflow
		h.AssertJSON(t, h.GET("/api/v1/workflows/"+wf.ID, recruiter), http.StatusOK, &got)
		if got.ExecutionCount != 1 || got.LastExecutedAt == nil {
			t.Errorf("%s count = %d, lastExecutedAt = %v", wf.Name, got.ExecutionCount, got.LastExecutedAt)
		}
	}
}

func TestPipeline_LowScoreIsRejectedWithNote(t *testing.T) {
	h := NewTestHarness(t)
	activateTemplate(t, h, "reject-low-scores")
	activateTemplate(t, h, "auto-advance-high-scores")

	var job model.Job
	h.AssertJSON(t, h.POST("/api/v1/jobs", recruiter, map[string]string{"title": "Analyst"}), http.StatusCreated, &job)
	var cand model.Candidate
	h.AssertJSON(t, h.POST("/api/v1/candidates", recruiter, map[string]string{"name": "Bob", "email": "bob@example.com"}),
		http.StatusCreated, &cand)
	var submitted recruiting.Outcome
	h.AssertJSON(t, h.POST("/api/v1/applications", recruiter, map[string]string{"jobId": job.ID, "candidateId": cand.ID}),
		http.StatusCreated, &submitted)

	var scored recruiting.Outcome
	h.AssertJSON(t, h.POST("/api/v1/applications/"+submitted.Application.ID+"/score", recruiter, map[string]float64{"score": 31}),
		http.StatusOK, &scored)

	if scored.Application.Status != model.ApplicationRejected {
		t.Errorf("status = %q, want rejected", scored.Application.Status)
	}
	if !strings.Contains(scored.Application.Notes, "31") {
		t.Errorf("notes = %q, want the score recorded", scored.Application.Notes)
	}
	if len(scored.Runs) != 1 {
		t.Errorf("runs = %s, want only the rejection workflow", FormatJSON(scored.Runs))
	}
}

func TestPipeline_PausedWorkflowDoesNotFire(t *testing.T) {
	h := NewTestHarness(t)
	wf := activateTemplate(t, h, "welcome-applicants")
	h.AssertStatus(t, h.POST("/api/v1/workflows/"+wf.ID+"/status", recruiter, map[string]string{"status": "paused"}),
		http.StatusOK)

	var resp struct {
		Runs []model.RunResult `json:"runs"`
	}
	h.AssertJSON(t, h.POST("/api/v1/triggers/application_created", "event-bus", map[string]string{"applicationId": "a-1"}),
		http.StatusOK, &resp)
	if len(resp.Runs) != 0 {
		t.Errorf("runs = %s, want none", FormatJSON(resp.Runs))
	}
}
