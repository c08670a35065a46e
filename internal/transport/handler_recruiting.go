package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/recruitflow/internal/recruiting"
	"github.com/pitabwire/recruitflow/internal/store"
	"github.com/pitabwire/recruitflow/model"
)

func handleJobList(svc *recruiting.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())

		jobs, err := svc.ListJobs(r.Context(), rctx.SubjectID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": jobs})
	}
}

func handleJobCreate(svc *recruiting.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())

		var job model.Job
		if err := decodeJSON(r, &job); err != nil {
			WriteError(w, err)
			return
		}

		created, err := svc.CreateJob(r.Context(), rctx.SubjectID, job)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, created)
	}
}

func handleJobGet(svc *recruiting.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := svc.GetJob(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, job)
	}
}

func handleCandidateCreate(svc *recruiting.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c model.Candidate
		if err := decodeJSON(r, &c); err != nil {
			WriteError(w, err)
			return
		}

		created, err := svc.CreateCandidate(r.Context(), c)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, created)
	}
}

func handleCandidateGet(svc *recruiting.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := svc.GetCandidate(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, c)
	}
}

func handleApplicationList(svc *recruiting.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filters := store.ApplicationFilters{
			JobID:       q.Get("jobId"),
			CandidateID: q.Get("candidateId"),
			Status:      model.ApplicationStatus(q.Get("status")),
			Limit:       queryInt(r, "limit", 0),
		}

		apps, err := svc.ListApplications(r.Context(), filters)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": apps})
	}
}

// handleApplicationSubmit creates an application and returns it together
// with the application_created workflow runs.
func handleApplicationSubmit(svc *recruiting.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			JobID       string `json:"jobId"`
			CandidateID string `json:"candidateId"`
		}
		if err := decodeJSON(r, &body); err != nil {
			WriteError(w, err)
			return
		}

		out, err := svc.SubmitApplication(r.Context(), body.JobID, body.CandidateID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, out)
	}
}

func handleApplicationGet(svc *recruiting.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		app, err := svc.GetApplication(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, app)
	}
}

func handleApplicationStatus(svc *recruiting.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Status model.ApplicationStatus `json:"status"`
		}
		if err := decodeJSON(r, &body); err != nil {
			WriteError(w, err)
			return
		}

		out, err := svc.ChangeStatus(r.Context(), chi.URLParam(r, "id"), body.Status)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, out)
	}
}

func handleApplicationScore(svc *recruiting.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Score *float64 `json:"score"`
		}
		if err := decodeJSON(r, &body); err != nil {
			WriteError(w, err)
			return
		}
		if body.Score == nil {
			WriteValidationError(w, []model.FieldError{{
				Field:   "score",
				Code:    "REQUIRED",
				Message: "score is required",
			}})
			return
		}

		out, err := svc.RecordAIScore(r.Context(), chi.URLParam(r, "id"), *body.Score)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, out)
	}
}
