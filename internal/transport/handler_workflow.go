package transport

import (
	"bytes"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/recruitflow/internal/store"
	"github.com/pitabwire/recruitflow/internal/workflow"
	"github.com/pitabwire/recruitflow/model"
)

func handleWorkflowList(m *workflow.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())
		q := r.URL.Query()
		filters := store.WorkflowFilters{
			Status:  model.WorkflowStatus(q.Get("status")),
			Trigger: model.TriggerType(q.Get("trigger")),
			Limit:   queryInt(r, "limit", 0),
			Offset:  queryInt(r, "offset", 0),
		}

		workflows, err := m.List(r.Context(), rctx.SubjectID, filters)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": workflows})
	}
}

func handleWorkflowCreate(m *workflow.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())

		var draft model.WorkflowDraft
		if err := decodeJSON(r, &draft); err != nil {
			WriteError(w, err)
			return
		}

		wf, err := m.Create(r.Context(), rctx.SubjectID, draft)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, wf)
	}
}

func handleWorkflowGet(m *workflow.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())

		wf, err := m.Get(r.Context(), rctx.SubjectID, chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, wf)
	}
}

func handleWorkflowUpdate(m *workflow.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())

		var draft model.WorkflowDraft
		if err := decodeJSON(r, &draft); err != nil {
			WriteError(w, err)
			return
		}

		wf, err := m.Update(r.Context(), rctx.SubjectID, chi.URLParam(r, "id"), draft)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, wf)
	}
}

func handleWorkflowDelete(m *workflow.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())

		if err := m.Delete(r.Context(), rctx.SubjectID, chi.URLParam(r, "id")); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleWorkflowStatus(m *workflow.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())

		var body struct {
			Status model.WorkflowStatus `json:"status"`
		}
		if err := decodeJSON(r, &body); err != nil {
			WriteError(w, err)
			return
		}

		wf, err := m.SetStatus(r.Context(), rctx.SubjectID, chi.URLParam(r, "id"), body.Status)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, wf)
	}
}

// handleWorkflowRun test-runs one workflow. The request body is the trigger
// payload; an empty body runs against an empty payload.
func handleWorkflowRun(m *workflow.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())

		payload, err := readPayload(r)
		if err != nil {
			WriteError(w, err)
			return
		}

		result, err := m.Run(r.Context(), rctx.SubjectID, chi.URLParam(r, "id"), payload)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, result)
	}
}

func handleWorkflowExecutions(m *workflow.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())

		history, err := m.History(r.Context(), rctx.SubjectID, chi.URLParam(r, "id"), queryInt(r, "limit", 0))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": history})
	}
}

func handleTemplateList(m *workflow.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{"data": m.Templates()})
	}
}

func handleTemplateInstantiate(m *workflow.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.MustRequestContext(r.Context())

		wf, err := m.Instantiate(r.Context(), rctx.SubjectID, chi.URLParam(r, "templateId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, wf)
	}
}

// readPayload parses the request body as a trigger payload.
func readPayload(r *http.Request) (model.Payload, error) {
	raw, err := readBody(r)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return model.Payload{}, nil
	}
	payload, err := model.PayloadFromJSON(raw)
	if err != nil {
		return nil, model.NewBadRequestError(err.Error())
	}
	return payload, nil
}

func notFound(what string) error {
	return model.NewNotFoundError(what + " not found")
}
