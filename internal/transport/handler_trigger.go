package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/recruitflow/internal/idempotency"
	"github.com/pitabwire/recruitflow/internal/observability"
	"github.com/pitabwire/recruitflow/internal/recruiting"
	"github.com/pitabwire/recruitflow/model"
)

const defaultIdempotencyTTL = 24 * time.Hour

// triggerHandler accepts externally produced trigger events.
type triggerHandler struct {
	runner  recruiting.TriggerRunner
	idem    idempotency.Store
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger
}

type triggerResponse struct {
	Trigger model.TriggerType `json:"trigger"`
	Runs    []model.RunResult `json:"runs"`
}

// handleTrigger runs every active workflow subscribed to the trigger type in
// the path against the JSON body. A repeated X-Idempotency-Key for the same
// trigger within the TTL is rejected with DUPLICATE_EVENT before anything
// runs.
func (h *triggerHandler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.RequestLogger(ctx, h.logger)

	// 1. Validate the trigger type.
	trigger := model.TriggerType(chi.URLParam(r, "triggerType"))
	if !trigger.Valid() {
		WriteValidationError(w, []model.FieldError{{
			Field:   "triggerType",
			Code:    "INVALID",
			Message: fmt.Sprintf("unknown trigger type %q", trigger),
		}})
		return
	}

	// 2. Parse the payload.
	payload, err := readPayload(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	if ce := logger.Check(zap.DebugLevel, "trigger payload"); ce != nil {
		ce.Write(
			zap.String("trigger", string(trigger)),
			zap.Any("payload", observability.RedactBody(payload.Native(), nil)),
		)
	}

	// 3. Claim the idempotency key.
	key, err := h.claim(ctx, trigger, r.Header.Get(HeaderIdempotencyKey))
	if err != nil {
		if model.CodeOf(err) == model.ErrDuplicateEvent && h.metrics != nil {
			h.metrics.RecordDuplicateEvent(string(trigger))
		}
		WriteError(w, err)
		return
	}

	// 4. Run the subscribed workflows. A failed selection releases the key
	// so the caller can retry.
	runs, err := h.runner.ExecuteForTrigger(ctx, trigger, payload)
	if err != nil {
		if key != "" {
			if relErr := h.idem.Release(context.WithoutCancel(ctx), key); relErr != nil {
				logger.Warn("idempotency key release failed", zap.String("key", key), zap.Error(relErr))
			}
		}
		logger.Error("trigger pass failed", zap.String("trigger", string(trigger)), zap.Error(err))
		WriteError(w, err)
		return
	}
	if runs == nil {
		runs = []model.RunResult{}
	}

	WriteJSON(w, http.StatusOK, triggerResponse{Trigger: trigger, Runs: runs})
}

// claim reserves the idempotency key for trigger and returns the stored key,
// or "" when de-duplication does not apply.
func (h *triggerHandler) claim(ctx context.Context, trigger model.TriggerType, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if h.idem == nil || raw == "" {
		return "", nil
	}
	ttl := h.ttl
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}

	key := idempotency.FormatKey(string(trigger), raw)
	claimed, err := h.idem.Claim(ctx, key, ttl)
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.NewStoreUnavailableError("idempotency store unavailable"), err)
	}
	if !claimed {
		return "", model.NewDuplicateEventError(raw)
	}
	return key, nil
}
