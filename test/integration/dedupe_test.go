package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/pitabwire/recruitflow/internal/idempotency"
	"github.com/pitabwire/recruitflow/internal/transport"
	"github.com/pitabwire/recruitflow/model"
)

func TestDedupe_DuplicateAcrossReplicas(t *testing.T) {
	mr := miniredis.RunT(t)
	broker := RunNATSServer(t)
	replicaA := NewTestHarness(t, WithRedis(mr), WithNATS(broker))
	replicaB := NewTestHarness(t, WithRedis(mr), WithNATS(broker))

	activateTemplate(t, replicaA, "welcome-applicants")
	headers := map[string]string{transport.HeaderIdempotencyKey: "evt-42"}
	payload := map[string]string{"applicationId": "a-1", "candidateName": "Ada"}

	var first struct {
		Runs []model.RunResult `json:"runs"`
	}
	replicaA.AssertJSON(t, replicaA.Do(http.MethodPost, "/api/v1/triggers/application_created", "event-bus", payload, headers),
		http.StatusOK, &first)
	if len(first.Runs) != 1 {
		t.Fatalf("first delivery runs = %s", FormatJSON(first.Runs))
	}

	// The second replica has its own record store but shares Redis.
	var dup struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	replicaB.AssertJSON(t, replicaB.Do(http.MethodPost, "/api/v1/triggers/application_created", "event-bus", payload, headers),
		http.StatusConflict, &dup)
	if dup.Error.Code != model.ErrDuplicateEvent {
		t.Errorf("code = %q, want %q", dup.Error.Code, model.ErrDuplicateEvent)
	}

	if !mr.Exists(idempotency.FormatKey("application_created", "evt-42")) {
		t.Error("claimed key missing from redis")
	}
}

func TestDedupe_KeysAreScopedPerTrigger(t *testing.T) {
	h := NewTestHarness(t)
	headers := map[string]string{transport.HeaderIdempotencyKey: "evt-7"}

	h.AssertStatus(t, h.Do(http.MethodPost, "/api/v1/triggers/application_created", "event-bus", map[string]any{}, headers),
		http.StatusOK)
	h.AssertStatus(t, h.Do(http.MethodPost, "/api/v1/triggers/ai_score_calculated", "event-bus", map[string]any{}, headers),
		http.StatusOK)
	h.AssertStatus(t, h.Do(http.MethodPost, "/api/v1/triggers/application_created", "event-bus", map[string]any{}, headers),
		http.StatusConflict)
}

func TestDedupe_KeyExpires(t *testing.T) {
	h := NewTestHarness(t)
	headers := map[string]string{transport.HeaderIdempotencyKey: "evt-ttl"}

	h.AssertStatus(t, h.Do(http.MethodPost, "/api/v1/triggers/manual", "event-bus", map[string]any{}, headers),
		http.StatusOK)
	h.Redis.FastForward(25 * time.Hour)
	h.AssertStatus(t, h.Do(http.MethodPost, "/api/v1/triggers/manual", "event-bus", map[string]any{}, headers),
		http.StatusOK)
}

func TestDedupe_RedisOutageIsUnavailable(t *testing.T) {
	h := NewTestHarness(t)
	h.Redis.Close()

	var resp struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	h.AssertJSON(t, h.Do(http.MethodPost, "/api/v1/triggers/application_created", "event-bus", map[string]any{},
		map[string]string{transport.HeaderIdempotencyKey: "evt-down"}),
		http.StatusServiceUnavailable, &resp)
	if resp.Error.Code != model.ErrStoreUnavailable {
		t.Errorf("code = %q, want %q", resp.Error.Code, model.ErrStoreUnavailable)
	}
}
