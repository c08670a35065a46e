// Package integration runs recruitflow end to end over a real HTTP server,
// with trigger de-duplication on Redis and notifications published to an
// in-process NATS server.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/pitabwire/recruitflow/internal/config"
	"github.com/pitabwire/recruitflow/internal/idempotency"
	"github.com/pitabwire/recruitflow/internal/notify"
	"github.com/pitabwire/recruitflow/internal/observability"
	"github.com/pitabwire/recruitflow/internal/recruiting"
	"github.com/pitabwire/recruitflow/internal/store"
	"github.com/pitabwire/recruitflow/internal/transport"
	"github.com/pitabwire/recruitflow/internal/workflow"
)

const subjectPrefix = "recruitflow.notifications"

// TestHarness is a fully wired recruitflow instance.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server

	Store    *store.MemoryStore
	Redis    *miniredis.Miniredis
	NATS     *natsserver.Server
	Conn     *nats.Conn
	Notifier *notify.Guarded
	Metrics  *observability.Metrics
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	redis            *miniredis.Miniredis
	nats             *natsserver.Server
	failureThreshold int
	cooldown         time.Duration
	handlerTimeout   time.Duration
}

// WithRedis shares an existing Redis between harnesses, the way replicas
// behind a load balancer share one de-duplication store.
func WithRedis(mr *miniredis.Miniredis) HarnessOption {
	return func(c *harnessConfig) { c.redis = mr }
}

// WithNATS shares an existing NATS server between harnesses.
func WithNATS(srv *natsserver.Server) HarnessOption {
	return func(c *harnessConfig) { c.nats = srv }
}

// WithBreaker sets the notification circuit breaker thresholds.
func WithBreaker(threshold int, cooldown time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.failureThreshold = threshold
		c.cooldown = cooldown
	}
}

// NewTestHarness starts a recruitflow server. Everything it starts is torn
// down when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		failureThreshold: 5,
		cooldown:         30 * time.Second,
		handlerTimeout:   10 * time.Second,
	}
	for _, opt := range opts {
		opt(hc)
	}
	if hc.redis == nil {
		hc.redis = miniredis.RunT(t)
	}
	if hc.nats == nil {
		hc.nats = RunNATSServer(t)
	}

	logger := zaptest.NewLogger(t)
	cfg := config.Defaults()
	cfg.Server.HandlerTimeout = hc.handlerTimeout
	cfg.Idempotency.Driver = config.DriverRedis
	cfg.Notify.Driver = config.DriverNATS

	// 1. Idempotency on Redis.
	client := redis.NewClient(&redis.Options{Addr: hc.redis.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	idem := idempotency.NewRedisStore(client)

	// 2. Notifications on NATS behind the breaker.
	// Connection callbacks fire asynchronously, possibly after the test ends.
	nc, err := notify.ConnectNATS(hc.nats.ClientURL(), zap.NewNop())
	if err != nil {
		t.Fatalf("connect nats: %v", err)
	}
	t.Cleanup(nc.Close)
	guarded := notify.NewGuarded(notify.NewNATSNotifier(nc, subjectPrefix), hc.failureThreshold, hc.cooldown, logger)

	// 3. Engine, manager and event producer.
	records := store.NewMemoryStore()
	metrics := observability.InitMetrics(prometheus.NewRegistry())
	catalog, err := workflow.NewCatalog(workflow.DefaultTemplates()...)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	engine := workflow.NewEngine(records, workflow.NewDispatcher(records, guarded, logger),
		workflow.WithLogger(logger),
		workflow.WithMetrics(metrics),
	)

	router := transport.NewRouter(transport.Dependencies{
		Config:      cfg,
		Logger:      logger,
		Metrics:     metrics,
		Workflows:   workflow.NewManager(records, engine, catalog, logger, cfg.Workflow.HistoryLimit),
		Triggers:    engine,
		Recruiting:  recruiting.NewService(records, engine, logger),
		Idempotency: idem,
		Readiness: observability.ReadinessChecks{
			Store:            records,
			IdempotencyStore: idem,
			Notifier:         guarded,
			TemplatesLoaded:  func() int { return len(catalog.List()) },
		},
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &TestHarness{
		t:        t,
		server:   srv,
		Store:    records,
		Redis:    hc.redis,
		NATS:     hc.nats,
		Conn:     nc,
		Notifier: guarded,
		Metrics:  metrics,
	}
}

// RunNATSServer starts an in-process NATS server on a random port.
func RunNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatalf("nats server: %v", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// Subscribe returns a channel receiving notifications for recipient.
func (h *TestHarness) Subscribe(recipient string) <-chan *nats.Msg {
	h.t.Helper()
	nc, err := nats.Connect(h.NATS.ClientURL())
	if err != nil {
		h.t.Fatalf("subscriber connect: %v", err)
	}
	h.t.Cleanup(nc.Close)

	msgs := make(chan *nats.Msg, 16)
	if _, err := nc.ChanSubscribe(subjectPrefix+"."+recipient, msgs); err != nil {
		h.t.Fatalf("subscribe: %v", err)
	}
	if err := nc.Flush(); err != nil {
		h.t.Fatalf("flush: %v", err)
	}
	return msgs
}

// --- HTTP client helpers ---

// GET performs a GET request as subject.
func (h *TestHarness) GET(path, subject string) *http.Response {
	return h.Do(http.MethodGet, path, subject, nil, nil)
}

// POST performs a POST request with a JSON body as subject.
func (h *TestHarness) POST(path, subject string, body any) *http.Response {
	return h.Do(http.MethodPost, path, subject, body, nil)
}

// Do performs a request. An empty subject sends no identity header.
func (h *TestHarness) Do(method, path, subject string, body any, headers map[string]string) *http.Response {
	h.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, h.server.URL+path, reader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if subject != "" {
		req.Header.Set(transport.HeaderSubjectID, subject)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.server.Client().Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	h.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// ParseJSON reads the response body into target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	body := h.ReadBody(resp)
	if err := json.Unmarshal(body, target); err != nil {
		h.t.Fatalf("parse JSON %q: %v", body, err)
	}
}

// ReadBody reads and returns the response body.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read body: %v", err)
	}
	return body
}

// AssertStatus checks the response status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("status = %d, want %d, body = %s", resp.StatusCode, expected, h.ReadBody(resp))
	}
}

// AssertJSON checks the status and parses the body into target.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	h.AssertStatus(t, resp, expected)
	h.ParseJSON(resp, target)
}

// FormatJSON renders v as indented JSON for test output.
func FormatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(data)
}
