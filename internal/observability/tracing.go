package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/pitabwire/recruitflow/internal/config"
)

const tracerName = "github.com/pitabwire/recruitflow"

// Span attribute keys shared by the engine and the HTTP layer.
var (
	AttrTrigger       = attribute.Key("recruitflow.trigger")
	AttrWorkflowID    = attribute.Key("recruitflow.workflow_id")
	AttrOutcome       = attribute.Key("recruitflow.outcome")
	AttrSubjectID     = attribute.Key("recruitflow.subject_id")
	AttrActionType    = attribute.Key("recruitflow.action_type")
	AttrApplicationID = attribute.Key("recruitflow.application_id")
	AttrActionIndex   = attribute.Key("recruitflow.action_index")
)

// InitTracing initializes the OpenTelemetry TracerProvider with the given
// configuration. It returns a shutdown function that flushes pending spans.
func InitTracing(ctx context.Context, cfg config.TracingConfig, serviceName, serviceVersion string) (shutdown func(context.Context) error, err error) {
	if !cfg.Enabled {
		// Return a no-op shutdown when tracing is disabled.
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tracing: create exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: create resource: %w", err)
	}

	sampler := newSampler(cfg)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	// Set global tracer provider and propagator.
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// newExporter creates a trace exporter based on configuration.
func newExporter(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp", "":
		opts := []otlptracegrpc.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
		}
		return otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported exporter: %q (supported: otlp, stdout)", cfg.Exporter)
	}
}

// newSampler builds a parent-based ratio sampler. The ratio defaults to 0.1
// and is clamped to 1.
func newSampler(cfg config.TracingConfig) sdktrace.Sampler {
	rate := cfg.SamplingRate
	if rate <= 0 {
		rate = 0.1
	}
	if rate > 1 {
		rate = 1.0
	}

	var base sdktrace.Sampler
	if rate >= 1.0 {
		base = sdktrace.AlwaysSample()
	} else {
		base = sdktrace.TraceIDRatioBased(rate)
	}

	// Error spans cannot be picked out at sampling time; forcing means
	// sampling everything the parent has not already decided on.
	if cfg.ForceSampleErrors {
		base = sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(base)
}

// Tracer returns the package-level tracer for creating spans.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan is a convenience wrapper around tracer.Start that uses the
// package-level tracer and converts attribute key-value pairs.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	opts := []trace.SpanStartOption{}
	if len(attrs) > 0 {
		opts = append(opts, trace.WithAttributes(attrs...))
	}
	return Tracer().Start(ctx, name, opts...)
}

// WorkflowRunAttributes describes one workflow run. Empty subject and
// application IDs are left off the span.
func WorkflowRunAttributes(workflowID, trigger, subjectID, applicationID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrWorkflowID.String(workflowID),
		AttrTrigger.String(trigger),
	}
	if subjectID != "" {
		attrs = append(attrs, AttrSubjectID.String(subjectID))
	}
	if applicationID != "" {
		attrs = append(attrs, AttrApplicationID.String(applicationID))
	}
	return attrs
}

// RecordActionError adds a failed action to span as an exception event. The
// span status is left alone: one failed action does not fail the run span.
func RecordActionError(span trace.Span, index int, actionType string, err error) {
	span.RecordError(err, trace.WithAttributes(
		AttrActionType.String(actionType),
		AttrActionIndex.Int(index),
	))
}

// AnnotateSubject tags the active span with the calling subject.
func AnnotateSubject(ctx context.Context, subjectID string) {
	if subjectID == "" {
		return
	}
	trace.SpanFromContext(ctx).SetAttributes(AttrSubjectID.String(subjectID))
}

// EndSpanWithError ends a span, setting its status to error if err is non-nil.
func EndSpanWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// TraceIDFromContext extracts the trace ID from the current span context.
// Returns an empty string if no active span is found.
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// SpanIDFromContext extracts the span ID from the current span context.
func SpanIDFromContext(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.HasSpanID() {
		return sc.SpanID().String()
	}
	return ""
}

// TracingMiddleware creates an HTTP middleware that starts a root span for
// each request, extracts W3C traceparent from inbound headers, and injects
// trace context into the response.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Extract trace context from inbound request headers.
		propagator := otel.GetTextMapPropagator()
		ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		spanName := "HTTP " + r.Method
		ctx, span := Tracer().Start(ctx, spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.URLPath(r.URL.Path),
			),
		)
		defer span.End()

		// Wrap writer to capture status code.
		sw := &tracingStatusWriter{ResponseWriter: w, status: http.StatusOK}

		// Inject trace context into response headers.
		propagator.Inject(ctx, propagation.HeaderCarrier(w.Header()))

		next.ServeHTTP(sw, r.WithContext(ctx))

		// The route pattern is only known once chi has matched the request.
		pattern := routePattern(r)
		span.SetName(r.Method + " " + pattern)
		span.SetAttributes(semconv.HTTPRoute(pattern), semconv.HTTPResponseStatusCode(sw.status))
		span.SetAttributes(routeAttributes(r, pattern)...)
		if sw.status >= 500 {
			span.SetStatus(codes.Error, http.StatusText(sw.status))
		}
	})
}

// routeAttributes lifts the trigger, workflow and application named in the
// matched route onto the request span.
func routeAttributes(r *http.Request, pattern string) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if trigger := chi.URLParam(r, "triggerType"); trigger != "" {
		attrs = append(attrs, AttrTrigger.String(trigger))
	}
	id := chi.URLParam(r, "id")
	if id == "" {
		return attrs
	}
	switch {
	case strings.HasPrefix(pattern, "/api/v1/workflows/"):
		attrs = append(attrs, AttrWorkflowID.String(id))
	case strings.HasPrefix(pattern, "/api/v1/applications/"):
		attrs = append(attrs, AttrApplicationID.String(id))
	}
	return attrs
}

// InjectTraceHeaders writes the current trace context into headers so it
// travels with outbound messages such as NATS notifications.
func InjectTraceHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}

// tracingStatusWriter wraps http.ResponseWriter to capture the status code.
type tracingStatusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *tracingStatusWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *tracingStatusWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}
