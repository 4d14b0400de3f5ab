package client

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	requestSpanName    = "tasks.client.request"
	requestEventName   = "taskboard.client.request"
	requestEventDomain = "app"
	observabilityEvent = "observability.event"
	tracerName         = "taskboard/client"

	attrHTTPMethod     = "http.method"
	attrHTTPRoute      = "http.route"
	attrHTTPStatusCode = "http.status_code"
	attrAttempts       = "taskboard.request.attempts"
	attrWaitedMillis   = "taskboard.request.waited_ms"
	attrTotalMillis    = "taskboard.request.total_ms"
	attrRetryable      = "taskboard.request.retryable"
)

// requestMetrics records one logical request, including all of its retries,
// as a span plus a structured log event.
type requestMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time
	method string
	route  string
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, method, route string) (*requestMetrics, context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, requestSpanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(attrHTTPMethod, method),
			attribute.String(attrHTTPRoute, route),
		),
	)
	return &requestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
		method: method,
		route:  route,
	}, ctx
}

func (m *requestMetrics) finish(out outcome) {
	if m == nil {
		return
	}
	severityText, severityNumber := severityForStatus(out.status, out.err)

	attrs := []attribute.KeyValue{
		attribute.String(attrHTTPMethod, m.method),
		attribute.String(attrHTTPRoute, m.route),
		attribute.Int(attrHTTPStatusCode, out.status),
		attribute.Int(attrAttempts, out.attempts),
		attribute.Float64(attrWaitedMillis, durationToMillis(out.waited)),
		attribute.Float64(attrTotalMillis, durationToMillis(time.Since(m.start))),
	}
	if out.err != nil {
		attrs = append(attrs,
			attribute.Bool(attrRetryable, IsRetryable(out.err)),
			attribute.String("error.message", out.err.Error()),
		)
	}

	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", requestEventName),
		attribute.String("event.domain", requestEventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	}, attrs...)

	m.span.SetAttributes(attrs...)
	m.span.AddEvent(observabilityEvent, trace.WithAttributes(eventAttrs...))
	if out.err != nil {
		m.span.RecordError(out.err)
		m.span.SetStatus(codes.Error, out.err.Error())
	} else {
		m.span.SetStatus(codes.Ok, "")
	}
	spanCtx := m.span.SpanContext()
	m.span.End()

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      requestEventName,
		"event.domain":    requestEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attributesToMap(attrs),
	}
	if spanCtx.HasTraceID() {
		fields["trace_id"] = spanCtx.TraceID().String()
		fields["span_id"] = spanCtx.SpanID().String()
	}
	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error(observabilityEvent)
	case "WARN":
		entry.Warn(observabilityEvent)
	default:
		entry.Debug(observabilityEvent)
	}
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	case err != nil:
		return "ERROR", 17
	default:
		return "INFO", 9
	}
}

func attributesToMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
