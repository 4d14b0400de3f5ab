package client

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestRequestMetricsSuccessEvent(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)

	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	metrics, _ := newRequestMetrics(context.Background(), logger, http.MethodGet, routeTasks)
	metrics.start = metrics.start.Add(-20 * time.Millisecond)
	metrics.finish(outcome{attempts: 2, waited: time.Second, status: http.StatusOK})

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatalf("expected a log entry")
	}
	if entry.Level != log.DebugLevel || entry.Message != observabilityEvent {
		t.Fatalf("unexpected entry %v %q", entry.Level, entry.Message)
	}
	if entry.Data["severity_text"] != "INFO" || entry.Data["severity_number"] != 9 {
		t.Fatalf("unexpected severity %v/%v", entry.Data["severity_text"], entry.Data["severity_number"])
	}
	attrs, ok := entry.Data["attributes"].(map[string]any)
	if !ok {
		t.Fatalf("attributes not logged as map: %#v", entry.Data["attributes"])
	}
	if attrs[attrHTTPRoute] != routeTasks {
		t.Fatalf("unexpected route %#v", attrs[attrHTTPRoute])
	}
	if attrs[attrWaitedMillis] != 1000.0 {
		t.Fatalf("unexpected waited_ms %#v", attrs[attrWaitedMillis])
	}
	if traceID, ok := entry.Data["trace_id"].(string); !ok || traceID == "" {
		t.Fatalf("expected trace_id, got %#v", entry.Data["trace_id"])
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != requestSpanName {
		t.Fatalf("unexpected span name %s", span.Name)
	}
	if span.Status.Code != codes.Ok {
		t.Fatalf("expected Ok status, got %v", span.Status.Code)
	}
	spanAttrs := attributesToMap(span.Attributes)
	if n, ok := spanAttrs[attrAttempts].(int64); !ok || n != 2 {
		t.Fatalf("unexpected attempts %#v", spanAttrs[attrAttempts])
	}

	var event sdktrace.Event
	for _, ev := range span.Events {
		if ev.Name == observabilityEvent {
			event = ev
		}
	}
	if event.Name == "" {
		t.Fatalf("expected observability.event span event, got %#v", span.Events)
	}
	if got := attributesToMap(event.Attributes)["event.name"]; got != requestEventName {
		t.Fatalf("unexpected event.name %#v", got)
	}
}

func TestRequestMetricsServerErrorSetsSpanStatus(t *testing.T) {
	logger, hook := test.NewNullLogger()

	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	metrics, _ := newRequestMetrics(context.Background(), logger, http.MethodPost, routeTasks)
	err := &RequestFailedError{Status: http.StatusBadGateway, Message: "bad gateway"}
	metrics.finish(outcome{attempts: 4, waited: 7 * time.Second, status: http.StatusBadGateway, err: err})

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Level != log.ErrorLevel {
		t.Fatalf("expected error level entry, got %#v", entry)
	}
	if entry.Data["severity_text"] != "ERROR" {
		t.Fatalf("unexpected severity %v", entry.Data["severity_text"])
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Status.Code != codes.Error || span.Status.Description != "bad gateway" {
		t.Fatalf("unexpected status %#v", span.Status)
	}
	if retryable := attributesToMap(span.Attributes)[attrRetryable]; retryable != true {
		t.Fatalf("expected retryable attribute, got %#v", retryable)
	}
}

func TestSeverityForStatus(t *testing.T) {
	cases := []struct {
		status int
		err    error
		text   string
		number int
	}{
		{http.StatusOK, nil, "INFO", 9},
		{http.StatusNotFound, &RequestFailedError{Status: 404}, "WARN", 13},
		{http.StatusInternalServerError, &RequestFailedError{Status: 500}, "ERROR", 17},
		{0, &NetworkError{Err: errors.New("refused")}, "ERROR", 17},
	}
	for _, tc := range cases {
		text, number := severityForStatus(tc.status, tc.err)
		if text != tc.text || number != tc.number {
			t.Fatalf("status %d: got %s/%d, want %s/%d", tc.status, text, number, tc.text, tc.number)
		}
	}
}

func setupTestTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter, func()) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
	)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	return tp, exporter, func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown tracer provider: %v", err)
		}
		otel.SetTracerProvider(prev)
	}
}
