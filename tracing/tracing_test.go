package tracing

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/Keksclan/rawrsync/contextx"
	"github.com/Keksclan/rawrsync/transport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// newTestConfig returns a TracingConfig backed by an in-memory span recorder.
func newTestConfig(t *testing.T) (*TracingConfig, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })
	return &TracingConfig{
		TracerProvider: tp,
		Propagators:    propagation.TraceContext{},
	}, rec
}

func TestMiddleware_CreatesClientSpan(t *testing.T) {
	cfg, rec := newTestConfig(t)

	var traceparent string
	h := Middleware(cfg)(func(_ context.Context, req *transport.Request) (*transport.Response, error) {
		traceparent = req.Header.Get("traceparent")
		return &transport.Response{Status: http.StatusOK}, nil
	})

	ctx := contextx.WithRequestID(t.Context(), "req-1")
	req := &transport.Request{Method: http.MethodGet, Path: "/api/projects/7"}
	if _, err := h(ctx, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name() != "GET /api/projects/7" {
		t.Fatalf("expected span name %q, got %q", "GET /api/projects/7", span.Name())
	}
	if span.SpanKind() != trace.SpanKindClient {
		t.Fatalf("expected SpanKindClient, got %v", span.SpanKind())
	}
	assertAttr(t, span.Attributes(), "http.request.method", "GET")
	assertAttr(t, span.Attributes(), "url.path", "/api/projects/7")
	assertAttr(t, span.Attributes(), "rawrsync.request_id", "req-1")

	if traceparent == "" {
		t.Fatal("trace context was not injected into the request headers")
	}
	if req.Header != nil {
		t.Fatal("caller's request must not be modified")
	}
}

func TestMiddleware_RecordsError(t *testing.T) {
	cfg, rec := newTestConfig(t)
	h := Middleware(cfg)(func(_ context.Context, req *transport.Request) (*transport.Response, error) {
		return nil, &transport.TransportError{Status: http.StatusNotFound, Message: "not found", Method: req.Method, Path: req.Path}
	})

	if _, err := h(t.Context(), &transport.Request{Method: http.MethodGet, Path: "/api/tasks/9"}); err == nil {
		t.Fatal("expected error")
	}

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Fatalf("expected Error status, got %v", spans[0].Status().Code)
	}
	found := false
	for _, a := range spans[0].Attributes() {
		if a.Key == "http.response.status_code" && a.Value.AsInt64() == http.StatusNotFound {
			found = true
		}
	}
	if !found {
		t.Fatal("status code attribute missing")
	}
}

func TestMiddleware_NilConfig_Passthrough(t *testing.T) {
	h := Middleware(nil)(func(_ context.Context, req *transport.Request) (*transport.Response, error) {
		if req.Header.Get("traceparent") != "" {
			t.Error("nil config must not inject headers")
		}
		return &transport.Response{Status: http.StatusOK}, nil
	})

	if _, err := h(t.Context(), &transport.Request{Method: http.MethodGet, Path: "/"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStart_ParentsChildSpans(t *testing.T) {
	cfg, rec := newTestConfig(t)

	ctx, parent := cfg.Start(t.Context(), "query.fetch", attribute.String("rawrsync.key", "all-tasks"))
	h := Middleware(cfg)(func(context.Context, *transport.Request) (*transport.Response, error) {
		return &transport.Response{Status: http.StatusOK}, nil
	})
	_, _ = h(ctx, &transport.Request{Method: http.MethodGet, Path: "/api/tasks"})
	End(parent, nil)

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	child, root := spans[0], spans[1]
	if child.Parent().SpanID() != root.SpanContext().SpanID() {
		t.Fatal("request span should be a child of the fetch span")
	}
	assertAttr(t, root.Attributes(), "rawrsync.key", "all-tasks")
}

func TestEnd_RecordsError(t *testing.T) {
	cfg, rec := newTestConfig(t)
	_, span := cfg.Start(t.Context(), "mutation")
	End(span, errors.New("boom"))

	spans := rec.Ended()
	if len(spans) != 1 || spans[0].Status().Code != codes.Error {
		t.Fatalf("expected one errored span, got %v", spans)
	}
}

func TestNilConfig_StartIsSafe(t *testing.T) {
	var cfg *TracingConfig
	ctx, span := cfg.Start(t.Context(), "noop")
	End(span, nil)
	if ctx == nil {
		t.Fatal("expected a context")
	}
}

func assertAttr(t *testing.T, attrs []attribute.KeyValue, key, want string) {
	t.Helper()
	for _, a := range attrs {
		if string(a.Key) == key {
			if a.Value.AsString() != want {
				t.Errorf("attribute %q = %q, want %q", key, a.Value.AsString(), want)
			}
			return
		}
	}
	t.Errorf("attribute %q not found", key)
}
