package transport

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Keksclan/rawrsync/breaker"
	"github.com/Keksclan/rawrsync/contextx"
	"github.com/Keksclan/rawrsync/metrics"
	"github.com/Keksclan/rawrsync/policy"
	"github.com/Keksclan/rawrsync/ratelimit"
	"github.com/Keksclan/rawrsync/retry"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func okHandler(_ context.Context, _ *Request) (*Response, error) {
	return &Response{Status: http.StatusOK}, nil
}

func failing(status int) Handler {
	return func(_ context.Context, req *Request) (*Response, error) {
		return nil, &TransportError{Status: status, Message: http.StatusText(status), Method: req.Method, Path: req.Path}
	}
}

func get(path string) *Request { return &Request{Method: http.MethodGet, Path: path} }

func tag(name string, log *[]string) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (*Response, error) {
			*log = append(*log, name+":before")
			resp, err := next(ctx, req)
			*log = append(*log, name+":after")
			return resp, err
		}
	}
}

func TestChain_Order(t *testing.T) {
	var log []string
	h := Chain(tag("A", &log), tag("B", &log), tag("C", &log))(func(ctx context.Context, req *Request) (*Response, error) {
		log = append(log, "handler")
		return okHandler(ctx, req)
	})

	if _, err := h(t.Context(), get("/")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"A:before", "B:before", "C:before", "handler", "C:after", "B:after", "A:after"}
	if len(log) != len(expected) {
		t.Fatalf("got %v, want %v", log, expected)
	}
	for i := range expected {
		if log[i] != expected[i] {
			t.Fatalf("step %d: got %q, want %q", i, log[i], expected[i])
		}
	}
}

func TestWrap_NoMiddleware(t *testing.T) {
	d := Handler(okHandler)
	if _, err := Wrap(d).Do(t.Context(), get("/")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	var seen, header string
	h := RequestID()(func(ctx context.Context, req *Request) (*Response, error) {
		seen = contextx.RequestIDFromContext(ctx)
		header = req.Header.Get(RequestIDHeader)
		return okHandler(ctx, req)
	})

	req := get("/api/users")
	if _, err := h(t.Context(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen == "" || seen != header {
		t.Fatalf("context id %q and header %q should match and be non-empty", seen, header)
	}
	if req.Header != nil {
		t.Fatal("caller's request must not be modified")
	}
}

func TestRequestID_KeepsExisting(t *testing.T) {
	var header string
	h := RequestID()(func(ctx context.Context, req *Request) (*Response, error) {
		header = req.Header.Get(RequestIDHeader)
		return okHandler(ctx, req)
	})

	ctx := contextx.WithRequestID(t.Context(), "req-abc")
	if _, err := h(ctx, get("/")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if header != "req-abc" {
		t.Fatalf("got %q, want %q", header, "req-abc")
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery()(func(context.Context, *Request) (*Response, error) {
		panic("boom")
	})
	resp, err := h(t.Context(), get("/"))
	if !errors.Is(err, ErrPanic) {
		t.Fatalf("expected ErrPanic, got %v", err)
	}
	if resp != nil {
		t.Fatal("expected nil response")
	}
}

func TestPolicy_SetsGroupAndTimeout(t *testing.T) {
	r := policy.NewResolver(
		policy.Group("slow").
			Exact("POST /api/tasks/generate-priority").
			Policy(policy.Policy{Timeout: 50 * time.Millisecond}),
	)

	var group string
	var deadline time.Time
	h := Policy(r, 0)(func(ctx context.Context, req *Request) (*Response, error) {
		group = contextx.GroupFromContext(ctx)
		deadline, _ = ctx.Deadline()
		return okHandler(ctx, req)
	})

	if _, err := h(t.Context(), &Request{Method: http.MethodPost, Path: "/api/tasks/generate-priority"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if group != "slow" {
		t.Fatalf("got group %q, want %q", group, "slow")
	}
	if deadline.IsZero() || time.Until(deadline) > 50*time.Millisecond {
		t.Fatalf("expected a deadline within 50ms, got %v", deadline)
	}

	group = "unset"
	deadline = time.Time{}
	if _, err := h(t.Context(), get("/api/users")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if group != "" {
		t.Fatalf("unmatched route should carry no group, got %q", group)
	}
	if !deadline.IsZero() {
		t.Fatal("unmatched route without fallback should carry no deadline")
	}
}

func TestRateLimit_PerGroupOverridesGlobal(t *testing.T) {
	global := ratelimit.NewLimiter(1000, 100)
	r := policy.NewResolver(
		policy.Group("priority").
			Exact("POST /api/tasks/generate-priority").
			Policy(policy.Policy{RateLimit: &policy.RateLimitRule{Rate: 1, Window: time.Hour}}),
	)
	h := RateLimit(global, r)(okHandler)

	heavy := &Request{Method: http.MethodPost, Path: "/api/tasks/generate-priority"}
	if _, err := h(t.Context(), heavy); err != nil {
		t.Fatalf("first request: unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	if _, err := h(ctx, heavy); !errors.Is(err, ratelimit.ErrLimited) {
		t.Fatalf("expected ErrLimited, got %v", err)
	}

	// Other routes use the generous global limiter.
	for i := range 10 {
		if _, err := h(t.Context(), get("/api/users")); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}
	}
}

func TestRateLimit_NilGlobalIsUnlimited(t *testing.T) {
	h := RateLimit(nil, nil)(okHandler)
	for i := range 100 {
		if _, err := h(t.Context(), get("/")); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}
	}
}

func TestBreaker_OpensOnServerFaults(t *testing.T) {
	b := breaker.New(breaker.Config{FailureThreshold: 2, OpenTimeout: time.Hour, HalfOpenMaxSuccess: 1})
	h := Breaker(b)(failing(http.StatusBadGateway))

	for range 2 {
		_, _ = h(t.Context(), get("/api/tasks"))
	}
	_, err := h(t.Context(), get("/api/tasks"))
	if !errors.Is(err, breaker.ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
}

func TestBreaker_IgnoresClientErrors(t *testing.T) {
	b := breaker.New(breaker.Config{FailureThreshold: 1, OpenTimeout: time.Hour, HalfOpenMaxSuccess: 1})
	h := Breaker(b)(failing(http.StatusNotFound))

	for range 3 {
		_, err := h(t.Context(), get("/api/tasks/1"))
		if errors.Is(err, breaker.ErrOpen) {
			t.Fatal("4xx replies must not trip the breaker")
		}
	}
	if s := b.State(); s != breaker.Closed {
		t.Fatalf("got %v, want closed", s)
	}
}

func TestRetry_GetIsRetried(t *testing.T) {
	calls := 0
	h := Retry(retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, RetryStatuses: retry.DefaultRetryStatuses}, nil)(
		func(ctx context.Context, req *Request) (*Response, error) {
			calls++
			if calls < 3 {
				return failing(http.StatusServiceUnavailable)(ctx, req)
			}
			return okHandler(ctx, req)
		})

	if _, err := h(t.Context(), get("/api/tasks")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("got %d calls, want 3", calls)
	}
}

func TestRetry_WritesNeedPolicy(t *testing.T) {
	cfg := retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, RetryStatuses: retry.DefaultRetryStatuses}
	r := policy.NewResolver(
		policy.Group("idempotent-writes").
			Prefix("PUT /api/").
			Policy(policy.Policy{Retry: true}),
	)

	calls := 0
	h := Retry(cfg, r)(func(ctx context.Context, req *Request) (*Response, error) {
		calls++
		return failing(http.StatusServiceUnavailable)(ctx, req)
	})

	_, _ = h(t.Context(), &Request{Method: http.MethodPost, Path: "/api/tasks"})
	if calls != 1 {
		t.Fatalf("POST without retry policy: got %d calls, want 1", calls)
	}

	calls = 0
	_, _ = h(t.Context(), &Request{Method: http.MethodPut, Path: "/api/tasks"})
	if calls != 3 {
		t.Fatalf("PUT with retry policy: got %d calls, want 3", calls)
	}
}

func TestMetrics_RecordsRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		t.Fatalf("metrics.New: %v", err)
	}

	h := Metrics(m, nil)(failing(http.StatusInternalServerError))
	ctx := contextx.WithGroup(t.Context(), "tasks")
	_, _ = h(ctx, get("/api/tasks"))

	if n := testutil.CollectAndCount(reg, "rawrsync_transport_request_duration_seconds"); n != 1 {
		t.Fatalf("got %d series, want 1", n)
	}
}

func TestLogging_RecordsActorAndFailures(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := contextx.WithActor(t.Context(), contextx.Actor{UserID: 42})
	if _, err := Logging(l, nil)(okHandler)(ctx, get("/api/tasks")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := Logging(l, nil)(failing(http.StatusNotFound))(t.Context(), get("/api/tasks/9")); err == nil {
		t.Fatal("expected error")
	}

	out := buf.String()
	for _, want := range []string{"transport: request done", "user_id=42", "status=200", "level=WARN", "path=/api/tasks/9"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %q:\n%s", want, out)
		}
	}
}

// slowHandler advances clk by d before answering.
func slowHandler(clk *clockwork.FakeClock, d time.Duration) Handler {
	return func(_ context.Context, _ *Request) (*Response, error) {
		clk.Advance(d)
		return &Response{Status: http.StatusOK}, nil
	}
}

func TestMetrics_UsesClock(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		t.Fatalf("metrics.New: %v", err)
	}
	clk := clockwork.NewFakeClock()

	h := Metrics(m, clk)(slowHandler(clk, 250*time.Millisecond))
	if _, err := h(t.Context(), get("/api/tasks")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "rawrsync_transport_request_duration_seconds" {
			continue
		}
		if got := mf.GetMetric()[0].GetHistogram().GetSampleSum(); got != 0.25 {
			t.Fatalf("got duration %v, want 0.25", got)
		}
		return
	}
	t.Fatal("request duration histogram not found")
}

func TestLogging_UsesClock(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	clk := clockwork.NewFakeClock()

	if _, err := Logging(l, clk)(slowHandler(clk, 1500*time.Millisecond))(t.Context(), get("/api/tasks")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out := buf.String(); !strings.Contains(out, "duration=1.5s") {
		t.Fatalf("log output missing fake duration:\n%s", out)
	}
}
