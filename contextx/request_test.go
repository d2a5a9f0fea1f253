package contextx

import "testing"

func TestRequestValues(t *testing.T) {
	ctx := WithRequestID(t.Context(), "3f0c2a9e-7d1b-4c55-9a61-0e2d8b7f4c10")
	ctx = WithGroup(ctx, "task-writes")

	if got := RequestIDFromContext(ctx); got != "3f0c2a9e-7d1b-4c55-9a61-0e2d8b7f4c10" {
		t.Fatalf("request id: got %q", got)
	}
	if got := GroupFromContext(ctx); got != "task-writes" {
		t.Fatalf("group: got %q, want %q", got, "task-writes")
	}
	if _, ok := ActorFromContext(ctx); ok {
		t.Fatal("request values must not look like an actor")
	}
}

func TestRequestValuesMissing(t *testing.T) {
	if got := RequestIDFromContext(t.Context()); got != "" {
		t.Fatalf("expected no request id, got %q", got)
	}
	if got := GroupFromContext(t.Context()); got != "" {
		t.Fatalf("expected no group, got %q", got)
	}
}

func TestWithGroupInnerWins(t *testing.T) {
	outer := WithGroup(t.Context(), "reads")
	inner := WithGroup(outer, "task-writes")

	if got := GroupFromContext(inner); got != "task-writes" {
		t.Fatalf("got %q, want %q", got, "task-writes")
	}
	if got := GroupFromContext(outer); got != "reads" {
		t.Fatalf("outer context changed: got %q", got)
	}
}
