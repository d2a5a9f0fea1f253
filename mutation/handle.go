package mutation

import (
	"context"
	"sync"
)

// Status is the lifecycle of a bound mutation.
type Status int

const (
	StatusIdle Status = iota
	StatusPending
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Handle binds a Mutation to an Engine and tracks the outcome of its most
// recent invocation, for callers that render a mutation's status.
type Handle[P, R any] struct {
	engine *Engine
	m      Mutation[P, R]

	mu      sync.Mutex
	seq     uint64
	pending int
	status  Status
	last    Result[R]
}

// Bind creates a Handle for m.
func Bind[P, R any](e *Engine, m Mutation[P, R]) *Handle[P, R] {
	return &Handle[P, R]{engine: e, m: m}
}

// Name returns the mutation name.
func (h *Handle[P, R]) Name() string { return h.m.Name }

// Run executes the mutation and blocks until it resolves.
func (h *Handle[P, R]) Run(ctx context.Context, payload P, cbs ...Callbacks[R]) Result[R] {
	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.pending++
	h.status = StatusPending
	h.mu.Unlock()

	res := Run(ctx, h.engine, h.m, payload, cbs...)

	h.mu.Lock()
	h.pending--
	// Only the latest invocation decides the reported outcome.
	if seq == h.seq {
		h.last = res
		if res.Err != nil {
			h.status = StatusError
		} else {
			h.status = StatusSuccess
		}
	}
	h.mu.Unlock()
	return res
}

// Mutate executes the mutation in the background. The channel receives
// exactly one Result.
func (h *Handle[P, R]) Mutate(ctx context.Context, payload P, cbs ...Callbacks[R]) <-chan Result[R] {
	ch := make(chan Result[R], 1)
	go func() {
		ch <- h.Run(ctx, payload, cbs...)
	}()
	return ch
}

// Status returns the status of the latest invocation.
func (h *Handle[P, R]) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Pending reports whether any invocation is still running.
func (h *Handle[P, R]) Pending() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pending > 0
}

// Last returns the result of the latest settled invocation.
func (h *Handle[P, R]) Last() Result[R] {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// Reset returns the handle to idle.
func (h *Handle[P, R]) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	h.status = StatusIdle
	h.last = Result[R]{}
}
