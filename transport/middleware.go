package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Keksclan/rawrsync/breaker"
	"github.com/Keksclan/rawrsync/contextx"
	"github.com/Keksclan/rawrsync/metrics"
	"github.com/Keksclan/rawrsync/policy"
	"github.com/Keksclan/rawrsync/ratelimit"
	"github.com/Keksclan/rawrsync/retry"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// RequestIDHeader carries the request id to the remote API.
const RequestIDHeader = "X-Request-ID"

// ErrPanic is returned when a Doer panics.
var ErrPanic = errors.New("transport: panic in request handler")

// withHeader returns a shallow copy of req with key set, leaving the
// caller's request untouched.
func withHeader(req *Request, key, value string) *Request {
	r := *req
	r.Header = req.Header.Clone()
	r.SetHeader(key, value)
	return &r
}

// RequestID ensures every request carries an id, reusing the one already in
// the context when present.
func RequestID() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (*Response, error) {
			id := contextx.RequestIDFromContext(ctx)
			if id == "" {
				id = uuid.NewString()
				ctx = contextx.WithRequestID(ctx, id)
			}
			return next(ctx, withHeader(req, RequestIDHeader, id))
		}
	}
}

// Recovery turns a panic inside the wrapped Doer into an error wrapping
// ErrPanic.
func Recovery() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (resp *Response, err error) {
			defer func() {
				if r := recover(); r != nil {
					resp = nil
					err = fmt.Errorf("%w: %s: %v", ErrPanic, req.Route(), r)
				}
			}()
			return next(ctx, req)
		}
	}
}

// Policy resolves the request route against r, stores the group name in the
// context for downstream middleware and applies the group's timeout.
// Unmatched routes use fallback as their timeout; zero means none.
func Policy(r *policy.Resolver, fallback time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (*Response, error) {
			timeout := fallback
			if name, pol, ok := r.Resolve(req.Route()); ok {
				ctx = contextx.WithGroup(ctx, name)
				if pol != nil && pol.Timeout > 0 {
					timeout = pol.Timeout
				}
			}
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return next(ctx, req)
		}
	}
}

// rateLimitState holds the global limiter, an optional policy resolver, and a
// cache of per-group limiters created lazily from resolved policies.
type rateLimitState struct {
	global   *ratelimit.Limiter
	resolver *policy.Resolver

	mu     sync.Mutex
	groups map[string]*ratelimit.Limiter
}

// limiterFor returns the per-group limiter when the resolver matches route
// to a group with a RateLimit policy. Otherwise it returns the global
// limiter, which may be nil.
func (s *rateLimitState) limiterFor(route string) *ratelimit.Limiter {
	name, pol, ok := s.resolver.Resolve(route)
	if !ok || pol == nil || pol.RateLimit == nil {
		return s.global
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.groups[name]; ok {
		return l
	}
	l := ratelimit.PerWindow(pol.RateLimit.Rate, pol.RateLimit.Window)
	s.groups[name] = l
	return l
}

// RateLimit delays requests until the applicable limiter admits them. When a
// policy resolver is provided and the route matches a group with a RateLimit
// rule, that per-group limiter is used; otherwise the global limiter
// applies. A nil global limiter leaves unmatched routes unlimited.
func RateLimit(global *ratelimit.Limiter, r *policy.Resolver) Middleware {
	st := &rateLimitState{global: global, resolver: r, groups: make(map[string]*ratelimit.Limiter)}
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (*Response, error) {
			if l := st.limiterFor(req.Route()); l != nil {
				if err := l.Wait(ctx); err != nil {
					return nil, fmt.Errorf("transport: %s: %w", req.Route(), err)
				}
			}
			return next(ctx, req)
		}
	}
}

// Breaker rejects requests with breaker.ErrOpen while b is open. Network
// failures and 5xx replies count as failures; client errors do not.
func Breaker(b *breaker.Breaker) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (*Response, error) {
			if !b.Allow() {
				return nil, fmt.Errorf("transport: %s: %w", req.Route(), breaker.ErrOpen)
			}
			resp, err := next(ctx, req)
			switch {
			case err == nil:
				b.OnSuccess()
			case errors.Is(err, context.Canceled):
				// The caller gave up; says nothing about the server.
			case ServerFault(err):
				b.OnFailure()
			default:
				b.OnSuccess()
			}
			return resp, err
		}
	}
}

// Retry re-sends failed requests according to cfg. GET requests are always
// eligible; other methods only when r resolves the route to a group whose
// policy sets Retry.
func Retry(cfg retry.Config, r *policy.Resolver) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (*Response, error) {
			if !retryable(req, r) {
				return next(ctx, req)
			}
			return retry.Do(ctx, cfg, func(ctx context.Context) (*Response, error) {
				return next(ctx, req)
			})
		}
	}
}

func retryable(req *Request, r *policy.Resolver) bool {
	if req.Method == http.MethodGet {
		return true
	}
	_, pol, ok := r.Resolve(req.Route())
	return ok && pol != nil && pol.Retry
}

// Metrics records every request's duration and outcome, labeled by method
// and policy group. It must run after Policy to see the group. A nil clk
// uses the real clock.
func Metrics(m *metrics.Metrics, clk clockwork.Clock) Middleware {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (*Response, error) {
			start := clk.Now()
			resp, err := next(ctx, req)
			status := 0
			if resp != nil {
				status = resp.Status
			} else if err != nil {
				status = StatusOf(err)
			}
			m.Request(req.Method, contextx.GroupFromContext(ctx), status, clk.Since(start))
			return resp, err
		}
	}
}

// Logging writes one debug record per request and a warning for failures.
func Logging(l *slog.Logger, clk clockwork.Clock) Middleware {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (*Response, error) {
			start := clk.Now()
			resp, err := next(ctx, req)
			attrs := []any{
				"method", req.Method,
				"path", req.Path,
				"request_id", contextx.RequestIDFromContext(ctx),
				"duration", clk.Since(start),
			}
			if a, ok := contextx.ActorFromContext(ctx); ok {
				attrs = append(attrs, "user_id", a.UserID)
			}
			if err != nil {
				l.WarnContext(ctx, "transport: request failed", append(attrs, "error", err)...)
				return nil, err
			}
			l.DebugContext(ctx, "transport: request done", append(attrs, "status", resp.Status)...)
			return resp, nil
		}
	}
}
