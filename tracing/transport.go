package tracing

import (
	"context"
	"net/http"

	"github.com/Keksclan/rawrsync/contextx"
	"github.com/Keksclan/rawrsync/transport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Middleware returns a transport middleware that creates a client span for
// every request and injects the trace context into its headers. If cfg is
// nil the middleware is a no-op passthrough.
func Middleware(cfg *TracingConfig) transport.Middleware {
	if cfg == nil {
		return func(next transport.Handler) transport.Handler { return next }
	}
	return func(next transport.Handler) transport.Handler {
		return func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			ctx, span := cfg.Tracer().Start(ctx, req.Route(), trace.WithSpanKind(trace.SpanKindClient))
			defer span.End()

			span.SetAttributes(
				attribute.String("http.request.method", req.Method),
				attribute.String("url.path", req.Path),
			)
			if id := contextx.RequestIDFromContext(ctx); id != "" {
				span.SetAttributes(attribute.String("rawrsync.request_id", id))
			}
			if a, ok := contextx.ActorFromContext(ctx); ok {
				span.SetAttributes(attribute.Int64("rawrsync.user_id", a.UserID))
			}

			r := *req
			r.Header = req.Header.Clone()
			if r.Header == nil {
				r.Header = make(http.Header)
			}
			cfg.propagators().Inject(ctx, propagation.HeaderCarrier(r.Header))

			resp, err := next(ctx, &r)
			recordStatus(span, resp, err)
			return resp, err
		}
	}
}

// recordStatus sets the span status and records the HTTP status code.
func recordStatus(span trace.Span, resp *transport.Response, err error) {
	status := transport.StatusOf(err)
	if resp != nil {
		status = resp.Status
	}
	if status != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
}
