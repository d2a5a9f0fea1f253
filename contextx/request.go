// Package contextx carries per-request values through fetches, mutations
// and the transport middleware chain.
package contextx

import "context"

type ctxKey uint8

const (
	actorKey ctxKey = iota + 1
	requestIDKey
	groupKey
)

// WithRequestID tags ctx with the id sent to the API as X-Request-ID. The
// RequestID middleware calls it when the caller did not supply one, so
// retries of one request share a single id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the id set by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithGroup records the policy group resolved for a route such as
// "PUT /api/tasks/7". Metrics label requests with it.
func WithGroup(ctx context.Context, group string) context.Context {
	return context.WithValue(ctx, groupKey, group)
}

// GroupFromContext returns the policy group of the request in flight, or ""
// when the route matched no group.
func GroupFromContext(ctx context.Context) string {
	g, _ := ctx.Value(groupKey).(string)
	return g
}
