// Package rawrsync is a client-side data synchronization layer for a
// project-management REST API. A [Client] keeps one cache of remote reads
// addressed by structured keys, deduplicates concurrent fetches of the same
// key, serves cached data while it revalidates in the background, and
// invalidates exactly the affected reads after every successful write.
//
// Requests pass through a chain of transport middleware. Execution order is
// fixed by the Order constants below, not by the order options are passed:
// lower values see the request first.
package rawrsync

// Middleware order slots. Custom middleware added with WithMiddleware can be
// placed between them.
const (
	OrderRecovery  = 100
	OrderRequestID = 200
	OrderAuth      = 250
	OrderTracing   = 300
	OrderPolicy    = 400
	OrderMetrics   = 500
	OrderLogging   = 600
	OrderRetry     = 700
	OrderBreaker   = 800
	OrderRateLimit = 900
)

// Middleware names as reported by Client.Middlewares.
const (
	nameRecovery  = "recovery"
	nameRequestID = "request-id"
	nameAuth      = "auth"
	nameTracing   = "tracing"
	namePolicy    = "policy"
	nameMetrics   = "metrics"
	nameLogging   = "logging"
	nameRetry     = "retry"
	nameBreaker   = "breaker"
	nameRateLimit = "rate-limit"
)
