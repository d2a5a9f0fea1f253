// Package transport performs request/response calls against the remote
// resource API. A [Doer] is the only thing the query and mutation layers
// depend on; [HTTP] is the production implementation, and [Middleware]
// values layer request ids, tracing, timeouts, rate limiting, circuit
// breaking, retries and metrics around it.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
)

// Request is one call against the remote API. Path is relative to the
// client's base URL and already carries the API prefix.
type Request struct {
	Method string
	Path   string

	// Body is encoded as JSON, except for a string which is sent as
	// text/plain. A nil Body sends no content.
	Body any

	Header http.Header
}

// Route returns "METHOD /path", the name policies are resolved against.
func (r *Request) Route() string {
	return r.Method + " " + r.Path
}

// SetHeader sets a request header, allocating the header map when needed.
func (r *Request) SetHeader(key, value string) {
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	r.Header.Set(key, value)
}

// Response is a successful (2xx) reply.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the JSON body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// Doer executes requests. Implementations must be safe for concurrent use.
type Doer interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Handler is the function form of a Doer that middlewares wrap.
type Handler func(ctx context.Context, req *Request) (*Response, error)

// Do implements Doer.
func (h Handler) Do(ctx context.Context, req *Request) (*Response, error) {
	return h(ctx, req)
}

// Middleware transforms a Handler, allowing pre/post behavior composition.
type Middleware func(Handler) Handler

// Chain composes middlewares from left to right, i.e. Chain(A, B)(h) =>
// A(B(h)). The first middleware sees the request first.
func Chain(mw ...Middleware) Middleware {
	return func(next Handler) Handler {
		for i := len(mw) - 1; i >= 0; i-- {
			next = mw[i](next)
		}
		return next
	}
}

// Wrap applies the middleware chain to d and returns the wrapped Doer.
func Wrap(d Doer, mw ...Middleware) Doer {
	if len(mw) == 0 {
		return d
	}
	return Chain(mw...)(d.Do)
}
