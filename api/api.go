// Package api binds every remote endpoint to the synchronization layer. Read
// endpoints are exposed as query.Query values addressed by catalog keys;
// write endpoints as mutation.Mutation values carrying their invalidation
// rule. Consumers run them through a query.Engine and a mutation.Engine.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/Keksclan/rawrsync/cache"
	"github.com/Keksclan/rawrsync/catalog"
	"github.com/Keksclan/rawrsync/query"
	"github.com/Keksclan/rawrsync/session"
	"github.com/Keksclan/rawrsync/transport"
)

// ErrInvalidCredentials is returned by Login when the server answers
// without a user.
var ErrInvalidCredentials = errors.New("api: invalid credentials")

// errInvalidID rejects writes addressed by a non-positive id.
var errInvalidID = transport.Invalid("id", "is required")

// Config controls an API.
type Config struct {
	// Doer sends requests. Required.
	Doer transport.Doer

	// Prefix roots every path. Empty means catalog.DefaultPrefix; use "/"
	// for none.
	Prefix string

	// Session receives the user on login and supplies the current user to
	// the CurrentUser* observers. A fresh session is used when nil.
	Session *session.Session

	// Options apply to every query the API builds.
	Options query.Options
}

// API builds queries and mutations for the remote resource API.
type API struct {
	doer    transport.Doer
	paths   catalog.Endpoints
	session *session.Session
	opts    query.Options
}

// New creates an API.
func New(cfg Config) (*API, error) {
	if cfg.Doer == nil {
		return nil, errors.New("api: doer is required")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = catalog.DefaultPrefix
	}
	a := &API{
		doer:    cfg.Doer,
		paths:   catalog.NewEndpoints(prefix),
		session: cfg.Session,
		opts:    cfg.Options,
	}
	if a.session == nil {
		a.session = session.New()
	}
	return a, nil
}

// Session returns the session the API signs users into.
func (a *API) Session() *session.Session { return a.session }

// Endpoints returns the path builder in use.
func (a *API) Endpoints() catalog.Endpoints { return a.paths }

// get builds a JSON read of path.
func get[T any](a *API, path string) func(context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		return call[T](ctx, a, http.MethodGet, path, nil)
	}
}

// list is like get but never yields a nil slice, so a cached empty list is
// distinguishable from missing data when inspected.
func list[T any](a *API, path string) func(context.Context) ([]T, error) {
	fetch := get[[]T](a, path)
	return func(ctx context.Context) ([]T, error) {
		out, err := fetch(ctx)
		if err == nil && out == nil {
			out = []T{}
		}
		return out, err
	}
}

func call[T any](ctx context.Context, a *API, method, path string, body any) (T, error) {
	return transport.Call[T](a.session.Context(ctx), a.doer, &transport.Request{Method: method, Path: path, Body: body})
}

func exec(ctx context.Context, a *API, method, path string) error {
	return transport.Exec(a.session.Context(ctx), a.doer, &transport.Request{Method: method, Path: path})
}

// read wraps fetch as a query on k. Parameterized reads pass disabled while
// their parameter is not known yet.
func read[T any](a *API, k cache.Key, fetch func(context.Context) (T, error), disabled bool) query.Query[T] {
	return query.Query[T]{Key: k, Fetch: fetch, Disabled: disabled, Options: a.opts}
}
