// Package auth attaches credentials to outgoing requests through the
// optional authentication middleware.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/Keksclan/rawrsync/transport"
)

// ErrUnauthenticated wraps every failure reported by an AuthFunc.
var ErrUnauthenticated = errors.New("auth: unauthenticated")

// AuthFunc is a user-supplied callback that returns the bearer token for a
// request. It receives the request context and the route ("METHOD /path").
// An empty token sends the request without credentials; an error aborts it
// before anything is sent.
//
// The library does NOT obtain or refresh tokens; that is the responsibility
// of the AuthFunc implementation.
type AuthFunc func(ctx context.Context, route string) (token string, err error)

// Bearer returns an AuthFunc that always supplies token.
func Bearer(token string) AuthFunc {
	return func(context.Context, string) (string, error) { return token, nil }
}

// Middleware sets the Authorization header of every request from fn. A
// header already set on the request is left alone.
func Middleware(fn AuthFunc) transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if req.Header.Get("Authorization") != "" {
				return next(ctx, req)
			}
			token, err := fn(ctx, req.Route())
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrUnauthenticated, req.Route(), err)
			}
			if token == "" {
				return next(ctx, req)
			}
			r := *req
			r.Header = req.Header.Clone()
			r.SetHeader("Authorization", "Bearer "+token)
			return next(ctx, &r)
		}
	}
}
