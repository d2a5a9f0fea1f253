package core

import "github.com/Keksclan/rawrsync/transport"

// BuildDoer wraps base with the builder's middleware chain. This keeps the
// wiring logic isolated from the public API surface.
func BuildDoer(base transport.Doer, b *MiddlewareBuilder) transport.Doer {
	if b == nil {
		return base
	}
	return transport.Wrap(base, b.Build()...)
}
