package core

import (
	"cmp"
	"slices"

	"github.com/Keksclan/rawrsync/transport"
)

// middleware is a single transport middleware with a deterministic execution
// order. Lower Order values see the request first.
type middleware struct {
	Name  string
	MW    transport.Middleware
	Order int
}

// MiddlewareBuilder collects middleware entries and produces them sorted and
// ready for chaining.
type MiddlewareBuilder struct {
	entries []middleware
}

// Add registers mw under name with the given order. A nil mw is ignored.
func (b *MiddlewareBuilder) Add(order int, name string, mw transport.Middleware) {
	if mw == nil {
		return
	}
	b.entries = append(b.entries, middleware{Name: name, MW: mw, Order: order})
}

// Build sorts the collected middleware by Order (stable) and returns them
// outermost first.
func (b *MiddlewareBuilder) Build() []transport.Middleware {
	slices.SortStableFunc(b.entries, func(a, c middleware) int {
		return cmp.Compare(a.Order, c.Order)
	})

	out := make([]transport.Middleware, 0, len(b.entries))
	for _, m := range b.entries {
		out = append(out, m.MW)
	}
	return out
}

// Names returns the registered names in execution order.
func (b *MiddlewareBuilder) Names() []string {
	sorted := slices.Clone(b.entries)
	slices.SortStableFunc(sorted, func(a, c middleware) int {
		return cmp.Compare(a.Order, c.Order)
	})
	names := make([]string, len(sorted))
	for i, m := range sorted {
		names[i] = m.Name
	}
	return names
}
