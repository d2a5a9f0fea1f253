// Package policy maps request routes ("METHOD /path") to named groups that
// carry per-group timeouts, rate limits and retry permission.
package policy

// Resolver holds a set of route groups and resolves a route to the
// best-matching group and its associated policy.
type Resolver struct {
	groups []*GroupBuilder
}

// NewResolver creates a Resolver from the supplied group builders.
func NewResolver(groups ...*GroupBuilder) *Resolver {
	return &Resolver{groups: groups}
}

// Resolve finds the best-matching group for route.
//
// Priority rules:
//   - Exact matches beat prefix matches, which beat regex matches.
//   - Among matches of the same kind the longer match wins.
//   - When two matches have equal kind and length the group that was
//     registered first (stable order) wins.
//
// If no group matches, ok is false. A nil Resolver matches nothing.
func (res *Resolver) Resolve(route string) (groupName string, pol *Policy, ok bool) {
	if res == nil {
		return "", nil, false
	}
	bestKind := matchKind(-1)
	bestLen := -1
	for _, g := range res.groups {
		for _, r := range g.rules {
			matched, mLen := r.match(route)
			if !matched {
				continue
			}
			// A lower kind value means higher priority.
			better := bestKind < 0 ||
				r.kind < bestKind ||
				(r.kind == bestKind && mLen > bestLen)
			if better {
				bestKind = r.kind
				bestLen = mLen
				groupName = g.name
				pol = g.policy
				ok = true
			}
		}
	}
	return groupName, pol, ok
}

// Groups returns the names of the registered groups in registration order.
func (res *Resolver) Groups() []string {
	if res == nil {
		return nil
	}
	names := make([]string, len(res.groups))
	for i, g := range res.groups {
		names[i] = g.name
	}
	return names
}
