package policy

import (
	"regexp"
	"time"
)

// RateLimitRule describes a rate-limiting policy for a group of routes.
type RateLimitRule struct {
	// Rate is the maximum number of requests allowed within Window.
	Rate int
	// Window is the time window for the rate limit.
	Window time.Duration
}

// Policy holds the configuration that applies to a matched route group.
type Policy struct {
	RateLimit *RateLimitRule

	// Timeout bounds each request of the group. Zero leaves the caller's
	// deadline untouched.
	Timeout time.Duration

	// Retry marks non-GET routes of the group as safe to retry. GET
	// requests are always retryable when retries are enabled.
	Retry bool
}

// matchKind distinguishes the three matching strategies.
type matchKind int

const (
	kindExact    matchKind = iota // highest priority
	kindTemplate                  // path with {param} segments
	kindPrefix
	kindRegex // lowest priority
)

// rule is a single matching rule inside a group.
type rule struct {
	kind    matchKind
	pattern string         // used for exact, template and prefix matches
	re      *regexp.Regexp // used for regex matches
}

// GroupBuilder constructs a route group with one or more matching rules and
// a policy. Routes have the form "METHOD /path", e.g. "GET /api/projects/7".
type GroupBuilder struct {
	name   string
	rules  []rule
	policy *Policy
}

// Group starts building a new route group with the given name.
func Group(name string) *GroupBuilder {
	return &GroupBuilder{name: name}
}

// Exact adds an exact-match rule for pattern.
func (g *GroupBuilder) Exact(pattern string) *GroupBuilder {
	g.rules = append(g.rules, rule{kind: kindExact, pattern: pattern})
	return g
}

// Template adds a rule matching routes of the given shape, where "{name}"
// segments match any single path segment, e.g. "PUT /api/tasks/{id}".
func (g *GroupBuilder) Template(pattern string) *GroupBuilder {
	g.rules = append(g.rules, rule{kind: kindTemplate, pattern: pattern})
	return g
}

// Prefix adds a prefix-match rule for pattern.
func (g *GroupBuilder) Prefix(pattern string) *GroupBuilder {
	g.rules = append(g.rules, rule{kind: kindPrefix, pattern: pattern})
	return g
}

// Regex adds a regex-match rule for pattern.
// The pattern is compiled immediately; an invalid regex will panic.
func (g *GroupBuilder) Regex(pattern string) *GroupBuilder {
	g.rules = append(g.rules, rule{kind: kindRegex, pattern: pattern, re: regexp.MustCompile(pattern)})
	return g
}

// Methods adds a regex rule matching every route of the given HTTP methods,
// e.g. Methods("POST", "PUT", "DELETE") for all writes.
func (g *GroupBuilder) Methods(methods ...string) *GroupBuilder {
	pattern := "^(?:"
	for i, m := range methods {
		if i > 0 {
			pattern += "|"
		}
		pattern += regexp.QuoteMeta(m)
	}
	return g.Regex(pattern + ") ")
}

// Policy attaches a Policy to the group and returns the finished builder.
func (g *GroupBuilder) Policy(p Policy) *GroupBuilder {
	g.policy = &p
	return g
}

// Name returns the group name.
func (g *GroupBuilder) Name() string { return g.name }
