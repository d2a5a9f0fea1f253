package cache

import (
	"strconv"
	"strings"
)

// Resource names a family of cached values, for example "task-by-id". The
// set of resources is closed and declared by the catalog package; every
// resource has a fixed parameter arity.
type Resource string

// Key addresses one cache entry. Keys are comparable: two keys are equal when
// the resource and every parameter are equal. Parameters a resource does not
// use are left at their zero value.
type Key struct {
	Resource Resource `json:"resource"`
	ID       int64    `json:"id,omitempty"`
	Text     string   `json:"text,omitempty"`
}

// String renders the key as resource(params), e.g. "project-by-id(7)" or
// `filtered-project-tasks(3,"done")`. The rendering is injective for keys of
// a fixed arity and is used as the retained-pool key.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(string(k.Resource))
	if k.ID == 0 && k.Text == "" {
		return b.String()
	}
	b.WriteByte('(')
	if k.ID != 0 {
		b.WriteString(strconv.FormatInt(k.ID, 10))
	}
	if k.Text != "" {
		if k.ID != 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(k.Text))
	}
	b.WriteByte(')')
	return b.String()
}

// TargetKind selects how a Target resolves to keys.
type TargetKind int

const (
	// TargetKey marks exactly one key stale.
	TargetKey TargetKind = iota
	// TargetResource marks every key of a resource stale, regardless of
	// parameters.
	TargetResource
	// TargetRemove evicts exactly one key.
	TargetRemove
)

// Target is one element of an invalidation set.
type Target struct {
	Kind TargetKind `json:"kind"`
	Key  Key        `json:"key"`
}

// Exact returns a target that marks k stale.
func Exact(k Key) Target { return Target{Kind: TargetKey, Key: k} }

// All returns a wildcard target that marks every key of r stale.
func All(r Resource) Target { return Target{Kind: TargetResource, Key: Key{Resource: r}} }

// Remove returns a target that evicts k.
func Remove(k Key) Target { return Target{Kind: TargetRemove, Key: k} }

// Matches reports whether k is addressed by t.
func (t Target) Matches(k Key) bool {
	if t.Kind == TargetResource {
		return k.Resource == t.Key.Resource
	}
	return k == t.Key
}

func (t Target) String() string {
	switch t.Kind {
	case TargetResource:
		return string(t.Key.Resource) + "(*)"
	case TargetRemove:
		return "remove " + t.Key.String()
	default:
		return t.Key.String()
	}
}
