package policy

import "strings"

// match reports whether r matches route. length is the size of the matched
// portion and breaks ties among rules of the same kind.
func (r *rule) match(route string) (matched bool, length int) {
	switch r.kind {
	case kindExact:
		return route == r.pattern, len(r.pattern)
	case kindTemplate:
		return matchTemplate(r.pattern, route), len(r.pattern)
	case kindPrefix:
		return strings.HasPrefix(route, r.pattern), len(r.pattern)
	case kindRegex:
		if loc := r.re.FindStringIndex(route); loc != nil {
			return true, loc[1] - loc[0]
		}
	}
	return false, 0
}

// matchTemplate matches route segment by segment against pattern, where a
// "{name}" segment stands for any single non-empty segment.
func matchTemplate(pattern, route string) bool {
	for {
		ps, prest, pmore := strings.Cut(pattern, "/")
		rs, rrest, rmore := strings.Cut(route, "/")
		if strings.HasPrefix(ps, "{") && strings.HasSuffix(ps, "}") {
			if rs == "" {
				return false
			}
		} else if ps != rs {
			return false
		}
		if pmore != rmore {
			return false
		}
		if !pmore {
			return true
		}
		pattern, route = prest, rrest
	}
}
