package registry

import (
	"sort"
	"strings"
)

// Verify keeps the candidates that the registry recognises. Each kept
// candidate is returned exactly as given; surrounding whitespace is ignored
// only for the lookup itself. An empty input returns without consulting the
// registry.
func Verify(reg Lookup, candidates []string) []string {
	out := make([]string, 0, len(candidates))
	if len(candidates) == 0 {
		return out
	}

	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		if reg.IsKnownClient(strings.TrimSpace(c)) {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}
