package names

import "sort"

// Set is a collection of cleaned names.
type Set map[string]struct{}

// NewSet builds a set from the given names, cleaning each one.
func NewSet(items ...string) Set {
	s := make(Set, len(items))
	for _, it := range items {
		s.Add(it)
	}
	return s
}

// Add cleans name and inserts it. Empty names are ignored.
func (s Set) Add(name string) {
	if c := Clean(name); c != "" {
		s[c] = struct{}{}
	}
}

// Has reports whether the cleaned name is in the set.
func (s Set) Has(name string) bool {
	_, ok := s[Clean(name)]
	return ok
}

// Sorted returns the members in ascending order. Never nil.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Union returns the sorted unique union of any number of name lists.
func Union(lists ...[]string) []string {
	s := make(Set)
	for _, l := range lists {
		for _, n := range l {
			s.Add(n)
		}
	}
	return s.Sorted()
}

// Consolidate merges the text-derived and image-derived name lists.
// The result does not depend on argument order.
func Consolidate(textNames, imageNames []string) []string {
	return Union(textNames, imageNames)
}
