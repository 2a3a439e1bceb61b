package module

import (
	"path/filepath"
	"sort"
	"strings"
)

// FileSet is a set of absolute paths
type FileSet map[string]struct{}

// NewFileSet creates a set holding paths
func NewFileSet(paths ...string) FileSet {
	s := make(FileSet, len(paths))
	for _, p := range paths {
		s[p] = struct{}{}
	}
	return s
}

// Add inserts path
func (s FileSet) Add(path string) {
	s[path] = struct{}{}
}

// AddAll inserts every path of other
func (s FileSet) AddAll(other FileSet) {
	for p := range other {
		s[p] = struct{}{}
	}
}

// Has reports whether path is in the set
func (s FileSet) Has(path string) bool {
	_, ok := s[path]
	return ok
}

// Sorted returns the paths in lexical order
func (s FileSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy
func (s FileSet) Clone() FileSet {
	out := make(FileSet, len(s))
	out.AddAll(s)
	return out
}

// Intersects reports whether any path of changed is in s
func (s FileSet) Intersects(changed FileSet) bool {
	small, large := s, changed
	if len(small) > len(large) {
		small, large = large, small
	}
	for p := range small {
		if large.Has(p) {
			return true
		}
	}
	return false
}

// ContainsUnder reports whether any path of changed lies inside one of the directories in s
func (s FileSet) ContainsUnder(changed FileSet) bool {
	for dir := range s {
		prefix := strings.TrimSuffix(dir, string(filepath.Separator)) + string(filepath.Separator)
		for p := range changed {
			if p == dir || strings.HasPrefix(p, prefix) {
				return true
			}
		}
	}
	return false
}
