package testutil

import (
	"path/filepath"
	"strings"
)

// RootPlaceholder replaces the project root in normalized output.
const RootPlaceholder = "<root>"

// NormalizePaths rewrites every occurrence of root in s to RootPlaceholder and uses
// forward slashes for the paths below it, so output from temporary projects compares
// stably.
func NormalizePaths(s, root string) string {
	root = filepath.Clean(root)
	s = strings.ReplaceAll(s, root, RootPlaceholder)
	if filepath.Separator != '/' {
		s = strings.ReplaceAll(s, string(filepath.Separator), "/")
	}
	return s
}
