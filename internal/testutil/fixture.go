// Package testutil provides helpers for tests that build small projects on disk.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteTree creates a temporary project from slash-separated file names and returns its root.
func WriteTree(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()
	for name, content := range files {
		WriteFile(t, root, name, content)
	}
	return root
}

// WriteFile writes content to root/name, creating parent directories, and returns the
// absolute path.
func WriteFile(t *testing.T, root, name, content string) string {
	t.Helper()

	p := filepath.Join(root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", name, err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return p
}

// RemoveFile deletes root/name and returns the absolute path.
func RemoveFile(t *testing.T, root, name string) string {
	t.Helper()

	p := filepath.Join(root, filepath.FromSlash(name))
	if err := os.Remove(p); err != nil {
		t.Fatalf("Failed to remove %s: %v", name, err)
	}
	return p
}
