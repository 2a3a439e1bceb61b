package resolver

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"bundlegraph/internal/module"
)

func setupProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"src/index.js":                  "import './util'",
		"src/util.ts":                   "export {}",
		"src/lib/index.js":              "",
		"src/data.json":                 "{}",
		"node_modules/pkg/package.json": `{"main": "lib/main"}`,
		"node_modules/pkg/lib/main.js":  "",
		"node_modules/plain/index.js":   "",
		"node_modules/plain/extra.js":   "",
		"vendor/shim.js":                "",
	}
	for name, content := range files {
		p := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func defaults() *module.ResolveOptions {
	return &module.ResolveOptions{
		Extensions: []string{".js", ".ts", ".json"},
		MainFiles:  []string{"index"},
		Modules:    []string{"node_modules"},
	}
}

func TestResolve(t *testing.T) {
	root := setupProject(t)
	src := filepath.Join(root, "src")
	r := New(defaults())

	tests := []struct {
		name    string
		request string
		want    string
	}{
		{"exact file", "./index.js", "src/index.js"},
		{"extension", "./util", "src/util.ts"},
		{"directory index", "./lib", "src/lib/index.js"},
		{"parent", "../vendor/shim", "vendor/shim.js"},
		{"json", "./data.json", "src/data.json"},
		{"package main", "pkg", "node_modules/pkg/lib/main.js"},
		{"package index", "plain", "node_modules/plain/index.js"},
		{"package subpath", "plain/extra", "node_modules/plain/extra.js"},
		{"absolute", filepath.Join(root, "vendor", "shim.js"), "vendor/shim.js"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Resolve(context.Background(), src, tt.request, nil)
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.request, err)
			}
			want := filepath.Join(root, filepath.FromSlash(tt.want))
			if res.Path != want {
				t.Errorf("Resolve(%q) = %s, want %s", tt.request, res.Path, want)
			}
			if !res.FileDependencies.Has(want) {
				t.Errorf("resolved file should be a file dependency: %v", res.FileDependencies.Sorted())
			}
		})
	}
}

func TestResolveRecordsMissingCandidates(t *testing.T) {
	root := setupProject(t)
	src := filepath.Join(root, "src")

	res, err := New(defaults()).Resolve(context.Background(), src, "./util", nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, missing := range []string{"util", "util.js"} {
		if !res.MissingDependencies.Has(filepath.Join(src, missing)) {
			t.Errorf("%s should be recorded as missing: %v", missing, res.MissingDependencies.Sorted())
		}
	}
	if res.MissingDependencies.Has(filepath.Join(src, "util.json")) {
		t.Error("candidates after the match should not be probed")
	}
}

func TestResolveNotFound(t *testing.T) {
	root := setupProject(t)
	src := filepath.Join(root, "src")

	res, err := New(defaults()).Resolve(context.Background(), src, "./nope", nil)
	if !stderrors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if res == nil || !res.MissingDependencies.Has(filepath.Join(src, "nope.ts")) {
		t.Error("a failed resolution should still report probed paths")
	}

	if _, err := New(defaults()).Resolve(context.Background(), src, "left-pad", nil); !stderrors.Is(err, ErrNotFound) {
		t.Errorf("bare request err = %v, want ErrNotFound", err)
	}
}

func TestResolveOptionsOverride(t *testing.T) {
	root := setupProject(t)
	src := filepath.Join(root, "src")
	r := New(defaults())

	_, err := r.Resolve(context.Background(), src, "./util", &module.ResolveOptions{Extensions: []string{".js"}})
	if !stderrors.Is(err, ErrNotFound) {
		t.Errorf("overriding extensions should hide util.ts, err = %v", err)
	}
}

func TestResolveAlias(t *testing.T) {
	root := setupProject(t)
	src := filepath.Join(root, "src")
	r := New(defaults())
	opts := &module.ResolveOptions{Alias: map[string]string{
		"shim$":  filepath.Join(root, "vendor", "shim.js"),
		"@lib":   filepath.Join(src, "lib"),
		"react":  "plain",
		"fs":     IgnoreTarget,
		"@lib/x": filepath.Join(root, "vendor"),
	}}

	tests := []struct {
		request string
		want    string
	}{
		{"shim", "vendor/shim.js"},
		{"@lib", "src/lib/index.js"},
		{"@lib/index", "src/lib/index.js"},
		{"@lib/x/shim", "vendor/shim.js"},
		{"react/extra", "node_modules/plain/extra.js"},
	}
	for _, tt := range tests {
		res, err := r.Resolve(context.Background(), src, tt.request, opts)
		if err != nil {
			t.Errorf("Resolve(%q) error = %v", tt.request, err)
			continue
		}
		if want := filepath.Join(root, filepath.FromSlash(tt.want)); res.Path != want {
			t.Errorf("Resolve(%q) = %s, want %s", tt.request, res.Path, want)
		}
	}

	res, err := r.Resolve(context.Background(), src, "fs", opts)
	if err != nil || !res.Ignored || res.Path != "" {
		t.Errorf("fs should be ignored: %+v, %v", res, err)
	}
	if _, err := r.Resolve(context.Background(), src, "shim/other", opts); err == nil {
		t.Error("an exact alias must not match a subpath")
	}
}

func TestResolveCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(defaults()).Resolve(ctx, t.TempDir(), "./a", nil); !stderrors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestLoadAliasFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aliases.toml")
	content := `
[alias]
"react" = "preact/compat"
"@app" = "./src"
"fs" = false
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	alias, err := LoadAliasFile(path)
	if err != nil {
		t.Fatalf("LoadAliasFile() error = %v", err)
	}
	if alias["react"] != "preact/compat" {
		t.Errorf("react = %q", alias["react"])
	}
	if alias["@app"] != filepath.Join(dir, "src") {
		t.Errorf("@app = %q, want it relative to the file", alias["@app"])
	}
	if alias["fs"] != IgnoreTarget {
		t.Errorf("fs = %q, want %q", alias["fs"], IgnoreTarget)
	}
}

func TestLoadAliasFileRejectsTrue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.toml")
	if err := os.WriteFile(path, []byte("[alias]\nfs = true\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadAliasFile(path); err == nil {
		t.Error("true is not a valid alias target")
	}
}
