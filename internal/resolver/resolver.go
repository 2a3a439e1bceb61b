// Package resolver maps import requests to files on disk.
//
// Relative and absolute requests are tried as a file, then with each configured extension,
// then as a directory (package.json "main", then the main files). Bare requests are looked up
// in module directories walking up from the requesting directory. Every probed path is
// recorded as a file or missing dependency so watch mode can re-resolve when it appears.
package resolver

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bundlegraph/internal/module"
)

// ErrNotFound is returned when no candidate exists
var ErrNotFound = stderrors.New("module not found")

// Result is the outcome of one resolution. Ignored reports an alias to false, in which
// case Path is empty.
type Result struct {
	Path    string
	Ignored bool

	FileDependencies    module.FileSet
	MissingDependencies module.FileSet
}

func newResult() *Result {
	return &Result{
		FileDependencies:    module.NewFileSet(),
		MissingDependencies: module.NewFileSet(),
	}
}

// Resolver resolves requests against the local filesystem. It is safe for concurrent use.
type Resolver struct {
	defaults *module.ResolveOptions
}

// New creates a resolver whose per-request options are merged over defaults
func New(defaults *module.ResolveOptions) *Resolver {
	if defaults == nil {
		defaults = &module.ResolveOptions{}
	}
	return &Resolver{defaults: defaults}
}

// Resolve resolves request issued from dir. On failure the returned result is still
// non-nil and carries the probed paths.
func (r *Resolver) Resolve(ctx context.Context, dir, request string, opts *module.ResolveOptions) (*Result, error) {
	res := newResult()
	if err := ctx.Err(); err != nil {
		return res, err
	}
	opts = r.defaults.Merge(opts)

	target, ignored := applyAlias(request, opts.Alias)
	if ignored {
		res.Ignored = true
		return res, nil
	}

	var found string
	switch {
	case isRelative(target):
		found = r.resolvePath(res, filepath.Join(dir, target), opts)
	case filepath.IsAbs(target):
		found = r.resolvePath(res, filepath.Clean(target), opts)
	default:
		found = r.resolveBare(res, dir, target, opts)
	}
	if found == "" {
		return res, fmt.Errorf("%w: %q from %s", ErrNotFound, request, dir)
	}
	res.Path = found
	return res, nil
}

func isRelative(request string) bool {
	return request == "." || request == ".." ||
		strings.HasPrefix(request, "./") || strings.HasPrefix(request, "../")
}

// resolvePath tries p as a file and then as a directory
func (r *Resolver) resolvePath(res *Result, p string, opts *module.ResolveOptions) string {
	if found := r.resolveFile(res, p, opts); found != "" {
		return found
	}
	return r.resolveDirectory(res, p, opts)
}

func (r *Resolver) resolveFile(res *Result, p string, opts *module.ResolveOptions) string {
	if isFile(p) {
		res.FileDependencies.Add(p)
		return p
	}
	res.MissingDependencies.Add(p)
	for _, ext := range opts.Extensions {
		candidate := p + ext
		if isFile(candidate) {
			res.FileDependencies.Add(candidate)
			return candidate
		}
		res.MissingDependencies.Add(candidate)
	}
	return ""
}

type packageJSON struct {
	Main string `json:"main"`
}

func (r *Resolver) resolveDirectory(res *Result, dir string, opts *module.ResolveOptions) string {
	if !isDir(dir) {
		return ""
	}

	manifest := filepath.Join(dir, "package.json")
	data, err := os.ReadFile(manifest)
	if err == nil {
		res.FileDependencies.Add(manifest)
		var pkg packageJSON
		if json.Unmarshal(data, &pkg) == nil && pkg.Main != "" {
			main := filepath.Join(dir, pkg.Main)
			if found := r.resolveFile(res, main, opts); found != "" {
				return found
			}
			if main != dir {
				if found := r.resolveDirectory(res, main, opts); found != "" {
					return found
				}
			}
		}
	} else {
		res.MissingDependencies.Add(manifest)
	}

	for _, name := range opts.MainFiles {
		if found := r.resolveFile(res, filepath.Join(dir, name), opts); found != "" {
			return found
		}
	}
	return ""
}

// resolveBare looks request up in every module directory from dir towards the root.
// Absolute module directories are searched once.
func (r *Resolver) resolveBare(res *Result, dir, request string, opts *module.ResolveOptions) string {
	for _, modules := range opts.Modules {
		if filepath.IsAbs(modules) {
			if found := r.resolvePath(res, filepath.Join(modules, request), opts); found != "" {
				return found
			}
			continue
		}
		for current := dir; ; {
			root := filepath.Join(current, modules)
			if isDir(root) {
				if found := r.resolvePath(res, filepath.Join(root, request), opts); found != "" {
					return found
				}
			} else {
				res.MissingDependencies.Add(root)
			}
			parent := filepath.Dir(current)
			if parent == current {
				break
			}
			current = parent
		}
	}
	return ""
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
