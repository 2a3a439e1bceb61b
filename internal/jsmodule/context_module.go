package jsmodule

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/viant/afs/storage"

	"bundlegraph/internal/module"
)

// ContextModule stands for the files of a directory matching a pattern
type ContextModule struct {
	Directory string
	Recursive bool
	Pattern   string

	pattern *regexp.Regexp
}

// NewContextModule creates a context module for an absolute directory. The pattern is
// matched against "./"-prefixed paths relative to the directory.
func NewContextModule(dir string, recursive bool, pattern string) (*ContextModule, error) {
	if pattern == "" {
		pattern = DefaultContextPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid context pattern %q: %w", pattern, err)
	}
	return &ContextModule{Directory: dir, Recursive: recursive, Pattern: pattern, pattern: re}, nil
}

func (m *ContextModule) Identifier() module.Identifier {
	mode := "sync"
	if m.Recursive {
		mode = "sync recursive"
	}
	return module.Identifier(fmt.Sprintf("context|%s|%s|%s", m.Directory, mode, m.Pattern))
}

func (m *ContextModule) Kind() module.Kind { return module.KindContext }
func (m *ContextModule) SourceKinds() []module.SourceKind { return []module.SourceKind{module.SourceJavaScript} }
func (m *ContextModule) Context() string { return m.Directory }

// Build lists the matching files and depends on each of them
func (m *ContextModule) Build(ctx context.Context, bc *module.BuildContext) (*module.BuildResult, error) {
	files, err := m.list(ctx)
	if err != nil {
		return nil, err
	}
	res := &module.BuildResult{
		Info: module.BuildInfo{
			Cacheable:           true,
			ContextDependencies: module.NewFileSet(m.Directory),
		},
		Meta: module.BuildMeta{ExportsType: "default"},
	}
	for _, f := range files {
		res.Dependencies = append(res.Dependencies, &module.ImportDependency{DepKind: module.DepRequire, Specifier: f})
	}
	return res, nil
}

// list returns the matching "./"-prefixed relative paths in lexical order
func (m *ContextModule) list(ctx context.Context) ([]string, error) {
	var files []string
	var visitor storage.OnVisit = func(ctx context.Context, baseURL, parent string, info os.FileInfo, reader io.Reader) (bool, error) {
		if info.IsDir() {
			return true, nil
		}
		parent = strings.Trim(parent, "/")
		if parent != "" && !m.Recursive {
			return true, nil
		}
		rel := "./" + path.Join(parent, info.Name())
		if m.pattern.MatchString(rel) {
			files = append(files, rel)
		}
		return true, nil
	}
	if err := fs.Walk(ctx, m.Directory, visitor); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", m.Directory, err)
	}
	sort.Strings(files)
	return files, nil
}
