package makepass

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"bundlegraph/internal/errors"
	"bundlegraph/internal/module"
)

// fakeProject is an in-memory project. Each file maps a module name to the requests it
// imports. "require:x" declares a CommonJS require, "self" a self reference. Requests
// resolve to the module of the same name.
type fakeProject struct {
	mu         sync.Mutex
	files      map[string][]string
	external   map[string]bool
	gates      map[string]chan struct{}
	failBuild  map[string]error
	panicBuild map[string]bool
	builds     map[string]int
	resolves   map[string]int
}

func newProject(files map[string][]string) *fakeProject {
	p := &fakeProject{
		files:      make(map[string][]string),
		external:   make(map[string]bool),
		gates:      make(map[string]chan struct{}),
		failBuild:  make(map[string]error),
		panicBuild: make(map[string]bool),
		builds:     make(map[string]int),
		resolves:   make(map[string]int),
	}
	for name, imports := range files {
		p.files[name] = imports
	}
	return p
}

func (p *fakeProject) set(name string, imports ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files[name] = imports
}

func (p *fakeProject) remove(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.files, name)
}

func (p *fakeProject) buildCount(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.builds[name]
}

func (p *fakeProject) Create(ctx context.Context, params *module.FactorizeParams) (*module.FactorizeResult, error) {
	dep := params.Dependency
	if dep.Kind() == module.DepSelfReference {
		return &module.FactorizeResult{Module: &module.SelfModule{Issuer: *params.Origin}}, nil
	}
	req := dep.Request()

	p.mu.Lock()
	gate := p.gates[req]
	p.mu.Unlock()
	if gate != nil {
		<-gate
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolves[req]++
	if p.external[req] {
		return &module.FactorizeResult{}, nil
	}
	if _, ok := p.files[req]; !ok {
		return &module.FactorizeResult{
			MissingDependencies: module.NewFileSet("/" + req),
			Diagnostics:         errors.Diagnostics{errors.Warning("tried /"+req, "")},
		}, fmt.Errorf("module %q not found", req)
	}
	return &module.FactorizeResult{
		Module:           &fakeModule{name: req, project: p},
		FileDependencies: module.NewFileSet("/" + req),
	}, nil
}

type fakeModule struct {
	name    string
	project *fakeProject
}

func (m *fakeModule) Identifier() module.Identifier { return module.Identifier(m.name) }
func (m *fakeModule) Kind() module.Kind { return module.KindNormal }
func (m *fakeModule) SourceKinds() []module.SourceKind { return []module.SourceKind{module.SourceJavaScript} }
func (m *fakeModule) Context() string { return "/" }

func (m *fakeModule) Build(ctx context.Context, bc *module.BuildContext) (*module.BuildResult, error) {
	p := m.project
	p.mu.Lock()
	p.builds[m.name]++
	imports, ok := p.files[m.name]
	failErr := p.failBuild[m.name]
	doPanic := p.panicBuild[m.name]
	p.mu.Unlock()

	if doPanic {
		panic("loader crashed")
	}
	if failErr != nil {
		return nil, failErr
	}
	if !ok {
		return nil, fmt.Errorf("read %s: file does not exist", m.name)
	}

	res := &module.BuildResult{
		Info: module.BuildInfo{Cacheable: true, FileDependencies: module.NewFileSet("/" + m.name)},
		Meta: module.BuildMeta{Size: len(imports)},
	}
	for _, imp := range imports {
		res.Dependencies = append(res.Dependencies, parseImport(imp))
	}
	return res, nil
}

func parseImport(s string) module.Dependency {
	switch {
	case s == "self":
		return &module.SelfReferenceDependency{}
	case strings.HasPrefix(s, "require:"):
		return &module.ImportDependency{DepKind: module.DepRequire, Specifier: strings.TrimPrefix(s, "require:")}
	default:
		return &module.ImportDependency{DepKind: module.DepESMImport, Specifier: s}
	}
}

func entry(name string) module.Dependency {
	return &module.EntryDependency{Name: name, Specifier: name, Directory: "/"}
}

// fakeCache remembers every successful build and answers later requests from memory.
type fakeCache struct {
	mu       sync.Mutex
	results  map[module.Identifier]*module.BuildResult
	computes int
}

func newFakeCache() *fakeCache {
	return &fakeCache{results: make(map[module.Identifier]*module.BuildResult)}
}

func (c *fakeCache) Build(ctx context.Context, m module.Module, compute func(context.Context) (*module.BuildResult, error)) (*module.BuildResult, bool, error) {
	c.mu.Lock()
	if r, ok := c.results[m.Identifier()]; ok {
		c.mu.Unlock()
		return r, true, nil
	}
	c.computes++
	c.mu.Unlock()

	r, err := compute(ctx)
	if err == nil {
		c.mu.Lock()
		c.results[m.Identifier()] = r
		c.mu.Unlock()
	}
	return r, false, err
}

func testOptions(p *fakeProject) Options {
	return Options{Parallelism: 4, Factory: p}
}

// runPass runs one pass and fails the test on a fatal error
func runPass(t *testing.T, art *Artifact, params Params, opts Options) *Result {
	t.Helper()
	res, err := Run(context.Background(), art, params, opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return res
}

func identifiers(art *Artifact) []string {
	var out []string
	for _, id := range art.Graph.ModuleIdentifiers() {
		out = append(out, string(id))
	}
	return out
}

// edges renders every connection as "origin -> target (request)", sorted
func edges(art *Artifact) []string {
	g := art.Graph
	var out []string
	for _, dep := range g.EntryDependencies() {
		if c, ok := g.Connection(dep); ok {
			d, _ := g.Dependency(dep)
			out = append(out, fmt.Sprintf("<entry> -> %s (%s)", c.Target, d.Request()))
		}
	}
	for _, id := range g.ModuleIdentifiers() {
		for _, c := range g.OutgoingConnections(id) {
			d, _ := g.Dependency(c.Dependency)
			out = append(out, fmt.Sprintf("%s -> %s (%s)", id, c.Target, d.Request()))
		}
	}
	sort.Strings(out)
	return out
}

func changed(paths ...string) module.FileSet {
	return module.NewFileSet(paths...)
}
