package jsmodule

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/viant/afs"

	"bundlegraph/internal/buildcache"
	"bundlegraph/internal/errors"
	"bundlegraph/internal/module"
)

var fs = afs.New()

// LoaderRaw exports the file content as a string and discovers no dependencies
const LoaderRaw = "raw"

// KnownLoader reports whether name can appear in a loader chain
func KnownLoader(name string) bool {
	return name == LoaderRaw
}

// Identifier derives the module identifier: the loader chain and the resource joined by
// "!", followed by "|layer" when a layer is set.
func Identifier(resource string, loaders []string, layer string) module.Identifier {
	id := resource
	if len(loaders) > 0 {
		id = strings.Join(loaders, "!") + "!" + resource
	}
	if layer != "" {
		id += "|" + layer
	}
	return module.Identifier(id)
}

// Module is a normal module backed by one file
type Module struct {
	Resource string
	Loaders  []string
	Layer    string

	id module.Identifier
}

// New creates a module for an absolute resource path
func New(resource string, loaders []string, layer string) *Module {
	return &Module{
		Resource: resource,
		Loaders:  loaders,
		Layer:    layer,
		id:       Identifier(resource, loaders, layer),
	}
}

func (m *Module) Identifier() module.Identifier { return m.id }
func (m *Module) Kind() module.Kind { return module.KindNormal }
func (m *Module) Context() string { return filepath.Dir(m.Resource) }

func (m *Module) raw() bool {
	for _, l := range m.Loaders {
		if l == LoaderRaw {
			return true
		}
	}
	return false
}

// SourceKinds reports javascript for scripts and raw files, json for JSON and asset otherwise
func (m *Module) SourceKinds() []module.SourceKind {
	if m.raw() {
		return []module.SourceKind{module.SourceJavaScript}
	}
	lang, ok := LanguageFromExtension(filepath.Ext(m.Resource))
	switch {
	case !ok:
		return []module.SourceKind{module.SourceAsset}
	case lang == LangJSON:
		return []module.SourceKind{module.SourceJSON}
	default:
		return []module.SourceKind{module.SourceJavaScript}
	}
}

// Build reads the resource, fingerprints it and, for scripts, scans it for requests
func (m *Module) Build(ctx context.Context, bc *module.BuildContext) (*module.BuildResult, error) {
	source, err := fs.DownloadWithURL(ctx, m.Resource)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", m.Resource, err)
	}

	res := &module.BuildResult{
		Info: module.BuildInfo{
			Cacheable:        true,
			Hash:             buildcache.HashContent(source),
			FileDependencies: module.NewFileSet(m.Resource),
		},
		Meta: module.BuildMeta{Size: len(source), ExportsType: "default"},
	}
	if m.raw() {
		return res, nil
	}

	lang, ok := LanguageFromExtension(filepath.Ext(m.Resource))
	if !ok {
		return res, nil
	}
	if lang == LangJSON {
		if !json.Valid(source) {
			return nil, errors.New(errors.BuildFailed, "invalid JSON").WithModule(string(m.id))
		}
		res.Meta.SideEffectFree = true
		return res, nil
	}

	scan, err := Scan(ctx, source, lang)
	if err != nil {
		return nil, err
	}
	if scan.SyntaxErrors {
		res.Diagnostics = append(res.Diagnostics, errors.Warning("source has syntax errors; dependencies may be incomplete", string(m.id)))
	}
	res.Dependencies = dependencies(scan.Requests)
	switch {
	case scan.ESM:
		res.Meta.ExportsType = "namespace"
	case scan.CommonJS:
		res.Meta.ExportsType = "dynamic"
	}

	if bc != nil && bc.Logger != nil {
		bc.Logger.Debug("Scanned module",
			"module", m.id,
			"requests", len(scan.Requests),
			"precise", Precise(),
		)
	}
	return res, nil
}

func dependencies(requests []Request) []module.Dependency {
	deps := make([]module.Dependency, 0, len(requests))
	for _, r := range requests {
		switch r.Kind {
		case module.DepContext:
			deps = append(deps, &module.ContextDependency{Directory: r.Specifier, Recursive: r.Recursive, Pattern: r.Pattern})
		case module.DepSelfReference:
			deps = append(deps, &module.SelfReferenceDependency{Names: r.Names})
		default:
			deps = append(deps, &module.ImportDependency{DepKind: r.Kind, Specifier: r.Specifier})
		}
	}
	return deps
}
