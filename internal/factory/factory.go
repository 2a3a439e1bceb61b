// Package factory turns dependencies into modules. The Router dispatches on the
// dependency kind to the normal, context and self factories.
package factory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bundlegraph/internal/errors"
	"bundlegraph/internal/jsmodule"
	"bundlegraph/internal/module"
	"bundlegraph/internal/resolver"
)

// Router dispatches Create to the factory registered for the dependency kind
type Router struct {
	routes map[module.DependencyKind]module.Factory
}

// NewRouter routes entries and imports to normal, require.context to context and self
// references to self.
func NewRouter(normal, contextual, self module.Factory) *Router {
	return &Router{routes: map[module.DependencyKind]module.Factory{
		module.DepEntry:         normal,
		module.DepESMImport:     normal,
		module.DepESMReexport:   normal,
		module.DepRequire:       normal,
		module.DepDynamicImport: normal,
		module.DepContext:       contextual,
		module.DepSelfReference: self,
	}}
}

// Handle registers or replaces the factory of kind
func (r *Router) Handle(kind module.DependencyKind, f module.Factory) {
	r.routes[kind] = f
}

// Create implements module.Factory
func (r *Router) Create(ctx context.Context, params *module.FactorizeParams) (*module.FactorizeResult, error) {
	kind := params.Dependency.Kind()
	f, ok := r.routes[kind]
	if !ok || f == nil {
		return nil, errors.New(errors.ResolveFailed, fmt.Sprintf("no factory for dependency kind %q", kind))
	}
	return f.Create(ctx, params)
}

// NormalModuleFactory resolves requests to files and creates jsmodule modules.
// Requests listed as externals are left unresolved.
type NormalModuleFactory struct {
	Resolver  *resolver.Resolver
	Externals map[string]bool
	Layer     string
}

// NewNormalModuleFactory creates a factory over r
func NewNormalModuleFactory(r *resolver.Resolver, externals []string) *NormalModuleFactory {
	f := &NormalModuleFactory{Resolver: r, Externals: make(map[string]bool, len(externals))}
	for _, e := range externals {
		f.Externals[e] = true
	}
	return f
}

// splitLoaders separates an inline loader chain "a!b!./file" from the resource request
func splitLoaders(request string) ([]string, string) {
	parts := strings.Split(request, "!")
	if len(parts) == 1 {
		return nil, request
	}
	var loaders []string
	for _, p := range parts[:len(parts)-1] {
		if p != "" {
			loaders = append(loaders, p)
		}
	}
	return loaders, parts[len(parts)-1]
}

// Create implements module.Factory
func (f *NormalModuleFactory) Create(ctx context.Context, params *module.FactorizeParams) (*module.FactorizeResult, error) {
	request := params.Dependency.Request()
	if f.Externals[request] {
		return &module.FactorizeResult{}, nil
	}

	loaders, resource := splitLoaders(request)
	for _, l := range loaders {
		if !jsmodule.KnownLoader(l) {
			return nil, errors.New(errors.ResolveFailed, fmt.Sprintf("unknown loader %q in %q", l, request))
		}
	}

	res, err := f.Resolver.Resolve(ctx, params.Context, resource, params.ResolveOptions)
	result := &module.FactorizeResult{
		FileDependencies:    res.FileDependencies,
		MissingDependencies: res.MissingDependencies,
	}
	if err != nil {
		return result, err
	}
	if res.Ignored {
		result.Module = module.NewIgnoredModule(request)
		return result, nil
	}
	result.Module = jsmodule.New(res.Path, loaders, f.Layer)
	return result, nil
}

// ContextModuleFactory creates context modules for require.context dependencies
type ContextModuleFactory struct{}

// Create implements module.Factory
func (ContextModuleFactory) Create(ctx context.Context, params *module.FactorizeParams) (*module.FactorizeResult, error) {
	dep, ok := params.Dependency.(*module.ContextDependency)
	if !ok {
		return nil, errors.New(errors.ResolveFailed, fmt.Sprintf("context factory cannot handle %T", params.Dependency))
	}
	dir := dep.Directory
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(params.Context, dir)
	}
	result := &module.FactorizeResult{}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		result.MissingDependencies = module.NewFileSet(dir)
		return result, fmt.Errorf("%w: context directory %s", resolver.ErrNotFound, dir)
	}
	m, err := jsmodule.NewContextModule(dir, dep.Recursive, dep.Pattern)
	if err != nil {
		return result, err
	}
	result.Module = m
	result.ContextDependencies = module.NewFileSet(dir)
	return result, nil
}

// SelfModuleFactory resolves self references to the issuing module
type SelfModuleFactory struct{}

// Create implements module.Factory
func (SelfModuleFactory) Create(ctx context.Context, params *module.FactorizeParams) (*module.FactorizeResult, error) {
	if params.Origin == nil {
		return nil, errors.New(errors.ResolveFailed, "self reference without an issuing module")
	}
	return &module.FactorizeResult{Module: &module.SelfModule{Issuer: *params.Origin}}, nil
}

// New wires the default factories over r
func New(r *resolver.Resolver, externals []string) *Router {
	return NewRouter(NewNormalModuleFactory(r, externals), ContextModuleFactory{}, SelfModuleFactory{})
}
