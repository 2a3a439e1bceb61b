// Package module defines the data model shared by the make pass and its collaborators:
// module identifiers, dependency records, the Module and Dependency capability sets, and
// the payloads exchanged with factories and the build step.
package module

import (
	"context"
	"log/slog"

	"bundlegraph/internal/errors"
)

// Identifier is the stable key of a module. It is derived from the resource, the loader
// chain and the layer; identical identifiers denote the same graph node.
type Identifier string

// DependencyID is the handle of one dependency record in a module graph.
type DependencyID uint64

// Kind is the finite set of module variants the make pass distinguishes.
type Kind int

const (
	// KindNormal is a module backed by a resource on disk
	KindNormal Kind = iota
	// KindContext is a module that stands for a directory of modules (require.context)
	KindContext
	// KindSelf is a reference back to the issuing module; it never becomes a node
	KindSelf
	// KindRaw is a module with fixed source and no dependencies
	KindRaw
)

// String returns a string representation of the module kind
func (k Kind) String() string {
	switch k {
	case KindNormal:
		return "normal"
	case KindContext:
		return "context"
	case KindSelf:
		return "self"
	case KindRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// SourceKind names a kind of output a module contributes to
type SourceKind string

const (
	SourceJavaScript SourceKind = "javascript"
	SourceJSON       SourceKind = "json"
	SourceAsset      SourceKind = "asset"
)

// Module is the capability set every module variant exposes.
type Module interface {
	Identifier() Identifier
	Kind() Kind
	SourceKinds() []SourceKind

	// Context is the directory the module's own requests are resolved from.
	// Empty when the module issues no requests.
	Context() string

	// Build transforms the module content and reports the dependencies it discovered.
	// Build is called from a worker goroutine, at most once concurrently per identifier.
	Build(ctx context.Context, bc *BuildContext) (*BuildResult, error)
}

// ResolveOptionsProvider is implemented by modules that carry their own resolve
// configuration for the requests they issue.
type ResolveOptionsProvider interface {
	ResolveOptions() *ResolveOptions
}

// ResolveOptions is the resolver configuration passed through to factories.
type ResolveOptions struct {
	Extensions []string          `json:"extensions,omitempty"`
	MainFiles  []string          `json:"mainFiles,omitempty"`
	Modules    []string          `json:"modules,omitempty"`
	Alias      map[string]string `json:"alias,omitempty"`
}

// BuildContext is passed to Module.Build.
type BuildContext struct {
	SessionID      string
	ResolveOptions *ResolveOptions
	Logger         *slog.Logger
}

// BuildMeta is module-level metadata produced by a build.
type BuildMeta struct {
	ExportsType    string `json:"exportsType,omitempty"`
	SideEffectFree bool   `json:"sideEffectFree,omitempty"`
	Size           int    `json:"size"`
}

// BuildInfo records what a build depended on. The file, context and missing sets drive
// watch-mode invalidation; Hash fingerprints the built content.
type BuildInfo struct {
	Cacheable           bool    `json:"cacheable"`
	Hash                string  `json:"hash,omitempty"`
	FileDependencies    FileSet `json:"fileDependencies,omitempty"`
	ContextDependencies FileSet `json:"contextDependencies,omitempty"`
	MissingDependencies FileSet `json:"missingDependencies,omitempty"`
	BuildDependencies   FileSet `json:"buildDependencies,omitempty"`
}

// BuildResult is the payload of a module build.
type BuildResult struct {
	Dependencies []Dependency
	Info         BuildInfo
	Meta         BuildMeta
	Diagnostics  errors.Diagnostics
}

// Factory turns one dependency into a module. Create may return a non-nil result together
// with an error; the result's diagnostics and dependency sets are kept in that case.
type Factory interface {
	Create(ctx context.Context, params *FactorizeParams) (*FactorizeResult, error)
}

// FactoryFunc adapts a function to Factory
type FactoryFunc func(ctx context.Context, params *FactorizeParams) (*FactorizeResult, error)

// Create implements Factory
func (f FactoryFunc) Create(ctx context.Context, params *FactorizeParams) (*FactorizeResult, error) {
	return f(ctx, params)
}

// FactorizeParams is the input of a factory call.
type FactorizeParams struct {
	Dependency     Dependency
	Context        string
	Origin         *Identifier
	ResolveOptions *ResolveOptions
}

// FactorizeResult is the output of a factory call. A nil Module means the dependency is
// intentionally left unresolved (for example an external request) and gets no connection.
type FactorizeResult struct {
	Module              Module
	FileDependencies    FileSet
	ContextDependencies FileSet
	MissingDependencies FileSet
	Diagnostics         errors.Diagnostics
}
