// Package makepass builds and incrementally updates the module graph.
//
// A pass resolves dependencies into modules (factorize), inserts them into the graph once
// per identifier (add), runs their content build (build), and turns the dependencies a
// build discovered into new factorize work (process dependencies), until no work is left.
// Modules left without incoming connections after an incremental pass are removed (clean).
//
// Factorize and build run on worker goroutines. Every graph mutation happens on the
// goroutine that called Run.
package makepass

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"bundlegraph/internal/errors"
	"bundlegraph/internal/graph"
	"bundlegraph/internal/hooks"
	"bundlegraph/internal/metrics"
	"bundlegraph/internal/module"
)

// Cache is the build cache collaborator. Build returns the cached result for m when it is
// still valid and otherwise calls compute. At most one compute per identifier may run at a
// time.
type Cache interface {
	Build(ctx context.Context, m module.Module, compute func(context.Context) (*module.BuildResult, error)) (*module.BuildResult, bool, error)
}

// Options configures a pass
type Options struct {
	// Bail makes the first resolve or build error fatal
	Bail bool
	// Parallelism bounds concurrently running factorize and build tasks; 0 means GOMAXPROCS
	Parallelism int

	Factory module.Factory
	Cache   Cache
	Hooks   *hooks.Registry
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	SessionID string
	// ResolveOptions is the base resolve configuration; modules and dependencies may override it
	ResolveOptions *module.ResolveOptions
}

// Params is the input of one pass
type Params struct {
	// Entries are new entry dependencies to add to the graph
	Entries []module.Dependency
	// ForceDependencies are dependency ids whose owning module must be rebuilt. Entry
	// dependencies are factorized again instead.
	ForceDependencies []module.DependencyID
	// ModifiedFiles and RemovedFiles are absolute paths changed since the previous pass
	ModifiedFiles module.FileSet
	RemovedFiles  module.FileSet
}

// Stats counts the work a pass performed
type Stats struct {
	FactorizeTasks int           `json:"factorizeTasks"`
	BuildTasks     int           `json:"buildTasks"`
	CacheHits      int           `json:"cacheHits"`
	ModulesAdded   int           `json:"modulesAdded"`
	ModulesReused  int           `json:"modulesReused"`
	ModulesRevoked int           `json:"modulesRevoked"`
	ModulesCleaned int           `json:"modulesCleaned"`
	Duration       time.Duration `json:"duration"`
}

// Result is the outcome of a pass
type Result struct {
	Stats Stats
	// ExportsMayChange reports that a rebuilt module declares different dependencies than
	// before, or that modules were added to or removed from the graph.
	ExportsMayChange bool
	Diagnostics      errors.Diagnostics
}

type factorizeInfo struct {
	files    module.FileSet
	contexts module.FileSet
	missing  module.FileSet
}

// Artifact is the state a compilation carries from one pass to the next.
type Artifact struct {
	Graph *graph.ModuleGraph

	// FailedDependencies could not be factorized in the last pass, or were left unresolved
	// when it failed
	FailedDependencies map[module.DependencyID]struct{}
	// FailedModules failed to build in the last pass, or were left unbuilt when it failed
	FailedModules map[module.Identifier]struct{}

	// Aggregated watch sets over every module and dependency in the graph
	FileDependencies    module.FileSet
	ContextDependencies module.FileSet
	MissingDependencies module.FileSet
	BuildDependencies   module.FileSet

	factorizeInfo map[module.DependencyID]*factorizeInfo
	// modules a failed pass revoked edges from before it could run clean
	cleanCandidates []module.Identifier
}

// NewArtifact creates the state for an empty graph
func NewArtifact() *Artifact {
	return &Artifact{
		Graph:               graph.New(),
		FailedDependencies:  make(map[module.DependencyID]struct{}),
		FailedModules:       make(map[module.Identifier]struct{}),
		FileDependencies:    module.NewFileSet(),
		ContextDependencies: module.NewFileSet(),
		MissingDependencies: module.NewFileSet(),
		BuildDependencies:   module.NewFileSet(),
		factorizeInfo:       make(map[module.DependencyID]*factorizeInfo),
	}
}

// FailedDependencyIDs returns the failed dependency ids in ascending order
func (a *Artifact) FailedDependencyIDs() []module.DependencyID {
	ids := make([]module.DependencyID, 0, len(a.FailedDependencies))
	for id := range a.FailedDependencies {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// FailedModuleIdentifiers returns the modules that failed to build, sorted
func (a *Artifact) FailedModuleIdentifiers() []module.Identifier {
	ids := make([]module.Identifier, 0, len(a.FailedModules))
	for id := range a.FailedModules {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// collectWatchSets recomputes the aggregated watch sets from the graph and drops
// factorize records of dependencies that no longer exist.
func (a *Artifact) collectWatchSets() {
	files, contexts := module.NewFileSet(), module.NewFileSet()
	missing, build := module.NewFileSet(), module.NewFileSet()

	for _, id := range a.Graph.ModuleIdentifiers() {
		info := a.Graph.MustGraphModule(id).BuildInfo
		files.AddAll(info.FileDependencies)
		contexts.AddAll(info.ContextDependencies)
		missing.AddAll(info.MissingDependencies)
		build.AddAll(info.BuildDependencies)
	}
	for id, info := range a.factorizeInfo {
		if _, ok := a.Graph.Dependency(id); !ok {
			delete(a.factorizeInfo, id)
			continue
		}
		files.AddAll(info.files)
		contexts.AddAll(info.contexts)
		missing.AddAll(info.missing)
	}

	for id := range a.FailedDependencies {
		if _, ok := a.Graph.Dependency(id); !ok {
			delete(a.FailedDependencies, id)
		}
	}

	a.FileDependencies = files
	a.ContextDependencies = contexts
	a.MissingDependencies = missing
	a.BuildDependencies = build
}

// Run executes one make pass over art. On a fatal error the partially updated graph is
// left in art and the error is returned together with the result gathered so far. Work
// the failed pass did not finish is recorded in FailedDependencies and FailedModules and
// retried by the next pass.
func Run(ctx context.Context, art *Artifact, params Params, opts Options) (*Result, error) {
	if opts.Factory == nil {
		return nil, errors.New(errors.InternalError, "make pass requires a factory")
	}
	s := newScheduler(art, opts)
	return s.run(ctx, params)
}
