// Package compiler owns a compilation session: the module graph carried between passes,
// the build cache, the hook registry and the metrics. Build adds entries and runs a make
// pass; Rebuild runs an incremental pass for a set of changed files.
package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"bundlegraph/internal/buildcache"
	"bundlegraph/internal/config"
	"bundlegraph/internal/errors"
	"bundlegraph/internal/factory"
	"bundlegraph/internal/graph"
	"bundlegraph/internal/hooks"
	"bundlegraph/internal/makepass"
	"bundlegraph/internal/metrics"
	"bundlegraph/internal/module"
	"bundlegraph/internal/resolver"
	"bundlegraph/internal/slogutil"
	"bundlegraph/internal/storage"
)

// WatchSets are the paths whose change can affect the graph
type WatchSets struct {
	Files    module.FileSet
	Contexts module.FileSet
	Missing  module.FileSet
	Build    module.FileSet
}

// Option configures a Compiler
type Option func(*Compiler)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compiler) { c.logger = logger }
}

// WithFactory replaces the filesystem factories
func WithFactory(f module.Factory) Option {
	return func(c *Compiler) { c.factory = f }
}

// WithMetrics shares a metrics instance, e.g. one already served over HTTP
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Compiler) { c.metrics = m }
}

// Compiler is a compilation session. Passes are serialized; accessors may be called
// from any goroutine.
type Compiler struct {
	mu sync.Mutex

	id      string
	cfg     *config.Config
	art     *makepass.Artifact
	factory module.Factory
	resolve *module.ResolveOptions

	cache   *buildcache.Cache
	db      *storage.DB
	hooks   *hooks.Registry
	metrics *metrics.Metrics
	logger  *slog.Logger

	passes int
	last   *makepass.Result
}

// New creates a session for cfg. The persistent cache is opened when configured and
// must be released with Close.
func New(cfg *config.Config, opts ...Option) (*Compiler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(errors.ConfigInvalid, "invalid configuration", err)
	}

	c := &Compiler{
		id:     uuid.NewString(),
		cfg:    cfg,
		art:    makepass.NewArtifact(),
		hooks:  hooks.New(),
		logger: slogutil.NewDiscardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}
	c.logger = c.logger.With("session", c.id)

	resolve, err := resolveOptions(cfg)
	if err != nil {
		return nil, err
	}
	c.resolve = resolve
	if c.factory == nil {
		c.factory = factory.New(resolver.New(resolve), cfg.Externals)
	}

	if cfg.Cache.Enabled {
		cacheOpts := []buildcache.Option{buildcache.WithLogger(c.logger)}
		if cfg.Cache.Persistent {
			store, err := c.openStore()
			if err != nil {
				return nil, err
			}
			cacheOpts = append(cacheOpts, buildcache.WithStore(store))
		}
		c.cache = buildcache.New(cacheOpts...)
	}

	c.logger.Debug("Compilation session created",
		"context", cfg.Context,
		"cache", cfg.Cache.Enabled,
		"persistent", cfg.Cache.Persistent,
	)
	return c, nil
}

// resolveOptions merges the alias file under the configured aliases
func resolveOptions(cfg *config.Config) (*module.ResolveOptions, error) {
	opts := cfg.ResolveOptions()
	if cfg.Resolve.AliasFile == "" {
		return opts, nil
	}
	path := cfg.Resolve.AliasFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(cfg.Context, path)
	}
	fromFile, err := resolver.LoadAliasFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ConfigInvalid, "cannot load alias file", err)
	}
	merged := make(map[string]string, len(fromFile)+len(opts.Alias))
	for k, v := range fromFile {
		merged[k] = v
	}
	for k, v := range opts.Alias {
		merged[k] = v
	}
	opts.Alias = merged
	return opts, nil
}

func (c *Compiler) openStore() (*storage.Cache, error) {
	db, err := storage.Open(c.cfg.CacheDirectory(), c.logger)
	if err != nil {
		return nil, errors.Wrap(errors.CacheFailed, "cannot open persistent cache", err)
	}
	c.db = db
	store := storage.NewCache(db)

	if c.cfg.Cache.MaxAgeHours > 0 {
		cutoff := time.Now().Add(-time.Duration(c.cfg.Cache.MaxAgeHours) * time.Hour)
		pruned, err := store.Prune(cutoff)
		if err != nil {
			c.logger.Warn("Failed to prune build cache", "error", err)
		} else if pruned > 0 {
			c.logger.Info("Pruned build cache", "entries", pruned)
		}
	}
	return store, nil
}

// Close releases the persistent cache
func (c *Compiler) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// Build registers entries (name to request) that are not registered yet and runs a pass.
// A nil map uses the configured entries. Re-registering a name with a different request
// is an error.
func (c *Compiler) Build(ctx context.Context, entries map[string]string) (*makepass.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entries == nil {
		entries = c.cfg.Entries
	}
	registered := c.registeredEntries()

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var deps []module.Dependency
	for _, name := range names {
		request := entries[name]
		if prev, ok := registered[name]; ok {
			if prev != request {
				return nil, errors.New(errors.ConfigInvalid, fmt.Sprintf("entry %q is already registered as %q", name, prev))
			}
			continue
		}
		deps = append(deps, &module.EntryDependency{Name: name, Specifier: request, Directory: c.cfg.Context})
	}
	if len(deps) == 0 && c.passes == 0 {
		return nil, errors.New(errors.ConfigInvalid, "no entries configured")
	}

	return c.run(ctx, makepass.Params{Entries: deps})
}

// Rebuild runs an incremental pass for the changed files and forced dependencies
func (c *Compiler) Rebuild(ctx context.Context, modified, removed module.FileSet, forced []module.DependencyID) (*makepass.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if modified == nil {
		modified = module.NewFileSet()
	}
	if removed == nil {
		removed = module.NewFileSet()
	}
	return c.run(ctx, makepass.Params{
		ForceDependencies: forced,
		ModifiedFiles:     modified,
		RemovedFiles:      removed,
	})
}

func (c *Compiler) run(ctx context.Context, params makepass.Params) (*makepass.Result, error) {
	opts := makepass.Options{
		Bail:           c.cfg.Bail,
		Parallelism:    c.cfg.Workers(),
		Factory:        c.factory,
		Hooks:          c.hooks,
		Metrics:        c.metrics,
		Logger:         c.logger.With("pass", c.passes+1),
		SessionID:      c.id,
		ResolveOptions: c.resolve,
	}
	if c.cache != nil {
		opts.Cache = c.cache
	}

	res, err := makepass.Run(ctx, c.art, params, opts)
	c.passes++
	if res != nil {
		c.last = res
	}
	return res, err
}

func (c *Compiler) registeredEntries() map[string]string {
	out := make(map[string]string)
	for _, id := range c.art.Graph.EntryDependencies() {
		dep, _ := c.art.Graph.Dependency(id)
		if e, ok := dep.(*module.EntryDependency); ok {
			out[e.Name] = e.Specifier
		}
	}
	return out
}

// ID returns the session id
func (c *Compiler) ID() string { return c.id }

// Config returns the session configuration
func (c *Compiler) Config() *config.Config { return c.cfg }

// Hooks returns the session's hook registry
func (c *Compiler) Hooks() *hooks.Registry { return c.hooks }

// Metrics returns the session's metrics
func (c *Compiler) Metrics() *metrics.Metrics { return c.metrics }

// CacheStats returns the build cache counters; zero when the cache is disabled
func (c *Compiler) CacheStats() buildcache.Stats {
	if c.cache == nil {
		return buildcache.Stats{}
	}
	return c.cache.Stats()
}

// View calls fn with the graph while no pass runs
func (c *Compiler) View(fn func(g *graph.ModuleGraph)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.art.Graph)
}

// ModuleCount returns the number of modules in the graph
func (c *Compiler) ModuleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.art.Graph.ModuleCount()
}

// WatchSets returns copies of the aggregated watch sets
func (c *Compiler) WatchSets() WatchSets {
	c.mu.Lock()
	defer c.mu.Unlock()
	return WatchSets{
		Files:    c.art.FileDependencies.Clone(),
		Contexts: c.art.ContextDependencies.Clone(),
		Missing:  c.art.MissingDependencies.Clone(),
		Build:    c.art.BuildDependencies.Clone(),
	}
}

// FailedDependencies returns the dependencies that failed to factorize in the last pass
func (c *Compiler) FailedDependencies() []module.DependencyID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.art.FailedDependencyIDs()
}

// FailedModules returns the modules that failed to build in the last pass
func (c *Compiler) FailedModules() []module.Identifier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.art.FailedModuleIdentifiers()
}

// LastResult returns the result of the most recent pass, or nil
func (c *Compiler) LastResult() *makepass.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Passes returns the number of passes run so far
func (c *Compiler) Passes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.passes
}
