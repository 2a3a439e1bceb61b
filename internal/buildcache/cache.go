// Package buildcache implements the build cache of a compilation session.
//
// A build result is reused while every file, directory and missing path it depended on
// is unchanged, as recorded by blake2b fingerprints. Concurrent requests for the same
// module share one lookup-or-build through a singleflight group, so a module is never
// built twice at the same time. An optional SQLite tier keeps results across processes.
package buildcache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"bundlegraph/internal/errors"
	"bundlegraph/internal/module"
	"bundlegraph/internal/slogutil"
	"bundlegraph/internal/storage"
)

type entry struct {
	result       *module.BuildResult
	fingerprints map[string]string
}

type buildOutcome struct {
	result *module.BuildResult
	hit    bool
}

// Stats counts cache activity since the cache was created
type Stats struct {
	Hits            int64 `json:"hits"`
	Misses          int64 `json:"misses"`
	PersistentHits  int64 `json:"persistentHits"`
	PersistentError int64 `json:"persistentErrors"`
}

// Cache is a build cache safe for concurrent use
type Cache struct {
	mu      sync.RWMutex
	entries map[module.Identifier]*entry
	group   singleflight.Group

	store  *storage.Cache
	logger *slog.Logger

	hits, misses, persistentHits, persistentErrors atomic.Int64
}

// Option configures a Cache
type Option func(*Cache)

// WithStore adds a persistent tier
func WithStore(store *storage.Cache) Option {
	return func(c *Cache) { c.store = store }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// New creates an empty cache
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[module.Identifier]*entry),
		logger:  slogutil.NewDiscardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Build returns a still valid cached result for m, or calls compute and caches its result
// when it is cacheable. The boolean reports a cache hit.
func (c *Cache) Build(ctx context.Context, m module.Module, compute func(context.Context) (*module.BuildResult, error)) (*module.BuildResult, bool, error) {
	id := m.Identifier()
	v, err, _ := c.group.Do(string(id), func() (interface{}, error) {
		if res, ok := c.lookup(m); ok {
			c.hits.Add(1)
			return buildOutcome{result: res, hit: true}, nil
		}
		c.misses.Add(1)

		res, err := compute(ctx)
		if err != nil {
			c.Invalidate(id)
			return nil, err
		}
		c.put(m, res)
		return buildOutcome{result: res}, nil
	})
	if err != nil {
		return nil, false, err
	}
	out := v.(buildOutcome)
	return out.result, out.hit, nil
}

func (c *Cache) lookup(m module.Module) (*module.BuildResult, bool) {
	id := m.Identifier()
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()

	if ok {
		if StillValid(e.fingerprints) {
			return e.result, true
		}
		c.mu.Lock()
		delete(c.entries, id)
		c.mu.Unlock()
		return nil, false
	}

	if c.store == nil {
		return nil, false
	}
	stored, found, err := c.store.Get(string(id))
	if err != nil {
		c.persistentErrors.Add(1)
		c.logger.Warn("Build cache read failed", "module", id, "error", err)
		return nil, false
	}
	if !found || !StillValid(stored.Fingerprints) {
		return nil, false
	}
	res, err := decodeResult(stored.Payload)
	if err != nil {
		c.persistentErrors.Add(1)
		c.logger.Warn("Discarding unreadable build cache entry", "module", id, "error", err)
		return nil, false
	}

	c.persistentHits.Add(1)
	c.mu.Lock()
	c.entries[id] = &entry{result: res, fingerprints: stored.Fingerprints}
	c.mu.Unlock()
	return res, true
}

func (c *Cache) put(m module.Module, res *module.BuildResult) {
	id := m.Identifier()
	if res == nil || !res.Info.Cacheable {
		c.Invalidate(id)
		return
	}
	e := &entry{result: res, fingerprints: Fingerprint(res.Info)}

	c.mu.Lock()
	c.entries[id] = e
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	if err := c.persist(m, e); err != nil {
		c.persistentErrors.Add(1)
		c.logger.Warn("Build cache write failed", "module", id, "error", err)
	}
}

func (c *Cache) persist(m module.Module, e *entry) error {
	payload, err := encodeResult(e.result)
	if err != nil {
		return err
	}
	err = c.store.Set(&storage.BuildCacheEntry{
		Identifier:   string(m.Identifier()),
		Kind:         m.Kind().String(),
		Fingerprints: e.fingerprints,
		Payload:      payload,
	})
	if err != nil {
		return errors.Wrap(errors.CacheFailed, fmt.Sprintf("cannot store build of %s", m.Identifier()), err)
	}
	return nil
}

// Invalidate drops the cached result of id from every tier
func (c *Cache) Invalidate(id module.Identifier) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Delete(string(id)); err != nil {
			c.logger.Warn("Build cache delete failed", "module", id, "error", err)
		}
	}
}

// Len returns the number of results held in memory
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns the activity counters
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		PersistentHits:  c.persistentHits.Load(),
		PersistentError: c.persistentErrors.Load(),
	}
}
