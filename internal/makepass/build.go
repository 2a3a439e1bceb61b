package makepass

import (
	"context"
	"time"

	"bundlegraph/internal/errors"
	"bundlegraph/internal/metrics"
	"bundlegraph/internal/module"
)

type buildTask struct {
	module module.Module
}

type buildOutcome struct {
	module   module.Module
	result   *module.BuildResult
	cacheHit bool
	err      error
	duration time.Duration
}

func (o *buildOutcome) taskName() string { return metrics.TaskBuild }

func (t *buildTask) run(s *scheduler) func(context.Context) outcome {
	m := t.module
	bc := &module.BuildContext{
		SessionID:      s.opts.SessionID,
		ResolveOptions: s.opts.ResolveOptions,
		Logger:         s.logger.With("module", string(m.Identifier())),
	}
	if p, ok := m.(module.ResolveOptionsProvider); ok {
		bc.ResolveOptions = bc.ResolveOptions.Merge(p.ResolveOptions())
	}
	registry := s.opts.Hooks
	cache := s.opts.Cache

	return func(ctx context.Context) outcome {
		start := time.Now()
		out := &buildOutcome{module: m}

		if err := registry.BeforeBuild(ctx, m); err != nil {
			out.err = err
			out.duration = time.Since(start)
			return out
		}

		compute := func(ctx context.Context) (*module.BuildResult, error) {
			return m.Build(ctx, bc)
		}
		if cache != nil {
			out.result, out.cacheHit, out.err = cache.Build(ctx, m, compute)
		} else {
			out.result, out.err = compute(ctx)
		}

		if out.err == nil {
			if out.cacheHit {
				out.err = registry.StillValidModule(ctx, m)
			} else {
				out.err = registry.SucceedModule(ctx, m, out.result)
			}
		}
		out.duration = time.Since(start)
		return out
	}
}

// handleBuild stores the build result on the module's node and queues its dependencies.
func (s *scheduler) handleBuild(o *buildOutcome) {
	id := o.module.Identifier()
	delete(s.pendingBuild, id)
	s.opts.Metrics.ObserveTask(metrics.TaskBuild, o.duration)

	gm := s.graph.MustGraphModule(id)
	gm.Profile.Build = o.duration
	gm.Profile.CacheHit = o.cacheHit
	if o.cacheHit {
		s.stats.CacheHits++
		s.opts.Metrics.CacheHit()
	}

	if o.result != nil {
		gm.BuildInfo = o.result.Info
		gm.BuildMeta = o.result.Meta
		for _, d := range o.result.Diagnostics {
			if d.Module == "" {
				d.Module = string(id)
			}
			s.diagnostics = append(s.diagnostics, d)
		}
	}

	if o.err != nil {
		err := o.err
		if errors.CodeOf(err) == errors.InternalError {
			err = errors.Wrap(errors.BuildFailed, "module build failed", o.err).WithModule(string(id))
		}
		s.report(err, string(id))
		s.art.FailedModules[id] = struct{}{}
		return
	}
	if o.result == nil {
		errors.Invariant("build of %s returned neither result nor error", id)
	}

	deps := s.graph.SetDependencies(id, o.result.Dependencies)
	s.logger.Debug("Built module",
		"module", id,
		"dependencies", len(deps),
		"cacheHit", o.cacheHit,
		"duration", o.duration.String(),
	)
	if len(deps) > 0 {
		s.processQueue = append(s.processQueue, &processDependenciesTask{origin: id, dependencyIDs: deps})
	}
}
