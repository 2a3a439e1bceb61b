package makepass

import (
	"context"
	"fmt"
	"time"

	"bundlegraph/internal/errors"
	"bundlegraph/internal/metrics"
	"bundlegraph/internal/module"
)

// factorizeTask resolves one dependency on behalf of every dependency id in the group.
type factorizeTask struct {
	origin         *module.Identifier
	dependency     module.Dependency
	dependencyIDs  []module.DependencyID
	context        string
	resolveOptions *module.ResolveOptions
}

type factorizeOutcome struct {
	task     *factorizeTask
	result   *module.FactorizeResult
	err      error
	duration time.Duration
}

func (o *factorizeOutcome) taskName() string { return metrics.TaskFactorize }

// newFactorizeTask derives the resolve context and options from the origin module and the
// dependency itself. Called on the coordinator only.
func (s *scheduler) newFactorizeTask(origin *module.Identifier, dep module.Dependency, ids []module.DependencyID) *factorizeTask {
	t := &factorizeTask{
		origin:         origin,
		dependency:     dep,
		dependencyIDs:  ids,
		resolveOptions: s.opts.ResolveOptions,
	}
	if origin != nil {
		if m, ok := s.graph.Module(*origin); ok {
			t.context = m.Context()
			if p, ok := m.(module.ResolveOptionsProvider); ok {
				t.resolveOptions = t.resolveOptions.Merge(p.ResolveOptions())
			}
		}
	}
	if c, ok := dep.(module.Contextual); ok && c.ResolveContext() != "" {
		t.context = c.ResolveContext()
	}
	t.resolveOptions = t.resolveOptions.Merge(dep.ResolveOptions())
	return t
}

func (t *factorizeTask) run(s *scheduler) func(context.Context) outcome {
	factory := s.opts.Factory
	return func(ctx context.Context) outcome {
		start := time.Now()
		res, err := factory.Create(ctx, &module.FactorizeParams{
			Dependency:     t.dependency,
			Context:        t.context,
			Origin:         t.origin,
			ResolveOptions: t.resolveOptions,
		})
		return &factorizeOutcome{task: t, result: res, err: err, duration: time.Since(start)}
	}
}

// handleFactorize records the watch sets and diagnostics of a factorize result and queues
// the module for add.
func (s *scheduler) handleFactorize(o *factorizeOutcome) {
	t := o.task
	delete(s.pendingFactorize, t)
	s.opts.Metrics.ObserveTask(metrics.TaskFactorize, o.duration)

	originID := ""
	if t.origin != nil {
		originID = string(*t.origin)
	}

	if o.result != nil {
		info := &factorizeInfo{
			files:    o.result.FileDependencies,
			contexts: o.result.ContextDependencies,
			missing:  o.result.MissingDependencies,
		}
		for _, id := range t.dependencyIDs {
			s.art.factorizeInfo[id] = info
		}
		s.diagnostics = append(s.diagnostics, o.result.Diagnostics...)
	}

	if o.err != nil {
		err := o.err
		if errors.CodeOf(err) == errors.InternalError {
			err = errors.Wrap(errors.ResolveFailed, fmt.Sprintf("cannot resolve %q", t.dependency.Request()), o.err).WithModule(originID)
		}
		s.report(err, originID)
		for _, id := range t.dependencyIDs {
			s.art.FailedDependencies[id] = struct{}{}
		}
		return
	}

	if o.result == nil || o.result.Module == nil {
		s.logger.Debug("Dependency left unresolved", "request", t.dependency.Request(), "origin", originID)
		return
	}

	s.logger.Debug("Factorized dependency",
		"request", t.dependency.Request(),
		"module", o.result.Module.Identifier(),
		"duration", o.duration.String(),
	)
	s.addQueue = append(s.addQueue, &addTask{
		module:        o.result.Module,
		origin:        t.origin,
		dependencyIDs: t.dependencyIDs,
		duration:      o.duration,
	})
}
