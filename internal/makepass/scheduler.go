package makepass

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"bundlegraph/internal/errors"
	"bundlegraph/internal/graph"
	"bundlegraph/internal/hooks"
	"bundlegraph/internal/metrics"
	"bundlegraph/internal/module"
	"bundlegraph/internal/slogutil"
)

// outcome is what a worker task sends back to the coordinator
type outcome interface {
	taskName() string
}

// failedOutcome replaces the result of a task that panicked or could not start
type failedOutcome struct {
	task string
	err  error
}

func (o *failedOutcome) taskName() string { return o.task }

// skippedOutcome is sent by tasks that never ran because the pass was shutting down
type skippedOutcome struct {
	task string
}

func (o *skippedOutcome) taskName() string { return o.task }

type snapshot struct {
	issuer    *module.Identifier
	signature []string
}

type scheduler struct {
	art    *Artifact
	graph  *graph.ModuleGraph
	opts   Options
	logger *slog.Logger

	sem      *semaphore.Weighted
	results  chan outcome
	active   int
	shutdown atomic.Bool
	fatal    error

	factorizeQueue []*factorizeTask
	addQueue       []*addTask
	buildQueue     []*buildTask
	processQueue   []*processDependenciesTask

	// dispatched tasks whose outcome has not been handled yet
	pendingFactorize map[*factorizeTask]struct{}
	pendingBuild     map[module.Identifier]struct{}

	snapshots  map[module.Identifier]snapshot
	added      map[module.Identifier]struct{}
	cleanQueue []module.Identifier

	stats       Stats
	diagnostics errors.Diagnostics
}

func newScheduler(art *Artifact, opts Options) *scheduler {
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.GOMAXPROCS(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &scheduler{
		art:       art,
		graph:     art.Graph,
		opts:      opts,
		logger:    logger,
		sem:       semaphore.NewWeighted(int64(opts.Parallelism)),
		results:   make(chan outcome, opts.Parallelism),
		snapshots: make(map[module.Identifier]snapshot),
		added:     make(map[module.Identifier]struct{}),

		pendingFactorize: make(map[*factorizeTask]struct{}),
		pendingBuild:     make(map[module.Identifier]struct{}),
	}
}

func (s *scheduler) run(ctx context.Context, params Params) (*Result, error) {
	start := time.Now()

	info := hooks.PassInfo{
		SessionID:     s.opts.SessionID,
		Entries:       len(params.Entries),
		ModifiedFiles: len(params.ModifiedFiles),
		RemovedFiles:  len(params.RemovedFiles),
		Forced:        len(params.ForceDependencies),
	}
	if err := s.opts.Hooks.PassStart(ctx, info); err != nil {
		s.logger.Error("Pass start hook failed", "error", err)
		return s.finish(start), err
	}

	s.cutout(params)
	s.loop(ctx)

	if s.fatal != nil {
		s.logger.Error("Make pass failed", "error", s.fatal)
		s.recordUnfinished()
		s.art.collectWatchSets()
		return s.finish(start), s.fatal
	}

	s.clean()
	exportsChanged := s.restoreIssuers()
	s.art.collectWatchSets()

	res := s.finish(start)
	res.ExportsMayChange = exportsChanged
	s.logger.Info("Make pass finished",
		"modules", s.graph.ModuleCount(),
		"factorized", s.stats.FactorizeTasks,
		"built", s.stats.BuildTasks,
		"cacheHits", s.stats.CacheHits,
		"added", s.stats.ModulesAdded,
		"cleaned", s.stats.ModulesCleaned,
		"diagnostics", len(s.diagnostics),
		"duration", s.stats.Duration.String(),
	)
	return res, nil
}

func (s *scheduler) finish(start time.Time) *Result {
	s.stats.Duration = time.Since(start)
	s.opts.Metrics.Diagnostics(len(s.diagnostics))
	s.opts.Metrics.ObservePass(metrics.PassSummary{
		Duration:  s.stats.Duration,
		Added:     s.stats.ModulesAdded,
		Reused:    s.stats.ModulesReused,
		Cleaned:   s.stats.ModulesCleaned,
		GraphSize: s.graph.ModuleCount(),
		Failed:    s.fatal != nil,
	})
	return &Result{
		Stats:       s.stats,
		Diagnostics: s.diagnostics,
	}
}

// cutout revokes every module invalidated by the change set and seeds factorize work.
func (s *scheduler) cutout(params Params) {
	changed := params.ModifiedFiles.Clone()
	changed.AddAll(params.RemovedFiles)

	forced := make(map[module.Identifier]struct{})
	refactorize := make(map[module.DependencyID]struct{})

	for id := range s.art.FailedModules {
		forced[id] = struct{}{}
	}
	for id := range s.art.FailedDependencies {
		refactorize[id] = struct{}{}
	}
	s.art.FailedModules = make(map[module.Identifier]struct{})
	s.art.FailedDependencies = make(map[module.DependencyID]struct{})
	s.cleanQueue = append(s.cleanQueue, s.art.cleanCandidates...)
	s.art.cleanCandidates = nil

	if len(changed) > 0 {
		for _, id := range s.graph.ModuleIdentifiers() {
			if affectedBy(s.graph.MustGraphModule(id).BuildInfo, changed) {
				forced[id] = struct{}{}
			}
		}
		for id, info := range s.art.factorizeInfo {
			if info.files.Intersects(changed) || info.missing.Intersects(changed) || info.contexts.ContainsUnder(changed) {
				refactorize[id] = struct{}{}
			}
		}
	}

	for _, depID := range params.ForceDependencies {
		if _, ok := s.graph.Dependency(depID); !ok {
			continue
		}
		if parent := s.graph.DependencyParent(depID); parent != nil {
			forced[*parent] = struct{}{}
		} else {
			refactorize[depID] = struct{}{}
		}
	}

	ids := make([]module.Identifier, 0, len(forced))
	for id := range forced {
		if s.graph.HasModule(id) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		gm := s.graph.MustGraphModule(id)
		s.snapshots[id] = snapshot{
			issuer:    gm.Issuer,
			signature: s.signature(gm),
		}
		incoming, children := s.graph.Revoke(id)
		for _, dep := range incoming {
			refactorize[dep] = struct{}{}
		}
		s.cleanQueue = append(s.cleanQueue, children...)
		s.stats.ModulesRevoked++
		s.logger.Debug("Revoked module", "module", id, "dependents", len(incoming))
	}

	depIDs := make([]module.DependencyID, 0, len(refactorize))
	for id := range refactorize {
		if _, ok := s.graph.Dependency(id); ok {
			depIDs = append(depIDs, id)
		}
	}
	sort.Slice(depIDs, func(i, j int) bool { return depIDs[i] < depIDs[j] })

	for _, id := range depIDs {
		if target, ok := s.graph.Disconnect(id); ok {
			s.cleanQueue = append(s.cleanQueue, target)
		}
		dep, _ := s.graph.Dependency(id)
		s.factorizeQueue = append(s.factorizeQueue, s.newFactorizeTask(s.graph.DependencyParent(id), dep, []module.DependencyID{id}))
	}

	for _, dep := range params.Entries {
		id := s.graph.AddDependency(dep, nil)
		s.factorizeQueue = append(s.factorizeQueue, s.newFactorizeTask(nil, dep, []module.DependencyID{id}))
	}

	if len(ids) > 0 || len(depIDs) > 0 {
		s.logger.Debug("Computed rebuild set", "modules", len(ids), "dependencies", len(depIDs), "changedFiles", len(changed))
	}
}

func affectedBy(info module.BuildInfo, changed module.FileSet) bool {
	return info.FileDependencies.Intersects(changed) ||
		info.MissingDependencies.Intersects(changed) ||
		info.BuildDependencies.Intersects(changed) ||
		info.ContextDependencies.ContainsUnder(changed)
}

func (s *scheduler) signature(gm *graph.GraphModule) []string {
	deps := make([]module.Dependency, 0, len(gm.Dependencies))
	for _, id := range gm.Dependencies {
		if d, ok := s.graph.Dependency(id); ok {
			deps = append(deps, d)
		}
	}
	return module.Signature(deps)
}

// loop drives the task queues to a fixed point: no queued work, no task running.
func (s *scheduler) loop(ctx context.Context) {
	for {
		for len(s.addQueue) > 0 || len(s.processQueue) > 0 {
			for len(s.addQueue) > 0 {
				t := s.addQueue[0]
				s.addQueue = s.addQueue[1:]
				s.add(t)
			}
			for len(s.processQueue) > 0 {
				t := s.processQueue[0]
				s.processQueue = s.processQueue[1:]
				s.processDependencies(t)
			}
		}

		for _, t := range s.factorizeQueue {
			s.stats.FactorizeTasks++
			s.pendingFactorize[t] = struct{}{}
			s.dispatch(ctx, "factorize", t.run(s))
		}
		s.factorizeQueue = s.factorizeQueue[:0]

		for _, t := range s.buildQueue {
			s.stats.BuildTasks++
			s.pendingBuild[t.module.Identifier()] = struct{}{}
			s.dispatch(ctx, "build", t.run(s))
		}
		s.buildQueue = s.buildQueue[:0]

		if s.active == 0 {
			return
		}

		// All ready work is dispatched, so wait for the next result instead of polling.
		var out outcome
		select {
		case out = <-s.results:
		default:
			select {
			case out = <-s.results:
			case <-ctx.Done():
				s.fail(errors.Wrap(errors.PassCanceled, "make pass canceled", ctx.Err()))
				s.drain()
				return
			}
		}
		s.active--
		s.handle(out)

		if s.fatal != nil {
			s.drain()
			return
		}
	}
}

// dispatch runs work on a worker goroutine. Every dispatched task sends exactly one outcome.
func (s *scheduler) dispatch(ctx context.Context, name string, work func(context.Context) outcome) {
	s.active++
	go func() {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			s.results <- &failedOutcome{
				task: name,
				err:  errors.Wrap(errors.PassCanceled, "make pass canceled", err),
			}
			return
		}
		defer s.sem.Release(1)

		if s.shutdown.Load() {
			s.results <- &skippedOutcome{task: name}
			return
		}
		s.results <- protect(ctx, name, work)
	}()
}

func protect(ctx context.Context, name string, work func(context.Context) outcome) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = &failedOutcome{
				task: name,
				err:  errors.New(errors.TaskPanicked, fmt.Sprintf("%s task panicked: %v", name, r)),
			}
		}
	}()
	return work(ctx)
}

func (s *scheduler) handle(out outcome) {
	switch o := out.(type) {
	case *factorizeOutcome:
		s.handleFactorize(o)
	case *buildOutcome:
		s.handleBuild(o)
	case *failedOutcome:
		s.fail(o.err)
	case *skippedOutcome:
		// nothing ran
	default:
		errors.Invariant("unknown task outcome %T", out)
	}
}

// fail records the first fatal error and flags shutdown so queued workers skip their work
func (s *scheduler) fail(err error) {
	if s.fatal == nil {
		s.fatal = err
	}
	s.shutdown.Store(true)
}

// drain discards the outcomes of tasks still in flight
func (s *scheduler) drain() {
	n := s.active
	s.active = 0
	if n == 0 {
		return
	}
	results := s.results
	go func() {
		for i := 0; i < n; i++ {
			<-results
		}
	}()
}

// recordUnfinished marks the work a fatal pass left undone as failed so the next pass
// retries it: dependencies whose factorize outcome was never handled or whose module was
// never added, and modules whose build never finished. Pending orphan checks carry over too.
func (s *scheduler) recordUnfinished() {
	failDeps := func(ids []module.DependencyID) {
		for _, id := range ids {
			s.art.FailedDependencies[id] = struct{}{}
		}
	}
	for t := range s.pendingFactorize {
		failDeps(t.dependencyIDs)
	}
	for _, t := range s.factorizeQueue {
		failDeps(t.dependencyIDs)
	}
	for _, t := range s.addQueue {
		failDeps(t.dependencyIDs)
	}
	for _, t := range s.processQueue {
		failDeps(t.dependencyIDs)
	}

	for id := range s.pendingBuild {
		s.art.FailedModules[id] = struct{}{}
	}
	for _, t := range s.buildQueue {
		s.art.FailedModules[t.module.Identifier()] = struct{}{}
	}

	s.art.cleanCandidates = append(s.art.cleanCandidates, s.cleanQueue...)
	s.cleanQueue = nil

	s.logger.Debug("Recorded unfinished work",
		"dependencies", len(s.art.FailedDependencies),
		"modules", len(s.art.FailedModules),
	)
}

// report records a recoverable error, or makes it fatal under bail
func (s *scheduler) report(err error, id string) {
	if s.opts.Bail {
		s.fail(err)
		return
	}
	s.diagnostics = append(s.diagnostics, errors.NewDiagnostic(err, id))
	s.logger.Warn("Recoverable error", "module", id, "error", err)
}

// restoreIssuers re-attaches the issuers of rebuilt modules and reports whether the
// exported surface of the graph may have changed.
func (s *scheduler) restoreIssuers() bool {
	changed := s.stats.ModulesCleaned > 0
	for id := range s.added {
		if _, rebuilt := s.snapshots[id]; !rebuilt {
			changed = true
		}
	}

	for id, snap := range s.snapshots {
		gm, ok := s.graph.GraphModule(id)
		if !ok {
			changed = true
			continue
		}
		if snap.issuer == nil || s.graph.HasModule(*snap.issuer) {
			gm.Issuer = snap.issuer
		}
		if !equalSignature(snap.signature, s.signature(gm)) {
			changed = true
		}
	}
	return changed
}

func equalSignature(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
