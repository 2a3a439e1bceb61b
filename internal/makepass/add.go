package makepass

import (
	"time"

	"bundlegraph/internal/errors"
	"bundlegraph/internal/module"
)

type addTask struct {
	module        module.Module
	origin        *module.Identifier
	dependencyIDs []module.DependencyID
	duration      time.Duration
}

// add integrates a factorized module. A new identifier becomes a node and is queued for
// build; a known identifier only gains connections.
func (s *scheduler) add(t *addTask) {
	m := t.module

	switch m.Kind() {
	case module.KindSelf:
		if t.origin == nil {
			errors.Invariant("self reference %s without an issuing module", m.Identifier())
		}
		for _, id := range t.dependencyIDs {
			s.graph.Connect(t.origin, id, *t.origin)
		}
		return
	case module.KindNormal, module.KindContext, module.KindRaw:
	default:
		errors.Invariant("module %s has unknown kind %v", m.Identifier(), m.Kind())
	}

	id := m.Identifier()
	if s.graph.HasModule(id) {
		for _, dep := range t.dependencyIDs {
			s.graph.Connect(t.origin, dep, id)
		}
		s.stats.ModulesReused++
		s.logger.Debug("Reused module", "module", id)
		return
	}

	gm := s.graph.AddModule(m, t.origin)
	gm.Profile.Factorize = t.duration
	for _, dep := range t.dependencyIDs {
		s.graph.Connect(t.origin, dep, id)
	}
	s.stats.ModulesAdded++
	s.added[id] = struct{}{}
	s.buildQueue = append(s.buildQueue, &buildTask{module: m})
}
