package makepass

import (
	"bundlegraph/internal/module"
)

type processDependenciesTask struct {
	origin        module.Identifier
	dependencyIDs []module.DependencyID
}

// processDependencies fans the dependencies a build discovered out into factorize tasks.
// Dependencies with the same resource key share one task.
func (s *scheduler) processDependencies(t *processDependenciesTask) {
	origin := t.origin
	groups := make(map[string]*factorizeTask)
	var order []*factorizeTask

	for _, id := range t.dependencyIDs {
		dep, ok := s.graph.Dependency(id)
		if !ok {
			continue
		}
		key := module.ResourceKey(dep)
		if g, ok := groups[key]; ok {
			g.dependencyIDs = append(g.dependencyIDs, id)
			continue
		}
		ft := s.newFactorizeTask(&origin, dep, []module.DependencyID{id})
		groups[key] = ft
		order = append(order, ft)
	}

	s.factorizeQueue = append(s.factorizeQueue, order...)
}
