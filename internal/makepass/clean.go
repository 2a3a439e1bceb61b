package makepass

import (
	"bundlegraph/internal/module"
)

// clean removes modules that lost every incoming connection during the pass. Removing a
// module queues the modules it pointed to for the same check.
//
// A module whose remaining incoming connections all come from modules no entry reaches
// (an orphaned cycle) is removed as well.
func (s *scheduler) clean() {
	queue := s.cleanQueue
	s.cleanQueue = nil
	var reachable map[module.Identifier]struct{}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if !s.graph.HasModule(id) {
			continue
		}
		if s.graph.IsReferenced(id) {
			if reachable == nil {
				reachable = s.graph.ReachableFromEntries()
			}
			if _, ok := reachable[id]; ok {
				s.logger.Debug("Module still used", "module", id)
				continue
			}
		}

		_, children := s.graph.Revoke(id)
		delete(s.art.FailedModules, id)
		s.stats.ModulesCleaned++
		s.logger.Debug("Removed orphaned module", "module", id)
		queue = append(queue, children...)
	}
}
