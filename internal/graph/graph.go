// Package graph provides the module graph: an arena of module nodes keyed by identifier,
// dependency records keyed by id, and the connections that resolve one to the other.
//
// Nodes never own each other. Cycles are plain map entries, and removing a node only
// touches the records that mention it.
//
// The graph is not synchronized. The make pass mutates it from a single coordinating
// goroutine; readers must not run concurrently with a pass.
package graph

import (
	"sort"
	"time"

	"bundlegraph/internal/errors"
	"bundlegraph/internal/module"
)

// GraphModule is the per-node bookkeeping of a module.
type GraphModule struct {
	Identifier module.Identifier
	// Issuer is the module whose dependency created this node; nil for entry modules
	Issuer *module.Identifier
	// Dependencies are the outgoing dependency ids in declaration order
	Dependencies []module.DependencyID

	BuildInfo module.BuildInfo
	BuildMeta module.BuildMeta
	Profile   Profile

	incoming map[module.DependencyID]struct{}
}

// Profile records timings of the most recent factorize and build of a module
type Profile struct {
	Factorize time.Duration `json:"factorize"`
	Build     time.Duration `json:"build"`
	CacheHit  bool          `json:"cacheHit"`
}

// Connection is a resolved edge. Origin is nil for entry connections.
type Connection struct {
	Origin     *module.Identifier
	Dependency module.DependencyID
	Target     module.Identifier
}

type dependencyRecord struct {
	dependency module.Dependency
	parent     *module.Identifier
}

// ModuleGraph stores modules, dependency records and connections.
type ModuleGraph struct {
	modules      map[module.Identifier]module.Module
	graphModules map[module.Identifier]*GraphModule
	dependencies map[module.DependencyID]*dependencyRecord
	connections  map[module.DependencyID]*Connection
	nextID       module.DependencyID
}

// New creates an empty module graph
func New() *ModuleGraph {
	return &ModuleGraph{
		modules:      make(map[module.Identifier]module.Module),
		graphModules: make(map[module.Identifier]*GraphModule),
		dependencies: make(map[module.DependencyID]*dependencyRecord),
		connections:  make(map[module.DependencyID]*Connection),
	}
}

// ============================================================================
// Dependencies
// ============================================================================

// AddDependency registers dep with its parent module (nil for entries) and returns its id
func (g *ModuleGraph) AddDependency(dep module.Dependency, parent *module.Identifier) module.DependencyID {
	g.nextID++
	id := g.nextID
	g.dependencies[id] = &dependencyRecord{dependency: dep, parent: copyID(parent)}
	return id
}

// Dependency returns the dependency record for id
func (g *ModuleGraph) Dependency(id module.DependencyID) (module.Dependency, bool) {
	rec, ok := g.dependencies[id]
	if !ok {
		return nil, false
	}
	return rec.dependency, true
}

// DependencyParent returns the module that declared id, or nil for entries and unknown ids
func (g *ModuleGraph) DependencyParent(id module.DependencyID) *module.Identifier {
	rec, ok := g.dependencies[id]
	if !ok {
		return nil
	}
	return copyID(rec.parent)
}

// RemoveDependency drops a dependency record and its connection
func (g *ModuleGraph) RemoveDependency(id module.DependencyID) {
	g.disconnect(id)
	delete(g.dependencies, id)
}

// EntryDependencies returns the ids of dependencies without a parent, ascending
func (g *ModuleGraph) EntryDependencies() []module.DependencyID {
	var ids []module.DependencyID
	for id, rec := range g.dependencies {
		if rec.parent == nil {
			ids = append(ids, id)
		}
	}
	sortIDs(ids)
	return ids
}

// SetDependencies registers deps as the outgoing dependencies of the module and returns their ids.
// Any previous outgoing dependencies are removed first.
func (g *ModuleGraph) SetDependencies(id module.Identifier, deps []module.Dependency) []module.DependencyID {
	gm := g.MustGraphModule(id)
	for _, old := range gm.Dependencies {
		g.RemoveDependency(old)
	}
	ids := make([]module.DependencyID, len(deps))
	for i, d := range deps {
		ids[i] = g.AddDependency(d, &id)
	}
	gm.Dependencies = ids
	return ids
}

// ============================================================================
// Modules
// ============================================================================

// AddModule inserts a new node. Inserting an identifier twice is a scheduler bug.
func (g *ModuleGraph) AddModule(m module.Module, issuer *module.Identifier) *GraphModule {
	id := m.Identifier()
	if _, exists := g.modules[id]; exists {
		errors.Invariant("module %s added twice", id)
	}
	gm := &GraphModule{
		Identifier: id,
		Issuer:     copyID(issuer),
		incoming:   make(map[module.DependencyID]struct{}),
	}
	g.modules[id] = m
	g.graphModules[id] = gm
	return gm
}

// Module returns the module stored under id
func (g *ModuleGraph) Module(id module.Identifier) (module.Module, bool) {
	m, ok := g.modules[id]
	return m, ok
}

// HasModule reports whether a node exists for id
func (g *ModuleGraph) HasModule(id module.Identifier) bool {
	_, ok := g.modules[id]
	return ok
}

// GraphModule returns the bookkeeping node for id
func (g *ModuleGraph) GraphModule(id module.Identifier) (*GraphModule, bool) {
	gm, ok := g.graphModules[id]
	return gm, ok
}

// MustGraphModule returns the bookkeeping node for id and panics when it is missing
func (g *ModuleGraph) MustGraphModule(id module.Identifier) *GraphModule {
	gm, ok := g.graphModules[id]
	if !ok {
		errors.Invariant("module %s missing from graph", id)
	}
	return gm
}

// SetIssuer replaces the issuer back-reference of id
func (g *ModuleGraph) SetIssuer(id module.Identifier, issuer *module.Identifier) {
	g.MustGraphModule(id).Issuer = copyID(issuer)
}

// ModuleIdentifiers returns all identifiers in lexical order
func (g *ModuleGraph) ModuleIdentifiers() []module.Identifier {
	ids := make([]module.Identifier, 0, len(g.modules))
	for id := range g.modules {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ModuleCount returns the number of nodes
func (g *ModuleGraph) ModuleCount() int {
	return len(g.modules)
}

// DependencyCount returns the number of dependency records
func (g *ModuleGraph) DependencyCount() int {
	return len(g.dependencies)
}

// ConnectionCount returns the number of resolved edges
func (g *ModuleGraph) ConnectionCount() int {
	return len(g.connections)
}

// ============================================================================
// Connections
// ============================================================================

// Connect resolves dependency id to target. A previous connection of the same
// dependency is replaced.
func (g *ModuleGraph) Connect(origin *module.Identifier, id module.DependencyID, target module.Identifier) *Connection {
	if _, ok := g.dependencies[id]; !ok {
		errors.Invariant("dependency %d missing from graph", id)
	}
	gm := g.MustGraphModule(target)
	g.disconnect(id)

	conn := &Connection{Origin: copyID(origin), Dependency: id, Target: target}
	g.connections[id] = conn
	gm.incoming[id] = struct{}{}
	return conn
}

// Disconnect removes the connection of dependency id and returns its former target
func (g *ModuleGraph) Disconnect(id module.DependencyID) (module.Identifier, bool) {
	conn, ok := g.connections[id]
	if !ok {
		return "", false
	}
	g.disconnect(id)
	return conn.Target, true
}

func (g *ModuleGraph) disconnect(id module.DependencyID) {
	conn, ok := g.connections[id]
	if !ok {
		return
	}
	if gm, ok := g.graphModules[conn.Target]; ok {
		delete(gm.incoming, id)
	}
	delete(g.connections, id)
}

// Connection returns the connection of dependency id
func (g *ModuleGraph) Connection(id module.DependencyID) (*Connection, bool) {
	c, ok := g.connections[id]
	return c, ok
}

// IncomingConnections returns the connections targeting id, ordered by dependency id
func (g *ModuleGraph) IncomingConnections(id module.Identifier) []*Connection {
	gm, ok := g.graphModules[id]
	if !ok {
		return nil
	}
	ids := make([]module.DependencyID, 0, len(gm.incoming))
	for dep := range gm.incoming {
		ids = append(ids, dep)
	}
	sortIDs(ids)
	out := make([]*Connection, 0, len(ids))
	for _, dep := range ids {
		out = append(out, g.connections[dep])
	}
	return out
}

// OutgoingConnections returns the resolved connections of id's dependencies in declaration order
func (g *ModuleGraph) OutgoingConnections(id module.Identifier) []*Connection {
	gm, ok := g.graphModules[id]
	if !ok {
		return nil
	}
	var out []*Connection
	for _, dep := range gm.Dependencies {
		if c, ok := g.connections[dep]; ok {
			out = append(out, c)
		}
	}
	return out
}

// IsReferenced reports whether any connection other than a self-reference targets id
func (g *ModuleGraph) IsReferenced(id module.Identifier) bool {
	gm, ok := g.graphModules[id]
	if !ok {
		return false
	}
	for dep := range gm.incoming {
		c := g.connections[dep]
		if c.Origin == nil || *c.Origin != id {
			return true
		}
	}
	return false
}

// ReachableFromEntries returns every module reachable through connections that start at
// an entry dependency
func (g *ModuleGraph) ReachableFromEntries() map[module.Identifier]struct{} {
	seen := make(map[module.Identifier]struct{})
	var stack []module.Identifier
	for _, dep := range g.EntryDependencies() {
		if c, ok := g.connections[dep]; ok {
			stack = append(stack, c.Target)
		}
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		for _, c := range g.OutgoingConnections(id) {
			stack = append(stack, c.Target)
		}
	}
	return seen
}

// ============================================================================
// Removal
// ============================================================================

// Revoke removes the node id together with its outgoing dependency records and all
// connections touching it. The incoming dependency records survive unconnected so they
// can be factorized again. It returns those incoming dependency ids and the modules the
// node's outgoing connections pointed to (excluding itself), both in ascending order.
func (g *ModuleGraph) Revoke(id module.Identifier) (incoming []module.DependencyID, children []module.Identifier) {
	gm := g.MustGraphModule(id)

	seen := make(map[module.Identifier]struct{})
	for _, dep := range gm.Dependencies {
		if c, ok := g.connections[dep]; ok && c.Target != id {
			if _, dup := seen[c.Target]; !dup {
				seen[c.Target] = struct{}{}
				children = append(children, c.Target)
			}
		}
		g.RemoveDependency(dep)
	}

	for dep := range gm.incoming {
		delete(g.connections, dep)
		if _, ok := g.dependencies[dep]; ok {
			incoming = append(incoming, dep)
		}
	}

	delete(g.modules, id)
	delete(g.graphModules, id)

	sortIDs(incoming)
	sort.Slice(children, func(i, j int) bool { return children[i] < children[j] })
	return incoming, children
}

func sortIDs(ids []module.DependencyID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

func copyID(id *module.Identifier) *module.Identifier {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
