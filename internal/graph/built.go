package graph

import (
	"sort"
	"sync"

	"github.com/specialistvlad/cyclegrid/internal/registry"
)

// Built is a validated, frozen graph. Nodes and edges never change; cycle
// groups may be attached through CreateCycle.
type Built struct {
	reg        *registry.Registry
	nodes      map[string]*Node
	order      []string
	edges      []Edge
	incoming   map[string][]Edge
	outgoing   map[string][]Edge
	deps       map[string][]string
	dependents map[string][]string
	required   []RequiredInput

	mu         sync.RWMutex
	cycles     map[string]*CycleGroup
	cycleOrder []string
	cycleOf    map[string]string
}

// Registry returns the registry the graph's node types were resolved against.
func (b *Built) Registry() *registry.Registry {
	return b.reg
}

// Node returns a node definition by id.
func (b *Built) Node(id string) (*Node, bool) {
	n, ok := b.nodes[id]
	return n, ok
}

// Order returns the node ids in topological order.
func (b *Built) Order() []string {
	return append([]string(nil), b.order...)
}

// Edges returns every edge in declaration order.
func (b *Built) Edges() []Edge {
	return append([]Edge(nil), b.edges...)
}

// Incoming returns the edges that feed the node.
func (b *Built) Incoming(id string) []Edge {
	return b.incoming[id]
}

// Outgoing returns the edges that read from the node.
func (b *Built) Outgoing(id string) []Edge {
	return b.outgoing[id]
}

// Dependencies returns the distinct ids of nodes feeding the node.
func (b *Built) Dependencies(id string) []string {
	return b.deps[id]
}

// Dependents returns the distinct ids of nodes fed by the node.
func (b *Built) Dependents(id string) []string {
	return b.dependents[id]
}

// RequiredInputs lists the inputs the caller must supply at run time.
func (b *Built) RequiredInputs() []RequiredInput {
	return append([]RequiredInput(nil), b.required...)
}

// Cycles returns the attached cycle groups in the order they were built.
func (b *Built) Cycles() []*CycleGroup {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*CycleGroup, 0, len(b.cycleOrder))
	for _, name := range b.cycleOrder {
		out = append(out, b.cycles[name])
	}
	return out
}

// Cycle returns an attached cycle group by name.
func (b *Built) Cycle(name string) (*CycleGroup, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.cycles[name]
	return c, ok
}

// CycleOf returns the cycle group the node belongs to, if any.
func (b *Built) CycleOf(id string) (*CycleGroup, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	name, ok := b.cycleOf[id]
	if !ok {
		return nil, false
	}
	return b.cycles[name], true
}

// Reaches reports whether a forward path of edges leads from one node to
// another. A node reaches itself.
func (b *Built) Reaches(from, to string) bool {
	return b.reachable(from)[to]
}

func (b *Built) reachable(from string) map[string]bool {
	seen := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range b.dependents[id] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}

// reachers returns every node with a forward path to the given node,
// including the node itself.
func (b *Built) reachers(to string) map[string]bool {
	seen := map[string]bool{to: true}
	queue := []string{to}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, prev := range b.deps[id] {
			if !seen[prev] {
				seen[prev] = true
				queue = append(queue, prev)
			}
		}
	}
	return seen
}

// shortestPath returns a forward path from one node to any node in targets,
// or nil.
func (b *Built) shortestPath(from string, targets map[string]bool) []string {
	parent := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if targets[id] && id != from {
			var path []string
			for cur := id; cur != ""; cur = parent[cur] {
				path = append(path, cur)
			}
			for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
				path[i], path[j] = path[j], path[i]
			}
			return path
		}
		for _, next := range b.dependents[id] {
			if _, seen := parent[next]; !seen {
				parent[next] = id
				queue = append(queue, next)
			}
		}
	}
	return nil
}

func (b *Built) sortByOrder(ids []string) {
	pos := make(map[string]int, len(b.order))
	for i, id := range b.order {
		pos[id] = i
	}
	sort.Slice(ids, func(i, j int) bool {
		return pos[ids[i]] < pos[ids[j]]
	})
}
