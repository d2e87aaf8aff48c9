package graph

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/specialistvlad/cyclegrid/internal/fieldpath"
	"github.com/specialistvlad/cyclegrid/internal/registry"
	"github.com/specialistvlad/cyclegrid/internal/schema"
	"github.com/zclconf/go-cty/cty"
)

var nodeIDRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*$`)

// Node is a node definition. It is immutable once the graph is built.
type Node struct {
	ID     string
	Type   string
	Config map[string]cty.Value
	Schema *schema.Schema

	index int
}

// Edge is a field-level dependency: the value at FromPath in the output of
// From feeds input field ToField of To.
type Edge struct {
	From     string
	FromPath fieldpath.Path
	To       string
	ToField  string
}

func (e Edge) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", e.From, e.FromPath, e.To, e.ToField)
}

// RequiredInput is a required field that no edge, default or static
// configuration satisfies. The caller must supply it as a runtime parameter.
type RequiredInput struct {
	NodeID string
	Field  string
}

// Graph is the mutable builder for a computation graph.
type Graph struct {
	reg    *registry.Registry
	nodes  map[string]*Node
	order  []string
	edges  []Edge
	inputs map[string]map[string]Edge
	built  *Built
}

// New creates an empty graph whose node types are resolved against reg.
func New(reg *registry.Registry) *Graph {
	return &Graph{
		reg:    reg,
		nodes:  make(map[string]*Node),
		inputs: make(map[string]map[string]Edge),
	}
}

// AddNode adds a node of a registered type with its static configuration.
// The configuration is checked against the type's schema; fields that will
// arrive later through edges or runtime parameters may be omitted.
func (g *Graph) AddNode(id, typeName string, config map[string]cty.Value) error {
	if g.built != nil {
		return &GraphFrozenError{Op: fmt.Sprintf("add node %q", id)}
	}
	if !nodeIDRegex.MatchString(id) {
		return &InvalidNodeIDError{ID: id}
	}
	if _, exists := g.nodes[id]; exists {
		return &DuplicateNodeIDError{ID: id}
	}
	def, ok := g.reg.Lookup(typeName)
	if !ok {
		return &registry.UnknownTypeError{TypeName: typeName, NodeID: id}
	}
	if err := g.reg.CheckPartial(typeName, id, config); err != nil {
		return err
	}

	cfg := make(map[string]cty.Value, len(config))
	for k, v := range config {
		cfg[k] = v
	}
	g.nodes[id] = &Node{
		ID:     id,
		Type:   typeName,
		Config: cfg,
		Schema: def.Schema,
		index:  len(g.order),
	}
	g.order = append(g.order, id)
	return nil
}

// AddEdge connects the output field srcField of srcID to input field
// dstField of dstID. srcField may be a nested path such as
// "result.items[0].score".
func (g *Graph) AddEdge(srcID, srcField, dstID, dstField string) error {
	if g.built != nil {
		return &GraphFrozenError{Op: fmt.Sprintf("add edge %s.%s -> %s.%s", srcID, srcField, dstID, dstField)}
	}
	src, ok := g.nodes[srcID]
	if !ok {
		return &UnknownNodeError{ID: srcID, Role: "edge source"}
	}
	dst, ok := g.nodes[dstID]
	if !ok {
		return &UnknownNodeError{ID: dstID, Role: "edge target"}
	}
	path, err := fieldpath.Parse(srcField)
	if err != nil {
		return err
	}
	if src.Schema.HasOutputs() {
		if err := path.CheckType(src.Schema.Outputs); err != nil {
			return fmt.Errorf("edge %s.%s -> %s.%s: %w", srcID, srcField, dstID, dstField, err)
		}
	}
	if !dst.Schema.Accepts(dstField) {
		return &UnknownInputError{NodeID: dstID, TypeName: dst.Type, Field: dstField}
	}
	if existing, taken := g.inputs[dstID][dstField]; taken {
		return &DuplicateInputError{NodeID: dstID, Field: dstField, Existing: existing}
	}

	e := Edge{From: srcID, FromPath: path, To: dstID, ToField: dstField}
	if g.inputs[dstID] == nil {
		g.inputs[dstID] = make(map[string]Edge)
	}
	g.inputs[dstID][dstField] = e
	g.edges = append(g.edges, e)
	return nil
}

// Build validates the graph and freezes it. Calling Build again returns the
// same *Built.
func (g *Graph) Build() (*Built, error) {
	if g.built != nil {
		return g.built, nil
	}

	deps := make(map[string]map[string]struct{}, len(g.nodes))
	for _, e := range g.edges {
		if deps[e.To] == nil {
			deps[e.To] = make(map[string]struct{})
		}
		deps[e.To][e.From] = struct{}{}
	}
	order, err := g.topologicalOrder(deps)
	if err != nil {
		return nil, err
	}

	b := &Built{
		reg:        g.reg,
		nodes:      g.nodes,
		order:      order,
		edges:      g.edges,
		incoming:   make(map[string][]Edge),
		outgoing:   make(map[string][]Edge),
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
		cycleOf:    make(map[string]string),
		cycles:     make(map[string]*CycleGroup),
	}
	for _, e := range g.edges {
		b.incoming[e.To] = append(b.incoming[e.To], e)
		b.outgoing[e.From] = append(b.outgoing[e.From], e)
	}
	for to, froms := range deps {
		for from := range froms {
			b.deps[to] = append(b.deps[to], from)
			b.dependents[from] = append(b.dependents[from], to)
		}
	}
	for _, m := range []map[string][]string{b.deps, b.dependents} {
		for id := range m {
			g.sortByIndex(m[id])
		}
	}
	b.required = g.requiredInputs(order)

	g.built = b
	return b, nil
}

// CreateCycle starts declaring a cycle group on the built graph.
func (g *Graph) CreateCycle(name string) (*CycleBuilder, error) {
	if g.built == nil {
		return nil, &GraphNotBuiltError{}
	}
	return CreateCycle(g.built, name)
}

func (g *Graph) requiredInputs(order []string) []RequiredInput {
	var required []RequiredInput
	for _, id := range order {
		n := g.nodes[id]
		for _, field := range n.Schema.RequiredInputs() {
			if _, fed := g.inputs[id][field]; fed {
				continue
			}
			if v, ok := n.Config[field]; ok && !v.IsNull() {
				continue
			}
			required = append(required, RequiredInput{NodeID: id, Field: field})
		}
	}
	return required
}

// topologicalOrder runs Kahn's algorithm. Ties are broken by insertion order
// so that the result is deterministic.
func (g *Graph) topologicalOrder(deps map[string]map[string]struct{}) ([]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	dependents := make(map[string][]string, len(g.nodes))
	for to, froms := range deps {
		inDegree[to] = len(froms)
		for from := range froms {
			dependents[from] = append(dependents[from], to)
		}
	}

	var ready []string
	for _, id := range g.order {
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		var released []string
		for _, next := range dependents[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				released = append(released, next)
			}
		}
		ready = append(ready, released...)
		g.sortByIndex(ready)
	}

	if len(order) < len(g.nodes) {
		return nil, &UnexpectedCycleError{Chain: g.findCycle(deps, inDegree)}
	}
	return order, nil
}

// findCycle returns one cycle among the nodes Kahn's algorithm could not
// release. It walks dependencies depth first, keeping the recursion stack so
// the chain can be reported in edge direction.
func (g *Graph) findCycle(deps map[string]map[string]struct{}, inDegree map[string]int) []string {
	permanent := make(map[string]bool)
	onStack := make(map[string]int)
	var stack []string
	var chain []string

	var visit func(id string) bool
	visit = func(id string) bool {
		if permanent[id] {
			return false
		}
		if pos, ok := onStack[id]; ok {
			// stack[pos:] reversed is the cycle in edge direction.
			cyc := append([]string{}, stack[pos:]...)
			for i, j := 0, len(cyc)-1; i < j; i, j = i+1, j-1 {
				cyc[i], cyc[j] = cyc[j], cyc[i]
			}
			chain = append(cyc, cyc[0])
			return true
		}
		onStack[id] = len(stack)
		stack = append(stack, id)

		froms := make([]string, 0, len(deps[id]))
		for from := range deps[id] {
			froms = append(froms, from)
		}
		g.sortByIndex(froms)
		for _, from := range froms {
			if inDegree[from] > 0 && visit(from) {
				return true
			}
		}

		stack = stack[:len(stack)-1]
		delete(onStack, id)
		permanent[id] = true
		return false
	}

	for _, id := range g.order {
		if inDegree[id] > 0 && visit(id) {
			return chain
		}
	}
	return nil
}

func (g *Graph) sortByIndex(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		return g.nodes[ids[i]].index < g.nodes[ids[j]].index
	})
}
