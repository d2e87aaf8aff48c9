package graph

import (
	"fmt"
	"sort"
	"time"

	"github.com/specialistvlad/cyclegrid/internal/convergence"
	"github.com/specialistvlad/cyclegrid/internal/fieldpath"
)

// FieldMapping copies the value at Source in the previous iteration's output
// of a re-entry source into input field Target of the re-entry target.
type FieldMapping struct {
	Source fieldpath.Path
	Target string
}

// ReEntry is an edge inside a cycle group that feeds the next iteration.
type ReEntry struct {
	From     string
	To       string
	Mappings []FieldMapping
}

// CycleGroup is a frozen cycle group declaration.
type CycleGroup struct {
	Name string
	// Members holds the participating node ids in topological order.
	Members       []string
	ReEntries     []ReEntry
	MaxIterations int
	// Converge is nil when the group always runs MaxIterations times.
	Converge *convergence.Predicate
	// OutputNode is the designated node whose output the convergence
	// predicate reads.
	OutputNode    string
	Timeout       time.Duration
	FaultTolerant bool

	members map[string]bool
}

// Contains reports whether the node participates in the group.
func (c *CycleGroup) Contains(id string) bool {
	return c.members[id]
}

// ReEntriesTo returns the re-entry edges that target the node.
func (c *CycleGroup) ReEntriesTo(id string) []ReEntry {
	var out []ReEntry
	for _, r := range c.ReEntries {
		if r.To == id {
			out = append(out, r)
		}
	}
	return out
}

// CycleBuilder declares a cycle group. Methods chain; the first error is
// kept and returned by Build.
type CycleBuilder struct {
	built         *Built
	name          string
	reEntries     []ReEntry
	maxIterations int
	converge      *convergence.Predicate
	output        string
	includes      []string
	timeout       time.Duration
	faultTolerant bool

	err    error
	frozen bool
}

// CreateCycle starts declaring a cycle group named name on b.
func CreateCycle(b *Built, name string) (*CycleBuilder, error) {
	if b == nil {
		return nil, &GraphNotBuiltError{}
	}
	if name == "" {
		return nil, &CycleDefinitionError{Cycle: name, Reason: "name must not be empty"}
	}
	if _, exists := b.Cycle(name); exists {
		return nil, &CycleDefinitionError{Cycle: name, Reason: "a cycle group with this name already exists"}
	}
	return &CycleBuilder{built: b, name: name}, nil
}

// Err returns the first error recorded so far.
func (cb *CycleBuilder) Err() error {
	return cb.err
}

func (cb *CycleBuilder) fail(err error) *CycleBuilder {
	if cb.err == nil {
		cb.err = err
	}
	return cb
}

func (cb *CycleBuilder) mutable(op string) bool {
	if cb.frozen {
		cb.fail(&CycleDefinitionError{Cycle: cb.name, Reason: fmt.Sprintf("cannot %s: group is already built", op)})
		return false
	}
	return cb.err == nil
}

// Connect declares a re-entry edge. Each mapping key is a field path into
// the previous iteration's output of src; each value is an input field of
// dst. src and dst may be the same node.
func (cb *CycleBuilder) Connect(src, dst string, mapping map[string]string) *CycleBuilder {
	if !cb.mutable("connect") {
		return cb
	}
	srcNode, ok := cb.built.Node(src)
	if !ok {
		return cb.fail(&UnknownNodeError{ID: src, Role: fmt.Sprintf("cycle %q re-entry source", cb.name)})
	}
	dstNode, ok := cb.built.Node(dst)
	if !ok {
		return cb.fail(&UnknownNodeError{ID: dst, Role: fmt.Sprintf("cycle %q re-entry target", cb.name)})
	}
	if len(mapping) == 0 {
		return cb.fail(&CycleDefinitionError{Cycle: cb.name, Reason: fmt.Sprintf("re-entry %s -> %s has an empty mapping", src, dst)})
	}

	targets := make(map[string]bool)
	for _, r := range cb.reEntries {
		if r.To == dst {
			for _, m := range r.Mappings {
				targets[m.Target] = true
			}
		}
	}

	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	re := ReEntry{From: src, To: dst}
	for _, key := range keys {
		target := mapping[key]
		path, err := fieldpath.Parse(key)
		if err != nil {
			return cb.fail(err)
		}
		if srcNode.Schema.HasOutputs() {
			if err := path.CheckType(srcNode.Schema.Outputs); err != nil {
				return cb.fail(&CycleDefinitionError{Cycle: cb.name, Reason: fmt.Sprintf("re-entry %s -> %s", src, dst), Err: err})
			}
		}
		if !dstNode.Schema.Accepts(target) {
			return cb.fail(&UnknownInputError{NodeID: dst, TypeName: dstNode.Type, Field: target})
		}
		if targets[target] {
			return cb.fail(&CycleDefinitionError{Cycle: cb.name, Reason: fmt.Sprintf("input %s.%s is mapped twice", dst, target)})
		}
		targets[target] = true
		re.Mappings = append(re.Mappings, FieldMapping{Source: path, Target: target})
	}
	cb.reEntries = append(cb.reEntries, re)
	return cb
}

// MaxIterations sets the iteration bound. It is required.
func (cb *CycleBuilder) MaxIterations(n int) *CycleBuilder {
	if !cb.mutable("set max_iterations") {
		return cb
	}
	if n < 1 {
		return cb.fail(&InvalidBoundError{Cycle: cb.name, Value: n})
	}
	cb.maxIterations = n
	return cb
}

// ConvergeWhen sets the predicate that ends the loop early. It may only
// reference flat field names of the output node's output.
func (cb *CycleBuilder) ConvergeWhen(expr string) *CycleBuilder {
	if !cb.mutable("set converge_when") {
		return cb
	}
	p, err := convergence.Compile(expr)
	if err != nil {
		return cb.fail(&CycleDefinitionError{Cycle: cb.name, Reason: "invalid converge_when", Err: err})
	}
	cb.converge = p
	return cb
}

// Output designates the node whose output the convergence predicate reads.
// It defaults to the source of the first re-entry edge.
func (cb *CycleBuilder) Output(id string) *CycleBuilder {
	if !cb.mutable("set output") {
		return cb
	}
	if _, ok := cb.built.Node(id); !ok {
		return cb.fail(&UnknownNodeError{ID: id, Role: fmt.Sprintf("cycle %q output", cb.name)})
	}
	cb.output = id
	return cb
}

// Include adds nodes to the group that are not on a re-entry path.
func (cb *CycleBuilder) Include(ids ...string) *CycleBuilder {
	if !cb.mutable("include nodes") {
		return cb
	}
	for _, id := range ids {
		if _, ok := cb.built.Node(id); !ok {
			return cb.fail(&UnknownNodeError{ID: id, Role: fmt.Sprintf("cycle %q include", cb.name)})
		}
	}
	cb.includes = append(cb.includes, ids...)
	return cb
}

// Timeout bounds the wall-clock time of the whole iteration loop.
func (cb *CycleBuilder) Timeout(d time.Duration) *CycleBuilder {
	if !cb.mutable("set timeout") {
		return cb
	}
	if d <= 0 {
		return cb.fail(&CycleDefinitionError{Cycle: cb.name, Reason: fmt.Sprintf("timeout must be positive, got %s", d)})
	}
	cb.timeout = d
	return cb
}

// FaultTolerant makes a failing iteration end the loop with the last fully
// successful iteration instead of failing the group.
func (cb *CycleBuilder) FaultTolerant() *CycleBuilder {
	if !cb.mutable("set fault_tolerant") {
		return cb
	}
	cb.faultTolerant = true
	return cb
}

// Build validates the declaration and attaches the group to the graph.
func (cb *CycleBuilder) Build() error {
	if cb.err != nil {
		return cb.err
	}
	if cb.frozen {
		return &CycleDefinitionError{Cycle: cb.name, Reason: "group is already built"}
	}
	if len(cb.reEntries) == 0 {
		return &CycleDefinitionError{Cycle: cb.name, Reason: "at least one re-entry edge is required"}
	}
	if cb.maxIterations == 0 {
		return &CycleDefinitionError{Cycle: cb.name, Reason: "max_iterations is required"}
	}

	b := cb.built
	members := make(map[string]bool)
	for _, r := range cb.reEntries {
		forward := b.reachable(r.To)
		for id := range b.reachers(r.From) {
			if forward[id] {
				members[id] = true
			}
		}
		members[r.From] = true
		members[r.To] = true
	}
	for _, id := range cb.includes {
		members[id] = true
	}

	output := cb.output
	if output == "" {
		output = cb.reEntries[0].From
	}
	if !members[output] {
		return &CycleDefinitionError{Cycle: cb.name, Reason: fmt.Sprintf("output node %q is not a member of the group", output)}
	}
	if cb.converge != nil {
		if err := cb.checkPredicate(output); err != nil {
			return err
		}
	}
	if chain := b.escapingPath(members); chain != nil {
		return &UnexpectedCycleError{Chain: chain}
	}

	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	b.sortByOrder(ids)

	group := &CycleGroup{
		Name:          cb.name,
		Members:       ids,
		ReEntries:     cb.reEntries,
		MaxIterations: cb.maxIterations,
		Converge:      cb.converge,
		OutputNode:    output,
		Timeout:       cb.timeout,
		FaultTolerant: cb.faultTolerant,
		members:       members,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.cycles[cb.name]; exists {
		return &CycleDefinitionError{Cycle: cb.name, Reason: "a cycle group with this name already exists"}
	}
	for _, id := range ids {
		if other, taken := b.cycleOf[id]; taken {
			return &CycleDefinitionError{Cycle: cb.name, Reason: fmt.Sprintf("node %q already belongs to cycle %q", id, other)}
		}
	}
	groups := make([]*CycleGroup, 0, len(b.cycleOrder)+1)
	for _, name := range b.cycleOrder {
		groups = append(groups, b.cycles[name])
	}
	if _, err := b.condense(append(groups, group)); err != nil {
		return err
	}

	b.cycles[cb.name] = group
	b.cycleOrder = append(b.cycleOrder, cb.name)
	for _, id := range ids {
		b.cycleOf[id] = cb.name
	}
	cb.frozen = true
	return nil
}

// checkPredicate validates the predicate's names against the output node's
// declared output type, when it has one.
func (cb *CycleBuilder) checkPredicate(output string) error {
	n, _ := cb.built.Node(output)
	if !n.Schema.HasOutputs() {
		return nil
	}
	for _, name := range cb.converge.Names() {
		p := fieldpath.Path{fieldpath.Key(name)}
		if err := p.CheckType(n.Schema.Outputs); err != nil {
			return &CycleDefinitionError{Cycle: cb.name, Reason: "invalid converge_when", Err: err}
		}
	}
	return nil
}

// escapingPath finds a path that leaves the member set and comes back, which
// would turn the group into an undeclared cycle once condensed.
func (b *Built) escapingPath(members map[string]bool) []string {
	ordered := make([]string, 0, len(members))
	for id := range members {
		ordered = append(ordered, id)
	}
	b.sortByOrder(ordered)

	for _, m := range ordered {
		for _, next := range b.dependents[m] {
			if members[next] {
				continue
			}
			back := b.shortestPath(next, members)
			if back == nil {
				continue
			}
			return append([]string{m}, back...)
		}
	}
	return nil
}
