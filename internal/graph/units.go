package graph

import "sort"

// Unit is one schedulable step of a run: a single node outside any cycle
// group, or a whole cycle group.
type Unit struct {
	Index int
	// Cycle is nil for single-node units.
	Cycle *CycleGroup
	// Nodes lists the node ids in topological order.
	Nodes []string
	// Deps and Dependents hold indices into the slice returned by Units.
	Deps       []int
	Dependents []int
}

// Name returns the node id, or the group name prefixed with "cycle:".
func (u *Unit) Name() string {
	if u.Cycle != nil {
		return "cycle:" + u.Cycle.Name
	}
	return u.Nodes[0]
}

// Units condenses the attached cycle groups and returns the units in
// topological order.
func (b *Built) Units() ([]*Unit, error) {
	return b.condense(b.Cycles())
}

func (b *Built) condense(groups []*CycleGroup) ([]*Unit, error) {
	pos := make(map[string]int, len(b.order))
	for i, id := range b.order {
		pos[id] = i
	}

	unitOf := make(map[string]*Unit, len(b.order))
	var units []*Unit
	for _, g := range groups {
		u := &Unit{Cycle: g, Nodes: g.Members}
		for _, id := range g.Members {
			unitOf[id] = u
		}
		units = append(units, u)
	}
	for _, id := range b.order {
		if _, grouped := unitOf[id]; grouped {
			continue
		}
		u := &Unit{Nodes: []string{id}}
		unitOf[id] = u
		units = append(units, u)
	}
	first := func(u *Unit) int { return pos[u.Nodes[0]] }
	sort.SliceStable(units, func(i, j int) bool { return first(units[i]) < first(units[j]) })

	deps := make(map[*Unit]map[*Unit]struct{}, len(units))
	dependents := make(map[*Unit][]*Unit, len(units))
	for _, e := range b.edges {
		from, to := unitOf[e.From], unitOf[e.To]
		if from == to {
			continue
		}
		if deps[to] == nil {
			deps[to] = make(map[*Unit]struct{})
		}
		if _, dup := deps[to][from]; dup {
			continue
		}
		deps[to][from] = struct{}{}
		dependents[from] = append(dependents[from], to)
	}

	inDegree := make(map[*Unit]int, len(units))
	var ready []*Unit
	for _, u := range units {
		inDegree[u] = len(deps[u])
		if inDegree[u] == 0 {
			ready = append(ready, u)
		}
	}
	ordered := make([]*Unit, 0, len(units))
	for len(ready) > 0 {
		u := ready[0]
		ready = ready[1:]
		ordered = append(ordered, u)
		for _, next := range dependents[u] {
			inDegree[next]--
			if inDegree[next] == 0 {
				ready = append(ready, next)
			}
		}
		sort.SliceStable(ready, func(i, j int) bool { return first(ready[i]) < first(ready[j]) })
	}
	if len(ordered) < len(units) {
		var stuck []string
		for _, u := range units {
			if inDegree[u] > 0 {
				stuck = append(stuck, u.Name())
			}
		}
		return nil, &UnexpectedCycleError{Chain: append(stuck, stuck[0])}
	}

	for i, u := range ordered {
		u.Index = i
	}
	for _, u := range ordered {
		for d := range deps[u] {
			u.Deps = append(u.Deps, d.Index)
		}
		sort.Ints(u.Deps)
		for _, d := range dependents[u] {
			u.Dependents = append(u.Dependents, d.Index)
		}
		sort.Ints(u.Dependents)
	}
	return ordered, nil
}
