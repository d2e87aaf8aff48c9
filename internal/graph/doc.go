// Package graph models a computation graph: nodes bound to registered types,
// field-level edges between them, and the cycle groups that are allowed to
// re-enter earlier nodes.
//
// # Lifecycle
//
// A graph is assembled and frozen in two explicit phases:
//
//  1. **Construction:** AddNode and AddEdge populate a mutable Graph. Every
//     call validates eagerly (unknown types, undeclared input fields,
//     malformed field paths, duplicate ids).
//  2. **Build:** Build performs the full validation pass and returns an
//     immutable *Built. The edges themselves must form a DAG; any cycle is
//     reported as an UnexpectedCycleError naming the offending chain.
//
// Cycle groups are attached only to a *Built:
//
//	built, err := g.Build()
//	cb, err := graph.CreateCycle(built, "refine")
//	err = cb.Connect("P", "P", map[string]string{"count": "x"}).
//	    MaxIterations(5).
//	    ConvergeWhen("count >= 3").
//	    Build()
//
// Re-entry edges declared through Connect are not part of the edge set. They
// feed the next iteration of the group from the previous one, so the edge
// set stays acyclic and the group can be scheduled as a single unit.
//
// # Units
//
// For execution, Units condenses every cycle group into one unit and returns
// the units in topological order. A cycle group is rejected at Build when a
// node outside the group lies on a path between two members, because the
// condensed graph would then contain a cycle.
//
// # Thread-Safety
//
// Graph is not safe for concurrent use. Built is safe for concurrent reads;
// attaching a cycle group takes a write lock.
package graph
