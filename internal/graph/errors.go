package graph

import (
	"fmt"
	"strings"

	"github.com/specialistvlad/cyclegrid/internal/faults"
)

// DuplicateNodeIDError is returned when a node id is added twice.
type DuplicateNodeIDError struct {
	ID string
}

func (e *DuplicateNodeIDError) Error() string {
	return fmt.Sprintf("node %q already exists", e.ID)
}

func (e *DuplicateNodeIDError) Kind() faults.Kind { return faults.KindBuild }

// InvalidNodeIDError is returned for ids that cannot be used as the first
// segment of a field path.
type InvalidNodeIDError struct {
	ID string
}

func (e *InvalidNodeIDError) Error() string {
	return fmt.Sprintf("invalid node id %q: must start with a letter or underscore and contain only letters, digits, '_' or '-'", e.ID)
}

func (e *InvalidNodeIDError) Kind() faults.Kind { return faults.KindBuild }

// UnknownNodeError is returned when an edge or cycle references a node that
// is not in the graph.
type UnknownNodeError struct {
	ID string
	// Role describes where the reference appeared, e.g. "edge source".
	Role string
}

func (e *UnknownNodeError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("unknown node %q", e.ID)
	}
	return fmt.Sprintf("%s: unknown node %q", e.Role, e.ID)
}

func (e *UnknownNodeError) Kind() faults.Kind { return faults.KindBuild }

// UnknownInputError is returned when an edge or re-entry mapping targets a
// field the node type does not declare.
type UnknownInputError struct {
	NodeID   string
	TypeName string
	Field    string
}

func (e *UnknownInputError) Error() string {
	return fmt.Sprintf("node %q (type %q) has no input field %q", e.NodeID, e.TypeName, e.Field)
}

func (e *UnknownInputError) Kind() faults.Kind { return faults.KindBuild }

// DuplicateInputError is returned when a second edge targets the same field.
type DuplicateInputError struct {
	NodeID   string
	Field    string
	Existing Edge
}

func (e *DuplicateInputError) Error() string {
	return fmt.Sprintf("input %s.%s is already fed by %s", e.NodeID, e.Field, e.Existing)
}

func (e *DuplicateInputError) Kind() faults.Kind { return faults.KindBuild }

// UnexpectedCycleError is returned when edges form a cycle that no cycle
// group accounts for. Chain starts and ends with the same node.
type UnexpectedCycleError struct {
	Chain []string
}

func (e *UnexpectedCycleError) Error() string {
	return fmt.Sprintf("unexpected cycle: %s", strings.Join(e.Chain, " -> "))
}

func (e *UnexpectedCycleError) Kind() faults.Kind { return faults.KindBuild }

// GraphFrozenError is returned when a built graph is mutated.
type GraphFrozenError struct {
	Op string
}

func (e *GraphFrozenError) Error() string {
	return fmt.Sprintf("cannot %s: graph is already built", e.Op)
}

func (e *GraphFrozenError) Kind() faults.Kind { return faults.KindBuild }

// GraphNotBuiltError is returned when a cycle group is created before the
// graph has been built.
type GraphNotBuiltError struct{}

func (e *GraphNotBuiltError) Error() string {
	return "cycle groups can only be created on a built graph"
}

func (e *GraphNotBuiltError) Kind() faults.Kind { return faults.KindBuild }

// InvalidBoundError is returned for a max_iterations below one.
type InvalidBoundError struct {
	Cycle string
	Value int
}

func (e *InvalidBoundError) Error() string {
	return fmt.Sprintf("cycle %q: max_iterations must be at least 1, got %d", e.Cycle, e.Value)
}

func (e *InvalidBoundError) Kind() faults.Kind { return faults.KindBuild }

// CycleDefinitionError covers every other invalid cycle group declaration.
type CycleDefinitionError struct {
	Cycle  string
	Reason string
	Err    error
}

func (e *CycleDefinitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cycle %q: %s: %v", e.Cycle, e.Reason, e.Err)
	}
	return fmt.Sprintf("cycle %q: %s", e.Cycle, e.Reason)
}

func (e *CycleDefinitionError) Unwrap() error { return e.Err }

func (e *CycleDefinitionError) Kind() faults.Kind { return faults.KindBuild }
