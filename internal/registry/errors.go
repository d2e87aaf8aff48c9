package registry

import (
	"fmt"
	"strings"

	"github.com/specialistvlad/cyclegrid/internal/faults"
	"github.com/specialistvlad/cyclegrid/internal/schema"
)

// DuplicateTypeError is returned when a type name is registered twice.
type DuplicateTypeError struct {
	TypeName string
}

func (e *DuplicateTypeError) Error() string {
	return fmt.Sprintf("node type %q is already registered", e.TypeName)
}

func (e *DuplicateTypeError) Kind() faults.Kind { return faults.KindBuild }

// UnknownTypeError is returned when a node references an unregistered type.
type UnknownTypeError struct {
	TypeName string
	NodeID   string
}

func (e *UnknownTypeError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("unknown node type %q", e.TypeName)
	}
	return fmt.Sprintf("node %q: unknown node type %q", e.NodeID, e.TypeName)
}

func (e *UnknownTypeError) Kind() faults.Kind { return faults.KindBuild }

// ParameterValidationError lists every problem found in a node's parameters.
type ParameterValidationError struct {
	NodeID   string
	TypeName string
	Problems []schema.Problem
}

func (e *ParameterValidationError) Error() string {
	lines := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		lines[i] = p.String()
	}
	return fmt.Sprintf("node %q (type %q): invalid parameters:\n- %s", e.NodeID, e.TypeName, strings.Join(lines, "\n- "))
}

func (e *ParameterValidationError) Kind() faults.Kind { return faults.KindValidation }

// Merge appends the problems of other, which must describe the same node.
func (e *ParameterValidationError) Merge(other *ParameterValidationError) {
	e.Problems = append(e.Problems, other.Problems...)
}
