package fieldpath

import (
	"fmt"
	"strings"

	"github.com/specialistvlad/cyclegrid/internal/faults"
)

// SyntaxError reports a malformed path string.
type SyntaxError struct {
	Input  string
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid field path %q: %s", e.Input, e.Reason)
}

// Kind implements faults.Classified.
func (e *SyntaxError) Kind() faults.Kind { return faults.KindBuild }

// FieldNotFoundError reports that a path does not resolve against a node's
// output. NodeID and Iteration are filled in by the engine; Iteration is -1
// when unknown and 0 outside cycle groups.
type FieldNotFoundError struct {
	Path      string
	Accessor  string
	Reason    string
	NodeID    string
	Iteration int
}

func (e *FieldNotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "field %q not found", e.Path)
	if e.NodeID != "" {
		fmt.Fprintf(&b, " in output of node %q", e.NodeID)
	}
	if e.Iteration > 0 {
		fmt.Fprintf(&b, " (iteration %d)", e.Iteration)
	}
	fmt.Fprintf(&b, ": %s", e.Reason)
	return b.String()
}

// Kind implements faults.Classified.
func (e *FieldNotFoundError) Kind() faults.Kind { return faults.KindExecution }

// Retryable implements faults.Retryable. The producing node may emit the
// field on another attempt.
func (e *FieldNotFoundError) Retryable() bool { return true }

// At returns a copy of the error attributed to a node and iteration.
func (e *FieldNotFoundError) At(nodeID string, iteration int) *FieldNotFoundError {
	cp := *e
	cp.NodeID = nodeID
	cp.Iteration = iteration
	return &cp
}
