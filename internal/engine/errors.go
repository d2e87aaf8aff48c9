package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/specialistvlad/cyclegrid/internal/faults"
	"github.com/specialistvlad/cyclegrid/internal/graph"
)

var (
	// ErrUnknownRun is returned for run ids the engine does not hold.
	ErrUnknownRun = errors.New("unknown run")
	// ErrRunInProgress is returned by Result while the run is executing.
	ErrRunInProgress = errors.New("run is still in progress")
)

// MissingParameterError lists every required input that neither an edge, a
// default, static configuration nor a runtime parameter satisfies.
type MissingParameterError struct {
	Missing []graph.RequiredInput
}

func (e *MissingParameterError) Error() string {
	parts := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		parts[i] = fmt.Sprintf("missing required parameter %q on node %q", m.Field, m.NodeID)
	}
	return strings.Join(parts, "; ")
}

func (e *MissingParameterError) Kind() faults.Kind { return faults.KindValidation }

// NodeError is the error recorded for a failed node execution.
type NodeError struct {
	NodeID    string
	TypeName  string
	Iteration int
	Err       error
}

func (e *NodeError) Error() string {
	if e.Iteration > 0 {
		return fmt.Sprintf("node %q (type %q) failed in iteration %d: %v", e.NodeID, e.TypeName, e.Iteration, e.Err)
	}
	return fmt.Sprintf("node %q (type %q) failed: %v", e.NodeID, e.TypeName, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

func (e *NodeError) Kind() faults.Kind { return faults.KindExecution }

// RunFailedError is returned when a node outside any cycle group fails. The
// run was aborted; Result still holds every output recorded before that.
type RunFailedError struct {
	RunID  string
	NodeID string
	Err    error
	Result *RunResult
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("run %s failed at node %q: %v", e.RunID, e.NodeID, e.Err)
}

func (e *RunFailedError) Unwrap() error { return e.Err }

func (e *RunFailedError) Kind() faults.Kind { return faults.KindExecution }

// CycleExecutionError is returned when a cycle group's iteration loop is
// aborted by a failing member, an unresolvable re-entry mapping or a broken
// convergence expression.
type CycleExecutionError struct {
	Cycle     string
	NodeID    string
	Iteration int
	Err       error
}

func (e *CycleExecutionError) Error() string {
	return fmt.Sprintf("cycle %q aborted at node %q in iteration %d: %v", e.Cycle, e.NodeID, e.Iteration, e.Err)
}

func (e *CycleExecutionError) Unwrap() error { return e.Err }

func (e *CycleExecutionError) Kind() faults.Kind { return faults.KindExecution }

// RunCancelledError is returned when a run is cancelled before it finished.
type RunCancelledError struct {
	RunID string
	Err   error
}

func (e *RunCancelledError) Error() string {
	return fmt.Sprintf("run %s was cancelled", e.RunID)
}

func (e *RunCancelledError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return context.Canceled
}

func (e *RunCancelledError) Kind() faults.Kind { return faults.KindOperational }

// RunTimeoutError is returned when a run exceeds its wall-clock timeout.
type RunTimeoutError struct {
	RunID   string
	Timeout time.Duration
}

func (e *RunTimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("run %s timed out after %s", e.RunID, e.Timeout)
	}
	return fmt.Sprintf("run %s timed out", e.RunID)
}

func (e *RunTimeoutError) Unwrap() error { return context.DeadlineExceeded }

func (e *RunTimeoutError) Kind() faults.Kind { return faults.KindOperational }

// CycleTimeoutError is returned when a cycle group exceeds its timeout.
// Like a run timeout it stops the whole run.
type CycleTimeoutError struct {
	Cycle   string
	Timeout time.Duration
}

func (e *CycleTimeoutError) Error() string {
	return fmt.Sprintf("cycle %q timed out after %s", e.Cycle, e.Timeout)
}

func (e *CycleTimeoutError) Unwrap() error { return context.DeadlineExceeded }

func (e *CycleTimeoutError) Kind() faults.Kind { return faults.KindOperational }

// errRunAborted is the cancellation cause used when a node failure aborts
// the run. It never reaches callers.
var errRunAborted = errors.New("run aborted after node failure")
