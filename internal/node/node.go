// Package node holds the per-run execution state of a single graph node.
package node

import (
	"fmt"
	"sync/atomic"

	"github.com/specialistvlad/cyclegrid/internal/faults"
)

// Status is the execution state of a node within one run.
type Status int32

const (
	// Pending indicates the node is waiting for its dependencies to complete.
	Pending Status = iota
	// Ready indicates every input is satisfied and the node is queued.
	Ready
	// Running indicates the node is currently being executed by a worker.
	Running
	// Succeeded indicates the node produced an output.
	Succeeded
	// Failed indicates the node's handler returned an error.
	Failed
	// Skipped indicates the node was never run because an upstream node did
	// not succeed or the run was stopped.
	Skipped
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// MarshalText renders the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition is possible within an
// iteration.
func (s Status) Terminal() bool {
	return s == Succeeded || s == Failed || s == Skipped
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	for st := Pending; st <= Skipped; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return Pending, fmt.Errorf("unknown node status %q", s)
}

var transitions = map[Status][]Status{
	Pending:   {Ready, Skipped},
	Ready:     {Running, Skipped},
	Running:   {Succeeded, Failed},
	Succeeded: {Ready},
}

// State tracks one node through a run. Cycle members move from Succeeded
// back to Ready for every further iteration.
type State struct {
	id     string
	status atomic.Int32
}

// NewState returns a Pending state for the node.
func NewState(id string) *State {
	return &State{id: id}
}

// ID returns the node id.
func (s *State) ID() string {
	return s.id
}

// Status atomically reads the current status.
func (s *State) Status() Status {
	return Status(s.status.Load())
}

// Transition moves the node to the given status. Any move not allowed by the
// state machine, including a lost race with another transition, returns a
// *TransitionError and leaves the state unchanged.
func (s *State) Transition(to Status) error {
	from := s.Status()
	if !allowed(from, to) || !s.status.CompareAndSwap(int32(from), int32(to)) {
		return &TransitionError{NodeID: s.id, From: from, To: to}
	}
	return nil
}

// Skip marks a node that has not started as Skipped. It reports whether this
// call made the change.
func (s *State) Skip() bool {
	for {
		from := s.Status()
		if from != Pending && from != Ready {
			return false
		}
		if s.status.CompareAndSwap(int32(from), int32(Skipped)) {
			return true
		}
	}
}

func allowed(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionError reports an illegal state change. It indicates a bug in the
// scheduler rather than in user code.
type TransitionError struct {
	NodeID string
	From   Status
	To     Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("node %q: illegal transition %s -> %s", e.NodeID, e.From, e.To)
}

func (e *TransitionError) Kind() faults.Kind { return faults.KindExecution }
