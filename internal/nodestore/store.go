// Package nodestore defines the Result Store: the per-run, append-only record
// of what every node produced in every iteration.
//
// # Why Node Store Exists
//
// The store is the only mutable structure shared by concurrently executing
// nodes. The graph and the registry are read-only during a run, so every bit
// of execution state that must outlive a single node execution lives here:
//   - **Downstream inputs:** edges are resolved against recorded outputs
//   - **Iteration state:** a cycle member reads its own output from iteration
//     k-1 through the store, never through package-level state
//   - **Inspection:** callers read final outputs and full iteration history
//     after the run, including the SUCCEEDED state of a failed run
//
// # Keys
//
// Records are keyed by (run id, node id, iteration). Iteration is 0 for nodes
// outside cycle groups and 1..n inside them. A key is written exactly once;
// writing it again is a scheduler bug reported as DuplicateRecordError.
//
// # Lifecycle
//
//  1. **Open** registers a run before its first node executes
//  2. **Record** appends one record per executed (node, iteration)
//  3. **Get / GetAllIterations / Records** serve reads during and after the run
//  4. **Close** marks the run finished; only closed runs may be evicted by a
//     retention policy, so a run in flight never loses its records
//  5. **Release** drops the run
package nodestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/cyclegrid/internal/faults"
	"github.com/specialistvlad/cyclegrid/internal/node"
	"github.com/zclconf/go-cty/cty"
)

var (
	// ErrRunNotFound is returned for runs that were never opened, were
	// released, or were evicted.
	ErrRunNotFound = errors.New("run not found")
	// ErrRecordNotFound is returned when a node has no record in the run.
	ErrRecordNotFound = errors.New("record not found")
	// ErrRunExists is returned when a run id is opened twice.
	ErrRunExists = errors.New("run already exists")
)

// Record is the execution record of one node in one iteration.
type Record struct {
	RunID     string
	NodeID    string
	Iteration int
	// Status is node.Succeeded or node.Failed.
	Status node.Status
	// Input is the object of resolved inputs the handler received.
	Input cty.Value
	// Output is null unless Status is node.Succeeded.
	Output     cty.Value
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Key identifies a record.
type Key struct {
	RunID     string
	NodeID    string
	Iteration int
}

// Key returns the record's key.
func (r Record) Key() Key {
	return Key{RunID: r.RunID, NodeID: r.NodeID, Iteration: r.Iteration}
}

// Store is the Result Store contract.
//
// # Thread-Safety Requirements
//
// Implementations MUST be safe for concurrent use: sibling nodes record their
// outputs while the scheduler and callers read.
type Store interface {
	// Open registers a new run. It fails with ErrRunExists if the id is in use.
	Open(ctx context.Context, runID string) error

	// Record appends a record. A second record for the same key fails with
	// *DuplicateRecordError; a record for an unknown run fails with
	// ErrRunNotFound.
	Record(ctx context.Context, rec Record) error

	// Get returns the record of the node's last recorded iteration.
	Get(ctx context.Context, runID, nodeID string) (Record, error)

	// GetIteration returns the record of one specific iteration.
	GetIteration(ctx context.Context, runID, nodeID string, iteration int) (Record, error)

	// GetAllIterations returns every record of the node in ascending
	// iteration order. The slice is a copy and may be iterated repeatedly.
	GetAllIterations(ctx context.Context, runID, nodeID string) ([]Record, error)

	// Records returns every record of the run in the order they were written.
	Records(ctx context.Context, runID string) ([]Record, error)

	// Close marks the run finished. Its records stay readable until the run
	// is released or evicted. Closing an unknown run is a no-op.
	Close(ctx context.Context, runID string) error

	// Release drops the run. Releasing an unknown run is a no-op.
	Release(ctx context.Context, runID string) error
}

// Sink receives a copy of every record a store accepts, e.g. to flush it to
// a durable log.
type Sink interface {
	Append(ctx context.Context, rec Record) error
}

// DuplicateRecordError reports a second write to the same key.
type DuplicateRecordError struct {
	Key Key
}

func (e *DuplicateRecordError) Error() string {
	return fmt.Sprintf("run %q: node %q iteration %d is already recorded", e.Key.RunID, e.Key.NodeID, e.Key.Iteration)
}

func (e *DuplicateRecordError) Kind() faults.Kind { return faults.KindExecution }
