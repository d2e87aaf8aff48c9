package engine

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/specialistvlad/cyclegrid/internal/node"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// NodeResult is the final state of one node in a run.
type NodeResult struct {
	Status node.Status
	// Output is the emitted output: iteration 0 outside cycle groups, the
	// emitted iteration inside them. Null unless Status is Succeeded.
	Output cty.Value
	Err    error
	// Iteration is the iteration Output and Err belong to.
	Iteration int
}

// CycleDiagnostics describes how a cycle group's loop ended. Reaching
// max_iterations without converging is reported here, not as an error.
type CycleDiagnostics struct {
	Iterations           int
	Converged            bool
	MaxIterationsReached bool
	// Failed is set when an iteration failed. For fault-tolerant groups the
	// loop still emits EmittedIteration.
	Failed           bool
	EmittedIteration int
	Err              error
}

// RunResult is the outcome of one run.
type RunResult struct {
	RunID      string
	Nodes      map[string]NodeResult
	Cycles     map[string]CycleDiagnostics
	StartedAt  time.Time
	FinishedAt time.Time
}

// Output returns a node's emitted output if the node succeeded.
func (r *RunResult) Output(nodeID string) (cty.Value, bool) {
	nr, ok := r.Nodes[nodeID]
	if !ok || nr.Status != node.Succeeded {
		return cty.NilVal, false
	}
	return nr.Output, true
}

// Diagnostics returns the per-cycle metadata as plain values, keyed by
// cycle name.
func (r *RunResult) Diagnostics() map[string]map[string]any {
	out := make(map[string]map[string]any, len(r.Cycles))
	for name, d := range r.Cycles {
		out[name] = map[string]any{
			"iterations":             d.Iterations,
			"converged":              d.Converged,
			"max_iterations_reached": d.MaxIterationsReached,
			"failed":                 d.Failed,
		}
	}
	return out
}

type nodeJSON struct {
	Status    node.Status     `json:"status"`
	Iteration int             `json:"iteration"`
	Output    json.RawMessage `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
}

type runJSON struct {
	RunID      string                    `json:"run_id"`
	StartedAt  time.Time                 `json:"started_at"`
	FinishedAt time.Time                 `json:"finished_at"`
	Nodes      map[string]nodeJSON       `json:"nodes"`
	Cycles     map[string]map[string]any `json:"cycles,omitempty"`
}

// MarshalJSON renders outputs as plain JSON values.
func (r *RunResult) MarshalJSON() ([]byte, error) {
	out := runJSON{
		RunID:      r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Nodes:      make(map[string]nodeJSON, len(r.Nodes)),
		Cycles:     r.Diagnostics(),
	}
	for id, nr := range r.Nodes {
		nj := nodeJSON{Status: nr.Status, Iteration: nr.Iteration}
		if nr.Output != cty.NilVal && !nr.Output.IsNull() && nr.Output.IsWhollyKnown() {
			raw, err := ctyjson.SimpleJSONValue{Value: nr.Output}.MarshalJSON()
			if err != nil {
				return nil, err
			}
			nj.Output = raw
		}
		if nr.Err != nil {
			nj.Error = nr.Err.Error()
		}
		out.Nodes[id] = nj
	}
	return json.Marshal(out)
}

// NodeIDs returns the ids in the result, sorted.
func (r *RunResult) NodeIDs() []string {
	ids := make([]string, 0, len(r.Nodes))
	for id := range r.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
