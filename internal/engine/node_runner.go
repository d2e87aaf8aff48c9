package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/specialistvlad/cyclegrid/internal/ctyconv"
	"github.com/specialistvlad/cyclegrid/internal/fieldpath"
	"github.com/specialistvlad/cyclegrid/internal/graph"
	"github.com/specialistvlad/cyclegrid/internal/node"
	"github.com/specialistvlad/cyclegrid/internal/nodestore"
	"github.com/specialistvlad/cyclegrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// runSingle executes a node outside any cycle group. A failure aborts the
// run unless the run was already being cancelled.
func (r *Run) runSingle(ctx context.Context, id string) error {
	n, _ := r.built.Node(id)
	state := r.states[id]
	if err := state.Transition(node.Ready); err != nil {
		return err
	}

	out, err := r.runNode(ctx, n, nil, 0)
	if err != nil {
		r.setResult(id, NodeResult{Status: node.Failed, Err: err})
		if ctx.Err() != nil && !errors.Is(context.Cause(ctx), errRunAborted) {
			r.interruptedBy(context.Cause(ctx))
			return errInterrupted
		}
		r.mu.Lock()
		if r.failure == nil {
			r.failure = &RunFailedError{RunID: r.ID, NodeID: id, Err: err}
		}
		r.mu.Unlock()
		r.cancel(errRunAborted)
		return err
	}
	r.setResult(id, NodeResult{Status: node.Succeeded, Output: out})
	return nil
}

// runNode executes one node at the given iteration (0 outside cycle groups)
// and records the outcome. The node must be Ready.
func (r *Run) runNode(ctx context.Context, n *graph.Node, group *graph.CycleGroup, iteration int) (cty.Value, error) {
	ctx, span := r.engine.tracer.Start(ctx, "node "+n.ID, trace.WithAttributes(
		attribute.String("cyclegrid.node.id", n.ID),
		attribute.String("cyclegrid.node.type", n.Type),
		attribute.Int("cyclegrid.iteration", iteration),
	))
	defer span.End()

	logger := r.logger.With("nodeID", n.ID, "iteration", iteration)
	state := r.states[n.ID]
	if err := state.Transition(node.Running); err != nil {
		return cty.NilVal, err
	}

	rec := nodestore.Record{
		RunID:     r.ID,
		NodeID:    n.ID,
		Iteration: iteration,
		StartedAt: r.engine.now(),
	}

	out, input, err := r.invoke(ctx, n, group, iteration)
	rec.Input = input
	rec.FinishedAt = r.engine.now()
	if err == nil {
		rec.Status = node.Succeeded
		rec.Output = out
	} else {
		err = &NodeError{NodeID: n.ID, TypeName: n.Type, Iteration: iteration, Err: err}
		rec.Status = node.Failed
		rec.Output = cty.NullVal(cty.DynamicPseudoType)
		rec.Err = err
	}

	// The record must land even when the run is being cancelled.
	if storeErr := r.engine.store.Record(context.WithoutCancel(ctx), rec); storeErr != nil {
		logger.Error("Failed to record node result.", "error", storeErr)
		if err == nil {
			err = &NodeError{NodeID: n.ID, TypeName: n.Type, Iteration: iteration, Err: fmt.Errorf("recording result: %w", storeErr)}
		}
	}

	if err != nil {
		logger.Error("Node execution failed.", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if terr := state.Transition(node.Failed); terr != nil {
			logger.Error("Unexpected state transition.", "error", terr)
		}
		return cty.NilVal, err
	}

	logger.Debug("Node execution succeeded.")
	if terr := state.Transition(node.Succeeded); terr != nil {
		return cty.NilVal, terr
	}
	return out, nil
}

// invoke resolves the node's inputs, binds them to a fresh instance and runs
// its handler. The returned input is whatever could be assembled, for the
// record.
func (r *Run) invoke(ctx context.Context, n *graph.Node, group *graph.CycleGroup, iteration int) (cty.Value, cty.Value, error) {
	inputs, err := r.resolveInputs(ctx, n, group, iteration)
	if err != nil {
		return cty.NilVal, ctyconv.Object(inputs), err
	}

	inst, err := r.built.Registry().Instantiate(n.Type, n.ID, inputs)
	if err != nil {
		return cty.NilVal, ctyconv.Object(inputs), err
	}

	previous := cty.NullVal(cty.DynamicPseudoType)
	if group != nil && iteration > 1 {
		prev, err := r.engine.store.GetIteration(ctx, r.ID, n.ID, iteration-1)
		if err != nil {
			return cty.NilVal, inst.Params, fmt.Errorf("reading previous iteration: %w", err)
		}
		previous = prev.Output
	}

	out, err := safeExecute(ctx, inst, r.ID, iteration, previous)
	if err != nil {
		return cty.NilVal, inst.Params, err
	}
	if out == cty.NilVal {
		out = cty.NullVal(cty.DynamicPseudoType)
	}
	return out, inst.Params, nil
}

// resolveInputs assembles a node's inputs. Later sources win: static
// configuration, runtime parameters, edges, then re-entry mappings from the
// previous iteration.
func (r *Run) resolveInputs(ctx context.Context, n *graph.Node, group *graph.CycleGroup, iteration int) (map[string]cty.Value, error) {
	inputs := mergeInputs(n.Config, r.params[n.ID])

	for _, e := range r.built.Incoming(n.ID) {
		at := r.emittedIteration(e.From)
		if group != nil && group.Contains(e.From) {
			at = iteration
		}
		v, err := r.readField(ctx, e.From, at, e.FromPath)
		if err != nil {
			return inputs, err
		}
		inputs[e.ToField] = v
	}

	if group == nil || iteration < 2 {
		return inputs, nil
	}
	for _, re := range group.ReEntriesTo(n.ID) {
		for _, m := range re.Mappings {
			v, err := r.readField(ctx, re.From, iteration-1, m.Source)
			if err != nil {
				return inputs, fmt.Errorf("re-entry %s -> %s: %w", re.From, re.To, err)
			}
			inputs[m.Target] = v
		}
	}
	return inputs, nil
}

func (r *Run) readField(ctx context.Context, nodeID string, iteration int, path fieldpath.Path) (cty.Value, error) {
	rec, err := r.engine.store.GetIteration(ctx, r.ID, nodeID, iteration)
	if err != nil {
		return cty.NilVal, fmt.Errorf("reading output of %q: %w", nodeID, err)
	}
	v, err := path.Resolve(rec.Output)
	if err != nil {
		var fnf *fieldpath.FieldNotFoundError
		if errors.As(err, &fnf) {
			return cty.NilVal, fnf.At(nodeID, iteration)
		}
		return cty.NilVal, err
	}
	return v, nil
}

// safeExecute runs the handler and turns a panic into an error.
func safeExecute(ctx context.Context, inst *registry.Instance, runID string, iteration int, previous cty.Value) (out cty.Value, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in handler: %v\n%s", p, debug.Stack())
		}
	}()
	return inst.Execute(ctx, runID, iteration, previous)
}
