package engine

import (
	"context"
	"errors"

	"github.com/specialistvlad/cyclegrid/internal/graph"
	"github.com/specialistvlad/cyclegrid/internal/node"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// runCycle runs a cycle group's iteration loop. Members execute strictly
// sequentially in topological order; iteration k+1 starts only after every
// member of iteration k finished. A nil return means the group emitted an
// iteration and its downstream may run.
func (r *Run) runCycle(ctx context.Context, g *graph.CycleGroup) error {
	ctx, span := r.engine.tracer.Start(ctx, "cycle "+g.Name, trace.WithAttributes(
		attribute.String("cyclegrid.cycle.name", g.Name),
		attribute.Int("cyclegrid.cycle.max_iterations", g.MaxIterations),
	))
	defer span.End()

	if g.Timeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeoutCause(ctx, g.Timeout, &CycleTimeoutError{Cycle: g.Name, Timeout: g.Timeout})
		defer stop()
	}

	logger := r.logger.With("cycle", g.Name)
	var diag CycleDiagnostics
	lastGood := 0

	for k := 1; k <= g.MaxIterations; k++ {
		diag.Iterations = k
		logger.Debug("Starting iteration.", "iteration", k)
		for _, id := range g.Members {
			if err := r.states[id].Transition(node.Ready); err != nil {
				return r.failCycle(g, &diag, &CycleExecutionError{Cycle: g.Name, NodeID: id, Iteration: k, Err: err}, span)
			}
		}

		for i, id := range g.Members {
			if ctx.Err() != nil {
				return r.interruptCycle(ctx, g, diag, g.Members[i:])
			}
			n, _ := r.built.Node(id)
			if _, err := r.runNode(ctx, n, g, k); err != nil {
				if ctx.Err() != nil {
					return r.interruptCycle(ctx, g, diag, g.Members[i+1:])
				}
				r.skipMembers(g.Members[i+1:])
				cycErr := &CycleExecutionError{Cycle: g.Name, NodeID: id, Iteration: k, Err: err}
				if g.FaultTolerant && lastGood > 0 {
					logger.Warn("Iteration failed, emitting last good iteration.", "iteration", k, "emitted", lastGood, "error", err)
					diag.Failed = true
					diag.Err = cycErr
					r.emitCycle(g, diag, lastGood)
					return nil
				}
				return r.failCycle(g, &diag, cycErr, span)
			}
		}
		lastGood = k

		if g.Converge == nil {
			continue
		}
		rec, err := r.engine.store.GetIteration(ctx, r.ID, g.OutputNode, k)
		if err != nil {
			return r.failCycle(g, &diag, &CycleExecutionError{Cycle: g.Name, NodeID: g.OutputNode, Iteration: k, Err: err}, span)
		}
		converged, err := g.Converge.Evaluate(rec.Output)
		if err != nil {
			return r.failCycle(g, &diag, &CycleExecutionError{Cycle: g.Name, NodeID: g.OutputNode, Iteration: k, Err: err}, span)
		}
		if converged {
			logger.Debug("Cycle converged.", "iteration", k)
			diag.Converged = true
			break
		}
	}

	if !diag.Converged {
		diag.MaxIterationsReached = true
		logger.Info("Cycle stopped at max iterations without converging.", "iterations", diag.Iterations)
	}
	span.SetAttributes(
		attribute.Int("cyclegrid.cycle.iterations", diag.Iterations),
		attribute.Bool("cyclegrid.cycle.converged", diag.Converged),
	)
	r.emitCycle(g, diag, lastGood)
	return nil
}

// emitCycle publishes iteration k of every member to downstream nodes.
func (r *Run) emitCycle(g *graph.CycleGroup, diag CycleDiagnostics, k int) {
	diag.EmittedIteration = k
	r.setEmitted(g.Members, k)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.diags[g.Name] = diag
	for _, id := range g.Members {
		nr := NodeResult{Status: node.Succeeded, Iteration: k}
		if rec, err := r.engine.store.GetIteration(context.Background(), r.ID, id, k); err == nil {
			nr.Output = rec.Output
		}
		r.results[id] = nr
	}
}

func (r *Run) failCycle(g *graph.CycleGroup, diag *CycleDiagnostics, err *CycleExecutionError, span trace.Span) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	diag.Failed = true
	diag.Err = err
	r.settleMembers(g, *diag)

	r.mu.Lock()
	r.cycErrs = append(r.cycErrs, err)
	r.mu.Unlock()
	return err
}

func (r *Run) interruptCycle(ctx context.Context, g *graph.CycleGroup, diag CycleDiagnostics, rest []string) error {
	r.skipMembers(rest)
	cause := context.Cause(ctx)
	var cycleTO *CycleTimeoutError
	if errors.As(cause, &cycleTO) {
		// A cycle timeout stops the whole run.
		r.cancel(cause)
	}
	r.interruptedBy(cause)
	r.settleMembers(g, diag)
	return errInterrupted
}

func (r *Run) skipMembers(ids []string) {
	for _, id := range ids {
		r.states[id].Skip()
	}
}

// settleMembers reports the latest record of every member of a group that
// did not emit.
func (r *Run) settleMembers(g *graph.CycleGroup, diag CycleDiagnostics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diags[g.Name] = diag
	for _, id := range g.Members {
		nr := NodeResult{Status: r.states[id].Status()}
		if rec, err := r.engine.store.Get(context.Background(), r.ID, id); err == nil && nr.Status != node.Skipped {
			nr.Iteration = rec.Iteration
			nr.Err = rec.Err
			if rec.Status == node.Succeeded {
				nr.Output = rec.Output
			}
		}
		r.results[id] = nr
	}
}
