package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/cyclegrid/internal/ctxlog"
	"github.com/specialistvlad/cyclegrid/internal/graph"
	"github.com/specialistvlad/cyclegrid/internal/node"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	unitPending int32 = iota
	unitRunning
	unitSkipped
)

// errInterrupted reports that a unit stopped early because the run context
// was cancelled.
var errInterrupted = errors.New("unit interrupted")

type unitState struct {
	unit     *graph.Unit
	depCount atomic.Int32
	status   atomic.Int32
}

func (us *unitState) claim() bool {
	return us.status.CompareAndSwap(unitPending, unitRunning)
}

// Run is one execution of a built graph.
type Run struct {
	ID string

	engine  *Engine
	built   *graph.Built
	params  Params
	units   []*unitState
	states  map[string]*node.State
	timeout time.Duration
	logger  *slog.Logger

	ctx        context.Context
	cancel     context.CancelCauseFunc
	stopTimer  context.CancelFunc
	startedAt  time.Time
	wg         sync.WaitGroup
	readyChan  chan *unitState
	interrupt  atomic.Bool
	done       chan struct{}

	mu      sync.Mutex
	emitted map[string]int
	results map[string]NodeResult
	diags   map[string]CycleDiagnostics
	failure *RunFailedError
	cycErrs []error

	result *RunResult
	err    error
}

func newRun(parent context.Context, e *Engine, id string, b *graph.Built, units []*graph.Unit, params Params, timeout time.Duration) *Run {
	logger := ctxlog.FromContext(parent).With("runID", id)
	ctx, cancel := context.WithCancelCause(ctxlog.WithLogger(parent, logger))
	stop := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, stop = context.WithTimeoutCause(ctx, timeout, &RunTimeoutError{RunID: id, Timeout: timeout})
	}

	r := &Run{
		ID:        id,
		engine:    e,
		built:     b,
		params:    params,
		units:     make([]*unitState, len(units)),
		states:    make(map[string]*node.State, len(b.Order())),
		timeout:   timeout,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		stopTimer: stop,
		startedAt: e.now(),
		readyChan: make(chan *unitState, len(units)),
		done:      make(chan struct{}),
		emitted:   make(map[string]int),
		results:   make(map[string]NodeResult),
		diags:     make(map[string]CycleDiagnostics),
	}
	for i, u := range units {
		us := &unitState{unit: u}
		us.depCount.Store(int32(len(u.Deps)))
		r.units[i] = us
	}
	for _, id := range b.Order() {
		r.states[id] = node.NewState(id)
	}
	return r
}

// Wait blocks until the run finishes.
func (r *Run) Wait() (*RunResult, error) {
	<-r.done
	return r.result, r.err
}

// Done is closed when the run finishes.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Cancel stops the run. Nodes that have not started are skipped, running
// nodes are awaited. Cancelling a finished run changes nothing.
func (r *Run) Cancel() {
	r.cancel(&RunCancelledError{RunID: r.ID})
}

func (r *Run) execute() {
	defer close(r.done)
	defer r.stopTimer()

	ctx, span := r.engine.tracer.Start(r.ctx, "run", trace.WithAttributes(attribute.String("cyclegrid.run.id", r.ID)))
	defer span.End()
	r.ctx = ctx

	r.wg.Add(len(r.units))
	finished := make(chan struct{})
	go r.watch(finished)

	roots := 0
	for _, us := range r.units {
		if us.depCount.Load() == 0 {
			r.readyChan <- us
			roots++
		}
	}
	r.logger.Debug("Found root units.", "count", roots)

	for i := 0; i < r.engine.workers; i++ {
		go r.worker(i)
	}

	r.wg.Wait()
	close(finished)
	close(r.readyChan)

	r.result = r.buildResult()
	r.err = r.finalError()
	if r.err != nil {
		span.RecordError(r.err)
		span.SetStatus(codes.Error, r.err.Error())
		r.logger.Error("Run finished with error.", "error", r.err)
	} else {
		r.logger.Info("Run finished.", "duration", r.result.FinishedAt.Sub(r.startedAt))
	}
	if err := r.engine.store.Close(context.WithoutCancel(r.ctx), r.ID); err != nil {
		r.logger.Warn("Failed to close run in result store.", "error", err)
	}
	r.cancel(nil)
}

func (r *Run) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// watch skips every unit that has not started once the run context is done.
func (r *Run) watch(finished <-chan struct{}) {
	select {
	case <-r.ctx.Done():
	case <-finished:
		return
	}
	cause := context.Cause(r.ctx)
	skipped := 0
	for _, us := range r.units {
		if r.skipUnit(us) {
			skipped++
		}
	}
	if skipped > 0 {
		r.logger.Warn("Run context done, skipped pending units.", "count", skipped, "cause", cause)
		if !errors.Is(cause, errRunAborted) {
			r.interrupt.Store(true)
		}
	}
}

func (r *Run) worker(workerID int) {
	logger := r.logger.With("workerID", workerID)
	logger.Debug("Worker started.")

	for us := range r.readyChan {
		if !us.claim() {
			continue
		}
		unitLogger := logger.With("unit", us.unit.Name())

		if r.ctx.Err() != nil {
			unitLogger.Warn("Context canceled, skipping unit.")
			r.markSkipped(us.unit)
			r.interruptedBy(context.Cause(r.ctx))
			r.skipDependents(us)
			r.wg.Done()
			continue
		}

		unitLogger.Debug("Worker picked up unit.")
		var err error
		if us.unit.Cycle != nil {
			err = r.runCycle(r.ctx, us.unit.Cycle)
		} else {
			err = r.runSingle(r.ctx, us.unit.Nodes[0])
		}

		switch {
		case errors.Is(err, errInterrupted):
			unitLogger.Warn("Unit interrupted.")
			r.skipDependents(us)
		case err != nil:
			unitLogger.Error("Unit failed.", "error", err)
			r.skipDependents(us)
		default:
			for _, d := range us.unit.Dependents {
				dep := r.units[d]
				if dep.depCount.Add(-1) == 0 {
					unitLogger.Debug("Unlocking dependent unit.", "dependent", dep.unit.Name())
					r.readyChan <- dep
				}
			}
		}
		r.wg.Done()
	}
	logger.Debug("Worker finished.")
}

// skipUnit marks a unit that has not started, and all of its nodes, as
// skipped. It reports whether this call made the change.
func (r *Run) skipUnit(us *unitState) bool {
	if !us.status.CompareAndSwap(unitPending, unitSkipped) {
		return false
	}
	r.markSkipped(us.unit)
	r.wg.Done()
	return true
}

func (r *Run) markSkipped(u *graph.Unit) {
	for _, id := range u.Nodes {
		r.states[id].Skip()
	}
}

// skipDependents recursively skips every unit downstream of us.
func (r *Run) skipDependents(us *unitState) {
	for _, d := range us.unit.Dependents {
		dep := r.units[d]
		if r.skipUnit(dep) {
			r.logger.Warn("Skipping dependent unit due to upstream failure.", "unit", dep.unit.Name(), "dependency", us.unit.Name())
			r.skipDependents(dep)
		}
	}
}

// interruptedBy records that work was cut short by cause, unless cause is
// the abort that follows a node failure.
func (r *Run) interruptedBy(cause error) {
	if !errors.Is(cause, errRunAborted) {
		r.interrupt.Store(true)
	}
}

func (r *Run) setEmitted(ids []string, iteration int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.emitted[id] = iteration
	}
}

// emittedIteration returns the iteration downstream nodes read from id: 0
// outside cycle groups, the emitted iteration inside them.
func (r *Run) emittedIteration(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.emitted[id]
}

func (r *Run) setResult(id string, nr NodeResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[id] = nr
}

func (r *Run) buildResult() *RunResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := &RunResult{
		RunID:      r.ID,
		Nodes:      make(map[string]NodeResult, len(r.states)),
		Cycles:     make(map[string]CycleDiagnostics, len(r.diags)),
		StartedAt:  r.startedAt,
		FinishedAt: r.engine.now(),
	}
	for _, id := range r.built.Order() {
		if nr, ok := r.results[id]; ok {
			res.Nodes[id] = nr
			continue
		}
		res.Nodes[id] = NodeResult{Status: r.states[id].Status()}
	}
	for name, d := range r.diags {
		res.Cycles[name] = d
	}
	return res
}

func (r *Run) finalError() error {
	if r.ctx.Err() != nil && r.interrupt.Load() {
		if cause := context.Cause(r.ctx); !errors.Is(cause, errRunAborted) {
			return r.operationalError(cause)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failure != nil {
		r.failure.Result = r.result
		return r.failure
	}
	switch len(r.cycErrs) {
	case 0:
		return nil
	case 1:
		return r.cycErrs[0]
	default:
		return errors.Join(r.cycErrs...)
	}
}

func (r *Run) operationalError(cause error) error {
	var (
		cancelled *RunCancelledError
		runTO     *RunTimeoutError
		cycleTO   *CycleTimeoutError
	)
	switch {
	case errors.As(cause, &cancelled), errors.As(cause, &runTO), errors.As(cause, &cycleTO):
		return cause
	case errors.Is(cause, context.DeadlineExceeded):
		return &RunTimeoutError{RunID: r.ID, Timeout: r.timeout}
	default:
		return &RunCancelledError{RunID: r.ID, Err: cause}
	}
}
