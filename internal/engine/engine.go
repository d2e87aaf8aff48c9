package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/cyclegrid/internal/ctxlog"
	"github.com/specialistvlad/cyclegrid/internal/graph"
	"github.com/specialistvlad/cyclegrid/internal/inmemorystore"
	"github.com/specialistvlad/cyclegrid/internal/node"
	"github.com/specialistvlad/cyclegrid/internal/nodestore"
	"github.com/zclconf/go-cty/cty"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultWorkers is the size of the worker pool when WithWorkers is not used.
const DefaultWorkers = 4

const tracerName = "github.com/specialistvlad/cyclegrid/internal/engine"

// Params holds runtime parameters: node id -> input field -> value.
type Params map[string]map[string]cty.Value

// Option configures an Engine.
type Option func(*Engine)

// WithStore replaces the default in-memory Result Store. A custom store
// should apply the same retention as the engine.
func WithStore(s nodestore.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithWorkers sets the number of concurrent workers per run.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithRetention keeps at most n finished runs inspectable; the oldest are
// forgotten when a new run starts. It also sizes the default store. Values
// below one keep a single run.
func WithRetention(n int) Option {
	return func(e *Engine) {
		if n < 1 {
			n = 1
		}
		e.retention = n
	}
}

// WithTracer sets the tracer used for run, cycle and node spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithClock overrides time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRunIDGenerator overrides the random UUID run ids.
func WithRunIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newRunID = gen }
}

// RunOption configures a single run.
type RunOption func(*runOptions)

type runOptions struct {
	timeout time.Duration
	runID   string
}

// WithTimeout bounds the wall-clock time of the run.
func WithTimeout(d time.Duration) RunOption {
	return func(o *runOptions) { o.timeout = d }
}

// WithRunID uses a caller-chosen run id instead of a generated one.
func WithRunID(id string) RunOption {
	return func(o *runOptions) { o.runID = id }
}

// Engine executes built graphs. It is safe for concurrent use; every run is
// independent.
type Engine struct {
	store     nodestore.Store
	workers   int
	retention int
	tracer    trace.Tracer
	now       func() time.Time
	newRunID  func() string

	mu    sync.Mutex
	runs  map[string]*Run
	order []string
}

// New creates an engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		workers:   DefaultWorkers,
		retention: inmemorystore.DefaultRetention,
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
		newRunID:  func() string { return uuid.NewString() },
		runs:      make(map[string]*Run),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		e.store = inmemorystore.New(inmemorystore.WithRetention(e.retention))
	}
	return e
}

// Store returns the engine's Result Store.
func (e *Engine) Store() nodestore.Store {
	return e.store
}

// Start validates params against the graph and starts a run in the
// background. Validation errors are returned before any node executes.
func (e *Engine) Start(ctx context.Context, b *graph.Built, params Params, opts ...RunOption) (*Run, error) {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := validate(b, params); err != nil {
		return nil, err
	}
	units, err := b.Units()
	if err != nil {
		return nil, err
	}

	runID := o.runID
	if runID == "" {
		runID = e.newRunID()
	}
	if err := e.store.Open(ctx, runID); err != nil {
		return nil, fmt.Errorf("opening run %s: %w", runID, err)
	}

	r := newRun(ctx, e, runID, b, units, params, o.timeout)
	e.mu.Lock()
	e.runs[runID] = r
	e.order = append(e.order, runID)
	dropped := e.pruneLocked()
	e.mu.Unlock()
	for _, id := range dropped {
		if err := e.store.Release(ctx, id); err != nil {
			ctxlog.FromContext(ctx).Warn("Failed to release evicted run.", "runID", id, "error", err)
		}
	}

	ctxlog.FromContext(ctx).Debug("Run started.", "runID", runID, "units", len(units), "workers", e.workers)
	go r.execute()
	return r, nil
}

// Execute runs the graph to completion. The RunResult is returned together
// with the run error, if any, so that partial results stay inspectable.
func (e *Engine) Execute(ctx context.Context, b *graph.Built, params Params, opts ...RunOption) (*RunResult, error) {
	r, err := e.Start(ctx, b, params, opts...)
	if err != nil {
		return nil, err
	}
	return r.Wait()
}

// pruneLocked forgets the oldest finished runs beyond the retention limit
// and returns their ids. Runs still executing are kept. e.mu must be held.
func (e *Engine) pruneLocked() []string {
	excess := len(e.runs) - e.retention
	var dropped []string
	kept := e.order[:0]
	for _, id := range e.order {
		r, ok := e.runs[id]
		if !ok {
			continue
		}
		if excess > 0 && r.finished() {
			delete(e.runs, id)
			dropped = append(dropped, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	e.order = kept
	return dropped
}

func (e *Engine) run(runID string) (*Run, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	return r, nil
}

// Cancel stops a run. It is idempotent and a no-op for finished runs.
func (e *Engine) Cancel(runID string) error {
	r, err := e.run(runID)
	if err != nil {
		return err
	}
	r.Cancel()
	return nil
}

// Result returns the result of a finished run.
func (e *Engine) Result(runID string) (*RunResult, error) {
	r, err := e.run(runID)
	if err != nil {
		return nil, err
	}
	select {
	case <-r.done:
		return r.result, r.err
	default:
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, runID)
	}
}

// IterationHistory returns every record of the node in ascending iteration
// order: one entry for nodes outside cycle groups, one per executed
// iteration inside them.
func (e *Engine) IterationHistory(ctx context.Context, runID, nodeID string) ([]nodestore.Record, error) {
	return e.store.GetAllIterations(ctx, runID, nodeID)
}

// Status returns the live status of a node.
func (e *Engine) Status(runID, nodeID string) (node.Status, error) {
	r, err := e.run(runID)
	if err != nil {
		return node.Pending, err
	}
	st, ok := r.states[nodeID]
	if !ok {
		return node.Pending, fmt.Errorf("run %s has no node %q", runID, nodeID)
	}
	return st.Status(), nil
}

// Release forgets a run and drops its records. A running run is cancelled
// first.
func (e *Engine) Release(ctx context.Context, runID string) error {
	e.mu.Lock()
	r, ok := e.runs[runID]
	delete(e.runs, runID)
	e.mu.Unlock()
	if ok {
		r.Cancel()
		<-r.done
	}
	return e.store.Release(ctx, runID)
}
