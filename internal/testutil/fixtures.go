// Package testutil holds node types and helpers shared by tests across
// packages.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/specialistvlad/cyclegrid/internal/registry"
	"github.com/specialistvlad/cyclegrid/internal/schema"
	"github.com/zclconf/go-cty/cty"
)

// ErrBoom is returned by the "fail" node type.
var ErrBoom = errors.New("boom")

var resultOutput = cty.Object(map[string]cty.Type{"result": cty.Number})

// ExecutionRecord holds the start and end times of one handler invocation.
type ExecutionRecord struct {
	NodeID    string
	Iteration int
	Start     time.Time
	End       time.Time
}

// Fixtures is a module of small deterministic node types. It records every
// invocation so tests can assert what ran, and in which order.
//
//	double   x:number -> {result: x*2}
//	add_one  x:number -> {result: x+1}
//	counter  x:number=0, step:number=1 -> {count: x+step}
//	sum      a:number, b:number=0 -> {result: a+b}
//	fail     accepts anything, always fails with ErrBoom
//	panic    accepts anything, always panics
//	echo     accepts anything, returns its params
//	sleep    ms:number -> {slept: ms}, honours cancellation
//	block    accepts anything, waits for cancellation or Release
type Fixtures struct {
	mu      sync.Mutex
	calls   []ExecutionRecord
	release chan struct{}
	started chan string
}

// NewFixtures creates the module.
func NewFixtures() *Fixtures {
	return &Fixtures{
		release: make(chan struct{}),
		started: make(chan string, 64),
	}
}

// NewRegistry returns a frozen registry holding the fixture node types.
func (f *Fixtures) NewRegistry() (*registry.Registry, error) {
	reg := registry.New()
	if err := reg.RegisterModules(f); err != nil {
		return nil, err
	}
	reg.Freeze()
	return reg, nil
}

// Calls returns a copy of the invocations recorded so far.
func (f *Fixtures) Calls() []ExecutionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ExecutionRecord(nil), f.calls...)
}

// CallCount returns how many times the node was invoked.
func (f *Fixtures) CallCount(nodeID string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.NodeID == nodeID {
			n++
		}
	}
	return n
}

// Started receives the id of every "block" node once it is running.
func (f *Fixtures) Started() <-chan string {
	return f.started
}

// Release unblocks every "block" node.
func (f *Fixtures) Release() {
	close(f.release)
}

func (f *Fixtures) track(call *registry.Call, start time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ExecutionRecord{NodeID: call.NodeID, Iteration: call.Iteration, Start: start, End: time.Now()})
}

type xInput struct {
	X float64 `cty:"x"`
}

type counterInput struct {
	X    float64 `cty:"x"`
	Step float64 `cty:"step"`
}

type sumInput struct {
	A float64 `cty:"a"`
	B float64 `cty:"b"`
}

type sleepInput struct {
	Ms float64 `cty:"ms"`
}

// Register implements registry.Module.
func (f *Fixtures) Register(r *registry.Registry) error {
	arith := func(op func(float64) float64) registry.Handler {
		return registry.Typed(func(_ context.Context, call *registry.Call, in *xInput) (map[string]any, error) {
			defer f.track(call, time.Now())
			return map[string]any{"result": op(in.X)}, nil
		})
	}

	defs := map[string]*registry.Definition{
		"double": {
			Schema:  &schema.Schema{Inputs: []schema.Parameter{schema.Required("x", cty.Number)}, Outputs: resultOutput},
			Handler: arith(func(x float64) float64 { return x * 2 }),
		},
		"add_one": {
			Schema:  &schema.Schema{Inputs: []schema.Parameter{schema.Required("x", cty.Number)}, Outputs: resultOutput},
			Handler: arith(func(x float64) float64 { return x + 1 }),
		},
		"counter": {
			Schema: &schema.Schema{
				Inputs: []schema.Parameter{
					schema.Optional("x", cty.Number, cty.Zero),
					schema.Optional("step", cty.Number, cty.NumberIntVal(1)),
				},
				Outputs: cty.Object(map[string]cty.Type{"count": cty.Number}),
			},
			Handler: registry.Typed(func(_ context.Context, call *registry.Call, in *counterInput) (map[string]any, error) {
				defer f.track(call, time.Now())
				return map[string]any{"count": in.X + in.Step}, nil
			}),
		},
		"sum": {
			Schema: &schema.Schema{
				Inputs: []schema.Parameter{
					schema.Required("a", cty.Number),
					schema.Optional("b", cty.Number, cty.Zero),
				},
				Outputs: resultOutput,
			},
			Handler: registry.Typed(func(_ context.Context, call *registry.Call, in *sumInput) (map[string]any, error) {
				defer f.track(call, time.Now())
				return map[string]any{"result": in.A + in.B}, nil
			}),
		},
		"fail": {
			Schema: schema.Any(),
			Handler: func(_ context.Context, call *registry.Call) (cty.Value, error) {
				defer f.track(call, time.Now())
				return cty.NilVal, ErrBoom
			},
		},
		"panic": {
			Schema: schema.Any(),
			Handler: func(_ context.Context, call *registry.Call) (cty.Value, error) {
				f.track(call, time.Now())
				panic(fmt.Sprintf("node %s exploded", call.NodeID))
			},
		},
		"echo": {
			Schema: schema.Any(),
			Handler: func(_ context.Context, call *registry.Call) (cty.Value, error) {
				defer f.track(call, time.Now())
				return call.Params, nil
			},
		},
		"sleep": {
			Schema: &schema.Schema{Inputs: []schema.Parameter{schema.Required("ms", cty.Number)}},
			Handler: registry.Typed(func(ctx context.Context, call *registry.Call, in *sleepInput) (map[string]any, error) {
				defer f.track(call, time.Now())
				select {
				case <-time.After(time.Duration(in.Ms) * time.Millisecond):
					return map[string]any{"slept": in.Ms}, nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}),
		},
		"block": {
			Schema: schema.Any(),
			Handler: func(ctx context.Context, call *registry.Call) (cty.Value, error) {
				defer f.track(call, time.Now())
				f.started <- call.NodeID
				select {
				case <-f.release:
					return cty.ObjectVal(map[string]cty.Value{"released": cty.True}), nil
				case <-ctx.Done():
					return cty.NilVal, ctx.Err()
				}
			},
		},
	}

	for _, name := range []string{"double", "add_one", "counter", "sum", "fail", "panic", "echo", "sleep", "block"} {
		if err := r.Register(name, defs[name]); err != nil {
			return err
		}
	}
	return nil
}
