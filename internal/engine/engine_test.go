package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/specialistvlad/cyclegrid/internal/faults"
	"github.com/specialistvlad/cyclegrid/internal/graph"
	"github.com/specialistvlad/cyclegrid/internal/node"
	"github.com/specialistvlad/cyclegrid/internal/nodestore"
	"github.com/specialistvlad/cyclegrid/internal/registry"
	"github.com/specialistvlad/cyclegrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

type testNode struct {
	id, typ string
	config  map[string]cty.Value
}

type testEdge struct {
	from, path, to, field string
}

func buildGraph(t *testing.T, reg *registry.Registry, nodes []testNode, edges []testEdge) *graph.Built {
	t.Helper()
	g := graph.New(reg)
	for _, n := range nodes {
		require.NoError(t, g.AddNode(n.id, n.typ, n.config))
	}
	for _, e := range edges {
		require.NoError(t, g.AddEdge(e.from, e.path, e.to, e.field))
	}
	b, err := g.Build()
	require.NoError(t, err)
	return b
}

func fixtures(t *testing.T) (*testutil.Fixtures, *registry.Registry) {
	t.Helper()
	fx := testutil.NewFixtures()
	reg, err := fx.NewRegistry()
	require.NoError(t, err)
	return fx, reg
}

func num(v float64) cty.Value {
	return cty.NumberFloatVal(v)
}

func TestExecute_AcyclicChain(t *testing.T) {
	_, reg := fixtures(t)
	b := buildGraph(t, reg,
		[]testNode{{id: "A", typ: "double"}, {id: "B", typ: "add_one"}},
		[]testEdge{{"A", "result", "B", "x"}},
	)

	res, err := New().Execute(context.Background(), b, Params{"A": {"x": num(5)}})
	require.NoError(t, err)

	a, ok := res.Output("A")
	require.True(t, ok)
	assert.Equal(t, 10.0, testutil.Number(t, a, "result"))
	bOut, ok := res.Output("B")
	require.True(t, ok)
	assert.Equal(t, 11.0, testutil.Number(t, bOut, "result"))
	assert.Equal(t, node.Succeeded, res.Nodes["B"].Status)
	assert.Empty(t, res.Cycles)
}

func TestExecute_ParallelBranches(t *testing.T) {
	fx, reg := fixtures(t)
	b := buildGraph(t, reg,
		[]testNode{
			{id: "root", typ: "double", config: map[string]cty.Value{"x": num(1)}},
			{id: "left", typ: "sleep", config: map[string]cty.Value{"ms": num(50)}},
			{id: "right", typ: "sleep", config: map[string]cty.Value{"ms": num(50)}},
			{id: "join", typ: "sum"},
		},
		[]testEdge{
			{"left", "slept", "join", "a"},
			{"right", "slept", "join", "b"},
		},
	)

	res, err := New(WithWorkers(2)).Execute(context.Background(), b, nil)
	require.NoError(t, err)
	out, _ := res.Output("join")
	assert.Equal(t, 100.0, testutil.Number(t, out, "result"))

	var left, right testutil.ExecutionRecord
	for _, c := range fx.Calls() {
		switch c.NodeID {
		case "left":
			left = c
		case "right":
			right = c
		}
	}
	assert.True(t, left.Start.Before(right.End) && right.Start.Before(left.End), "independent branches should overlap")
}

func counterCycle(t *testing.T, b *graph.Built, maxIter int, converge string) {
	t.Helper()
	cb, err := graph.CreateCycle(b, "count-up")
	require.NoError(t, err)
	cb.Connect("P", "P", map[string]string{"count": "x"}).MaxIterations(maxIter)
	if converge != "" {
		cb.ConvergeWhen(converge)
	}
	require.NoError(t, cb.Build())
}

func TestExecute_CycleConverges(t *testing.T) {
	fx, reg := fixtures(t)
	b := buildGraph(t, reg,
		[]testNode{{id: "P", typ: "counter"}, {id: "after", typ: "add_one"}},
		[]testEdge{{"P", "count", "after", "x"}},
	)
	counterCycle(t, b, 5, "count >= 3")

	e := New()
	res, err := e.Execute(context.Background(), b, nil)
	require.NoError(t, err)

	diag := res.Cycles["count-up"]
	assert.Equal(t, 3, diag.Iterations)
	assert.True(t, diag.Converged)
	assert.False(t, diag.MaxIterationsReached)
	assert.Equal(t, 3, diag.EmittedIteration)
	assert.Equal(t, 3, fx.CallCount("P"))

	p, _ := res.Output("P")
	assert.Equal(t, 3.0, testutil.Number(t, p, "count"))
	assert.Equal(t, 3, res.Nodes["P"].Iteration)
	after, _ := res.Output("after")
	assert.Equal(t, 4.0, testutil.Number(t, after, "result"))

	assert.Equal(t, map[string]any{
		"iterations":             3,
		"converged":              true,
		"max_iterations_reached": false,
		"failed":                 false,
	}, res.Diagnostics()["count-up"])

	history, err := e.IterationHistory(context.Background(), res.RunID, "P")
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, rec := range history {
		assert.Equal(t, i+1, rec.Iteration)
		assert.Equal(t, float64(i+1), testutil.Number(t, rec.Output, "count"))
	}
}

func TestExecute_CycleReachesMaxIterations(t *testing.T) {
	fx, reg := fixtures(t)
	b := buildGraph(t, reg, []testNode{{id: "P", typ: "counter"}}, nil)
	counterCycle(t, b, 5, "count >= 10")

	res, err := New().Execute(context.Background(), b, nil)
	require.NoError(t, err, "hitting max_iterations is not an error")

	diag := res.Cycles["count-up"]
	assert.Equal(t, 5, diag.Iterations)
	assert.False(t, diag.Converged)
	assert.True(t, diag.MaxIterationsReached)
	p, _ := res.Output("P")
	assert.Equal(t, 5.0, testutil.Number(t, p, "count"))
	assert.Equal(t, 5, fx.CallCount("P"))
}

func TestExecute_CycleWithoutPredicateRunsExactlyN(t *testing.T) {
	for _, n := range []int{1, 2, 7} {
		fx, reg := fixtures(t)
		b := buildGraph(t, reg, []testNode{{id: "P", typ: "counter"}}, nil)
		counterCycle(t, b, n, "")

		e := New()
		res, err := e.Execute(context.Background(), b, nil)
		require.NoError(t, err)
		assert.Equal(t, n, res.Cycles["count-up"].Iterations)
		assert.Equal(t, n, fx.CallCount("P"))

		history, err := e.IterationHistory(context.Background(), res.RunID, "P")
		require.NoError(t, err)
		assert.Len(t, history, n)
	}
}

func TestExecute_ReEntryOverridesEdge(t *testing.T) {
	_, reg := fixtures(t)
	b := buildGraph(t, reg,
		[]testNode{{id: "A", typ: "double", config: map[string]cty.Value{"x": num(5)}}, {id: "P", typ: "counter"}},
		[]testEdge{{"A", "result", "P", "x"}},
	)
	counterCycle(t, b, 2, "")

	e := New()
	res, err := e.Execute(context.Background(), b, nil)
	require.NoError(t, err)

	history, err := e.IterationHistory(context.Background(), res.RunID, "P")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 11.0, testutil.Number(t, history[0].Output, "count"))
	assert.Equal(t, 12.0, testutil.Number(t, history[1].Output, "count"))
}

func TestExecute_PreviousIteration(t *testing.T) {
	fx := testutil.NewFixtures()
	reg := registry.New()
	require.NoError(t, reg.RegisterModules(fx))
	require.NoError(t, reg.Register("accumulate", &registry.Definition{
		Handler: func(_ context.Context, call *registry.Call) (cty.Value, error) {
			total := cty.NumberIntVal(1)
			if call.HasPrevious() {
				total = call.Previous.GetAttr("total").Add(cty.NumberIntVal(1))
			}
			return cty.ObjectVal(map[string]cty.Value{"total": total}), nil
		},
	}))

	b := buildGraph(t, reg, []testNode{{id: "acc", typ: "accumulate"}}, nil)
	cb, err := graph.CreateCycle(b, "acc")
	require.NoError(t, err)
	require.NoError(t, cb.Connect("acc", "acc", map[string]string{"total": "seen"}).MaxIterations(4).Build())

	res, err := New().Execute(context.Background(), b, nil)
	require.NoError(t, err)
	out, _ := res.Output("acc")
	assert.Equal(t, 4.0, testutil.Number(t, out, "total"))
}

func TestExecute_MissingParameter(t *testing.T) {
	fx, reg := fixtures(t)
	b := buildGraph(t, reg,
		[]testNode{{id: "A", typ: "double", config: map[string]cty.Value{"x": num(1)}}, {id: "C", typ: "sum"}},
		nil,
	)

	res, err := New().Execute(context.Background(), b, nil)
	require.Error(t, err)
	assert.Nil(t, res)

	var missing *MissingParameterError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []graph.RequiredInput{{NodeID: "C", Field: "a"}}, missing.Missing)
	assert.Equal(t, `missing required parameter "a" on node "C"`, err.Error())
	assert.Equal(t, faults.KindValidation, faults.KindOf(err))
	assert.Empty(t, fx.Calls(), "no node may run before validation passes")
}

func TestExecute_InvalidParams(t *testing.T) {
	_, reg := fixtures(t)
	b := buildGraph(t, reg, []testNode{{id: "A", typ: "double"}}, nil)

	_, err := New().Execute(context.Background(), b, Params{"ghost": {"x": num(1)}, "A": {"x": cty.StringVal("nope")}})
	require.Error(t, err)

	var unknown *graph.UnknownNodeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ghost", unknown.ID)
	var invalid *registry.ParameterValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "A", invalid.NodeID)
}

func TestExecute_ValidationReportsEveryProblem(t *testing.T) {
	fx, reg := fixtures(t)
	b := buildGraph(t, reg, []testNode{{id: "A", typ: "double"}, {id: "C", typ: "sum"}}, nil)

	_, err := New().Execute(context.Background(), b, Params{"A": {"x": cty.StringVal("notanumber")}})
	require.Error(t, err)

	var invalid *registry.ParameterValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "A", invalid.NodeID)
	var missing *MissingParameterError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []graph.RequiredInput{{NodeID: "C", Field: "a"}}, missing.Missing)
	assert.Contains(t, err.Error(), `missing required parameter "a" on node "C"`)
	assert.Equal(t, faults.KindValidation, faults.KindOf(err))
	assert.Empty(t, fx.Calls())
}

func TestExecute_NodeFailureAbortsRun(t *testing.T) {
	fx, reg := fixtures(t)
	b := buildGraph(t, reg,
		[]testNode{
			{id: "A", typ: "double", config: map[string]cty.Value{"x": num(2)}},
			{id: "D", typ: "fail"},
			{id: "E", typ: "echo"},
		},
		[]testEdge{{"A", "result", "D", "in"}, {"D", "value", "E", "in"}},
	)

	res, err := New().Execute(context.Background(), b, nil)
	require.Error(t, err)

	var runErr *RunFailedError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "D", runErr.NodeID)
	assert.ErrorIs(t, err, testutil.ErrBoom)
	assert.Same(t, res, runErr.Result)
	assert.Equal(t, faults.KindExecution, faults.KindOf(err))

	assert.Equal(t, node.Succeeded, res.Nodes["A"].Status)
	assert.Equal(t, node.Failed, res.Nodes["D"].Status)
	assert.Equal(t, node.Skipped, res.Nodes["E"].Status)
	assert.Zero(t, fx.CallCount("E"))

	a, ok := res.Output("A")
	require.True(t, ok)
	assert.Equal(t, 4.0, testutil.Number(t, a, "result"))
}

func TestExecute_PanicIsRecovered(t *testing.T) {
	_, reg := fixtures(t)
	b := buildGraph(t, reg, []testNode{{id: "boom", typ: "panic"}}, nil)

	res, err := New().Execute(context.Background(), b, nil)
	var runErr *RunFailedError
	require.ErrorAs(t, err, &runErr)
	assert.Contains(t, err.Error(), "node boom exploded")
	assert.Equal(t, node.Failed, res.Nodes["boom"].Status)
}

func TestExecute_CycleFailureIsLocal(t *testing.T) {
	fx, reg := fixtures(t)
	b := buildGraph(t, reg,
		[]testNode{
			{id: "P", typ: "counter"},
			{id: "F", typ: "fail"},
			{id: "X", typ: "echo"},
			{id: "wait", typ: "sleep", config: map[string]cty.Value{"ms": num(30)}},
			{id: "Y", typ: "add_one"},
		},
		[]testEdge{
			{"P", "count", "F", "in"},
			{"F", "value", "X", "in"},
			{"wait", "slept", "Y", "x"},
		},
	)
	cb, err := graph.CreateCycle(b, "broken")
	require.NoError(t, err)
	require.NoError(t, cb.Connect("F", "P", map[string]string{"value": "x"}).MaxIterations(3).Output("P").Build())

	res, err := New().Execute(context.Background(), b, nil)
	require.Error(t, err)

	var cycErr *CycleExecutionError
	require.ErrorAs(t, err, &cycErr)
	assert.Equal(t, "broken", cycErr.Cycle)
	assert.Equal(t, "F", cycErr.NodeID)
	assert.Equal(t, 1, cycErr.Iteration)
	assert.ErrorIs(t, err, testutil.ErrBoom)

	var runErr *RunFailedError
	assert.False(t, errors.As(err, &runErr), "a cycle failure must not abort the run")

	assert.Equal(t, node.Skipped, res.Nodes["X"].Status)
	assert.Equal(t, node.Succeeded, res.Nodes["Y"].Status)
	assert.Equal(t, 1, fx.CallCount("Y"))
	assert.True(t, res.Cycles["broken"].Failed)
}

func TestExecute_FaultTolerantCycleEmitsLastGood(t *testing.T) {
	fx := testutil.NewFixtures()
	reg := registry.New()
	require.NoError(t, reg.RegisterModules(fx))
	require.NoError(t, reg.Register("flaky", &registry.Definition{
		Handler: func(_ context.Context, call *registry.Call) (cty.Value, error) {
			if call.Iteration >= 2 {
				return cty.NilVal, errors.New("flaked")
			}
			return cty.ObjectVal(map[string]cty.Value{"count": call.Params.GetAttr("in")}), nil
		},
	}))
	b := buildGraph(t, reg,
		[]testNode{{id: "P", typ: "counter"}, {id: "K", typ: "flaky"}, {id: "out", typ: "add_one"}},
		[]testEdge{{"P", "count", "K", "in"}, {"K", "count", "out", "x"}},
	)
	cb, err := graph.CreateCycle(b, "tolerant")
	require.NoError(t, err)
	require.NoError(t, cb.Connect("K", "P", map[string]string{"count": "x"}).MaxIterations(5).FaultTolerant().Build())

	res, err := New().Execute(context.Background(), b, nil)
	require.NoError(t, err)

	diag := res.Cycles["tolerant"]
	assert.True(t, diag.Failed)
	assert.Equal(t, 2, diag.Iterations)
	assert.Equal(t, 1, diag.EmittedIteration)
	var cycErr *CycleExecutionError
	require.ErrorAs(t, diag.Err, &cycErr)
	assert.Equal(t, "K", cycErr.NodeID)

	assert.Equal(t, node.Succeeded, res.Nodes["K"].Status)
	assert.Equal(t, 1, res.Nodes["K"].Iteration)
	out, _ := res.Output("out")
	assert.Equal(t, 2.0, testutil.Number(t, out, "result"))
}

func TestExecute_ReEntryFieldNotFound(t *testing.T) {
	_, reg := fixtures(t)
	b := buildGraph(t, reg, []testNode{{id: "E", typ: "echo", config: map[string]cty.Value{"seed": num(1)}}}, nil)
	cb, err := graph.CreateCycle(b, "loop")
	require.NoError(t, err)
	require.NoError(t, cb.Connect("E", "E", map[string]string{"nested.value": "seed"}).MaxIterations(3).Build())

	_, err = New().Execute(context.Background(), b, nil)
	var cycErr *CycleExecutionError
	require.ErrorAs(t, err, &cycErr)
	assert.Equal(t, 2, cycErr.Iteration)
	assert.Equal(t, "E", cycErr.NodeID)

	var fnf interface {
		error
		Retryable() bool
	}
	require.ErrorAs(t, err, &fnf)
	assert.Contains(t, err.Error(), `field "nested.value" not found in output of node "E" (iteration 1)`)
}

func TestExecute_Cancel(t *testing.T) {
	fx, reg := fixtures(t)
	b := buildGraph(t, reg,
		[]testNode{{id: "B", typ: "block"}, {id: "C", typ: "echo"}},
		[]testEdge{{"B", "released", "C", "in"}},
	)

	e := New()
	run, err := e.Start(context.Background(), b, nil)
	require.NoError(t, err)
	assert.Equal(t, "B", <-fx.Started())

	_, err = e.Result(run.ID)
	require.ErrorIs(t, err, ErrRunInProgress)
	status, err := e.Status(run.ID, "B")
	require.NoError(t, err)
	assert.Equal(t, node.Running, status)

	require.NoError(t, e.Cancel(run.ID))
	require.NoError(t, e.Cancel(run.ID), "cancel is idempotent")

	res, err := run.Wait()
	var cancelled *RunCancelledError
	require.ErrorAs(t, err, &cancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, faults.KindOperational, faults.KindOf(err))
	assert.Equal(t, node.Skipped, res.Nodes["C"].Status)
	assert.Zero(t, fx.CallCount("C"))
}

func TestExecute_ParentContextCancelled(t *testing.T) {
	fx, reg := fixtures(t)
	b := buildGraph(t, reg, []testNode{{id: "B", typ: "block"}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	run, err := New().Start(ctx, b, nil)
	require.NoError(t, err)
	<-fx.Started()
	cancel()

	_, err = run.Wait()
	var cancelled *RunCancelledError
	require.ErrorAs(t, err, &cancelled)
}

func TestExecute_RunTimeout(t *testing.T) {
	_, reg := fixtures(t)
	b := buildGraph(t, reg, []testNode{{id: "B", typ: "block"}}, nil)

	_, err := New().Execute(context.Background(), b, nil, WithTimeout(30*time.Millisecond))
	var timeout *RunTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 30*time.Millisecond, timeout.Timeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecute_CycleTimeout(t *testing.T) {
	_, reg := fixtures(t)
	b := buildGraph(t, reg, []testNode{{id: "S", typ: "sleep", config: map[string]cty.Value{"ms": num(1000)}}}, nil)
	cb, err := graph.CreateCycle(b, "slow")
	require.NoError(t, err)
	require.NoError(t, cb.Connect("S", "S", map[string]string{"slept": "ms"}).MaxIterations(3).Timeout(20*time.Millisecond).Build())

	res, err := New().Execute(context.Background(), b, nil)
	var timeout *CycleTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "slow", timeout.Cycle)
	assert.Equal(t, faults.KindOperational, faults.KindOf(err))
	assert.Equal(t, node.Failed, res.Nodes["S"].Status)
}

func TestCancel_AfterCompletionIsNoOp(t *testing.T) {
	_, reg := fixtures(t)
	b := buildGraph(t, reg, []testNode{{id: "A", typ: "double", config: map[string]cty.Value{"x": num(3)}}}, nil)

	e := New()
	res, err := e.Execute(context.Background(), b, nil)
	require.NoError(t, err)

	require.NoError(t, e.Cancel(res.RunID))
	again, err := e.Result(res.RunID)
	require.NoError(t, err)
	assert.Same(t, res, again)
	assert.Equal(t, node.Succeeded, again.Nodes["A"].Status)
}

func TestInspection(t *testing.T) {
	_, reg := fixtures(t)
	b := buildGraph(t, reg, []testNode{{id: "A", typ: "double", config: map[string]cty.Value{"x": num(3)}}}, nil)

	e := New(WithRunIDGenerator(func() string { return "run-1" }))
	res, err := e.Execute(context.Background(), b, nil)
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)

	first, err := e.Store().Get(context.Background(), "run-1", "A")
	require.NoError(t, err)
	second, err := e.Store().Get(context.Background(), "run-1", "A")
	require.NoError(t, err)
	assert.True(t, first.Output.RawEquals(second.Output))

	status, err := e.Status("run-1", "A")
	require.NoError(t, err)
	assert.Equal(t, node.Succeeded, status)
	_, err = e.Status("run-1", "missing")
	require.Error(t, err)

	require.ErrorIs(t, e.Cancel("nope"), ErrUnknownRun)
	_, err = e.Result("nope")
	require.ErrorIs(t, err, ErrUnknownRun)

	require.NoError(t, e.Release(context.Background(), "run-1"))
	_, err = e.Result("run-1")
	require.ErrorIs(t, err, ErrUnknownRun)
}

func TestRetention_ForgetsOldestFinishedRuns(t *testing.T) {
	_, reg := fixtures(t)
	b := buildGraph(t, reg, []testNode{{id: "A", typ: "double", config: map[string]cty.Value{"x": num(3)}}}, nil)
	ctx := context.Background()

	e := New(WithRetention(1))
	var ids []string
	for i := 0; i < 5; i++ {
		res, err := e.Execute(ctx, b, nil, WithRunID(fmt.Sprintf("run-%d", i)))
		require.NoError(t, err)
		ids = append(ids, res.RunID)
	}

	_, err := e.Result(ids[0])
	require.ErrorIs(t, err, ErrUnknownRun)
	_, err = e.IterationHistory(ctx, ids[0], "A")
	require.ErrorIs(t, err, nodestore.ErrRunNotFound)

	last, err := e.Result(ids[4])
	require.NoError(t, err)
	assert.Equal(t, node.Succeeded, last.Nodes["A"].Status)
	history, err := e.IterationHistory(ctx, ids[4], "A")
	require.NoError(t, err)
	assert.Len(t, history, 1)

	e.mu.Lock()
	defer e.mu.Unlock()
	assert.Len(t, e.runs, 1)
}

func TestRetention_KeepsRunsInFlight(t *testing.T) {
	fx, reg := fixtures(t)
	b := buildGraph(t, reg, []testNode{{id: "blk", typ: "block"}}, nil)
	ctx := context.Background()

	e := New(WithRetention(1))
	first, err := e.Start(ctx, b, nil, WithRunID("first"))
	require.NoError(t, err)
	assert.Equal(t, "blk", <-fx.Started())
	second, err := e.Start(ctx, b, nil, WithRunID("second"))
	require.NoError(t, err)
	assert.Equal(t, "blk", <-fx.Started())

	fx.Release()
	res, err := first.Wait()
	require.NoError(t, err)
	assert.Equal(t, node.Succeeded, res.Nodes["blk"].Status)
	_, err = second.Wait()
	require.NoError(t, err)

	_, err = e.Result("first")
	assert.NoError(t, err, "a run that was in flight is not evicted")
}

func TestRunResult_MarshalJSON(t *testing.T) {
	_, reg := fixtures(t)
	b := buildGraph(t, reg, []testNode{{id: "P", typ: "counter"}}, nil)
	counterCycle(t, b, 2, "")

	res, err := New().Execute(context.Background(), b, nil, WithRunID("fixed"))
	require.NoError(t, err)

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	var decoded struct {
		RunID string `json:"run_id"`
		Nodes map[string]struct {
			Status    string         `json:"status"`
			Iteration int            `json:"iteration"`
			Output    map[string]any `json:"output"`
		} `json:"nodes"`
		Cycles map[string]map[string]any `json:"cycles"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "fixed", decoded.RunID)
	assert.Equal(t, "succeeded", decoded.Nodes["P"].Status)
	assert.Equal(t, 2, decoded.Nodes["P"].Iteration)
	assert.Equal(t, 2.0, decoded.Nodes["P"].Output["count"])
	assert.Equal(t, true, decoded.Cycles["count-up"]["max_iterations_reached"])
}
