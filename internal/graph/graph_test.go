package graph

import (
	"context"
	"testing"

	"github.com/specialistvlad/cyclegrid/internal/faults"
	"github.com/specialistvlad/cyclegrid/internal/fieldpath"
	"github.com/specialistvlad/cyclegrid/internal/registry"
	"github.com/specialistvlad/cyclegrid/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func noop(_ context.Context, call *registry.Call) (cty.Value, error) {
	return call.Params, nil
}

// newTestRegistry registers a handful of node types used across the tests.
func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	result := cty.Object(map[string]cty.Type{"result": cty.Number})
	require.NoError(t, r.Register("double", &registry.Definition{
		Schema:  &schema.Schema{Inputs: []schema.Parameter{schema.Required("x", cty.Number)}, Outputs: result},
		Handler: noop,
	}))
	require.NoError(t, r.Register("counter", &registry.Definition{
		Schema: &schema.Schema{
			Inputs:  []schema.Parameter{schema.Optional("x", cty.Number, cty.Zero)},
			Outputs: cty.Object(map[string]cty.Type{"count": cty.Number}),
		},
		Handler: noop,
	}))
	require.NoError(t, r.Register("needs", &registry.Definition{
		Schema:  &schema.Schema{Inputs: []schema.Parameter{schema.Required("data", cty.String)}},
		Handler: noop,
	}))
	require.NoError(t, r.Register("any", &registry.Definition{Handler: noop}))
	r.Freeze()
	return r
}

// chain builds a graph of "any" nodes with edges ids[i].out -> ids[i+1].in.
func chain(t *testing.T, reg *registry.Registry, ids ...string) *Graph {
	t.Helper()
	g := New(reg)
	for _, id := range ids {
		require.NoError(t, g.AddNode(id, "any", nil))
	}
	for i := 0; i+1 < len(ids); i++ {
		require.NoError(t, g.AddEdge(ids[i], "out", ids[i+1], "in"))
	}
	return g
}

func TestAddNode(t *testing.T) {
	g := New(newTestRegistry(t))
	require.NoError(t, g.AddNode("A", "double", map[string]cty.Value{"x": cty.NumberIntVal(1)}))

	var dup *DuplicateNodeIDError
	require.ErrorAs(t, g.AddNode("A", "double", nil), &dup)
	assert.Equal(t, "A", dup.ID)
	assert.Equal(t, faults.KindBuild, dup.Kind())

	var unknownType *registry.UnknownTypeError
	require.ErrorAs(t, g.AddNode("B", "triple", nil), &unknownType)

	var badID *InvalidNodeIDError
	require.ErrorAs(t, g.AddNode("has.dot", "any", nil), &badID)
	require.ErrorAs(t, g.AddNode("", "any", nil), &badID)

	var pve *registry.ParameterValidationError
	require.ErrorAs(t, g.AddNode("C", "double", map[string]cty.Value{
		"x": cty.StringVal("nope"),
		"y": cty.True,
	}), &pve)
	assert.Len(t, pve.Problems, 2)
}

func TestAddEdge(t *testing.T) {
	g := New(newTestRegistry(t))
	require.NoError(t, g.AddNode("A", "double", nil))
	require.NoError(t, g.AddNode("B", "double", nil))
	require.NoError(t, g.AddNode("N", "any", nil))

	require.NoError(t, g.AddEdge("A", "result", "B", "x"))

	var unknownNode *UnknownNodeError
	require.ErrorAs(t, g.AddEdge("Z", "result", "B", "x"), &unknownNode)
	assert.Equal(t, "Z", unknownNode.ID)
	require.ErrorAs(t, g.AddEdge("A", "result", "Z", "x"), &unknownNode)
	assert.Equal(t, "edge target", unknownNode.Role)

	var unknownInput *UnknownInputError
	require.ErrorAs(t, g.AddEdge("A", "result", "B", "y"), &unknownInput)
	assert.Equal(t, "y", unknownInput.Field)

	var dupInput *DuplicateInputError
	require.ErrorAs(t, g.AddEdge("N", "anything", "B", "x"), &dupInput)

	var syntax *fieldpath.SyntaxError
	require.ErrorAs(t, g.AddEdge("A", "result..x", "N", "in"), &syntax)

	var notFound *fieldpath.FieldNotFoundError
	require.ErrorAs(t, g.AddEdge("A", "quality", "N", "in"), &notFound)

	// Undeclared outputs defer nested paths to run time.
	require.NoError(t, g.AddEdge("N", "result.items[0].score", "A", "x"))
}

func TestBuild_TopologicalOrder(t *testing.T) {
	reg := newTestRegistry(t)
	g := New(reg)
	for _, id := range []string{"D", "C", "B", "A"} {
		require.NoError(t, g.AddNode(id, "any", nil))
	}
	require.NoError(t, g.AddEdge("A", "out", "B", "in"))
	require.NoError(t, g.AddEdge("A", "out", "C", "in"))
	require.NoError(t, g.AddEdge("B", "out", "D", "left"))
	require.NoError(t, g.AddEdge("C", "out", "D", "right"))

	b, err := g.Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C", "B", "D"}, b.Order())
	assert.Equal(t, []string{"C", "B"}, b.Dependents("A"))
	assert.Equal(t, []string{"C", "B"}, b.Dependencies("D"))
	assert.Len(t, b.Incoming("D"), 2)
	assert.Len(t, b.Outgoing("A"), 2)
	assert.True(t, b.Reaches("A", "D"))
	assert.False(t, b.Reaches("D", "A"))

	again, err := g.Build()
	require.NoError(t, err)
	assert.Same(t, b, again)
}

func TestBuild_FreezesGraph(t *testing.T) {
	g := chain(t, newTestRegistry(t), "A", "B")
	_, err := g.Build()
	require.NoError(t, err)

	var frozen *GraphFrozenError
	assert.ErrorAs(t, g.AddNode("C", "any", nil), &frozen)
	assert.ErrorAs(t, g.AddEdge("A", "out", "B", "other"), &frozen)
}

func TestBuild_RequiredInputs(t *testing.T) {
	reg := newTestRegistry(t)
	g := New(reg)
	require.NoError(t, g.AddNode("A", "double", nil))                                               // caller must supply x
	require.NoError(t, g.AddNode("B", "double", nil))                                               // fed by A
	require.NoError(t, g.AddNode("C", "needs", nil))                                                // caller must supply data
	require.NoError(t, g.AddNode("D", "needs", map[string]cty.Value{"data": cty.StringVal("set")})) // static config
	require.NoError(t, g.AddNode("P", "counter", nil))                                              // default
	require.NoError(t, g.AddEdge("A", "result", "B", "x"))

	b, err := g.Build()
	require.NoError(t, err)
	assert.Equal(t, []RequiredInput{
		{NodeID: "A", Field: "x"},
		{NodeID: "C", Field: "data"},
	}, b.RequiredInputs())
}

func TestBuild_UnexpectedCycle(t *testing.T) {
	reg := newTestRegistry(t)

	t.Run("three node cycle", func(t *testing.T) {
		g := chain(t, reg, "A", "B", "C")
		require.NoError(t, g.AddEdge("C", "out", "A", "in"))
		_, err := g.Build()
		var cyc *UnexpectedCycleError
		require.ErrorAs(t, err, &cyc)
		assert.Equal(t, []string{"B", "C", "A", "B"}, cyc.Chain)
		assert.Equal(t, faults.KindBuild, faults.KindOf(err))
	})

	t.Run("self edge", func(t *testing.T) {
		g := chain(t, reg, "A")
		require.NoError(t, g.AddEdge("A", "out", "A", "in"))
		_, err := g.Build()
		var cyc *UnexpectedCycleError
		require.ErrorAs(t, err, &cyc)
		assert.Equal(t, []string{"A", "A"}, cyc.Chain)
	})

	t.Run("cycle in a disjoint component", func(t *testing.T) {
		g := chain(t, reg, "A", "B", "X", "Y")
		require.NoError(t, g.AddEdge("Y", "out", "X", "back"))
		_, err := g.Build()
		var cyc *UnexpectedCycleError
		require.ErrorAs(t, err, &cyc)
		assert.Contains(t, cyc.Chain, "X")
		assert.Contains(t, cyc.Chain, "Y")
		assert.NotContains(t, cyc.Chain, "A")
	})
}

func TestCreateCycle_RequiresBuild(t *testing.T) {
	g := chain(t, newTestRegistry(t), "A")

	_, err := g.CreateCycle("loop")
	var notBuilt *GraphNotBuiltError
	require.ErrorAs(t, err, &notBuilt)

	_, err = CreateCycle(nil, "loop")
	require.ErrorAs(t, err, &notBuilt)

	_, err = g.Build()
	require.NoError(t, err)
	_, err = g.CreateCycle("loop")
	require.NoError(t, err)
}
