package graph

import (
	"testing"
	"time"

	"github.com/specialistvlad/cyclegrid/internal/fieldpath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func built(t *testing.T, g *Graph) *Built {
	t.Helper()
	b, err := g.Build()
	require.NoError(t, err)
	return b
}

func TestCycle_SelfLoop(t *testing.T) {
	g := New(newTestRegistry(t))
	require.NoError(t, g.AddNode("P", "counter", nil))
	b := built(t, g)

	cb, err := CreateCycle(b, "count-up")
	require.NoError(t, err)
	err = cb.Connect("P", "P", map[string]string{"count": "x"}).
		MaxIterations(5).
		ConvergeWhen("count >= 3").
		Timeout(time.Second).
		Build()
	require.NoError(t, err)

	group, ok := b.Cycle("count-up")
	require.True(t, ok)
	assert.Equal(t, []string{"P"}, group.Members)
	assert.Equal(t, "P", group.OutputNode)
	assert.Equal(t, 5, group.MaxIterations)
	assert.Equal(t, time.Second, group.Timeout)
	assert.Equal(t, "count >= 3", group.Converge.String())
	require.Len(t, group.ReEntriesTo("P"), 1)
	assert.Equal(t, []FieldMapping{{Source: fieldpath.MustParse("count"), Target: "x"}}, group.ReEntries[0].Mappings)

	other, ok := b.CycleOf("P")
	require.True(t, ok)
	assert.Same(t, group, other)
}

func TestCycle_Membership(t *testing.T) {
	g := chain(t, newTestRegistry(t), "A", "B", "C", "D")
	require.NoError(t, g.AddNode("E", "any", nil))
	require.NoError(t, g.AddEdge("A", "out", "E", "in"))
	b := built(t, g)

	cb, err := CreateCycle(b, "refine")
	require.NoError(t, err)
	require.NoError(t, cb.Connect("C", "B", map[string]string{"quality": "in_data"}).MaxIterations(3).Build())

	group, _ := b.Cycle("refine")
	assert.Equal(t, []string{"B", "C"}, group.Members)
	assert.True(t, group.Contains("B"))
	assert.False(t, group.Contains("A"))
	assert.Nil(t, group.Converge)

	units, err := b.Units()
	require.NoError(t, err)
	names := make([]string, len(units))
	for i, u := range units {
		names[i] = u.Name()
	}
	assert.Equal(t, []string{"A", "cycle:refine", "D", "E"}, names)
	assert.Equal(t, []int{0}, units[1].Deps)
	assert.Equal(t, []int{2}, units[1].Dependents)
	assert.Equal(t, []int{1, 3}, units[0].Dependents)
}

func TestCycle_BuilderErrors(t *testing.T) {
	reg := newTestRegistry(t)
	g := New(reg)
	require.NoError(t, g.AddNode("P", "counter", nil))
	require.NoError(t, g.AddNode("Q", "double", nil))
	require.NoError(t, g.AddNode("N", "any", nil))
	b := built(t, g)

	newBuilder := func(name string) *CycleBuilder {
		cb, err := CreateCycle(b, name)
		require.NoError(t, err)
		return cb
	}

	t.Run("invalid bound", func(t *testing.T) {
		cb := newBuilder("bound").Connect("P", "P", map[string]string{"count": "x"}).MaxIterations(0)
		var bound *InvalidBoundError
		require.ErrorAs(t, cb.Err(), &bound)
		assert.Equal(t, 0, bound.Value)
		require.ErrorAs(t, cb.Build(), &bound)
	})

	t.Run("max iterations required", func(t *testing.T) {
		err := newBuilder("unbounded").Connect("P", "P", map[string]string{"count": "x"}).Build()
		var def *CycleDefinitionError
		require.ErrorAs(t, err, &def)
		assert.Contains(t, def.Reason, "max_iterations")
	})

	t.Run("re-entry required", func(t *testing.T) {
		var def *CycleDefinitionError
		require.ErrorAs(t, newBuilder("empty").MaxIterations(2).Build(), &def)
	})

	t.Run("nested convergence path", func(t *testing.T) {
		err := newBuilder("nested").Connect("N", "N", map[string]string{"a": "b"}).ConvergeWhen("result.converged").Build()
		var def *CycleDefinitionError
		require.ErrorAs(t, err, &def)
		assert.Contains(t, err.Error(), "nested path")
	})

	t.Run("convergence name not in declared output", func(t *testing.T) {
		err := newBuilder("undeclared").Connect("P", "P", map[string]string{"count": "x"}).
			MaxIterations(2).ConvergeWhen("quality > 1").Build()
		var notFound *fieldpath.FieldNotFoundError
		require.ErrorAs(t, err, &notFound)
	})

	t.Run("unknown mapping target", func(t *testing.T) {
		err := newBuilder("target").Connect("P", "Q", map[string]string{"count": "y"}).MaxIterations(2).Build()
		var unknownInput *UnknownInputError
		require.ErrorAs(t, err, &unknownInput)
		assert.Equal(t, "Q", unknownInput.NodeID)
	})

	t.Run("unknown mapping source field", func(t *testing.T) {
		err := newBuilder("source").Connect("P", "P", map[string]string{"total": "x"}).MaxIterations(2).Build()
		var notFound *fieldpath.FieldNotFoundError
		require.ErrorAs(t, err, &notFound)
	})

	t.Run("unknown node", func(t *testing.T) {
		err := newBuilder("ghost").Connect("P", "Z", map[string]string{"count": "x"}).Build()
		var unknown *UnknownNodeError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "Z", unknown.ID)
	})

	t.Run("output outside group", func(t *testing.T) {
		err := newBuilder("out").Connect("P", "P", map[string]string{"count": "x"}).MaxIterations(2).Output("N").Build()
		var def *CycleDefinitionError
		require.ErrorAs(t, err, &def)
	})

	t.Run("non positive timeout", func(t *testing.T) {
		err := newBuilder("timeout").Timeout(0).Build()
		var def *CycleDefinitionError
		require.ErrorAs(t, err, &def)
	})

	t.Run("mapped twice", func(t *testing.T) {
		cb := newBuilder("twice").
			Connect("P", "P", map[string]string{"count": "x"}).
			Connect("N", "P", map[string]string{"other": "x"})
		var def *CycleDefinitionError
		require.ErrorAs(t, cb.Err(), &def)
	})
}

func TestCycle_FrozenAfterBuild(t *testing.T) {
	g := New(newTestRegistry(t))
	require.NoError(t, g.AddNode("P", "counter", nil))
	b := built(t, g)

	cb, err := CreateCycle(b, "loop")
	require.NoError(t, err)
	require.NoError(t, cb.Connect("P", "P", map[string]string{"count": "x"}).MaxIterations(2).Build())

	var def *CycleDefinitionError
	require.ErrorAs(t, cb.Build(), &def)
	require.ErrorAs(t, cb.MaxIterations(3).Err(), &def)

	_, err = CreateCycle(b, "loop")
	require.ErrorAs(t, err, &def)

	group, _ := b.Cycle("loop")
	assert.Equal(t, 2, group.MaxIterations)
}

func TestCycle_Overlap(t *testing.T) {
	g := chain(t, newTestRegistry(t), "A", "B", "C")
	b := built(t, g)

	first, err := CreateCycle(b, "first")
	require.NoError(t, err)
	require.NoError(t, first.Connect("B", "A", map[string]string{"x": "y"}).MaxIterations(2).Build())

	second, err := CreateCycle(b, "second")
	require.NoError(t, err)
	err = second.Connect("C", "B", map[string]string{"x": "y"}).MaxIterations(2).Build()
	var def *CycleDefinitionError
	require.ErrorAs(t, err, &def)
	assert.Contains(t, def.Reason, "already belongs")
}

func TestCycle_EscapingPath(t *testing.T) {
	g := chain(t, newTestRegistry(t), "B", "C", "D")
	b := built(t, g)

	cb, err := CreateCycle(b, "leaky")
	require.NoError(t, err)
	err = cb.Connect("B", "B", map[string]string{"out": "in"}).Include("D").MaxIterations(2).Build()
	var cyc *UnexpectedCycleError
	require.ErrorAs(t, err, &cyc)
	assert.Equal(t, []string{"B", "C", "D"}, cyc.Chain)
}

func TestCycle_CondensedCycleAcrossGroups(t *testing.T) {
	g := New(newTestRegistry(t))
	for _, id := range []string{"a1", "a2", "b1", "b2"} {
		require.NoError(t, g.AddNode(id, "any", nil))
	}
	require.NoError(t, g.AddEdge("a1", "out", "b1", "in"))
	require.NoError(t, g.AddEdge("b2", "out", "a2", "in"))
	b := built(t, g)

	ga, err := CreateCycle(b, "ga")
	require.NoError(t, err)
	require.NoError(t, ga.Connect("a2", "a1", map[string]string{"v": "w"}).MaxIterations(2).Build())

	gb, err := CreateCycle(b, "gb")
	require.NoError(t, err)
	err = gb.Connect("b2", "b1", map[string]string{"v": "w"}).MaxIterations(2).Build()
	var cyc *UnexpectedCycleError
	require.ErrorAs(t, err, &cyc)
	assert.Len(t, b.Cycles(), 1)
}
