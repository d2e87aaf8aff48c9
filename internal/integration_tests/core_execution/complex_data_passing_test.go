package integration_tests

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test for: nested outputs are reachable through dotted and indexed paths,
// and whole objects pass through an edge unchanged.
func TestCoreExecution_ComplexDataPassing(t *testing.T) {
	grid := `
node "expr" "src" {
  expression = "{ report = { label = \"weekly\", items = [{ score = 7 }, { score = 9 }] } }"
}

node "echo" "spy" {}

edge {
  from = "src.report.items[1].score"
  to   = "spy.score"
}

edge {
  from = "src.report"
  to   = "spy.whole"
}
`
	res, err := runGrid(t, nil, map[string]string{"main.hcl": grid})
	require.NoError(t, err)

	spy := res.Nodes["spy"]
	require.Equal(t, "succeeded", spy.Status)
	assert.EqualValues(t, 9, spy.Output["score"])

	whole, ok := spy.Output["whole"].(map[string]any)
	require.True(t, ok, "whole should be an object, got %T", spy.Output["whole"])
	assert.Equal(t, "weekly", whole["label"])
	assert.Len(t, whole["items"], 2)
}
