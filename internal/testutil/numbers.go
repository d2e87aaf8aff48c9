package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

// Number reads a numeric attribute of an object value as float64.
func Number(t *testing.T, v cty.Value, attr string) float64 {
	t.Helper()
	require.True(t, v.Type().IsObjectType(), "expected an object, got %s", v.Type().FriendlyName())
	require.True(t, v.Type().HasAttribute(attr), "missing attribute %q", attr)
	f, _ := v.GetAttr(attr).AsBigFloat().Float64()
	return f
}
