package print

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/specialistvlad/cyclegrid/internal/ctxlog"
	"github.com/specialistvlad/cyclegrid/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestOnRunPrint(t *testing.T) {
	var buf bytes.Buffer
	ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))

	reg := registry.New()
	require.NoError(t, reg.RegisterModules(&Module{}))
	inst, err := reg.Instantiate("print", "P", map[string]cty.Value{
		"b": cty.StringVal("two"),
		"a": cty.NumberIntVal(1),
	})
	require.NoError(t, err)

	out, err := inst.Execute(ctx, "run", 0, cty.NilVal)
	require.NoError(t, err)
	assert.Equal(t, "two", out.GetAttr("b").AsString())

	logs := buf.String()
	assert.Contains(t, logs, "field=a value=1")
	assert.Contains(t, logs, "field=b value=two")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("field=a")), bytes.Index(buf.Bytes(), []byte("field=b")))
}

func TestOnRunPrint_Empty(t *testing.T) {
	out, err := OnRunPrint(ctxlog.WithLogger(context.Background(), ctxlog.Discard()), &registry.Call{NodeID: "P", Params: cty.EmptyObjectVal})
	require.NoError(t, err)
	assert.True(t, out.RawEquals(cty.EmptyObjectVal))
}
