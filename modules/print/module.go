package print

import (
	"context"
	"sort"

	"github.com/specialistvlad/cyclegrid/internal/ctxlog"
	"github.com/specialistvlad/cyclegrid/internal/ctyconv"
	"github.com/specialistvlad/cyclegrid/internal/registry"
	"github.com/specialistvlad/cyclegrid/internal/schema"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// OnRunPrint logs every input field in key order and passes the inputs
// through as the output.
func OnRunPrint(ctx context.Context, call *registry.Call) (cty.Value, error) {
	logger := ctxlog.FromContext(ctx).With("node", call.NodeID, "iteration", call.Iteration)
	attrs, _ := ctyconv.Attributes(call.Params)
	if len(attrs) == 0 {
		logger.Info("Printing input", "value", "(null)")
		return cty.EmptyObjectVal, nil
	}

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v, err := ctyconv.ToGo(attrs[k])
		if err != nil {
			return cty.NilVal, err
		}
		logger.Info("Printing input", "field", k, "value", v)
	}
	return call.Params, nil
}

// Register registers the handler with the registry.
func (m *Module) Register(r *registry.Registry) error {
	return r.Register("print", &registry.Definition{
		Schema:      schema.Any(),
		Handler:     OnRunPrint,
		Description: "Logs its inputs and passes them through.",
	})
}
