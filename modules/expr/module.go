// Package expr provides the "expr" node type, which computes its output
// from an HCL expression over its own input fields.
package expr

import (
	"context"
	"fmt"

	"github.com/specialistvlad/cyclegrid/internal/ctxlog"
	"github.com/specialistvlad/cyclegrid/internal/ctyconv"
	"github.com/specialistvlad/cyclegrid/internal/expr"
	"github.com/specialistvlad/cyclegrid/internal/registry"
	"github.com/specialistvlad/cyclegrid/internal/schema"
	"github.com/zclconf/go-cty/cty"
)

// TypeName is the registry key of the node type.
const TypeName = "expr"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register implements registry.Module.
func (m *Module) Register(r *registry.Registry) error {
	return r.Register(TypeName, &registry.Definition{
		Schema:      &schema.Schema{Inputs: []schema.Parameter{schema.Required("expression", cty.String)}, AcceptsAny: true},
		Handler:     Eval,
		Description: "Evaluates an HCL expression with the node's inputs as variables.",
	})
}

// Eval is the handler of the node type. Every input other than expression
// is a variable; iteration and previous are available unless an input
// shadows them. A non-object result is returned as {result = value}.
func Eval(ctx context.Context, call *registry.Call) (cty.Value, error) {
	attrs, _ := ctyconv.Attributes(call.Params)
	src := attrs["expression"]
	if src.IsNull() || !src.IsKnown() {
		return cty.NilVal, fmt.Errorf("node %q: expression is null", call.NodeID)
	}

	compiled, err := expr.Compile(src.AsString(), call.NodeID)
	if err != nil {
		return cty.NilVal, err
	}

	vars := map[string]cty.Value{
		"iteration": cty.NumberIntVal(int64(call.Iteration)),
		"previous":  call.Previous,
	}
	for name, v := range attrs {
		if name != "expression" {
			vars[name] = v
		}
	}

	out, err := compiled.Eval(vars)
	if err != nil {
		return cty.NilVal, err
	}
	ctxlog.FromContext(ctx).Debug("Evaluated expression.", "node", call.NodeID, "iteration", call.Iteration)
	if out.Type().IsObjectType() && !out.IsNull() {
		return out, nil
	}
	return cty.ObjectVal(map[string]cty.Value{"result": out}), nil
}
