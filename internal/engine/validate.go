package engine

import (
	"errors"
	"sort"

	"github.com/specialistvlad/cyclegrid/internal/graph"
	"github.com/zclconf/go-cty/cty"
)

// validate checks runtime params before anything runs: params may only name
// known nodes and declared fields of the right type, and together with
// edges, defaults and static configuration they must satisfy every required
// input. All problems are reported together.
func validate(b *graph.Built, params Params) error {
	if b == nil {
		return &graph.GraphNotBuiltError{}
	}

	ids := make([]string, 0, len(params))
	for id := range params {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var errs []error
	for _, id := range ids {
		n, ok := b.Node(id)
		if !ok {
			errs = append(errs, &graph.UnknownNodeError{ID: id, Role: "runtime parameter"})
			continue
		}
		if err := b.Registry().CheckPartial(n.Type, id, mergeInputs(n.Config, params[id])); err != nil {
			errs = append(errs, err)
		}
	}

	var missing []graph.RequiredInput
	for _, req := range b.RequiredInputs() {
		if v, ok := params[req.NodeID][req.Field]; ok && !v.IsNull() {
			continue
		}
		missing = append(missing, req)
	}
	if len(missing) > 0 {
		errs = append(errs, &MissingParameterError{Missing: missing})
	}
	return errors.Join(errs...)
}

// mergeInputs layers maps left to right; later maps win.
func mergeInputs(layers ...map[string]cty.Value) map[string]cty.Value {
	size := 0
	for _, l := range layers {
		size += len(l)
	}
	out := make(map[string]cty.Value, size)
	for _, l := range layers {
		for k, v := range l {
			out[k] = v
		}
	}
	return out
}
