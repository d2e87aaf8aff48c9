package registry

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/specialistvlad/cyclegrid/internal/ctyconv"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Typed adapts a handler written against Go structs. The params object is
// decoded into In with gocty using its `cty` struct tags; attributes without
// a matching field are ignored. Optional inputs without a default arrive as
// null, so their fields must be pointers. The returned Out is converted back
// with ctyconv.FromGo.
func Typed[In any, Out any](fn func(ctx context.Context, call *Call, in *In) (Out, error)) Handler {
	return func(ctx context.Context, call *Call) (cty.Value, error) {
		in := new(In)
		if err := decodeParams(call.Params, in); err != nil {
			return cty.NilVal, fmt.Errorf("decoding parameters of node %q: %w", call.NodeID, err)
		}
		out, err := fn(ctx, call, in)
		if err != nil {
			return cty.NilVal, err
		}
		val, err := ctyconv.FromGo(out)
		if err != nil {
			return cty.NilVal, fmt.Errorf("encoding output of node %q: %w", call.NodeID, err)
		}
		return val, nil
	}
}

func decodeParams(params cty.Value, target any) error {
	tags := ctyTags(reflect.TypeOf(target).Elem())
	attrs := make(map[string]cty.Value, len(tags))
	if params != cty.NilVal && !params.IsNull() && params.Type().IsObjectType() {
		for name := range params.Type().AttributeTypes() {
			if _, ok := tags[name]; ok {
				attrs[name] = params.GetAttr(name)
			}
		}
	}
	for name, kind := range tags {
		if _, ok := attrs[name]; !ok && kind == reflect.Pointer {
			attrs[name] = cty.NullVal(cty.DynamicPseudoType)
		}
	}
	if len(attrs) == 0 {
		return gocty.FromCtyValue(cty.EmptyObjectVal, target)
	}
	return gocty.FromCtyValue(cty.ObjectVal(attrs), target)
}

func ctyTags(t reflect.Type) map[string]reflect.Kind {
	tags := make(map[string]reflect.Kind)
	if t.Kind() != reflect.Struct {
		return tags
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := strings.Split(field.Tag.Get("cty"), ",")[0]
		if name != "" && name != "-" {
			tags[name] = field.Type.Kind()
		}
	}
	return tags
}
