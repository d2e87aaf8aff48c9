// Package ctyconv converts between native Go values and cty.Value, the
// tagged-variant representation used for every node input and output.
package ctyconv

import (
	"fmt"
	"reflect"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// ToGo converts a cty.Value to plain Go data: string, float64, bool,
// map[string]any, []any or nil.
func ToGo(val cty.Value) (any, error) {
	if val.IsNull() || !val.IsKnown() {
		return nil, nil
	}
	ty := val.Type()
	if ty.IsPrimitiveType() {
		switch ty {
		case cty.String:
			return val.AsString(), nil
		case cty.Number:
			f, _ := val.AsBigFloat().Float64()
			return f, nil
		case cty.Bool:
			return val.True(), nil
		default:
			return nil, fmt.Errorf("unsupported primitive type: %s", ty.FriendlyName())
		}
	}
	if ty.IsObjectType() || ty.IsMapType() {
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			converted, err := ToGo(v)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = converted
		}
		return out, nil
	}
	if ty.IsTupleType() || ty.IsListType() || ty.IsSetType() {
		out := make([]any, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			converted, err := ToGo(v)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported cty.Type for conversion: %s", ty.FriendlyName())
}

// FromGo converts a Go value to a cty.Value. Maps become objects and slices
// become tuples so that heterogeneous data survives the conversion. Structs
// and other typed values go through gocty with their implied type.
func FromGo(data any) (cty.Value, error) {
	if data == nil {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	switch v := data.(type) {
	case cty.Value:
		return v, nil
	case string:
		return cty.StringVal(v), nil
	case bool:
		return cty.BoolVal(v), nil
	case int:
		return cty.NumberIntVal(int64(v)), nil
	case int32:
		return cty.NumberIntVal(int64(v)), nil
	case int64:
		return cty.NumberIntVal(v), nil
	case uint:
		return cty.NumberUIntVal(uint64(v)), nil
	case uint64:
		return cty.NumberUIntVal(v), nil
	case float32:
		return cty.NumberFloatVal(float64(v)), nil
	case float64:
		return cty.NumberFloatVal(v), nil
	case map[string]any:
		attrs := make(map[string]cty.Value, len(v))
		for key, item := range v {
			converted, err := FromGo(item)
			if err != nil {
				return cty.NilVal, fmt.Errorf("attribute %q: %w", key, err)
			}
			attrs[key] = converted
		}
		return cty.ObjectVal(attrs), nil
	case []any:
		elems := make([]cty.Value, 0, len(v))
		for i, item := range v {
			converted, err := FromGo(item)
			if err != nil {
				return cty.NilVal, fmt.Errorf("element %d: %w", i, err)
			}
			elems = append(elems, converted)
		}
		return cty.TupleVal(elems), nil
	}

	rv := reflect.ValueOf(data)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return cty.NullVal(cty.DynamicPseudoType), nil
		}
		return FromGo(rv.Elem().Interface())
	}
	ty, err := gocty.ImpliedType(data)
	if err != nil {
		return cty.NilVal, fmt.Errorf("cannot imply cty type from %T: %w", data, err)
	}
	return gocty.ToCtyValue(data, ty)
}

// Attributes returns the top-level fields of an object or map value.
// Any other value (including null) yields an empty map and false.
func Attributes(val cty.Value) (map[string]cty.Value, bool) {
	if val.IsNull() || !val.IsKnown() {
		return map[string]cty.Value{}, false
	}
	ty := val.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return map[string]cty.Value{}, false
	}
	out := make(map[string]cty.Value, val.LengthInt())
	for it := val.ElementIterator(); it.Next(); {
		k, v := it.Element()
		out[k.AsString()] = v
	}
	return out, true
}

// Object builds an object value, treating a nil map as the empty object.
func Object(attrs map[string]cty.Value) cty.Value {
	if len(attrs) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(attrs)
}
