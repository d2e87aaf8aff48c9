// Package schema describes the parameters a node type accepts and the shape
// of the output it produces, and checks concrete values against them.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Parameter is one declared input field of a node type.
type Parameter struct {
	Name        string
	Type        cty.Type
	Required    bool
	Default     *cty.Value
	Description string
}

// Required declares a mandatory input field.
func Required(name string, ty cty.Type) Parameter {
	return Parameter{Name: name, Type: ty, Required: true}
}

// Optional declares an input field with a default value.
func Optional(name string, ty cty.Type, def cty.Value) Parameter {
	return Parameter{Name: name, Type: ty, Default: &def}
}

// Schema is the declared contract of a node type. Outputs is left as
// cty.NilType when the type does not describe its output, in which case
// field paths into it are only resolved at runtime.
type Schema struct {
	Inputs     []Parameter
	Outputs    cty.Type
	AcceptsAny bool
}

// Any is a schema that accepts arbitrary input fields.
func Any() *Schema {
	return &Schema{AcceptsAny: true}
}

// Input looks up a declared parameter by name.
func (s *Schema) Input(name string) (Parameter, bool) {
	for _, p := range s.Inputs {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Accepts reports whether name may be used as an input field.
func (s *Schema) Accepts(name string) bool {
	if s.AcceptsAny {
		return true
	}
	_, ok := s.Input(name)
	return ok
}

// HasOutputs reports whether an output type was declared.
func (s *Schema) HasOutputs() bool {
	return s.Outputs != cty.NilType
}

// RequiredInputs returns the names of fields that must be supplied because
// they are required and carry no default.
func (s *Schema) RequiredInputs() []string {
	var names []string
	for _, p := range s.Inputs {
		if p.Required && p.Default == nil {
			names = append(names, p.Name)
		}
	}
	return names
}

// Validate checks the schema itself: parameter names are unique and
// non-empty, and every default converts to its parameter type.
func (s *Schema) Validate() error {
	var errs []string
	seen := make(map[string]struct{}, len(s.Inputs))
	for _, p := range s.Inputs {
		if p.Name == "" {
			errs = append(errs, "parameter with empty name")
			continue
		}
		if _, dup := seen[p.Name]; dup {
			errs = append(errs, fmt.Sprintf("parameter %q declared twice", p.Name))
		}
		seen[p.Name] = struct{}{}
		if p.Type == cty.NilType {
			errs = append(errs, fmt.Sprintf("parameter %q has no type", p.Name))
			continue
		}
		if p.Default != nil {
			if _, err := convert.Convert(*p.Default, p.Type); err != nil {
				errs = append(errs, fmt.Sprintf("parameter %q: default does not convert to %s: %v", p.Name, p.Type.FriendlyName(), err))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid schema:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// ProblemKind classifies a single parameter problem.
type ProblemKind int

const (
	Missing ProblemKind = iota
	Mistyped
	Undeclared
)

func (k ProblemKind) String() string {
	switch k {
	case Missing:
		return "missing"
	case Mistyped:
		return "mistyped"
	case Undeclared:
		return "undeclared"
	default:
		return "unknown"
	}
}

// Problem is one reason a set of parameters does not satisfy a schema.
type Problem struct {
	Field  string
	Kind   ProblemKind
	Detail string
}

func (p Problem) String() string {
	if p.Detail == "" {
		return fmt.Sprintf("%s: %s", p.Field, p.Kind)
	}
	return fmt.Sprintf("%s: %s (%s)", p.Field, p.Kind, p.Detail)
}

// Check validates params against the schema and returns every problem
// found, sorted by field name. With partial set, missing required fields
// are not reported; this is how static configuration is checked before the
// remaining inputs arrive through edges or runtime parameters.
func (s *Schema) Check(params map[string]cty.Value, partial bool) []Problem {
	_, problems := s.apply(params, partial)
	return problems
}

// Apply validates params and returns the complete input object: declared
// fields converted to their types, defaults filled in, absent optional
// fields set to typed nulls, and undeclared fields passed through when the
// schema accepts any.
func (s *Schema) Apply(params map[string]cty.Value) (cty.Value, []Problem) {
	return s.apply(params, false)
}

func (s *Schema) apply(params map[string]cty.Value, partial bool) (cty.Value, []Problem) {
	var problems []Problem
	attrs := make(map[string]cty.Value, len(s.Inputs)+len(params))

	for _, p := range s.Inputs {
		val, present := params[p.Name]
		if present && val.IsNull() {
			present = false
		}
		switch {
		case present:
			converted, err := convert.Convert(val, p.Type)
			if err != nil {
				problems = append(problems, Problem{
					Field:  p.Name,
					Kind:   Mistyped,
					Detail: fmt.Sprintf("want %s, got %s", p.Type.FriendlyName(), val.Type().FriendlyName()),
				})
				continue
			}
			attrs[p.Name] = converted
		case p.Default != nil:
			def, _ := convert.Convert(*p.Default, p.Type)
			attrs[p.Name] = def
		case p.Required:
			if !partial {
				problems = append(problems, Problem{Field: p.Name, Kind: Missing})
			}
		default:
			attrs[p.Name] = cty.NullVal(p.Type)
		}
	}

	for name, val := range params {
		if _, declared := s.Input(name); declared {
			continue
		}
		if !s.AcceptsAny {
			problems = append(problems, Problem{Field: name, Kind: Undeclared})
			continue
		}
		attrs[name] = val
	}

	sort.Slice(problems, func(i, j int) bool {
		if problems[i].Field == problems[j].Field {
			return problems[i].Kind < problems[j].Kind
		}
		return problems[i].Field < problems[j].Field
	})

	if len(problems) > 0 {
		return cty.NilVal, problems
	}
	if len(attrs) == 0 {
		return cty.EmptyObjectVal, nil
	}
	return cty.ObjectVal(attrs), nil
}
