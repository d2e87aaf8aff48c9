// Package convergence evaluates the boolean predicate that ends a cycle
// group's iteration loop early.
//
// A predicate references flat field names of the designated output node's
// most recent output, e.g. `count >= 3 && stable`. Nested paths such as
// `result.converged` are rejected when the predicate is compiled.
package convergence

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/cyclegrid/internal/ctyconv"
	"github.com/specialistvlad/cyclegrid/internal/expr"
	"github.com/specialistvlad/cyclegrid/internal/faults"
	"github.com/zclconf/go-cty/cty"
)

// Predicate is a compiled convergence expression.
type Predicate struct {
	expr  *expr.Expression
	names []string
}

// Compile parses src and checks that it only references flat names.
func Compile(src string) (*Predicate, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("convergence expression must not be empty")
	}
	e, err := expr.Compile(src, "converge_when")
	if err != nil {
		return nil, err
	}
	for _, ref := range e.References() {
		if len(ref) > 1 {
			return nil, fmt.Errorf("convergence expression %q: %q is a nested path; only flat field names are allowed", src, expr.TraversalKey(ref))
		}
	}
	return &Predicate{expr: e, names: e.RootNames()}, nil
}

// String returns the source text.
func (p *Predicate) String() string {
	return p.expr.Source
}

// Names returns the field names the predicate reads, sorted.
func (p *Predicate) Names() []string {
	return p.names
}

// Evaluate decides whether output satisfies the predicate. The output must
// be an object or map holding every referenced name, and the result must be
// a known, non-null boolean.
func (p *Predicate) Evaluate(output cty.Value) (bool, error) {
	fields, ok := ctyconv.Attributes(output)
	if !ok {
		return false, &ConvergenceExpressionError{
			Expression: p.String(),
			Reason:     "output is not an object",
		}
	}
	vars := make(map[string]cty.Value, len(p.names))
	for _, name := range p.names {
		v, exists := fields[name]
		if !exists {
			return false, &ConvergenceExpressionError{
				Expression: p.String(),
				Field:      name,
				Reason:     "field is not present in the output",
			}
		}
		vars[name] = v
	}

	val, diags := p.expr.Value(&hcl.EvalContext{Variables: vars, Functions: expr.Functions()})
	if diags.HasErrors() {
		return false, &ConvergenceExpressionError{Expression: p.String(), Reason: diags.Error()}
	}
	if val.IsNull() || !val.IsKnown() {
		return false, &ConvergenceExpressionError{Expression: p.String(), Reason: "result is null"}
	}
	if !val.Type().Equals(cty.Bool) {
		return false, &ConvergenceExpressionError{
			Expression: p.String(),
			Reason:     fmt.Sprintf("result is %s, not bool", val.Type().FriendlyName()),
		}
	}
	return val.True(), nil
}

// ConvergenceExpressionError is fatal for the cycle group that evaluates it.
type ConvergenceExpressionError struct {
	Expression string
	Field      string
	Reason     string
}

func (e *ConvergenceExpressionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("convergence expression %q: %s: %s", e.Expression, e.Field, e.Reason)
	}
	return fmt.Sprintf("convergence expression %q: %s", e.Expression, e.Reason)
}

func (e *ConvergenceExpressionError) Kind() faults.Kind { return faults.KindExecution }
