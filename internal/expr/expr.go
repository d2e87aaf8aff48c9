// Package expr compiles HCL expressions used inside graphs (convergence
// predicates, the expr node type, parameter literals) and analyzes which
// variables and functions they reference.
package expr

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// Expression is a parsed HCL expression together with its static analysis.
type Expression struct {
	Source string
	hcl.Expression

	references []hcl.Traversal
	functions  []string
}

// Compile parses src and checks that it only calls functions from the
// shared function table.
func Compile(src, filename string) (*Expression, error) {
	parsed, diags := hclsyntax.ParseExpression([]byte(src), filename, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing expression %q: %w", src, diags)
	}
	refs, funcs := extractReferencesAndFunctions(parsed)
	table := Functions()
	for _, name := range funcs {
		if _, ok := table[name]; !ok {
			return nil, fmt.Errorf("expression %q calls unknown function %q", src, name)
		}
	}
	return &Expression{
		Source:     src,
		Expression: parsed,
		references: refs,
		functions:  funcs,
	}, nil
}

// References returns the unique variable traversals, sorted.
func (e *Expression) References() []hcl.Traversal {
	return e.references
}

// CalledFunctions returns the unique function names called, sorted.
func (e *Expression) CalledFunctions() []string {
	return e.functions
}

// RootNames returns the unique root variable names referenced, sorted.
func (e *Expression) RootNames() []string {
	seen := make(map[string]struct{})
	for _, t := range e.references {
		seen[t.RootName()] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Eval evaluates the expression with vars bound as top-level variables.
func (e *Expression) Eval(vars map[string]cty.Value) (cty.Value, error) {
	val, diags := e.Value(EvalContext(vars))
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("evaluating %q: %w", e.Source, diags)
	}
	return val, nil
}

// EvalContext builds an evaluation context over the shared function table.
func EvalContext(vars map[string]cty.Value) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: vars,
		Functions: Functions(),
	}
}

// ParseLiteral evaluates src as a standalone HCL value, e.g. `5`, `"text"`
// or `{ a = [1, 2] }`. Variables are not available.
func ParseLiteral(src string) (cty.Value, error) {
	e, err := Compile(src, "<literal>")
	if err != nil {
		return cty.NilVal, err
	}
	if len(e.references) > 0 {
		return cty.NilVal, fmt.Errorf("literal %q must not reference variables", src)
	}
	return e.Eval(nil)
}

// TraversalKey generates a stable, canonical string for an hcl.Traversal,
// e.g. "var.foo[0].bar".
func TraversalKey(t hcl.Traversal) string {
	return string(hclwrite.TokensForTraversal(t).Bytes())
}

// extractReferencesAndFunctions walks through HCL expressions to find all unique
// variable traversals and function calls. The returned slices are sorted to
// ensure a deterministic order.
func extractReferencesAndFunctions(exprs ...hcl.Expression) ([]hcl.Traversal, []string) {
	traversals := make(map[string]hcl.Traversal)
	functions := make(map[string]struct{})

	for _, e := range exprs {
		if e == nil {
			continue
		}
		for _, traversal := range e.Variables() {
			traversals[TraversalKey(traversal)] = traversal
		}
		// Variables() does not report function calls.
		if syntaxExpr, ok := e.(hclsyntax.Expression); ok {
			walkForFunctions(syntaxExpr, functions)
		}
	}

	keys := make([]string, 0, len(traversals))
	for k := range traversals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	traversalSlice := make([]hcl.Traversal, 0, len(keys))
	for _, k := range keys {
		traversalSlice = append(traversalSlice, traversals[k])
	}

	functionSlice := make([]string, 0, len(functions))
	for f := range functions {
		functionSlice = append(functionSlice, f)
	}
	sort.Strings(functionSlice)

	return traversalSlice, functionSlice
}

func walkForFunctions(e hclsyntax.Expression, functions map[string]struct{}) {
	if e == nil {
		return
	}
	switch e := e.(type) {
	case *hclsyntax.FunctionCallExpr:
		functions[e.Name] = struct{}{}
		for _, arg := range e.Args {
			walkForFunctions(arg, functions)
		}
	case *hclsyntax.BinaryOpExpr:
		walkForFunctions(e.LHS, functions)
		walkForFunctions(e.RHS, functions)
	case *hclsyntax.ConditionalExpr:
		walkForFunctions(e.Condition, functions)
		walkForFunctions(e.TrueResult, functions)
		walkForFunctions(e.FalseResult, functions)
	case *hclsyntax.UnaryOpExpr:
		walkForFunctions(e.Val, functions)
	case *hclsyntax.TemplateExpr:
		for _, part := range e.Parts {
			walkForFunctions(part, functions)
		}
	case *hclsyntax.TemplateWrapExpr:
		walkForFunctions(e.Wrapped, functions)
	case *hclsyntax.TupleConsExpr:
		for _, item := range e.Exprs {
			walkForFunctions(item, functions)
		}
	case *hclsyntax.ObjectConsExpr:
		for _, item := range e.Items {
			walkForFunctions(item.KeyExpr, functions)
			walkForFunctions(item.ValueExpr, functions)
		}
	case *hclsyntax.ForExpr:
		walkForFunctions(e.CollExpr, functions)
		walkForFunctions(e.KeyExpr, functions)
		walkForFunctions(e.ValExpr, functions)
		walkForFunctions(e.CondExpr, functions)
	case *hclsyntax.IndexExpr:
		walkForFunctions(e.Collection, functions)
		walkForFunctions(e.Key, functions)
	case *hclsyntax.SplatExpr:
		walkForFunctions(e.Source, functions)
		walkForFunctions(e.Each, functions)
	case *hclsyntax.ParenthesesExpr:
		walkForFunctions(e.Expression, functions)
	}
}
