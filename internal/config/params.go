package config

import (
	"fmt"
	"strings"

	"github.com/specialistvlad/cyclegrid/internal/expr"
	"github.com/zclconf/go-cty/cty"
)

// ParseParam parses a command line parameter of the form
// node.field=<value>. The value is an HCL literal; anything that does not
// parse as one is taken as a plain string, so name=alice works unquoted.
func ParseParam(s string) (nodeID, field string, v cty.Value, err error) {
	lhs, raw, ok := strings.Cut(s, "=")
	if !ok {
		return "", "", cty.NilVal, fmt.Errorf("invalid parameter %q: want <node>.<field>=<value>", s)
	}
	nodeID, field, err = SplitEndpoint(strings.TrimSpace(lhs))
	if err != nil {
		return "", "", cty.NilVal, fmt.Errorf("invalid parameter %q: %w", s, err)
	}
	if strings.Contains(field, ".") {
		return "", "", cty.NilVal, fmt.Errorf("invalid parameter %q: field must be a plain name", s)
	}
	v, err = expr.ParseLiteral(raw)
	if err != nil {
		v = cty.StringVal(raw)
	}
	return nodeID, field, v, nil
}
