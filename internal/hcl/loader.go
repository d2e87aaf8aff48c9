package hcl

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/cyclegrid/internal/config"
	"github.com/specialistvlad/cyclegrid/internal/ctxlog"
	"github.com/specialistvlad/cyclegrid/internal/expr"
	"github.com/specialistvlad/cyclegrid/internal/fsutil"
	"github.com/zclconf/go-cty/cty"
)

// Loader is the HCL implementation of config.Loader.
type Loader struct{}

var _ config.Loader = (*Loader)(nil)

// NewLoader creates a new HCL loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Extensions implements config.Loader.
func (l *Loader) Extensions() []string {
	return []string{".hcl"}
}

// Load implements config.Loader.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Document, error) {
	logger := ctxlog.FromContext(ctx)
	files, err := fsutil.FindFiles(paths, l.Extensions()...)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	parser := hclparse.NewParser()
	doc := &config.Document{}
	for _, file := range files {
		f, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}
		part, err := l.decode(ctx, file, f.Body)
		if err != nil {
			return nil, err
		}
		if err := doc.Merge(part); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
	}

	logger.Debug("HCL loading complete.", "nodes", len(doc.Nodes), "edges", len(doc.Edges), "cycles", len(doc.Cycles))
	return doc, nil
}

// Parse decodes a single in-memory HCL document.
func (l *Loader) Parse(ctx context.Context, filename string, src []byte) (*config.Document, error) {
	f, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	return l.decode(ctx, filename, f.Body)
}

func (l *Loader) decode(ctx context.Context, file string, body hcl.Body) (*config.Document, error) {
	var root fileRoot
	if diags := gohcl.DecodeBody(body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
	}

	doc := &config.Document{}
	for _, n := range root.Nodes {
		spec, err := translateNode(n)
		if err != nil {
			return nil, err
		}
		doc.Nodes = append(doc.Nodes, spec)
	}
	for _, e := range root.Edges {
		spec, err := translateEdge(e)
		if err != nil {
			return nil, err
		}
		doc.Edges = append(doc.Edges, spec)
	}
	for _, c := range root.Cycles {
		spec, err := translateCycle(file, c)
		if err != nil {
			return nil, err
		}
		doc.Cycles = append(doc.Cycles, spec)
	}
	for _, p := range root.Params {
		values, err := evalAttributes(p.Values)
		if err != nil {
			return nil, fmt.Errorf("params %q: %w", p.Node, err)
		}
		for field, v := range values {
			if err := doc.SetParam(p.Node, field, v); err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
		}
	}
	ctxlog.FromContext(ctx).Debug("Decoded HCL file.", "file", file, "nodes", len(doc.Nodes))
	return doc, nil
}

func translateNode(n *nodeBlock) (config.NodeSpec, error) {
	cfg, err := evalAttributes(n.Config)
	if err != nil {
		return config.NodeSpec{}, fmt.Errorf("node %q: %w", n.ID, err)
	}
	return config.NodeSpec{
		ID:     n.ID,
		Type:   n.Type,
		Config: cfg,
		Origin: origin(n.Config.MissingItemRange()),
	}, nil
}

func translateEdge(e *edgeBlock) (config.EdgeSpec, error) {
	from, err := evalString(e.From)
	if err != nil {
		return config.EdgeSpec{}, err
	}
	to, err := evalString(e.To)
	if err != nil {
		return config.EdgeSpec{}, err
	}
	return config.EdgeSpec{From: from, To: to, Origin: origin(e.From.Range())}, nil
}

func translateCycle(file string, c *cycleBlock) (config.CycleSpec, error) {
	spec := config.CycleSpec{
		Name:          c.Name,
		MaxIterations: c.MaxIterations,
		ConvergeWhen:  c.ConvergeWhen,
		Output:        c.Output,
		Include:       c.Include,
		FaultTolerant: c.FaultTolerant,
		Origin:        file,
	}
	if c.Timeout != "" {
		d, err := time.ParseDuration(c.Timeout)
		if err != nil {
			return config.CycleSpec{}, fmt.Errorf("cycle %q: invalid timeout: %w", c.Name, err)
		}
		spec.Timeout = d
	}
	for _, conn := range c.Connects {
		spec.Connects = append(spec.Connects, config.ConnectSpec{From: conn.From, To: conn.To, Mapping: conn.Mapping})
	}
	return spec, nil
}

// evalAttributes evaluates every attribute of a body. Nested blocks are
// rejected.
func evalAttributes(body hcl.Body) (map[string]cty.Value, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}
	ectx := expr.EvalContext(nil)
	out := make(map[string]cty.Value, len(attrs))
	for name, attr := range attrs {
		v, diags := attr.Expr.Value(ectx)
		if diags.HasErrors() {
			return nil, diags
		}
		out[name] = v
	}
	return out, nil
}

func evalString(e hcl.Expression) (string, error) {
	var s string
	if diags := gohcl.DecodeExpression(e, expr.EvalContext(nil), &s); diags.HasErrors() {
		return "", diags
	}
	return s, nil
}

func origin(r hcl.Range) string {
	return fmt.Sprintf("%s:%d", r.Filename, r.Start.Line)
}
