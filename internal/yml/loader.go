// Package yml loads graph documents written in YAML.
//
//	nodes:
//	  - id: A
//	    type: double
//	    config: {x: 5}
//	edges:
//	  - {from: A.result, to: P.x}
//	cycles:
//	  - name: loop
//	    max_iterations: 5
//	    converge_when: count >= 3
//	    timeout: 30s
//	    connect:
//	      - {from: P, to: P, mapping: {count: x}}
//	params:
//	  A: {x: 5}
package yml

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/specialistvlad/cyclegrid/internal/config"
	"github.com/specialistvlad/cyclegrid/internal/ctxlog"
	"github.com/specialistvlad/cyclegrid/internal/ctyconv"
	"github.com/specialistvlad/cyclegrid/internal/fsutil"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"
)

type document struct {
	Nodes  []nodeDoc             `yaml:"nodes"`
	Edges  []edgeDoc             `yaml:"edges"`
	Cycles []cycleDoc            `yaml:"cycles"`
	Params map[string]yaml.Node `yaml:"params"`
}

// decodeStrict decodes value into out rejecting unknown keys. Node.Decode
// does not inherit the KnownFields setting of the outer decoder.
func decodeStrict(value *yaml.Node, out any) error {
	raw, err := yaml.Marshal(value)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	return nil
}

type nodeDoc struct {
	ID     string    `yaml:"id"`
	Type   string    `yaml:"type"`
	Config yaml.Node `yaml:"config"`
	line   int
}

func (n *nodeDoc) UnmarshalYAML(value *yaml.Node) error {
	type plain nodeDoc
	if err := decodeStrict(value, (*plain)(n)); err != nil {
		return err
	}
	n.line = value.Line
	return nil
}

type edgeDoc struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	line int
}

func (e *edgeDoc) UnmarshalYAML(value *yaml.Node) error {
	type plain edgeDoc
	if err := decodeStrict(value, (*plain)(e)); err != nil {
		return err
	}
	e.line = value.Line
	return nil
}

type connectDoc struct {
	From    string            `yaml:"from"`
	To      string            `yaml:"to"`
	Mapping map[string]string `yaml:"mapping"`
}

type cycleDoc struct {
	Name          string       `yaml:"name"`
	Connect       []connectDoc `yaml:"connect"`
	MaxIterations int          `yaml:"max_iterations"`
	ConvergeWhen  string       `yaml:"converge_when"`
	Output        string       `yaml:"output"`
	Include       []string     `yaml:"include"`
	Timeout       string       `yaml:"timeout"`
	FaultTolerant bool         `yaml:"fault_tolerant"`
	line          int
}

func (c *cycleDoc) UnmarshalYAML(value *yaml.Node) error {
	type plain cycleDoc
	if err := decodeStrict(value, (*plain)(c)); err != nil {
		return err
	}
	c.line = value.Line
	return nil
}

// Loader is the YAML implementation of config.Loader.
type Loader struct{}

var _ config.Loader = (*Loader)(nil)

// NewLoader creates a new YAML loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Extensions implements config.Loader.
func (l *Loader) Extensions() []string {
	return []string{".yaml", ".yml"}
}

// Load implements config.Loader.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Document, error) {
	logger := ctxlog.FromContext(ctx)
	files, err := fsutil.FindFiles(paths, l.Extensions()...)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered YAML files.", "count", len(files))

	doc := &config.Document{}
	for _, file := range files {
		src, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		part, err := l.Parse(ctx, file, src)
		if err != nil {
			return nil, err
		}
		if err := doc.Merge(part); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
	}
	return doc, nil
}

// Parse decodes a single in-memory YAML document. Unknown keys are errors.
func (l *Loader) Parse(ctx context.Context, filename string, src []byte) (*config.Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)
	var raw document
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode YAML file %s: %w", filename, err)
	}

	doc := &config.Document{}
	for _, n := range raw.Nodes {
		cfg, err := attributes(&n.Config)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: node %q config: %w", filename, n.line, n.ID, err)
		}
		doc.Nodes = append(doc.Nodes, config.NodeSpec{
			ID:     n.ID,
			Type:   n.Type,
			Config: cfg,
			Origin: fmt.Sprintf("%s:%d", filename, n.line),
		})
	}
	for _, e := range raw.Edges {
		doc.Edges = append(doc.Edges, config.EdgeSpec{From: e.From, To: e.To, Origin: fmt.Sprintf("%s:%d", filename, e.line)})
	}
	for _, c := range raw.Cycles {
		spec := config.CycleSpec{
			Name:          c.Name,
			MaxIterations: c.MaxIterations,
			ConvergeWhen:  c.ConvergeWhen,
			Output:        c.Output,
			Include:       c.Include,
			FaultTolerant: c.FaultTolerant,
			Origin:        fmt.Sprintf("%s:%d", filename, c.line),
		}
		if c.Timeout != "" {
			d, err := time.ParseDuration(c.Timeout)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: cycle %q: invalid timeout: %w", filename, c.line, c.Name, err)
			}
			spec.Timeout = d
		}
		for _, conn := range c.Connect {
			spec.Connects = append(spec.Connects, config.ConnectSpec{From: conn.From, To: conn.To, Mapping: conn.Mapping})
		}
		doc.Cycles = append(doc.Cycles, spec)
	}
	for id, node := range raw.Params {
		values, err := attributes(&node)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: params %q: %w", filename, node.Line, id, err)
		}
		for field, v := range values {
			if err := doc.SetParam(id, field, v); err != nil {
				return nil, err
			}
		}
	}
	ctxlog.FromContext(ctx).Debug("Decoded YAML file.", "file", filename, "nodes", len(doc.Nodes))
	return doc, nil
}

// attributes converts a YAML mapping into cty values. An absent mapping
// yields nil.
func attributes(node *yaml.Node) (map[string]cty.Value, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected a mapping, got %s", node.ShortTag())
	}
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return nil, err
	}
	out := make(map[string]cty.Value, len(raw))
	for k, v := range raw {
		val, err := ctyconv.FromGo(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}
