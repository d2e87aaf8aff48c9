package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/zclconf/go-cty/cty"
)

// Document is a parsed graph description.
type Document struct {
	Nodes  []NodeSpec
	Edges  []EdgeSpec
	Cycles []CycleSpec
	// Params holds runtime parameters: node id -> field -> value.
	Params map[string]map[string]cty.Value
}

// NodeSpec declares a node.
type NodeSpec struct {
	ID     string
	Type   string
	Config map[string]cty.Value
	// Origin is a human readable location, e.g. "grid.hcl:3".
	Origin string
}

// EdgeSpec connects "<node>.<path>" to "<node>.<field>".
type EdgeSpec struct {
	From   string
	To     string
	Origin string
}

// CycleSpec declares a cycle group.
type CycleSpec struct {
	Name          string
	Connects      []ConnectSpec
	MaxIterations int
	ConvergeWhen  string
	Output        string
	Include       []string
	Timeout       time.Duration
	FaultTolerant bool
	Origin        string
}

// ConnectSpec is a re-entry edge. Mapping keys are field paths into the
// source's output, values are input fields of the target.
type ConnectSpec struct {
	From    string
	To      string
	Mapping map[string]string
}

// Merge appends other to d. Setting the same runtime parameter twice is an
// error; duplicate nodes and cycles are reported later by the builders.
func (d *Document) Merge(other *Document) error {
	d.Nodes = append(d.Nodes, other.Nodes...)
	d.Edges = append(d.Edges, other.Edges...)
	d.Cycles = append(d.Cycles, other.Cycles...)
	for id, fields := range other.Params {
		for field, v := range fields {
			if err := d.SetParam(id, field, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// SetParam records one runtime parameter.
func (d *Document) SetParam(nodeID, field string, v cty.Value) error {
	if d.Params == nil {
		d.Params = make(map[string]map[string]cty.Value)
	}
	if d.Params[nodeID] == nil {
		d.Params[nodeID] = make(map[string]cty.Value)
	}
	if _, ok := d.Params[nodeID][field]; ok {
		return fmt.Errorf("runtime parameter %s.%s is set more than once", nodeID, field)
	}
	d.Params[nodeID][field] = v
	return nil
}

// SplitEndpoint splits "node.path" at the first dot.
func SplitEndpoint(s string) (nodeID, path string, err error) {
	nodeID, path, ok := strings.Cut(s, ".")
	if !ok || nodeID == "" || path == "" {
		return "", "", fmt.Errorf("invalid endpoint %q: want <node>.<field>", s)
	}
	return nodeID, path, nil
}
