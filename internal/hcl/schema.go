package hcl

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes every top-level block a graph file may hold.
type fileRoot struct {
	Nodes  []*nodeBlock   `hcl:"node,block"`
	Edges  []*edgeBlock   `hcl:"edge,block"`
	Cycles []*cycleBlock  `hcl:"cycle,block"`
	Params []*paramsBlock `hcl:"params,block"`
}

type nodeBlock struct {
	Type   string   `hcl:"type,label"`
	ID     string   `hcl:"id,label"`
	Config hcl.Body `hcl:",remain"`
}

type edgeBlock struct {
	From hcl.Expression `hcl:"from"`
	To   hcl.Expression `hcl:"to"`
}

type connectBlock struct {
	From    string            `hcl:"from,label"`
	To      string            `hcl:"to,label"`
	Mapping map[string]string `hcl:"mapping"`
}

type cycleBlock struct {
	Name          string          `hcl:"name,label"`
	Connects      []*connectBlock `hcl:"connect,block"`
	MaxIterations int             `hcl:"max_iterations"`
	ConvergeWhen  string          `hcl:"converge_when,optional"`
	Output        string          `hcl:"output,optional"`
	Include       []string        `hcl:"include,optional"`
	Timeout       string          `hcl:"timeout,optional"`
	FaultTolerant bool            `hcl:"fault_tolerant,optional"`
}

type paramsBlock struct {
	Node   string   `hcl:"node,label"`
	Values hcl.Body `hcl:",remain"`
}
