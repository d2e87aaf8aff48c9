package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/cyclegrid/internal/ctxlog"
	"github.com/specialistvlad/cyclegrid/internal/engine"
	"github.com/specialistvlad/cyclegrid/internal/graph"
	"github.com/specialistvlad/cyclegrid/internal/registry"
)

// Assemble builds the graph described by doc and attaches its cycle groups.
// Node and edge problems are collected and reported together; building
// stops before cycles are attached if any were found.
func Assemble(ctx context.Context, doc *Document, reg *registry.Registry) (*graph.Built, engine.Params, error) {
	logger := ctxlog.FromContext(ctx)
	g := graph.New(reg)

	var errs []error
	for _, n := range doc.Nodes {
		if err := g.AddNode(n.ID, n.Type, n.Config); err != nil {
			errs = append(errs, withOrigin(n.Origin, err))
		}
	}
	for _, e := range doc.Edges {
		if err := addEdge(g, e); err != nil {
			errs = append(errs, withOrigin(e.Origin, err))
		}
	}
	if len(errs) > 0 {
		return nil, nil, errors.Join(errs...)
	}

	b, err := g.Build()
	if err != nil {
		return nil, nil, err
	}
	for _, c := range doc.Cycles {
		if err := attachCycle(b, c); err != nil {
			return nil, nil, withOrigin(c.Origin, err)
		}
	}

	logger.Debug("Graph assembled.", "nodes", len(doc.Nodes), "edges", len(doc.Edges), "cycles", len(doc.Cycles))
	return b, engine.Params(doc.Params), nil
}

func addEdge(g *graph.Graph, e EdgeSpec) error {
	from, path, err := SplitEndpoint(e.From)
	if err != nil {
		return err
	}
	to, field, err := SplitEndpoint(e.To)
	if err != nil {
		return err
	}
	return g.AddEdge(from, path, to, field)
}

func attachCycle(b *graph.Built, c CycleSpec) error {
	cb, err := graph.CreateCycle(b, c.Name)
	if err != nil {
		return err
	}
	for _, conn := range c.Connects {
		cb.Connect(conn.From, conn.To, conn.Mapping)
	}
	cb.MaxIterations(c.MaxIterations)
	if c.ConvergeWhen != "" {
		cb.ConvergeWhen(c.ConvergeWhen)
	}
	if c.Output != "" {
		cb.Output(c.Output)
	}
	if len(c.Include) > 0 {
		cb.Include(c.Include...)
	}
	if c.Timeout > 0 {
		cb.Timeout(c.Timeout)
	}
	if c.FaultTolerant {
		cb.FaultTolerant()
	}
	return cb.Build()
}

// originError prefixes an error with the location it was declared at while
// keeping it inspectable with errors.As.
type originError struct {
	origin string
	err    error
}

func (e *originError) Error() string { return fmt.Sprintf("%s: %v", e.origin, e.err) }

func (e *originError) Unwrap() error { return e.err }

func withOrigin(origin string, err error) error {
	if origin == "" {
		return err
	}
	return &originError{origin: origin, err: err}
}
