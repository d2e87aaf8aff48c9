package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/specialistvlad/cyclegrid/internal/schema"
	"github.com/zclconf/go-cty/cty"
)

// ErrRegistryFrozen is returned by Register once Freeze has been called.
var ErrRegistryFrozen = errors.New("registry is frozen")

// Call carries everything a handler needs for one execution of a node.
type Call struct {
	RunID     string
	NodeID    string
	Iteration int
	// Params is an object holding every input field after defaults and
	// type conversion.
	Params cty.Value
	// Previous is the node's own output from the previous iteration of its
	// cycle group, or a null value on the first iteration and outside cycles.
	Previous cty.Value
}

// HasPrevious reports whether Previous carries an earlier iteration's output.
func (c *Call) HasPrevious() bool {
	return c.Previous != cty.NilVal && !c.Previous.IsNull()
}

// Handler executes one node. A returned error marks the node as failed.
type Handler func(ctx context.Context, call *Call) (cty.Value, error)

// Definition is everything the registry knows about a node type.
type Definition struct {
	Schema      *schema.Schema
	Handler     Handler
	Description string
}

// Module is implemented by packages that contribute node types.
type Module interface {
	Register(r *Registry) error
}

// Registry holds the registered node types of one application instance.
type Registry struct {
	mu     sync.RWMutex
	defs   map[string]*Definition
	frozen bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register adds a node type. A nil schema is treated as accepting any input.
func (r *Registry) Register(typeName string, def *Definition) error {
	if typeName == "" {
		return fmt.Errorf("node type name must not be empty")
	}
	if def == nil || def.Handler == nil {
		return fmt.Errorf("node type %q: definition has no handler", typeName)
	}
	if def.Schema == nil {
		def.Schema = schema.Any()
	}
	if err := def.Schema.Validate(); err != nil {
		return fmt.Errorf("node type %q: %w", typeName, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("cannot register node type %q: %w", typeName, ErrRegistryFrozen)
	}
	if _, exists := r.defs[typeName]; exists {
		return &DuplicateTypeError{TypeName: typeName}
	}
	slog.Debug("Registering node type.", "type", typeName)
	r.defs[typeName] = def
	return nil
}

// RegisterModules lets each module register its node types, stopping at the
// first failure.
func (r *Registry) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.Register(r); err != nil {
			return err
		}
	}
	return nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Lookup returns the definition of a node type.
func (r *Registry) Lookup(typeName string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[typeName]
	return def, ok
}

// Types returns the registered type names in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Instance is a node ready to execute: a definition bound to validated
// parameters. Every Instantiate call returns a new Instance.
type Instance struct {
	NodeID   string
	TypeName string
	Params   cty.Value
	handler  Handler
}

// Execute runs the handler once.
func (i *Instance) Execute(ctx context.Context, runID string, iteration int, previous cty.Value) (cty.Value, error) {
	if previous == cty.NilVal {
		previous = cty.NullVal(cty.DynamicPseudoType)
	}
	return i.handler(ctx, &Call{
		RunID:     runID,
		NodeID:    i.NodeID,
		Iteration: iteration,
		Params:    i.Params,
		Previous:  previous,
	})
}

// Instantiate validates params against the type's schema and binds them to
// a fresh instance. All problems are reported together.
func (r *Registry) Instantiate(typeName, nodeID string, params map[string]cty.Value) (*Instance, error) {
	def, ok := r.Lookup(typeName)
	if !ok {
		return nil, &UnknownTypeError{TypeName: typeName, NodeID: nodeID}
	}
	obj, problems := def.Schema.Apply(params)
	if len(problems) > 0 {
		return nil, &ParameterValidationError{NodeID: nodeID, TypeName: typeName, Problems: problems}
	}
	return &Instance{
		NodeID:   nodeID,
		TypeName: typeName,
		Params:   obj,
		handler:  def.Handler,
	}, nil
}

// CheckPartial validates a subset of a node's parameters, such as its static
// configuration. Missing required fields are not reported.
func (r *Registry) CheckPartial(typeName, nodeID string, params map[string]cty.Value) error {
	def, ok := r.Lookup(typeName)
	if !ok {
		return &UnknownTypeError{TypeName: typeName, NodeID: nodeID}
	}
	if problems := def.Schema.Check(params, true); len(problems) > 0 {
		return &ParameterValidationError{NodeID: nodeID, TypeName: typeName, Problems: problems}
	}
	return nil
}
