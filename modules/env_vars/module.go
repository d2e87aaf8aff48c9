package env_vars

import (
	"context"
	"os"
	"strings"

	"github.com/specialistvlad/cyclegrid/internal/registry"
	"github.com/specialistvlad/cyclegrid/internal/schema"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	// Environ overrides os.Environ, for tests.
	Environ func() []string
}

// Input defines the arguments of the node type.
type Input struct {
	Prefix string `cty:"prefix"`
}

// Output defines the data structure returned by the handler.
type Output struct {
	All map[string]string `cty:"all"`
}

func (m *Module) environ() []string {
	if m.Environ != nil {
		return m.Environ()
	}
	return os.Environ()
}

// OnRunEnvVars returns the environment, keeping only variables that start
// with Prefix when it is set.
func (m *Module) OnRunEnvVars(_ context.Context, _ *registry.Call, in *Input) (*Output, error) {
	envMap := make(map[string]string)
	for _, e := range m.environ() {
		key, value, ok := strings.Cut(e, "=")
		if !ok || !strings.HasPrefix(key, in.Prefix) {
			continue
		}
		envMap[key] = value
	}
	return &Output{All: envMap}, nil
}

// Register registers the handler with the registry.
func (m *Module) Register(r *registry.Registry) error {
	return r.Register("env_vars", &registry.Definition{
		Schema: &schema.Schema{
			Inputs:  []schema.Parameter{schema.Optional("prefix", cty.String, cty.StringVal(""))},
			Outputs: cty.Object(map[string]cty.Type{"all": cty.Map(cty.String)}),
		},
		Handler:     registry.Typed(m.OnRunEnvVars),
		Description: "Reads environment variables.",
	})
}
