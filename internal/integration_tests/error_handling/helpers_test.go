package integration_tests

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/cyclegrid/internal/app"
	"github.com/specialistvlad/cyclegrid/internal/registry"
	"github.com/specialistvlad/cyclegrid/internal/testutil"
	"github.com/specialistvlad/cyclegrid/modules/expr"
	"github.com/specialistvlad/cyclegrid/modules/print"
	"github.com/stretchr/testify/require"
)

type nodeResult struct {
	Status    string         `json:"status"`
	Iteration int            `json:"iteration"`
	Output    map[string]any `json:"output"`
	Error     string         `json:"error"`
}

type runResult struct {
	RunID  string                    `json:"run_id"`
	Nodes  map[string]nodeResult     `json:"nodes"`
	Cycles map[string]map[string]any `json:"cycles"`
}

// runGrid writes files into a fresh directory, runs it through the app and
// decodes the printed RunResult, if any. The fixture node types are
// registered next to expr and print.
func runGrid(t *testing.T, fixtures *testutil.Fixtures, files map[string]string) (runResult, error) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	if fixtures == nil {
		fixtures = testutil.NewFixtures()
	}

	cfg := &app.Config{GraphPath: dir, WorkerCount: 4, Retention: 4, LogFormat: "text"}
	modules := []registry.Module{fixtures, &expr.Module{}, &print.Module{}}
	a, out, _ := app.SetupAppTest(t, cfg, modules...)

	err := a.Run(context.Background())

	var res runResult
	if data := out.Bytes(); len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &res))
	}
	return res, err
}
