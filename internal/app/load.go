package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/cyclegrid/internal/config"
	"github.com/specialistvlad/cyclegrid/internal/ctxlog"
)

// loadDocument reads the graph and params documents and applies the
// command-line parameters on top.
func (a *App) loadDocument(ctx context.Context) (*config.Document, error) {
	logger := ctxlog.FromContext(ctx)

	paths := []string{a.config.GraphPath}
	if a.config.ParamsPath != "" {
		paths = append(paths, a.config.ParamsPath)
	}

	doc := &config.Document{}
	for _, path := range paths {
		logger.Debug("Loading documents...", "path", path)
		part, err := a.loadPath(ctx, path)
		if err != nil {
			return nil, err
		}
		if err := doc.Merge(part); err != nil {
			return nil, err
		}
	}

	for _, raw := range a.config.Params {
		nodeID, field, v, err := config.ParseParam(raw)
		if err != nil {
			return nil, err
		}
		if err := doc.SetParam(nodeID, field, v); err != nil {
			return nil, fmt.Errorf("--param %s: %w", raw, err)
		}
	}

	logger.Info("Documents loaded.", "nodes", len(doc.Nodes), "edges", len(doc.Edges), "cycles", len(doc.Cycles))
	return doc, nil
}

// loadPath runs every loader over a directory, or the one loader matching a
// file's extension.
func (a *App) loadPath(ctx context.Context, path string) (*config.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	doc := &config.Document{}
	matched := false
	for _, l := range a.loaders {
		if !info.IsDir() && !hasExtension(path, l.Extensions()) {
			continue
		}
		matched = true
		part, err := l.Load(ctx, path)
		if err != nil {
			return nil, err
		}
		if err := doc.Merge(part); err != nil {
			return nil, err
		}
	}
	if !matched {
		return nil, fmt.Errorf("no loader for %s: unsupported file extension %q", path, filepath.Ext(path))
	}
	return doc, nil
}

func hasExtension(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if e == ext {
			return true
		}
	}
	return false
}
