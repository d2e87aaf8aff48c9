// Package http_request provides the "http_request" node type.
package http_request

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/specialistvlad/cyclegrid/internal/ctxlog"
	"github.com/specialistvlad/cyclegrid/internal/registry"
	"github.com/specialistvlad/cyclegrid/internal/schema"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the registry.Module interface for this package. A nil
// Client is replaced by one with a pooled transport on Register.
type Module struct {
	Client *http.Client
}

// Input defines the arguments of the node type.
type Input struct {
	URL     string            `cty:"url"`
	Method  string            `cty:"method"`
	Timeout string            `cty:"timeout"`
	Body    string            `cty:"body"`
	Headers map[string]string `cty:"headers"`
}

// Output is the response of one request.
type Output struct {
	StatusCode int    `cty:"status_code"`
	Body       string `cty:"body"`
}

var inputs = []schema.Parameter{
	schema.Required("url", cty.String),
	schema.Optional("method", cty.String, cty.StringVal(http.MethodGet)),
	schema.Optional("timeout", cty.String, cty.StringVal("10s")),
	schema.Optional("body", cty.String, cty.StringVal("")),
	schema.Optional("headers", cty.Map(cty.String), cty.MapValEmpty(cty.String)),
}

func newClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// OnRunHttpRequest performs the request. Non-2xx statuses are not errors;
// the status code is part of the output.
func (m *Module) OnRunHttpRequest(ctx context.Context, call *registry.Call, in *Input) (*Output, error) {
	logger := ctxlog.FromContext(ctx).With("node", call.NodeID, "iteration", call.Iteration)

	timeout, err := time.ParseDuration(in.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timeout: %w", err)
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if in.Body != "" {
		body = strings.NewReader(in.Body)
	}
	req, err := http.NewRequestWithContext(reqCtx, in.Method, in.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range in.Headers {
		req.Header.Set(k, v)
	}

	logger.Info("Making HTTP request", "method", in.Method, "url", in.URL)
	resp, err := m.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	logger.Info("Received HTTP response", "status", resp.Status)

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return &Output{StatusCode: resp.StatusCode, Body: string(bodyBytes)}, nil
}

// Register registers the handler with the registry.
func (m *Module) Register(r *registry.Registry) error {
	if m.Client == nil {
		m.Client = newClient()
	}
	return r.Register("http_request", &registry.Definition{
		Schema: &schema.Schema{
			Inputs: inputs,
			Outputs: cty.Object(map[string]cty.Type{
				"status_code": cty.Number,
				"body":        cty.String,
			}),
		},
		Handler:     registry.Typed(m.OnRunHttpRequest),
		Description: "Performs an HTTP request.",
	})
}
