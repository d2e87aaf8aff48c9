// Package tracing wires OpenTelemetry for the CLI. Spans are exported with
// the stdout exporter to a writer chosen by the caller; with no writer
// tracing stays a no-op.
package tracing

import (
	"context"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config selects where spans go.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// Output receives one JSON document per span. Nil disables tracing.
	Output io.Writer
	// Pretty indents the JSON output.
	Pretty bool
}

// Provider owns the tracer provider of one application instance.
type Provider struct {
	tp       trace.TracerProvider
	shutdown func(context.Context) error
}

// New builds a provider. Spans are exported synchronously so that nothing
// is lost when the CLI exits right after a run.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Output == nil {
		return &Provider{
			tp:       noop.NewTracerProvider(),
			shutdown: func(context.Context) error { return nil },
		}, nil
	}

	opts := []stdouttrace.Option{stdouttrace.WithWriter(cfg.Output)}
	if cfg.Pretty {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
	return &Provider{tp: tp, shutdown: tp.Shutdown}, nil
}

// Tracer returns a named tracer.
func (p *Provider) Tracer(name string) trace.Tracer {
	return p.tp.Tracer(name)
}

// Shutdown flushes and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.shutdown(ctx)
}
