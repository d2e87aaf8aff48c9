// Package socketio_request provides the "socketio_request" node type: it
// connects to a socket.io server, emits one event and waits for a reply
// event.
package socketio_request

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/specialistvlad/cyclegrid/internal/ctxlog"
	"github.com/specialistvlad/cyclegrid/internal/ctyconv"
	"github.com/specialistvlad/cyclegrid/internal/registry"
	"github.com/specialistvlad/cyclegrid/internal/schema"
	"github.com/zclconf/go-cty/cty"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments of the node type. EmitData is handled
// separately since it may hold any value.
type Input struct {
	URL                string
	Namespace          string
	EmitEvent          string
	OnEvent            string
	Timeout            time.Duration
	InsecureSkipVerify bool
	EmitData           cty.Value
}

var inputs = []schema.Parameter{
	schema.Required("url", cty.String),
	schema.Required("emit_event", cty.String),
	schema.Required("on_event", cty.String),
	schema.Optional("namespace", cty.String, cty.StringVal("/")),
	schema.Optional("timeout", cty.String, cty.StringVal("15s")),
	schema.Optional("insecure_skip_verify", cty.Bool, cty.False),
	{Name: "emit_data", Type: cty.DynamicPseudoType},
}

type opResult struct {
	value cty.Value
	err   error
}

// ParseInput decodes the call parameters.
func ParseInput(params cty.Value) (*Input, error) {
	attrs, _ := ctyconv.Attributes(params)
	str := func(name string) string {
		v, ok := attrs[name]
		if !ok || v.IsNull() || v.Type() != cty.String {
			return ""
		}
		return v.AsString()
	}
	in := &Input{
		URL:       str("url"),
		Namespace: str("namespace"),
		EmitEvent: str("emit_event"),
		OnEvent:   str("on_event"),
		EmitData:  attrs["emit_data"],
	}
	if v, ok := attrs["insecure_skip_verify"]; ok && !v.IsNull() {
		in.InsecureSkipVerify = v.True()
	}
	timeout, err := time.ParseDuration(str("timeout"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse timeout: %w", err)
	}
	in.Timeout = timeout
	if in.EmitData == cty.NilVal {
		in.EmitData = cty.NullVal(cty.DynamicPseudoType)
	}
	return in, nil
}

// connect opens a client and waits until the server accepts it.
func connect(ctx context.Context, in *Input) (*socket.Socket, error) {
	logger := ctxlog.FromContext(ctx).With("url", in.URL)

	parsedURL, err := url.Parse(in.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("URL %q must be absolute", in.URL)
	}

	opts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		opts.SetPath(parsedURL.Path)
	}
	if in.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)
	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(in.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Debug("Connected", "sid", io.Id())
		select {
		case connectChan <- nil:
		default:
		}
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		select {
		case connectChan <- err:
		default:
		}
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return io, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("waiting for socket.io connection: %w", ctx.Err())
	}
}

// OnRunSocketIORequest is the handler of the node type. The timeout covers
// connecting and waiting for the reply.
func OnRunSocketIORequest(ctx context.Context, call *registry.Call) (cty.Value, error) {
	in, err := ParseInput(call.Params)
	if err != nil {
		return cty.NilVal, err
	}
	logger := ctxlog.FromContext(ctx).With("node", call.NodeID, "iteration", call.Iteration)

	data, err := ctyconv.ToGo(in.EmitData)
	if err != nil {
		return cty.NilVal, fmt.Errorf("failed to convert emit_data: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, in.Timeout)
	defer cancel()

	client, err := connect(ctxlog.WithLogger(opCtx, logger), in)
	if err != nil {
		return cty.NilVal, err
	}
	defer client.Disconnect()

	done := make(chan opResult, 1)
	client.Once(types.EventName(in.OnEvent), func(args ...any) {
		if len(args) == 0 {
			done <- opResult{value: cty.ObjectVal(map[string]cty.Value{"response_data": cty.NullVal(cty.DynamicPseudoType)})}
			return
		}
		v, err := ctyconv.FromGo(args[0])
		if err != nil {
			done <- opResult{err: fmt.Errorf("failed to convert response: %w", err)}
			return
		}
		done <- opResult{value: cty.ObjectVal(map[string]cty.Value{"response_data": v})}
	})

	if logger.Enabled(ctx, slog.LevelDebug) {
		raw, _ := json.Marshal(data)
		logger.Debug("Emitting event", "event", in.EmitEvent, "data", string(raw))
	}
	client.Emit(in.EmitEvent, data)

	select {
	case <-opCtx.Done():
		if ctx.Err() != nil {
			return cty.NilVal, ctx.Err()
		}
		return cty.NilVal, fmt.Errorf("timed out after %v waiting for event %q", in.Timeout, in.OnEvent)
	case res := <-done:
		if res.err != nil {
			return cty.NilVal, res.err
		}
		logger.Info("Received response event", "event", in.OnEvent)
		return res.value, nil
	}
}

// Register registers the handler with the registry.
func (m *Module) Register(r *registry.Registry) error {
	return r.Register("socketio_request", &registry.Definition{
		Schema:      &schema.Schema{Inputs: inputs},
		Handler:     OnRunSocketIORequest,
		Description: "Emits a socket.io event and waits for a reply event.",
	})
}
