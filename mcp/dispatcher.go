// Package mcp runs the tool-dispatch loop: envelopes arrive over a
// transport, get resolved against the registry, validated, executed with a
// bounded deadline, and answered with exactly one result each.
package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/effective-security/xlog"

	"github.com/stemformatics/mcp/faults"
	"github.com/stemformatics/mcp/mcp/transport"
	"github.com/stemformatics/mcp/metrics"
	"github.com/stemformatics/mcp/tools"
)

var logger = xlog.NewPackageLogger("github.com/stemformatics/mcp", "mcp")

// DefaultRequestTimeout bounds one tool call unless configured otherwise.
const DefaultRequestTimeout = 60 * time.Second

// Dispatcher pumps envelopes from a transport through the tool registry.
type Dispatcher struct {
	registry  *tools.Registry
	transport transport.Transport
	timeout   time.Duration
}

// DispatcherOption configures the dispatcher.
type DispatcherOption func(*Dispatcher)

// WithRequestTimeout bounds each tool call.
func WithRequestTimeout(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.timeout = d
		}
	}
}

// NewDispatcher creates a dispatcher over the given registry and transport.
func NewDispatcher(reg *tools.Registry, tr transport.Transport, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry:  reg,
		transport: tr,
		timeout:   DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Serve installs the handlers and runs the transport until it stops.
func (d *Dispatcher) Serve(ctx context.Context) error {
	d.transport.SetMessageHandler(func(ctx context.Context, env *transport.Envelope) {
		// One goroutine per envelope; slow tools never block the read loop
		// or each other.
		go d.handle(ctx, env)
	})
	d.transport.SetErrorHandler(func(err error) {
		logger.KV(xlog.WARNING, "reason", "transport_error", "err", err.Error())
	})
	d.transport.SetCloseHandler(func() {
		logger.KV(xlog.INFO, "reason", "transport_closed")
	})
	return d.transport.Start(ctx)
}

func (d *Dispatcher) handle(ctx context.Context, env *transport.Envelope) {
	started := time.Now()
	res := d.execute(ctx, env)

	outcome := "ok"
	if !res.OK {
		outcome = res.Error.Kind
	}
	metrics.RecordToolCall(env.Tool, outcome, time.Since(started))
	logger.ContextKV(ctx, xlog.DEBUG,
		"tool", env.Tool,
		"id", env.ID,
		"outcome", outcome,
		"elapsed", time.Since(started).String())

	if err := d.transport.Send(ctx, res); err != nil {
		logger.KV(xlog.ERROR, "reason", "send_failed", "id", env.ID, "err", err.Error())
		if !res.OK {
			return
		}
		// A success payload the transport could not serialize still owes
		// the client its one result.
		fallback := transport.Failure(env.ID,
			faults.Wrap(faults.Internal, err, "result for tool %s could not be encoded", env.Tool))
		if err := d.transport.Send(ctx, fallback); err != nil {
			logger.KV(xlog.ERROR, "reason", "fallback_send_failed", "id", env.ID, "err", err.Error())
		}
	}
}

// execute runs one envelope to completion and always produces a result,
// even when the handler panics or overruns its deadline.
func (d *Dispatcher) execute(ctx context.Context, env *transport.Envelope) *transport.Result {
	if env.ID == "" {
		return transport.Failure("", faults.New(faults.Protocol, "envelope id is required"))
	}
	if env.Tool == "" {
		return transport.Failure(env.ID, faults.New(faults.Protocol, "envelope tool is required"))
	}

	tool, err := d.registry.Lookup(env.Tool)
	if err != nil {
		return transport.Failure(env.ID, err)
	}

	args, err := decodeArguments(env.Arguments)
	if err != nil {
		return transport.Failure(env.ID, err)
	}
	if err := tools.ValidateArguments(args, tool.Schema().ParameterList()); err != nil {
		return transport.Failure(env.ID, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	// Buffered so an abandoned handler can finish and exit; its upstream
	// fetches keep running and still populate the cache.
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.KV(xlog.ERROR, "reason", "tool_panic", "tool", env.Tool, "panic", r)
				done <- outcome{err: faults.New(faults.Internal, "tool %s panicked: %v", env.Tool, r)}
			}
		}()
		value, err := tool.Call(reqCtx, env.Arguments)
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return transport.Failure(env.ID, out.err)
		}
		return transport.Success(env.ID, out.value)
	case <-reqCtx.Done():
		return transport.Failure(env.ID,
			faults.Wrap(faults.Timeout, reqCtx.Err(), "tool %s did not complete in %s", env.Tool, d.timeout))
	}
}

func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, faults.Wrap(faults.Protocol, err, "arguments must be a JSON object")
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
