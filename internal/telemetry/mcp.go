package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"mermaid-checker-mcp/internal/jsonrpc"
	"mermaid-checker-mcp/internal/mcp"
	"mermaid-checker-mcp/internal/tools"
)

// ToolRegistryWrapper wraps a tool invoker to add telemetry
type ToolRegistryWrapper struct {
	mcp.Invoker
	metrics *Metrics
}

// NewToolRegistryWrapper creates a new telemetry-aware tool invoker
func NewToolRegistryWrapper(invoker mcp.Invoker, metrics *Metrics) *ToolRegistryWrapper {
	return &ToolRegistryWrapper{
		Invoker: invoker,
		metrics: metrics,
	}
}

// Call wraps the original Call to add telemetry
func (w *ToolRegistryWrapper) Call(ctx context.Context, name string, args json.RawMessage) (tools.Result, error) {
	start := time.Now()

	result, err := w.Invoker.Call(ctx, name, args)

	status := "success"
	switch {
	case errors.Is(err, tools.ErrToolNotFound):
		// Unbounded caller-supplied names must not become label values.
		status = "not_found"
		name = "unknown"
	case err != nil, result.IsError:
		status = "error"
	}

	w.metrics.RecordToolExecution(name, status, time.Since(start))

	return result, err
}

// DispatcherWrapper counts dispatched requests by method and outcome
type DispatcherWrapper struct {
	mcp.RPC
	metrics *Metrics
}

// NewDispatcherWrapper creates a new telemetry-aware dispatcher
func NewDispatcherWrapper(rpc mcp.RPC, metrics *Metrics) *DispatcherWrapper {
	return &DispatcherWrapper{
		RPC:     rpc,
		metrics: metrics,
	}
}

// Dispatch wraps the original Dispatch to add telemetry
func (w *DispatcherWrapper) Dispatch(ctx context.Context, req jsonrpc.Request) *jsonrpc.Response {
	resp := w.RPC.Dispatch(ctx, req)

	method := "other"
	if m, ok := mcp.ParseMethod(req.Method); ok {
		method = m.String()
	}
	outcome := "result"
	if resp.Error != nil {
		outcome = "error"
	}
	w.metrics.RecordRPCRequest(method, outcome)

	return resp
}
