package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mermaid-checker-mcp/internal/jsonrpc"
	"mermaid-checker-mcp/internal/tools"
)

const (
	ServerName      = "mermaid-checker-mcp"
	ServerVersion   = "0.0.1"
	ProtocolVersion = "2024-11-05"
)

// Method is one of the RPC methods the dispatcher routes.
type Method uint8

const (
	MethodInitialize Method = iota
	MethodPing
	MethodToolsList
	MethodToolsCall

	methodCount
)

var methodNames = [methodCount]string{
	MethodInitialize: "initialize",
	MethodPing:       "ping",
	MethodToolsList:  "tools/list",
	MethodToolsCall:  "tools/call",
}

func (m Method) String() string {
	if m >= methodCount {
		return fmt.Sprintf("Method(%d)", m)
	}
	return methodNames[m]
}

// ParseMethod resolves a wire method name.
func ParseMethod(name string) (Method, bool) {
	for m, n := range methodNames {
		if n == name {
			return Method(m), true
		}
	}
	return 0, false
}

// Methods returns every routed method in declaration order.
func Methods() []Method {
	out := make([]Method, methodCount)
	for i := range out {
		out[i] = Method(i)
	}
	return out
}

// Invoker lists and runs tools. *tools.Registry satisfies it; telemetry wraps it.
type Invoker interface {
	List() []tools.Descriptor
	Call(ctx context.Context, name string, args json.RawMessage) (tools.Result, error)
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type Capabilities struct {
	Tools struct{} `json:"tools"`
}

type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
	Capabilities    Capabilities `json:"capabilities"`
}

// NewInitializeResult returns the static handshake result.
func NewInitializeResult() InitializeResult {
	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo:      ServerInfo{Name: ServerName, Version: ServerVersion},
	}
}

type PingResult struct {
	OK  bool  `json:"ok"`
	Now int64 `json:"now"`
}

type ListToolsResult struct {
	Tools []tools.Descriptor `json:"tools"`
}

// CallToolParams are the params of tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ParseCallToolParams leniently decodes tools/call params. A missing or
// wrong-typed name reads as "" and missing arguments as {}.
func ParseCallToolParams(raw json.RawMessage) CallToolParams {
	var fields map[string]json.RawMessage
	_ = json.Unmarshal(raw, &fields)

	var p CallToolParams
	_ = json.Unmarshal(fields["name"], &p.Name)
	p.Arguments = fields["arguments"]
	if len(p.Arguments) == 0 || string(p.Arguments) == "null" {
		p.Arguments = json.RawMessage("{}")
	}
	return p
}

type handlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Dispatcher maps one request to exactly one response.
type Dispatcher struct {
	invoker  Invoker
	handlers [methodCount]handlerFunc
	now      func() time.Time
	logger   zerolog.Logger
}

// NewDispatcher creates a dispatcher that runs tools through invoker.
func NewDispatcher(invoker Invoker, logger zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		invoker: invoker,
		now:     time.Now,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
	}
	d.handlers = [methodCount]handlerFunc{
		MethodInitialize: d.handleInitialize,
		MethodPing:       d.handlePing,
		MethodToolsList:  d.handleToolsList,
		MethodToolsCall:  d.handleToolsCall,
	}
	return d
}

// Dispatch routes req and never fails: unknown methods and tools become -32601,
// any other failure or panic becomes -32000.
func (d *Dispatcher) Dispatch(ctx context.Context, req jsonrpc.Request) (resp *jsonrpc.Response) {
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error().
				Str("method", req.Method).
				Interface("panic", p).
				Msg("Handler panicked")
			resp = jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.ServerError, panicMessage(p), nil))
		}
	}()

	method, ok := ParseMethod(req.Method)
	if !ok {
		d.logger.Debug().
			Str("method", req.Method).
			Msg("Method not found")
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.MethodNotFound, "Method not found: "+req.Method, nil))
	}

	result, err := d.handlers[method](ctx, req.Params)
	if err != nil {
		var rpcErr *jsonrpc.Error
		if errors.As(err, &rpcErr) {
			return jsonrpc.NewErrorResponse(req.ID, rpcErr)
		}
		d.logger.Warn().
			Err(err).
			Str("method", req.Method).
			Msg("Handler failed")
		msg := err.Error()
		if msg == "" {
			msg = "Internal error"
		}
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.ServerError, msg, nil))
	}
	return jsonrpc.NewResult(req.ID, result)
}

// DispatchBatch dispatches each request in order.
func (d *Dispatcher) DispatchBatch(ctx context.Context, reqs []jsonrpc.Request) []*jsonrpc.Response {
	out := make([]*jsonrpc.Response, len(reqs))
	for i, req := range reqs {
		out[i] = d.Dispatch(ctx, req)
	}
	return out
}

func (d *Dispatcher) handleInitialize(ctx context.Context, params json.RawMessage) (any, error) {
	return NewInitializeResult(), nil
}

func (d *Dispatcher) handlePing(ctx context.Context, params json.RawMessage) (any, error) {
	return PingResult{OK: true, Now: d.now().UnixMilli()}, nil
}

func (d *Dispatcher) handleToolsList(ctx context.Context, params json.RawMessage) (any, error) {
	return ListToolsResult{Tools: d.invoker.List()}, nil
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, params json.RawMessage) (any, error) {
	p := ParseCallToolParams(params)

	res, err := d.invoker.Call(ctx, p.Name, p.Arguments)
	if err != nil {
		if errors.Is(err, tools.ErrToolNotFound) {
			return nil, jsonrpc.NewError(jsonrpc.MethodNotFound, "Unknown tool: "+p.Name, nil)
		}
		return nil, err
	}
	return res, nil
}

func panicMessage(p any) string {
	switch v := p.(type) {
	case error:
		if msg := v.Error(); msg != "" {
			return msg
		}
	case string:
		if v != "" {
			return v
		}
	}
	return "Internal error"
}
