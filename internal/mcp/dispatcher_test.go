package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"mermaid-checker-mcp/internal/greeting"
	"mermaid-checker-mcp/internal/jsonrpc"
	"mermaid-checker-mcp/internal/mermaid"
	"mermaid-checker-mcp/internal/tools"
	"mermaid-checker-mcp/internal/tools/diagram"
	"mermaid-checker-mcp/internal/tools/hello"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg, err := tools.NewRegistry(zerolog.Nop(),
		hello.NewTool(greeting.NewFormatter()),
		diagram.NewTool(mermaid.NewValidator()),
	)
	require.NoError(t, err)
	return reg
}

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	d := NewDispatcher(newTestRegistry(t), zerolog.Nop())
	d.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return d
}

func request(t *testing.T, raw string) jsonrpc.Request {
	t.Helper()
	req, _, rpcErr := jsonrpc.DecodeRequest(json.RawMessage(raw))
	require.Nil(t, rpcErr)
	return req
}

func marshal(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

type brokenInvoker struct {
	err   error
	panic any
}

func (b brokenInvoker) List() []tools.Descriptor {
	if b.panic != nil {
		panic(b.panic)
	}
	return nil
}

func (b brokenInvoker) Call(ctx context.Context, name string, args json.RawMessage) (tools.Result, error) {
	return tools.Result{}, b.err
}

func TestEveryMethodHasAHandler(t *testing.T) {
	d := newTestDispatcher(t)
	for _, m := range Methods() {
		assert.NotNil(t, d.handlers[m], "no handler for %s", m)
		parsed, ok := ParseMethod(m.String())
		assert.True(t, ok)
		assert.Equal(t, m, parsed)
	}
	assert.Len(t, Methods(), 4)
}

func TestDispatch_Initialize(t *testing.T) {
	resp := newTestDispatcher(t).Dispatch(context.Background(), request(t, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`))

	assert.JSONEq(t, `{
		"jsonrpc":"2.0","id":1,
		"result":{
			"protocolVersion":"2024-11-05",
			"serverInfo":{"name":"mermaid-checker-mcp","version":"0.0.1"},
			"capabilities":{"tools":{}}
		}
	}`, marshal(t, resp))
}

func TestDispatch_InitializeWithoutID(t *testing.T) {
	resp := newTestDispatcher(t).Dispatch(context.Background(), request(t, `{"method":"initialize"}`))

	var decoded struct {
		ID     any `json:"id"`
		Result struct {
			ServerInfo ServerInfo `json:"serverInfo"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(marshal(t, resp)), &decoded))
	assert.Nil(t, decoded.ID)
	assert.Equal(t, ServerName, decoded.Result.ServerInfo.Name)
}

func TestDispatch_Ping(t *testing.T) {
	resp := newTestDispatcher(t).Dispatch(context.Background(), request(t, `{"jsonrpc":"2.0","id":"p","method":"ping"}`))
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"p","result":{"ok":true,"now":1700000000000}}`, marshal(t, resp))
}

func TestDispatch_ToolsList(t *testing.T) {
	resp := newTestDispatcher(t).Dispatch(context.Background(), request(t, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
	require.Nil(t, resp.Error)

	list, ok := resp.Result.(ListToolsResult)
	require.True(t, ok)
	require.Len(t, list.Tools, 2)
	assert.Equal(t, hello.Name, list.Tools[0].Name)
	assert.Equal(t, diagram.Name, list.Tools[1].Name)

	encoded := marshal(t, resp)
	assert.Contains(t, encoded, `"inputSchema"`)
}

func TestDispatch_ToolsCall(t *testing.T) {
	resp := newTestDispatcher(t).Dispatch(context.Background(),
		request(t, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"hello","arguments":{"name":"Kaz"}}}`))

	assert.JSONEq(t, `{"jsonrpc":"2.0","id":3,"result":{"content":[{"type":"text","text":"Hello, Kaz!"}],"isError":false}}`, marshal(t, resp))
}

func TestDispatch_ToolsCallMissingArguments(t *testing.T) {
	resp := newTestDispatcher(t).Dispatch(context.Background(),
		request(t, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"hello"}}`))

	require.Nil(t, resp.Error)
	res, ok := resp.Result.(tools.Result)
	require.True(t, ok)
	assert.Equal(t, "Hello, World!", res.Text())
}

func TestDispatch_ToolFailureIsAResult(t *testing.T) {
	resp := newTestDispatcher(t).Dispatch(context.Background(),
		request(t, `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"mermaid_validate","arguments":{"code":"graph TD A-- B;"}}}`))

	require.Nil(t, resp.Error)
	res, ok := resp.Result.(tools.Result)
	require.True(t, ok)
	assert.False(t, res.IsError)

	var verdict diagram.Verdict
	require.NoError(t, json.Unmarshal([]byte(res.Text()), &verdict))
	assert.False(t, verdict.Valid)
	assert.NotEmpty(t, verdict.Reason)
}

func TestDispatch_UnknownTool(t *testing.T) {
	resp := newTestDispatcher(t).Dispatch(context.Background(),
		request(t, `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"nope","arguments":{}}}`))

	assert.JSONEq(t, `{"jsonrpc":"2.0","id":6,"error":{"code":-32601,"message":"Unknown tool: nope"}}`, marshal(t, resp))
}

func TestDispatch_UnknownMethod(t *testing.T) {
	resp := newTestDispatcher(t).Dispatch(context.Background(), request(t, `{"jsonrpc":"2.0","id":7,"method":"resources/list"}`))
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":7,"error":{"code":-32601,"message":"Method not found: resources/list"}}`, marshal(t, resp))
}

func TestDispatch_UncaughtFailures(t *testing.T) {
	failing := NewDispatcher(brokenInvoker{err: errors.New("disk on fire")}, zerolog.Nop())
	resp := failing.Dispatch(context.Background(), request(t, `{"id":8,"method":"tools/call","params":{"name":"x"}}`))
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":8,"error":{"code":-32000,"message":"disk on fire"}}`, marshal(t, resp))

	blank := NewDispatcher(brokenInvoker{err: errors.New("")}, zerolog.Nop())
	resp = blank.Dispatch(context.Background(), request(t, `{"id":9,"method":"tools/call","params":{"name":"x"}}`))
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":9,"error":{"code":-32000,"message":"Internal error"}}`, marshal(t, resp))

	panicking := NewDispatcher(brokenInvoker{panic: "registry corrupted"}, zerolog.Nop())
	resp = panicking.Dispatch(context.Background(), request(t, `{"id":10,"method":"tools/list"}`))
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":10,"error":{"code":-32000,"message":"registry corrupted"}}`, marshal(t, resp))
}

func TestDispatchBatch_PreservesOrder(t *testing.T) {
	d := newTestDispatcher(t)
	reqs := []jsonrpc.Request{
		request(t, `{"id":1,"method":"ping"}`),
		request(t, `{"id":2,"method":"nope"}`),
		request(t, `{"id":3,"method":"initialize"}`),
	}

	resps := d.DispatchBatch(context.Background(), reqs)
	require.Len(t, resps, 3)
	for i, resp := range resps {
		assert.Equal(t, string(reqs[i].ID), string(resp.ID))
	}
	assert.Nil(t, resps[0].Error)
	require.NotNil(t, resps[1].Error)
	assert.Equal(t, jsonrpc.MethodNotFound, resps[1].Error.Code)
	assert.Nil(t, resps[2].Error)
}

func TestParseCallToolParams(t *testing.T) {
	cases := map[string]struct {
		raw  string
		name string
		args string
	}{
		"full":         {`{"name":"hello","arguments":{"name":"x"}}`, "hello", `{"name":"x"}`},
		"no arguments": {`{"name":"hello"}`, "hello", `{}`},
		"null args":    {`{"name":"hello","arguments":null}`, "hello", `{}`},
		"wrong name":   {`{"name":12}`, "", `{}`},
		"no params":    {``, "", `{}`},
		"array params": {`[1,2]`, "", `{}`},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p := ParseCallToolParams(json.RawMessage(tc.raw))
			assert.Equal(t, tc.name, p.Name)
			assert.JSONEq(t, tc.args, string(p.Arguments))
		})
	}
}
