package stdio

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"mermaid-checker-mcp/internal/greeting"
	"mermaid-checker-mcp/internal/mcp"
	"mermaid-checker-mcp/internal/mermaid"
	"mermaid-checker-mcp/internal/tools"
	"mermaid-checker-mcp/internal/tools/diagram"
	"mermaid-checker-mcp/internal/tools/hello"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type noopHandler struct{}

func (noopHandler) Handle(context.Context, *jsonrpc2.Conn, *jsonrpc2.Request) {}

// startServer serves one end of an in-memory pipe and returns a client
// connected to the other end.
func startServer(t *testing.T, framing Framing) *jsonrpc2.Conn {
	t.Helper()

	reg, err := tools.NewRegistry(zerolog.Nop(),
		hello.NewTool(greeting.NewFormatter()),
		diagram.NewTool(mermaid.NewValidator()),
	)
	require.NoError(t, err)

	serverSide, clientSide := net.Pipe()
	srv := NewServer(reg, zerolog.Nop(), WithFraming(framing))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, serverSide) }()

	var stream jsonrpc2.ObjectStream
	if framing == FramingContentLength {
		stream = jsonrpc2.NewBufferedStream(clientSide, jsonrpc2.VSCodeObjectCodec{})
	} else {
		stream = jsonrpc2.NewPlainObjectStream(clientSide)
	}
	client := jsonrpc2.NewConn(context.Background(), stream, noopHandler{})

	t.Cleanup(func() {
		client.Close()
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("Server did not stop")
		}
	})
	return client
}

func call(t *testing.T, client *jsonrpc2.Conn, method string, params any, result any) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return client.Call(ctx, method, params, result)
}

func TestServe_Initialize(t *testing.T) {
	client := startServer(t, FramingNewline)

	var res mcp.InitializeResult
	require.NoError(t, call(t, client, "initialize", map[string]any{}, &res))
	assert.Equal(t, mcp.ServerName, res.ServerInfo.Name)
	assert.Equal(t, mcp.ProtocolVersion, res.ProtocolVersion)
}

func TestServe_ListAndCall(t *testing.T) {
	client := startServer(t, FramingNewline)

	var list mcp.ListToolsResult
	require.NoError(t, call(t, client, "tools/list", nil, &list))
	require.Len(t, list.Tools, 2)
	assert.Equal(t, hello.Name, list.Tools[0].Name)
	assert.Equal(t, diagram.Name, list.Tools[1].Name)

	var res tools.Result
	require.NoError(t, call(t, client, "tools/call",
		map[string]any{"name": "hello", "arguments": map[string]any{"name": "Kaz"}}, &res))
	assert.False(t, res.IsError)
	assert.Equal(t, "Hello, Kaz!", res.Text())

	res = tools.Result{}
	require.NoError(t, call(t, client, "tools/call",
		map[string]any{"name": "mermaid_validate", "arguments": map[string]any{"code": "graph TD; A-->B;"}}, &res))
	assert.Equal(t, `{"valid":true}`, res.Text())
}

func TestServe_UnknownToolIsAResult(t *testing.T) {
	client := startServer(t, FramingNewline)

	var res tools.Result
	require.NoError(t, call(t, client, "tools/call", map[string]any{"name": "nope"}, &res))
	assert.True(t, res.IsError)
	assert.Equal(t, "Unknown tool: nope", res.Text())
}

func TestServe_MethodNotFound(t *testing.T) {
	client := startServer(t, FramingNewline)

	var res json.RawMessage
	err := call(t, client, "resources/list", nil, &res)
	var rpcErr *jsonrpc2.Error
	require.True(t, errors.As(err, &rpcErr), "got %v", err)
	assert.Equal(t, int64(jsonrpc2.CodeMethodNotFound), rpcErr.Code)
}

func TestServe_NotificationsAreIgnored(t *testing.T) {
	client := startServer(t, FramingNewline)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Notify(ctx, "notifications/initialized", nil))

	var res json.RawMessage
	require.NoError(t, call(t, client, "ping", nil, &res))
	assert.JSONEq(t, `{}`, string(res))
}

func TestServe_ContentLengthFraming(t *testing.T) {
	client := startServer(t, FramingContentLength)

	var res tools.Result
	require.NoError(t, call(t, client, "tools/call", map[string]any{"name": "hello"}, &res))
	assert.Equal(t, "Hello, World!", res.Text())
}

func TestParseFraming(t *testing.T) {
	f, err := ParseFraming("")
	require.NoError(t, err)
	assert.Equal(t, FramingNewline, f)

	f, err = ParseFraming(" Content-Length ")
	require.NoError(t, err)
	assert.Equal(t, FramingContentLength, f)

	_, err = ParseFraming("xml")
	assert.Error(t, err)
}
