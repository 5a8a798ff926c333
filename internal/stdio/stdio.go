// Package stdio serves the RPC surface over a local byte pipe, by default the
// process's stdin and stdout.
package stdio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/jsonrpc2"

	"mermaid-checker-mcp/internal/mcp"
)

// Framing selects how messages are delimited on the pipe.
type Framing string

const (
	// FramingNewline sends one JSON object per line.
	FramingNewline Framing = "newline"
	// FramingContentLength prefixes each object with a Content-Length header.
	FramingContentLength Framing = "content-length"
)

// ParseFraming resolves a configured framing name.
func ParseFraming(name string) (Framing, error) {
	switch f := Framing(strings.ToLower(strings.TrimSpace(name))); f {
	case FramingNewline, FramingContentLength:
		return f, nil
	case "":
		return FramingNewline, nil
	default:
		return "", fmt.Errorf("unknown stdio framing %q", name)
	}
}

type stdioReadWriteCloser struct {
	io.Reader
	io.Writer
}

// Close leaves the process streams open.
func (stdioReadWriteCloser) Close() error {
	return nil
}

// Stdio returns the process's stdin and stdout as one stream.
func Stdio() io.ReadWriteCloser {
	return stdioReadWriteCloser{Reader: os.Stdin, Writer: os.Stdout}
}

// Server answers requests arriving on a pipe one at a time.
type Server struct {
	invoker mcp.Invoker
	framing Framing
	logger  zerolog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithFraming sets the message framing.
func WithFraming(f Framing) Option {
	return func(s *Server) {
		s.framing = f
	}
}

// NewServer creates a pipe server that runs tools through invoker.
func NewServer(invoker mcp.Invoker, logger zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		invoker: invoker,
		framing: FramingNewline,
		logger:  logger.With().Str("component", "stdio").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) stream(rwc io.ReadWriteCloser) jsonrpc2.ObjectStream {
	if s.framing == FramingContentLength {
		return jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	}
	return jsonrpc2.NewPlainObjectStream(rwc)
}

// Serve handles requests from rwc until the peer disconnects or ctx is
// canceled.
func (s *Server) Serve(ctx context.Context, rwc io.ReadWriteCloser) error {
	handler := jsonrpc2.HandlerWithError(s.handle).SuppressErrClosed()
	conn := jsonrpc2.NewConn(ctx, s.stream(rwc), handler)

	s.logger.Info().
		Str("framing", string(s.framing)).
		Msg("Serving on pipe")

	select {
	case <-ctx.Done():
		if err := conn.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to close pipe connection")
		}
		<-conn.DisconnectNotify()
	case <-conn.DisconnectNotify():
	}

	s.logger.Info().Msg("Pipe closed")
	return nil
}

func (s *Server) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	s.logger.Debug().
		Str("method", req.Method).
		Bool("notification", req.Notif).
		Msg("Received request")

	if strings.HasPrefix(req.Method, "notifications/") {
		return nil, nil
	}

	method, ok := mcp.ParseMethod(req.Method)
	if !ok {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "Method not found: " + req.Method}
	}

	switch method {
	case mcp.MethodInitialize:
		return mcp.NewInitializeResult(), nil
	case mcp.MethodPing:
		return struct{}{}, nil
	case mcp.MethodToolsList:
		return mcp.ListToolsResult{Tools: s.invoker.List()}, nil
	case mcp.MethodToolsCall:
		var params json.RawMessage
		if req.Params != nil {
			params = *req.Params
		}
		p := mcp.ParseCallToolParams(params)
		// An unknown tool is reported in the result, not as a protocol error.
		res, _ := s.invoker.Call(ctx, p.Name, p.Arguments)
		return res, nil
	}
	return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "Method not found: " + req.Method}
}
