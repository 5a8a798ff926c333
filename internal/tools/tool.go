package tools

import (
	"context"
	"encoding/json"
)

// Tool is the interface that all tools must implement.
type Tool interface {
	// Name returns the name of the tool.
	Name() string

	// Descriptor returns the catalog entry advertised by tools/list.
	Descriptor() Descriptor

	// Call executes the tool with the given JSON-encoded arguments. Expected
	// bad-input outcomes are reported inside the Result, not as an error.
	Call(ctx context.Context, args json.RawMessage) (Result, error)
}

// Descriptor describes a tool in the shape MCP clients expect.
type Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}
