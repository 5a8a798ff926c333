package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// DefaultTool is a base implementation of the Tool interface that can be embedded in other tools.
type DefaultTool struct {
	name        string
	description string
	inputSchema json.RawMessage
}

// NewDefaultTool creates a new DefaultTool with the given name, description and input schema.
func NewDefaultTool(name, description string, inputSchema json.RawMessage) *DefaultTool {
	return &DefaultTool{
		name:        name,
		description: description,
		inputSchema: inputSchema,
	}
}

// Name returns the name of the tool.
func (t *DefaultTool) Name() string {
	return t.name
}

// Call is the default implementation of the Tool interface.
// Tools should override this method with their specific implementation.
func (t *DefaultTool) Call(ctx context.Context, args json.RawMessage) (Result, error) {
	return Result{}, fmt.Errorf("method not implemented for tool: %s", t.name)
}

// Descriptor returns the tool definition in MCP format.
func (t *DefaultTool) Descriptor() Descriptor {
	schema := t.inputSchema
	if len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return Descriptor{
		Name:        t.name,
		Description: t.description,
		InputSchema: schema,
	}
}
