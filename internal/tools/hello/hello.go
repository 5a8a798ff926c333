package hello

import (
	"context"
	"encoding/json"

	"mermaid-checker-mcp/internal/tools"
)

// Name is the catalog name of the tool.
const Name = "hello"

// Formatter builds the greeting text.
type Formatter interface {
	Format(name string) string
}

// Args represents the arguments for the hello tool.
type Args struct {
	Name string `json:"name" jsonschema:"description=Name of the person to greet"`
}

// Tool returns a greeting for the given name.
type Tool struct {
	*tools.DefaultTool
	formatter Formatter
}

// NewTool creates a new hello tool backed by formatter.
func NewTool(formatter Formatter) *Tool {
	return &Tool{
		DefaultTool: tools.NewDefaultTool(Name, "Takes a name and returns a Hello greeting", tools.ReflectInputSchema[Args]()),
		formatter:   formatter,
	}
}

// Call executes the hello tool. A missing or non-string name greets the world.
func (t *Tool) Call(ctx context.Context, args json.RawMessage) (tools.Result, error) {
	name := tools.ParseArguments(args).String("name")
	return tools.TextResult(t.formatter.Format(name)), nil
}
