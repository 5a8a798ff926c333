package diagram

import (
	"context"
	"encoding/json"

	"mermaid-checker-mcp/internal/tools"
)

// Name is the catalog name of the tool.
const Name = "mermaid_validate"

// Validator checks diagram source. A nil error means the source is valid; the
// error message is reported to the caller as the reason otherwise.
type Validator interface {
	Validate(ctx context.Context, text string) error
}

// Args represents the arguments for the validation tool.
type Args struct {
	Code string `json:"code" jsonschema:"description=Full Mermaid diagram source"`
}

// Verdict is the JSON payload returned as the tool's text content.
type Verdict struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Tool validates Mermaid syntax.
type Tool struct {
	*tools.DefaultTool
	validator Validator
}

// NewTool creates a new validation tool backed by validator.
func NewTool(validator Validator) *Tool {
	return &Tool{
		DefaultTool: tools.NewDefaultTool(Name, "Takes the full text of a Mermaid diagram and checks its syntax", tools.ReflectInputSchema[Args]()),
		validator:   validator,
	}
}

// Call validates the code argument. Syntax errors are part of the normal
// result payload.
func (t *Tool) Call(ctx context.Context, args json.RawMessage) (tools.Result, error) {
	code := tools.ParseArguments(args).String("code")

	verdict := Verdict{Valid: true}
	if err := t.validator.Validate(ctx, code); err != nil {
		verdict = Verdict{Valid: false, Reason: err.Error()}
		if verdict.Reason == "" {
			verdict.Reason = "invalid diagram"
		}
	}

	return tools.JSONResult(verdict)
}
