package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	jsv "github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrToolNotFound is the cause carried by the error Call returns for an unknown name.
var ErrToolNotFound = errors.New("tool not found")

// Error codes for registry operations
const (
	CodeToolNotFound  = "tool_not_found"
	CodeInvalidTool   = "invalid_tool"
	CodeDuplicateTool = "duplicate_tool"
)

// Error represents a tool registry error.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil && !errors.Is(e.Cause, ErrToolNotFound) {
		return fmt.Sprintf("%s (caused by: %v)", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

type entry struct {
	tool       Tool
	descriptor Descriptor
	schema     *jsv.Schema
}

// Registry is the fixed catalog of tools. It is built once and never mutated,
// so it is safe for concurrent use without locking.
type Registry struct {
	entries []entry
	byName  map[string]int
	logger  zerolog.Logger
}

// NewRegistry builds a registry from tools in the given order. Every tool must
// have a unique, non-empty name and an input schema that compiles.
func NewRegistry(logger zerolog.Logger, tools ...Tool) (*Registry, error) {
	r := &Registry{
		entries: make([]entry, 0, len(tools)),
		byName:  make(map[string]int, len(tools)),
		logger:  logger.With().Str("component", "tool_registry").Logger(),
	}

	for _, tool := range tools {
		desc := tool.Descriptor()
		if desc.Name == "" || desc.Name != tool.Name() {
			return nil, &Error{Code: CodeInvalidTool, Message: fmt.Sprintf("tool %q has a mismatched or empty descriptor name", tool.Name())}
		}
		if _, exists := r.byName[desc.Name]; exists {
			return nil, &Error{Code: CodeDuplicateTool, Message: fmt.Sprintf("tool %q registered twice", desc.Name)}
		}

		schema, err := compileSchema(desc.Name, desc.InputSchema)
		if err != nil {
			return nil, &Error{Code: CodeInvalidTool, Message: fmt.Sprintf("tool %q has an invalid input schema", desc.Name), Cause: err}
		}

		r.byName[desc.Name] = len(r.entries)
		r.entries = append(r.entries, entry{tool: tool, descriptor: desc, schema: schema})

		r.logger.Debug().
			Str("tool", desc.Name).
			Msg("Registered tool")
	}

	return r, nil
}

// List returns the catalog in registration order.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.descriptor
	}
	return out
}

// Has reports whether name resolves to a registered tool.
func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Invoke executes the named tool and always returns a well-formed result.
// An unknown name yields an "Unknown tool" result flagged as an error.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) Result {
	res, _ := r.Call(ctx, name, args)
	return res
}

// Call executes the named tool. The returned result is always well formed; the
// error is non-nil only when name cannot be resolved and then wraps
// ErrToolNotFound. Failures and panics inside a known tool are converted into
// an error-flagged result.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (res Result, err error) {
	idx, ok := r.byName[name]
	if !ok {
		r.logger.Debug().
			Str("tool", name).
			Msg("Tool not found")
		return ErrorResult("Unknown tool: " + name), &Error{
			Code:    CodeToolNotFound,
			Message: "Unknown tool: " + name,
			Cause:   ErrToolNotFound,
		}
	}
	e := r.entries[idx]

	if trimmed := bytes.TrimSpace(args); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		args = json.RawMessage("{}")
	}

	if checkErr := checkArguments(e.schema, args); checkErr != nil {
		r.logger.Debug().
			Err(checkErr).
			Str("tool", name).
			Msg("Arguments do not match input schema, continuing with coerced values")
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().
				Str("tool", name).
				Interface("panic", p).
				Msg("Tool panicked")
			res = ErrorResult(fmt.Sprintf("tool %s failed: %v", name, p))
			err = nil
		}
	}()

	out, callErr := e.tool.Call(ctx, args)
	if callErr != nil {
		r.logger.Warn().
			Err(callErr).
			Str("tool", name).
			Msg("Tool returned an error")
		return ErrorResult(callErr.Error()), nil
	}
	if out.Content == nil {
		out.Content = []Content{}
	}
	return out, nil
}
