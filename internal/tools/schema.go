package tools

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	jsv "github.com/santhosh-tekuri/jsonschema/v6"
)

// ReflectInputSchema reflects the argument struct A into an object schema
// suitable for a tool descriptor. Properties keep their declaration order.
func ReflectInputSchema[A any]() json.RawMessage {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}
	s := r.Reflect(new(A))
	if s == nil || s.Type != "object" {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	s.Version = ""
	s.ID = ""

	data, err := json.Marshal(s)
	if err != nil {
		// Reflected schemas are plain data; failing to encode one is a programming error.
		panic(fmt.Sprintf("tools: encode reflected schema: %v", err))
	}
	return data
}

// compileSchema checks that raw is a usable JSON Schema and returns the
// compiled form used for argument checks.
func compileSchema(name string, raw json.RawMessage) (*jsv.Schema, error) {
	doc, err := jsv.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode input schema: %w", err)
	}

	loc := name + ".schema.json"
	c := jsv.NewCompiler()
	if err := c.AddResource(loc, doc); err != nil {
		return nil, fmt.Errorf("add input schema: %w", err)
	}
	sch, err := c.Compile(loc)
	if err != nil {
		return nil, fmt.Errorf("compile input schema: %w", err)
	}
	return sch, nil
}

// checkArguments validates args against a compiled schema. It is advisory:
// tools coerce their own arguments and never reject on a mismatch.
func checkArguments(sch *jsv.Schema, args json.RawMessage) error {
	inst, err := jsv.UnmarshalJSON(bytes.NewReader(args))
	if err != nil {
		return err
	}
	return sch.Validate(inst)
}
