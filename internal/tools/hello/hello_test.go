package hello

import (
	"context"
	"encoding/json"
	"testing"

	"mermaid-checker-mcp/internal/greeting"
)

func TestHelloTool(t *testing.T) {
	tool := NewTool(greeting.NewFormatter())

	cases := map[string]struct {
		args string
		want string
	}{
		"name":         {`{"name":"Kaz"}`, "Hello, Kaz!"},
		"padded name":  {`{"name":"  Kaz  "}`, "Hello, Kaz!"},
		"missing":      {`{}`, "Hello, World!"},
		"blank":        {`{"name":"   "}`, "Hello, World!"},
		"wrong type":   {`{"name":42}`, "Hello, World!"},
		"no arguments": {``, "Hello, World!"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := tool.Call(context.Background(), json.RawMessage(tc.args))
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if res.IsError {
				t.Error("Expected isError false")
			}
			if got := res.Text(); got != tc.want {
				t.Errorf("Expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestHelloTool_Descriptor(t *testing.T) {
	desc := NewTool(greeting.NewFormatter()).Descriptor()
	if desc.Name != Name {
		t.Errorf("Expected name %s, got %s", Name, desc.Name)
	}
	if desc.Description == "" {
		t.Error("Expected a description")
	}

	var schema struct {
		Type       string                     `json:"type"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(desc.InputSchema, &schema); err != nil {
		t.Fatalf("Failed to decode schema: %v", err)
	}
	if schema.Type != "object" {
		t.Errorf("Expected object schema, got %s", schema.Type)
	}
	if _, ok := schema.Properties["name"]; !ok {
		t.Error("Expected a name property")
	}
}
