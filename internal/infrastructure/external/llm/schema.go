package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

var quizSchema = map[string]any{
	"type":     "object",
	"required": []any{"question", "options", "correct"},
	"properties": map[string]any{
		"question": map[string]any{"type": "string", "minLength": 1},
		"options": map[string]any{
			"type":     "array",
			"minItems": 4,
			"maxItems": 4,
			"items":    map[string]any{"type": "string", "minLength": 1},
		},
		"correct": map[string]any{"type": "string", "minLength": 1},
	},
}

var topicsSchema = map[string]any{
	"type":     "object",
	"required": []any{"topics"},
	"properties": map[string]any{
		"topics": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
}

var compiled sync.Map // name -> *jsonschema.Schema

func compile(name string, def map[string]any) (*jsonschema.Schema, error) {
	if s, ok := compiled.Load(name); ok {
		return s.(*jsonschema.Schema), nil
	}
	// The compiler wants the same value shape json decoding produces.
	b, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", name, err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	c := jsonschema.NewCompiler()
	url := fmt.Sprintf("schema://%s.json", name)
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	compiled.Store(name, s)
	return s, nil
}

// decode validates raw against the named schema and unmarshals it into out.
// Models sometimes wrap JSON in a code fence, which is stripped first.
func decode(name string, def map[string]any, raw string, out any) error {
	raw = stripFence(raw)

	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return &InvalidResponseError{Content: raw, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	schema, err := compile(name, def)
	if err != nil {
		return &InvalidResponseError{Content: raw, Err: err}
	}
	if err := schema.Validate(parsed); err != nil {
		return &InvalidResponseError{Content: raw, Err: fmt.Errorf("schema validation failed: %w", err)}
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return &InvalidResponseError{Content: raw, Err: err}
	}
	return nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
