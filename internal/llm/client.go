// Package llm is the model-call boundary: a chat client, schema-constrained output,
// typed result extraction, and a retrying circuit-breaker executor.
package llm

import "context"

// Client generates text from a prompt.
type Client interface {
	// Complete returns free-form text as a RawResult.
	Complete(ctx context.Context, prompt string) (Result, error)
	// CompleteStructured constrains output to schema and returns an extractable result.
	CompleteStructured(ctx context.Context, prompt string, schema Schema) (Result, error)
}

// FieldType is a JSON schema primitive type.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeInteger FieldType = "integer"
	TypeBoolean FieldType = "boolean"
)

// Field is one required property of a structured output.
type Field struct {
	Name        string
	Types       []FieldType
	Description string
}

// Schema describes a structured output object.
// When New is set, decoded output is a StructResult of that type; otherwise a MapResult.
type Schema struct {
	Name   string
	Fields []Field
	New    func() any
}

// JSONSchema renders the schema as a JSON schema object.
func (s Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Fields))
	required := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		prop := map[string]any{}
		switch len(f.Types) {
		case 0:
			prop["type"] = TypeString
		case 1:
			prop["type"] = f.Types[0]
		default:
			prop["type"] = f.Types
		}
		if f.Description != "" {
			prop["description"] = f.Description
		}
		props[f.Name] = prop
		required = append(required, f.Name)
	}
	return map[string]any{
		"type":       "object",
		"title":      s.Name,
		"properties": props,
		"required":   required,
	}
}
