package tools

import (
	"context"
	"fmt"
)

// Kind classifies tool invocation failures.
type Kind int

const (
	// KindUnknownTool: no tool is registered under the requested name.
	KindUnknownTool Kind = iota
	// KindInvalidParams: arguments failed schema validation; the handler
	// never ran.
	KindInvalidParams
	// KindExecutionFailed: the handler ran and reported a fault (or
	// panicked).
	KindExecutionFailed
)

// String returns the taxonomy name of the kind.
func (k Kind) String() string {
	switch k {
	case KindUnknownTool:
		return "unknown_tool"
	case KindInvalidParams:
		return "invalid_params"
	case KindExecutionFailed:
		return "execution_failed"
	default:
		return "unknown"
	}
}

// ToolError is the normalized failure a tool invocation can produce.
type ToolError struct {
	Kind    Kind
	Message string
	Detail  any
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Errf builds a ToolError with a formatted message.
func Errf(kind Kind, format string, args ...any) *ToolError {
	return &ToolError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Field describes one named parameter or result member.
type Field struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "string", "number", "integer", "boolean"
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Schema is the machine-readable shape of a tool's input or output.
type Schema struct {
	Fields []Field `json:"fields"`
}

// JSONSchema renders the schema as a JSON-Schema object, the form tool
// descriptors are listed in over the wire.
func (s Schema) JSONSchema() map[string]any {
	properties := make(map[string]any, len(s.Fields))
	required := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		prop := map[string]any{"type": f.Type}
		if f.Description != "" {
			prop["description"] = f.Description
		}
		properties[f.Name] = prop
		if f.Required {
			required = append(required, f.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Descriptor declares a tool: its unique name, human description and
// input/output schemas.
type Descriptor struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	InputSchema  Schema `json:"input_schema"`
	OutputSchema Schema `json:"output_schema"`
}

// Handler executes a tool over schema-valid arguments. A fault is
// reported as an error; returning a *ToolError preserves the kind,
// any other error is normalized to KindExecutionFailed.
type Handler func(ctx context.Context, args map[string]any) (map[string]any, error)
