// Package tool holds the tool contract, the registry the AI provider's tool
// definitions are drawn from, and the executor that turns every call into a
// normalized domain.ToolResult.
package tool

import (
	"context"

	"github.com/soyeahso/dealflow/internal/domain"
)

// Tool is a capability a handler or the AI provider can invoke.
type Tool interface {
	// Definition returns the name, description and JSON Schema advertised
	// to the AI provider.
	Definition() domain.ToolDefinition

	// Execute runs the tool. Arguments are already decoded from JSON.
	Execute(ctx context.Context, args map[string]any) (domain.ToolResult, error)
}

// Func adapts a plain function into a Tool.
type Func struct {
	Def domain.ToolDefinition
	Fn  func(ctx context.Context, args map[string]any) (domain.ToolResult, error)
}

func (f Func) Definition() domain.ToolDefinition { return f.Def }

func (f Func) Execute(ctx context.Context, args map[string]any) (domain.ToolResult, error) {
	return f.Fn(ctx, args)
}

// ObjectSchema builds a JSON Schema object with the given properties.
func ObjectSchema(properties map[string]any, required ...string) map[string]any {
	if properties == nil {
		properties = map[string]any{}
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

// StringProp is a string property with a description.
func StringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// NumberProp is a numeric property with a description.
func NumberProp(description string) map[string]any {
	return map[string]any{"type": "number", "description": description}
}

// StringListProp is an array-of-strings property with a description.
func StringListProp(description string) map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": description,
	}
}
