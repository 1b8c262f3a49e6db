package domain

// ToolDefinition advertises a tool to the AI provider and identifies it for
// dispatch. ParameterSchema is a JSON Schema object.
type ToolDefinition struct {
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	ParameterSchema map[string]any `json:"parameterSchema"`
}

// ToolCall is one requested invocation.
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	ToolName  string         `json:"toolName"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the normalized outcome of a tool call. A failed result
// always has a non-empty Message.
type ToolResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`

	// Display holds fully formatted, human-ready output. When set, it is
	// returned to the user verbatim.
	Display string `json:"display,omitempty"`
}

// Failed builds an unsuccessful result.
func Failed(message string) ToolResult {
	return ToolResult{Success: false, Message: message, Error: message}
}

// Succeeded builds a successful result.
func Succeeded(message string, data map[string]any) ToolResult {
	return ToolResult{Success: true, Message: message, Data: data}
}
