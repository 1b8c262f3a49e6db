package domain

// Command is an inbound free-text request.
type Command struct {
	Text      string         `json:"command"`
	SessionID string         `json:"sessionId,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// Response is the only object returned across the system boundary.
type Response struct {
	Success             bool           `json:"success"`
	Message             string         `json:"message"`
	Data                map[string]any `json:"data,omitempty"`
	ToolsUsed           []string       `json:"toolsUsed"`
	Reasoning           string         `json:"reasoning,omitempty"`
	SessionID           string         `json:"sessionId"`
	CorrelationID       string         `json:"correlationId,omitempty"`
	ConversationContext []Turn         `json:"conversationContext,omitempty"`
}
