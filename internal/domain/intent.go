package domain

// ActionUnknown is the action of an intent nothing could classify.
const ActionUnknown = "unknown"

// Intent is the normalized form of a free-text command. It is built per
// command and never persisted.
type Intent struct {
	Action       string         `json:"action"`
	Entities     []string       `json:"entities,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	OutputFormat string         `json:"outputFormat,omitempty"`
}

// NewIntent returns an intent for action, defaulting to ActionUnknown.
func NewIntent(action string) Intent {
	if action == "" {
		action = ActionUnknown
	}
	return Intent{Action: action, Parameters: map[string]any{}}
}

// Param returns a string parameter, or "" when absent or not a string.
func (i Intent) Param(key string) string {
	if i.Parameters == nil {
		return ""
	}
	s, _ := i.Parameters[key].(string)
	return s
}
