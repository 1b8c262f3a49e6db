package domain

import "time"

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one message in a session's history. Turns are never edited.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the conversation history for one session id.
type Session struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	LastUpdated time.Time `json:"lastUpdated"`
	Turns       []Turn    `json:"turns"`

	// Ephemeral is set when the session could not be loaded from storage
	// and only lives in memory for the current request.
	Ephemeral bool `json:"-"`
}

// NewSession returns an empty session stamped with now.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:          id,
		CreatedAt:   now,
		LastUpdated: now,
		Turns:       []Turn{},
	}
}

// History returns a copy of the turns, oldest first.
func (s *Session) History() []Turn {
	out := make([]Turn, len(s.Turns))
	copy(out, s.Turns)
	return out
}

// SessionSummary is a lightweight listing entry.
type SessionSummary struct {
	ID          string    `json:"id"`
	Turns       int       `json:"turns"`
	LastUpdated time.Time `json:"lastUpdated"`
}
