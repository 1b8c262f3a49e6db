package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/soyeahso/dealflow/internal/domain"
)

// record is the persisted layout of a session.
type record struct {
	ConversationHistory []domain.Turn `json:"conversationHistory"`
	CreatedAt           time.Time     `json:"createdAt"`
	LastUpdated         time.Time     `json:"lastUpdated"`
}

// Encode serializes a session into its persisted form.
func Encode(s *domain.Session) ([]byte, error) {
	turns := s.Turns
	if turns == nil {
		turns = []domain.Turn{}
	}
	return json.Marshal(record{
		ConversationHistory: turns,
		CreatedAt:           s.CreatedAt.UTC(),
		LastUpdated:         s.LastUpdated.UTC(),
	})
}

// Decode parses a persisted record. Any malformed input, including a turn
// with an unknown role, yields an error wrapping ErrCorrupt.
func Decode(id string, data []byte) (*domain.Session, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if rec.ConversationHistory == nil {
		return nil, fmt.Errorf("%w: missing conversationHistory", ErrCorrupt)
	}
	for i, t := range rec.ConversationHistory {
		if !t.Role.Valid() {
			return nil, fmt.Errorf("%w: turn %d has role %q", ErrCorrupt, i, t.Role)
		}
	}
	return &domain.Session{
		ID:          id,
		CreatedAt:   rec.CreatedAt,
		LastUpdated: rec.LastUpdated,
		Turns:       rec.ConversationHistory,
	}, nil
}
