package session

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by a Backend when no record exists for an id.
var ErrNotFound = errors.New("session not found")

// ErrEphemeral is returned by Save for a session whose stored record could
// not be read. Writing it would replace history that may still exist.
var ErrEphemeral = errors.New("session not persisted: storage was unavailable on load")

// ErrCorrupt marks a stored record that could not be decoded.
var ErrCorrupt = errors.New("session record corrupt")

// ErrorKind classifies a RecoverableError.
type ErrorKind string

const (
	// KindCorrupt means the stored record failed to deserialize.
	KindCorrupt ErrorKind = "corrupt"
	// KindUnavailable means the backend errored or timed out.
	KindUnavailable ErrorKind = "unavailable"
)

// RecoverableError describes a load failure the caller recovered from with
// a fresh session.
type RecoverableError struct {
	Kind      ErrorKind
	SessionID string
	Err       error
}

func (e *RecoverableError) Error() string {
	return fmt.Sprintf("session %s %s: %v", e.SessionID, e.Kind, e.Err)
}

func (e *RecoverableError) Unwrap() error {
	return e.Err
}
