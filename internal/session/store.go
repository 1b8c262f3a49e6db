// Package session loads, extends and saves per-session conversation
// history. Storage is best-effort: load failures degrade to a fresh session
// and save failures are logged, never surfaced to the user.
package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/dealflow/internal/domain"
	"github.com/soyeahso/dealflow/internal/logging"
)

const (
	defaultMaxTurns = 50
	defaultTimeout  = 5 * time.Second
)

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidID reports whether id may be used as a session id.
func ValidID(id string) bool {
	return validID.MatchString(id)
}

// LoadOutcome describes how LoadOrCreate produced its session.
type LoadOutcome struct {
	// Created is true when no stored record was used.
	Created bool
	// Err is set when a stored record existed but could not be used.
	Err *RecoverableError
}

// Store is the session facade used by the orchestrator.
type Store struct {
	backend  Backend
	log      *logging.Logger
	maxTurns int
	timeout  time.Duration
	now      func() time.Time
	locks    *keyedMutex
}

// Option configures a Store.
type Option func(*Store)

// WithMaxTurns bounds the number of turns kept per session.
func WithMaxTurns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxTurns = n
		}
	}
}

// WithTimeout bounds every backend call.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store over backend.
func New(backend Backend, log *logging.Logger, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		log:      log.Sub("session"),
		maxTurns: defaultMaxTurns,
		timeout:  defaultTimeout,
		now:      time.Now,
		locks:    newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxTurns returns the configured history bound.
func (s *Store) MaxTurns() int { return s.maxTurns }

// LoadOrCreate returns the session for id. It never fails: an empty or
// invalid id gets a new id, an unseen id gets an empty session, and a
// corrupt or unreachable record is replaced by an empty session with the
// reason reported in the outcome.
func (s *Store) LoadOrCreate(ctx context.Context, id string) (*domain.Session, LoadOutcome) {
	if id != "" && !ValidID(id) {
		s.log.Warn().Str("session", truncateID(id)).Msg("invalid session id, minting a new one")
		id = ""
	}
	if id == "" {
		return domain.NewSession(uuid.NewString(), s.now().UTC()), LoadOutcome{Created: true}
	}

	data, err := call(ctx, s.timeout, func(ctx context.Context) ([]byte, error) {
		return s.backend.Load(ctx, id)
	})
	switch {
	case errors.Is(err, ErrNotFound):
		return domain.NewSession(id, s.now().UTC()), LoadOutcome{Created: true}
	case err != nil:
		s.log.Warn().Err(err).Str("session", id).Msg("session storage unavailable, continuing in memory")
		sess := domain.NewSession(id, s.now().UTC())
		sess.Ephemeral = true
		return sess, LoadOutcome{
			Created: true,
			Err:     &RecoverableError{Kind: KindUnavailable, SessionID: id, Err: err},
		}
	}

	sess, err := Decode(id, data)
	if err != nil {
		s.log.Warn().Err(err).Str("session", id).Msg("corrupt session record, starting fresh")
		return domain.NewSession(id, s.now().UTC()), LoadOutcome{
			Created: true,
			Err:     &RecoverableError{Kind: KindCorrupt, SessionID: id, Err: err},
		}
	}
	return sess, LoadOutcome{}
}

// AppendTurn adds a turn and drops the oldest turns beyond the bound.
func (s *Store) AppendTurn(sess *domain.Session, role domain.Role, content string) {
	now := s.now().UTC()
	sess.Turns = append(sess.Turns, domain.Turn{Role: role, Content: content, Timestamp: now})
	if over := len(sess.Turns) - s.maxTurns; over > 0 {
		sess.Turns = slices.Clone(sess.Turns[over:])
	}
	sess.LastUpdated = now
}

// Save persists the full history of sess, replacing the previous record.
// Saves for one id are serialized. Errors are logged and returned so the
// caller can note them; they must not fail the request. Ephemeral sessions
// are never written and return ErrEphemeral.
func (s *Store) Save(ctx context.Context, sess *domain.Session) error {
	if sess.Ephemeral {
		s.log.Debug().Str("session", sess.ID).Msg("skipping save of in-memory session")
		return ErrEphemeral
	}

	data, err := Encode(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	unlock := s.locks.Lock(sess.ID)
	defer unlock()

	_, err = call(ctx, s.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.backend.Save(ctx, sess.ID, data)
	})
	if err != nil {
		s.log.Warn().Err(err).Str("session", sess.ID).Msg("session save failed")
		return err
	}
	return nil
}

// Get returns a stored session for inspection.
func (s *Store) Get(ctx context.Context, id string) (*domain.Session, error) {
	if !ValidID(id) {
		return nil, ErrNotFound
	}
	data, err := call(ctx, s.timeout, func(ctx context.Context) ([]byte, error) {
		return s.backend.Load(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return Decode(id, data)
}

// List summarizes stored sessions, most recently updated first. Corrupt
// records are skipped.
func (s *Store) List(ctx context.Context) ([]domain.SessionSummary, error) {
	ids, err := call(ctx, s.timeout, s.backend.List)
	if err != nil {
		return nil, err
	}

	out := make([]domain.SessionSummary, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if err != nil {
			s.log.Debug().Err(err).Str("session", id).Msg("skipping session")
			continue
		}
		out = append(out, domain.SessionSummary{
			ID:          id,
			Turns:       len(sess.Turns),
			LastUpdated: sess.LastUpdated,
		})
	}
	slices.SortFunc(out, func(a, b domain.SessionSummary) int {
		return b.LastUpdated.Compare(a.LastUpdated)
	})
	return out, nil
}

// call runs fn with a deadline and returns when either fn finishes or the
// deadline passes, even if fn ignores its context.
func call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("session backend: %w", ctx.Err())
	}
}

func truncateID(id string) string {
	if len(id) > 32 {
		return id[:32] + "..."
	}
	return id
}
