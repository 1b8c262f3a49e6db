package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/soyeahso/dealflow/internal/session"
)

// SQLiteSessionBackend implements session.Backend backed by SQLite. The
// encoded session record lives in a single JSON column.
type SQLiteSessionBackend struct {
	db *DB
}

// NewSQLiteSessionBackend creates a session backend using the given database.
func NewSQLiteSessionBackend(db *DB) *SQLiteSessionBackend {
	return &SQLiteSessionBackend{db: db}
}

// Load returns the stored record for id.
func (s *SQLiteSessionBackend) Load(ctx context.Context, id string) ([]byte, error) {
	var record string
	err := s.db.sql.QueryRowContext(ctx, `SELECT record FROM sessions WHERE id = ?`, id).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(record), nil
}

// Save upserts the full record in one statement.
func (s *SQLiteSessionBackend) Save(ctx context.Context, id string, data []byte) error {
	now := time.Now().UTC().Format(time.DateTime)
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO sessions (id, record, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   record = excluded.record,
		   updated_at = excluded.updated_at`,
		id, string(data), now, now,
	)
	if err != nil {
		s.db.log.Error().Err(err).Str("session", id).Msg("failed to save session")
	}
	return err
}

// List returns all session IDs, most recently updated first.
func (s *SQLiteSessionBackend) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.sql.QueryContext(ctx, `SELECT id FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
