// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/rigchat/internal/model"
)

// DefaultMessageLimit bounds how many messages of a session are loaded.
const DefaultMessageLimit = 100

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
    parts TEXT NOT NULL,
    text_content TEXT NOT NULL DEFAULT '',
    metadata TEXT,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);
`

// =============================================================================
// ERRORS
// =============================================================================

// ErrSessionNotFound is returned when a session ID does not exist.
var ErrSessionNotFound = &StoreError{Message: "session not found"}

// StoreError is a comparable store error for use with errors.Is.
type StoreError struct {
	Message string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return e.Message
}

// Is implements errors.Is support.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// STORE
// =============================================================================

// SessionSummary is a session with its message count.
type SessionSummary struct {
	model.Session
	MessageCount int `json:"messageCount"`
}

// Store persists sessions and messages.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens or creates the database at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	logger.Debug("STORE_OPEN", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// SESSIONS
// =============================================================================

// CreateSession inserts a new session.
func (s *Store) CreateSession(ctx context.Context, sess *model.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, name, updated_at) VALUES (?, ?, ?)`,
		sess.ID, sess.Name, sess.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession loads one session.
func (s *Store) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var (
		sess    model.Session
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, updated_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Name, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	sess.UpdatedAt = time.Unix(0, updated)
	return &sess, nil
}

// ListSessions returns sessions, most recently updated first.
func (s *Store) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.updated_at, COUNT(m.id)
		FROM sessions s LEFT JOIN messages m ON m.session_id = s.id
		GROUP BY s.id
		ORDER BY s.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			sum     SessionSummary
			updated int64
		)
		if err := rows.Scan(&sum.ID, &sum.Name, &updated, &sum.MessageCount); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sum.UpdatedAt = time.Unix(0, updated)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// TouchSession sets a session's updated time to now.
func (s *Store) TouchSession(ctx context.Context, id string) error {
	return s.updateSession(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, time.Now().UnixNano(), id)
}

// RenameSession changes a session's name.
func (s *Store) RenameSession(ctx context.Context, id, name string) error {
	return s.updateSession(ctx, `UPDATE sessions SET name = ? WHERE id = ?`, name, id)
}

// DeleteSession removes a session and its messages.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return s.updateSession(ctx, `DELETE FROM sessions WHERE id = ?`, id)
}

func (s *Store) updateSession(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// SearchSessions returns sessions whose name or message text contains query.
func (s *Store) SearchSessions(ctx context.Context, query string) ([]SessionSummary, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.updated_at,
		       (SELECT COUNT(*) FROM messages c WHERE c.session_id = s.id)
		FROM sessions s
		WHERE lower(s.name) LIKE ? ESCAPE '\'
		   OR EXISTS (SELECT 1 FROM messages m
		              WHERE m.session_id = s.id AND lower(m.text_content) LIKE ? ESCAPE '\')
		ORDER BY s.updated_at DESC`, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("search sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			sum     SessionSummary
			updated int64
		)
		if err := rows.Scan(&sum.ID, &sum.Name, &updated, &sum.MessageCount); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sum.UpdatedAt = time.Unix(0, updated)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// =============================================================================
// MESSAGES
// =============================================================================

// AddMessage inserts a message. Messages with no parts are rejected.
func (s *Store) AddMessage(ctx context.Context, msg *model.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	parts, meta, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, role, parts, text_content, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, string(msg.Role), parts, msg.Text(), meta, msg.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	return nil
}

// DeleteMessages removes messages by id. Unknown ids are ignored.
func (s *Store) DeleteMessages(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete message: %w", err)
		}
	}
	return tx.Commit()
}

// ListMessages returns the last limit messages of a session in
// chronological order. limit <= 0 returns all of them.
func (s *Store) ListMessages(ctx context.Context, sessionID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, parts, metadata, created_at FROM (
			SELECT rowid AS seq, id, session_id, role, parts, metadata, created_at
			FROM messages WHERE session_id = ?
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		) ORDER BY created_at ASC, seq ASC`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var (
			msg     model.Message
			role    string
			parts   string
			meta    sql.NullString
			created int64
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &parts, &meta, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = model.Role(role)
		msg.CreatedAt = time.Unix(0, created)
		if err := json.Unmarshal([]byte(parts), &msg.Parts); err != nil {
			s.logger.Warn("MESSAGE_CORRUPT", zap.String("id", msg.ID), zap.Error(err))
			continue
		}
		if meta.Valid && meta.String != "" {
			msg.Metadata = &model.Metadata{}
			if err := json.Unmarshal([]byte(meta.String), msg.Metadata); err != nil {
				msg.Metadata = nil
			}
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func encodeMessage(msg *model.Message) (parts string, meta sql.NullString, err error) {
	b, err := json.Marshal(msg.Parts)
	if err != nil {
		return "", meta, fmt.Errorf("encode parts: %w", err)
	}
	if msg.Metadata != nil {
		mb, err := json.Marshal(msg.Metadata)
		if err != nil {
			return "", meta, fmt.Errorf("encode metadata: %w", err)
		}
		meta = sql.NullString{String: string(mb), Valid: true}
	}
	return string(b), meta, nil
}
