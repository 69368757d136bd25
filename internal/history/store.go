// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/Qredence/qlaw-cli/internal/model"
	"github.com/Qredence/qlaw-cli/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrNotFound      = errors.New("history: session not found")
	ErrDatabaseError = errors.New("history: database error")
)

// =============================================================================
// SESSION META
// =============================================================================

// SessionMeta is the listing view of a stored session.
type SessionMeta struct {
	ID           string
	Title        string
	Entity       string
	Mode         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
	Preview      string
}

// =============================================================================
// STORE
// =============================================================================

// Store persists sessions to SQLite.
type Store struct {
	db *sql.DB

	// MaxSessions prunes the oldest sessions beyond this count on save.
	// 0 keeps everything.
	MaxSessions int
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single connection avoids lock churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// SAVE
// =============================================================================

// Save upserts a session and its messages, then prunes past MaxSessions.
// Empty sessions are skipped.
func (s *Store) Save(ctx context.Context, session *model.Session) error {
	if session == nil || session.IsEmpty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, title, entity, mode, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			updated_at = excluded.updated_at`,
		session.ID, session.Title, session.Entity, session.Mode,
		session.CreatedAt.Unix(), session.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	// Replace the message list wholesale; transcripts are small and this
	// keeps resumed saves idempotent.
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, session.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (id, session_id, seq, role, author_name, content, created_at, token_count, duration_ms, ttft_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer stmt.Close()

	for seq, msg := range session.Messages {
		if msg.IsStreaming {
			continue // unfinalized messages are not persisted
		}
		_, err := stmt.ExecContext(ctx,
			msg.ID, session.ID, seq, string(msg.Role), msg.AuthorName, msg.Content,
			msg.Timestamp.Unix(), msg.TokenCount,
			msg.TotalDuration.Milliseconds(), msg.TTFT.Milliseconds())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
	}

	if s.MaxSessions > 0 {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM sessions WHERE id IN (
				SELECT id FROM sessions
				ORDER BY updated_at DESC
				LIMIT -1 OFFSET ?
			)`, s.MaxSessions)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

// List returns session metadata, most recently updated first.
func (s *Store) List(ctx context.Context, limit int) ([]SessionMeta, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.title, s.entity, s.mode, s.created_at, s.updated_at,
		       COUNT(m.id),
		       COALESCE((SELECT content FROM messages
		                 WHERE session_id = s.id AND role = 'user'
		                 ORDER BY seq LIMIT 1), '')
		FROM sessions s
		LEFT JOIN messages m ON m.session_id = s.id
		GROUP BY s.id
		ORDER BY s.updated_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var metas []SessionMeta
	for rows.Next() {
		var meta SessionMeta
		var created, updated int64
		if err := rows.Scan(&meta.ID, &meta.Title, &meta.Entity, &meta.Mode,
			&created, &updated, &meta.MessageCount, &meta.Preview); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		meta.CreatedAt = time.Unix(created, 0)
		meta.UpdatedAt = time.Unix(updated, 0)
		meta.Preview = util.TruncateRunes(meta.Preview, 80)
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

// Load returns a full session by id.
func (s *Store) Load(ctx context.Context, id string) (*model.Session, error) {
	session := &model.Session{}
	var created, updated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, entity, mode, created_at, updated_at
		FROM sessions WHERE id = ?`, id).
		Scan(&session.ID, &session.Title, &session.Entity, &session.Mode, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	session.CreatedAt = time.Unix(created, 0)
	session.UpdatedAt = time.Unix(updated, 0)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, author_name, content, created_at, token_count, duration_ms, ttft_ms
		FROM messages WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg model.Message
		var role string
		var ts, durationMs, ttftMs int64
		if err := rows.Scan(&msg.ID, &role, &msg.AuthorName, &msg.Content,
			&ts, &msg.TokenCount, &durationMs, &ttftMs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		msg.Role = model.Role(role)
		msg.Timestamp = time.Unix(ts, 0)
		msg.TotalDuration = time.Duration(durationMs) * time.Millisecond
		msg.TTFT = time.Duration(ttftMs) * time.Millisecond
		session.Messages = append(session.Messages, &msg)
	}
	return session, rows.Err()
}

// escapeLike escapes LIKE metacharacters so user queries match literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

// Search returns sessions whose title or message content matches the query
// substring, most recent first.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]SessionMeta, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT s.id, s.title, s.entity, s.mode, s.created_at, s.updated_at,
		       (SELECT COUNT(*) FROM messages WHERE session_id = s.id),
		       COALESCE((SELECT content FROM messages
		                 WHERE session_id = s.id AND role = 'user'
		                 ORDER BY seq LIMIT 1), '')
		FROM sessions s
		LEFT JOIN messages m ON m.session_id = s.id
		WHERE s.title LIKE ? ESCAPE '\' OR m.content LIKE ? ESCAPE '\'
		ORDER BY s.updated_at DESC
		LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var metas []SessionMeta
	for rows.Next() {
		var meta SessionMeta
		var created, updated int64
		if err := rows.Scan(&meta.ID, &meta.Title, &meta.Entity, &meta.Mode,
			&created, &updated, &meta.MessageCount, &meta.Preview); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		meta.CreatedAt = time.Unix(created, 0)
		meta.UpdatedAt = time.Unix(updated, 0)
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

// Delete removes a session and its messages.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
