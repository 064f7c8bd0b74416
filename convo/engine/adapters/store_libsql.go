package adapters

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pressly/goose/v3"

	ports "github.com/ZanzyTHEbar/convoengine/convo/engine/ports"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// LibSQLSessionStore persists session history in a libSQL/SQLite database,
// one row per session with the message list stored as JSON. Append performs
// a transactional read-modify-write so concurrent writers to distinct
// sessions never corrupt each other.
type LibSQLSessionStore struct {
	db *sql.DB
}

// NewLibSQLSessionStore wraps an open database handle. Run RunMigrations
// against the handle before first use.
func NewLibSQLSessionStore(db *sql.DB) *LibSQLSessionStore {
	return &LibSQLSessionStore{db: db}
}

// RunMigrations applies the embedded schema migrations.
func RunMigrations(db *sql.DB) error {
	goose.SetBaseFS(embeddedMigrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Get returns the session's full message history.
func (s *LibSQLSessionStore) Get(ctx context.Context, sessionID string) ([]ports.Message, error) {
	query := `
		SELECT messages_json
		FROM sessions
		WHERE id = ?
	`

	var messagesJSON string
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(&messagesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session %s: %w", sessionID, err)
	}

	var messages []ports.Message
	if err := json.Unmarshal([]byte(messagesJSON), &messages); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return messages, nil
}

// Append extends the session's history, creating the row when absent.
func (s *LibSQLSessionStore) Append(ctx context.Context, sessionID string, msgs []ports.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append for session %s: %w", sessionID, err)
	}
	defer tx.Rollback()

	var messages []ports.Message
	var existingJSON string
	err = tx.QueryRowContext(ctx, `SELECT messages_json FROM sessions WHERE id = ?`, sessionID).Scan(&existingJSON)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// First append creates the session.
	case err != nil:
		return fmt.Errorf("read session %s: %w", sessionID, err)
	default:
		if err := json.Unmarshal([]byte(existingJSON), &messages); err != nil {
			return fmt.Errorf("decode session %s: %w", sessionID, err)
		}
	}

	messages = append(messages, msgs...)
	encoded, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sessionID, err)
	}

	query := `
		INSERT INTO sessions (id, messages_json, created_at, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			messages_json = excluded.messages_json,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := tx.ExecContext(ctx, query, sessionID, string(encoded)); err != nil {
		return fmt.Errorf("write session %s: %w", sessionID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session %s: %w", sessionID, err)
	}
	return nil
}

// Ping verifies the underlying database is reachable.
func (s *LibSQLSessionStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Ensure LibSQLSessionStore implements the SessionStore interface.
var _ ports.SessionStore = (*LibSQLSessionStore)(nil)
