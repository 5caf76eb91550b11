// Package sqlite stores conversation history in a SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/smallnest/pdfqa/store"
)

// SqliteHistoryStore implements store.HistoryStore using SQLite
type SqliteHistoryStore struct {
	db        *sql.DB
	tableName string
}

// SqliteOptions configuration for SQLite connection
type SqliteOptions struct {
	Path      string
	TableName string // Default "chat_history"
}

// NewSqliteHistoryStore opens the database and creates the table
func NewSqliteHistoryStore(opts SqliteOptions) (*SqliteHistoryStore, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "chat_history"
	}

	s := &SqliteHistoryStore{
		db:        db,
		tableName: tableName,
	}

	if err := s.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// InitSchema creates the necessary table if it doesn't exist
func (s *SqliteHistoryStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT,
			timestamp DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_session_id ON %s (session_id);
	`, s.tableName, s.tableName, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SqliteHistoryStore) Close() error {
	return s.db.Close()
}

// Append inserts messages in one transaction
func (s *SqliteHistoryStore) Append(ctx context.Context, sessionID string, messages ...*store.Message) error {
	if err := store.ValidateSession(sessionID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, session_id, role, content, metadata, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.tableName)

	for _, m := range messages {
		if m == nil {
			continue
		}
		metadataJSON, err := json.Marshal(m.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query,
			m.ID,
			sessionID,
			m.Role,
			m.Content,
			string(metadataJSON),
			m.Timestamp,
		); err != nil {
			return fmt.Errorf("failed to save message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history: %w", err)
	}
	return nil
}

// Load returns a session's messages in insertion order
func (s *SqliteHistoryStore) Load(ctx context.Context, sessionID string) ([]*store.Message, error) {
	if err := store.ValidateSession(sessionID); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, role, content, metadata, timestamp
		FROM %s
		WHERE session_id = ?
		ORDER BY seq ASC
	`, s.tableName)

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	var msgs []*store.Message
	for rows.Next() {
		var m store.Message
		var metadataJSON sql.NullString

		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &metadataJSON, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}

		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &m.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		msgs = append(msgs, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	if len(msgs) == 0 {
		return nil, store.NotFound(sessionID)
	}
	return msgs, nil
}

// Sessions lists distinct session IDs
func (s *SqliteHistoryStore) Sessions(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf("SELECT DISTINCT session_id FROM %s ORDER BY session_id", s.tableName)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Clear removes all messages of a session
func (s *SqliteHistoryStore) Clear(ctx context.Context, sessionID string) error {
	if err := store.ValidateSession(sessionID); err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE session_id = ?", s.tableName)
	if _, err := s.db.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}
