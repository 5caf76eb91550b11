// Package postgres stores conversation history in a PostgreSQL table via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smallnest/pdfqa/store"
)

// DBPool defines the interface for database connection pool
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresHistoryStore implements store.HistoryStore using PostgreSQL
type PostgresHistoryStore struct {
	pool      DBPool
	tableName string
}

// PostgresOptions configuration for Postgres connection
type PostgresOptions struct {
	ConnString string
	TableName  string // Default "chat_history"
}

// NewPostgresHistoryStore connects to Postgres and creates the table
func NewPostgresHistoryStore(ctx context.Context, opts PostgresOptions) (*PostgresHistoryStore, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	s := NewPostgresHistoryStoreWithPool(pool, opts.TableName)
	if err := s.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresHistoryStoreWithPool creates a store on an existing pool
// Useful for testing with mocks
func NewPostgresHistoryStoreWithPool(pool DBPool, tableName string) *PostgresHistoryStore {
	if tableName == "" {
		tableName = "chat_history"
	}
	return &PostgresHistoryStore{
		pool:      pool,
		tableName: tableName,
	}
}

// InitSchema creates the necessary table if it doesn't exist
func (s *PostgresHistoryStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata JSONB,
			timestamp TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_session_id ON %s (session_id);
	`, s.tableName, s.tableName, s.tableName)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (s *PostgresHistoryStore) Close() error {
	s.pool.Close()
	return nil
}

// Append inserts messages in order
func (s *PostgresHistoryStore) Append(ctx context.Context, sessionID string, messages ...*store.Message) error {
	if err := store.ValidateSession(sessionID); err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, session_id, role, content, metadata, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.tableName)

	for _, m := range messages {
		if m == nil {
			continue
		}
		metadataJSON, err := json.Marshal(m.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}

		_, err = s.pool.Exec(ctx, query,
			m.ID,
			sessionID,
			m.Role,
			m.Content,
			metadataJSON,
			m.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to save message: %w", err)
		}
	}
	return nil
}

// Load returns a session's messages in insertion order
func (s *PostgresHistoryStore) Load(ctx context.Context, sessionID string) ([]*store.Message, error) {
	if err := store.ValidateSession(sessionID); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, role, content, metadata, timestamp
		FROM %s
		WHERE session_id = $1
		ORDER BY seq ASC
	`, s.tableName)

	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	var msgs []*store.Message
	for rows.Next() {
		var m store.Message
		var metadataJSON []byte

		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &metadataJSON, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &m.Metadata); err != nil {
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
func (s *PostgresHistoryStore) Sessions(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf("SELECT DISTINCT session_id FROM %s ORDER BY session_id", s.tableName)
	rows, err := s.pool.Query(ctx, query)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}
	return ids, nil
}

// Clear removes all messages of a session
func (s *PostgresHistoryStore) Clear(ctx context.Context, sessionID string) error {
	if err := store.ValidateSession(sessionID); err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE session_id = $1", s.tableName)
	if _, err := s.pool.Exec(ctx, query, sessionID); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}
