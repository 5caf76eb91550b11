package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/smallnest/pdfqa/rag"
)

// DBPool defines the interface for database connection pool
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PGVectorOptions configures a PGVectorStore.
type PGVectorOptions struct {
	ConnString string
	TableName  string // Default "chunks"
	Dimension  int
}

// PGVectorStore keeps chunks and their embeddings in a Postgres table with a
// pgvector column and ranks them by cosine distance.
type PGVectorStore struct {
	pool      DBPool
	tableName string
	dimension int
	embedder  rag.Embedder
}

var _ rag.VectorStore = (*PGVectorStore)(nil)

// NewPGVectorStore connects to Postgres.
func NewPGVectorStore(ctx context.Context, opts PGVectorOptions, embedder rag.Embedder) (*PGVectorStore, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	return NewPGVectorStoreWithPool(pool, opts.TableName, opts.Dimension, embedder), nil
}

// NewPGVectorStoreWithPool creates a store over an existing pool.
func NewPGVectorStoreWithPool(pool DBPool, tableName string, dimension int, embedder rag.Embedder) *PGVectorStore {
	if tableName == "" {
		tableName = "chunks"
	}
	return &PGVectorStore{
		pool:      pool,
		tableName: tableName,
		dimension: dimension,
		embedder:  embedder,
	}
}

// InitSchema creates the extension, table and index if they don't exist.
func (s *PGVectorStore) InitSchema(ctx context.Context) error {
	if s.dimension <= 0 {
		return fmt.Errorf("pgvector store needs a positive dimension, got %d", s.dimension)
	}

	query := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata JSONB,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s USING hnsw (embedding vector_cosine_ops);
	`, s.tableName, s.dimension, s.tableName, s.tableName)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Add upserts documents, embedding those without an embedding in one batch.
func (s *PGVectorStore) Add(ctx context.Context, docs []rag.Document) error {
	var (
		missing []int
		texts   []string
	)
	for i, doc := range docs {
		if len(doc.Embedding) == 0 {
			missing = append(missing, i)
			texts = append(texts, doc.Content)
		}
	}
	if len(missing) > 0 {
		if s.embedder == nil {
			return ErrNoEmbedder
		}
		vectors, err := s.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed documents: %w", err)
		}
		if len(vectors) != len(missing) {
			return fmt.Errorf("failed to embed documents: got %d vectors for %d texts", len(vectors), len(missing))
		}
		docs = append([]rag.Document(nil), docs...)
		for j, idx := range missing {
			docs[idx].Embedding = vectors[j]
		}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, content, metadata, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			updated_at = EXCLUDED.updated_at
	`, s.tableName)

	now := time.Now()
	for _, doc := range docs {
		if s.dimension > 0 && len(doc.Embedding) != s.dimension {
			return fmt.Errorf("%w: document %s has %d, store has %d", ErrDimensionMismatch, doc.ID, len(doc.Embedding), s.dimension)
		}

		metadataJSON, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %s: %w", doc.ID, err)
		}

		createdAt := doc.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}

		if _, err := s.pool.Exec(ctx, query,
			doc.ID,
			doc.Content,
			metadataJSON,
			pgvector.NewVector(doc.Embedding),
			createdAt,
			now,
		); err != nil {
			return fmt.Errorf("failed to insert document %s: %w", doc.ID, err)
		}
	}
	return nil
}

// Search returns the k nearest documents by cosine distance.
func (s *PGVectorStore) Search(ctx context.Context, query []float32, k int) ([]rag.DocumentSearchResult, error) {
	return s.SearchWithFilter(ctx, query, k, nil)
}

// SearchWithFilter is Search restricted to rows whose metadata contains filter.
func (s *PGVectorStore) SearchWithFilter(ctx context.Context, query []float32, k int, filter map[string]any) ([]rag.DocumentSearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}
	if filter == nil {
		filter = map[string]any{}
	}
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal filter: %w", err)
	}

	sql := fmt.Sprintf(`
		SELECT id, content, metadata, embedding, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE metadata @> $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, s.tableName)

	rows, err := s.pool.Query(ctx, sql, pgvector.NewVector(query), filterJSON, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	results := []rag.DocumentSearchResult{}
	for rows.Next() {
		var (
			doc          rag.Document
			metadataJSON []byte
			embedding    pgvector.Vector
			score        float64
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &metadataJSON, &embedding, &score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		doc.Embedding = embedding.Slice()
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &doc.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", doc.ID, err)
			}
		}
		results = append(results, rag.DocumentSearchResult{Document: doc, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	return results, nil
}

// Delete removes documents by ID.
func (s *PGVectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ANY($1)", s.tableName)
	if _, err := s.pool.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// GetStats counts the stored rows.
func (s *PGVectorStore) GetStats(ctx context.Context) (*rag.VectorStoreStats, error) {
	query := fmt.Sprintf("SELECT COUNT(*), COALESCE(MAX(updated_at), NOW()) FROM %s", s.tableName)

	var (
		count   int
		updated time.Time
	)
	if err := s.pool.QueryRow(ctx, query).Scan(&count, &updated); err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}

	return &rag.VectorStoreStats{
		TotalDocuments: count,
		TotalVectors:   count,
		Dimension:      s.dimension,
		LastUpdated:    updated,
	}, nil
}

// Close closes the connection pool
func (s *PGVectorStore) Close() error {
	s.pool.Close()
	return nil
}
