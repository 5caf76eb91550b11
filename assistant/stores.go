package assistant

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/smallnest/pdfqa/config"
	"github.com/smallnest/pdfqa/log"
	"github.com/smallnest/pdfqa/rag"
	"github.com/smallnest/pdfqa/rag/store"
	histstore "github.com/smallnest/pdfqa/store"
	"github.com/smallnest/pdfqa/store/file"
	memstore "github.com/smallnest/pdfqa/store/memory"
	"github.com/smallnest/pdfqa/store/postgres"
	"github.com/smallnest/pdfqa/store/redis"
	"github.com/smallnest/pdfqa/store/sqlite"
)

// Locations used when the history DSN is empty.
const (
	DefaultHistoryDir = ".pdfqa/history"
	DefaultSqlitePath = "pdfqa.db"
)

// OpenHistoryStore creates the history store named by cfg.HistoryStore.
func OpenHistoryStore(ctx context.Context, cfg *config.Config) (histstore.HistoryStore, error) {
	switch cfg.HistoryStore {
	case "", config.HistoryMemory:
		return memstore.NewMemoryHistoryStore(), nil
	case config.HistoryFile:
		dir := cfg.HistoryDSN
		if dir == "" {
			dir = DefaultHistoryDir
		}
		return file.NewFileHistoryStore(dir)
	case config.HistoryRedis:
		addr := cfg.RedisAddr
		if cfg.HistoryDSN != "" {
			addr = cfg.HistoryDSN
		}
		return redis.NewRedisHistoryStore(redis.RedisOptions{Addr: addr}), nil
	case config.HistorySqlite:
		path := cfg.HistoryDSN
		if path == "" {
			path = DefaultSqlitePath
		}
		return sqlite.NewSqliteHistoryStore(sqlite.SqliteOptions{Path: path})
	case config.HistoryPostgres:
		return postgres.NewPostgresHistoryStore(ctx, postgres.PostgresOptions{ConnString: cfg.HistoryDSN})
	}
	return nil, fmt.Errorf("%w: unknown history store %q", config.ErrInvalidConfig, cfg.HistoryStore)
}

// OpenVectorStore creates the vector store named by cfg.VectorStore. The
// in-memory store is restored from cfg.IndexPath when that file exists.
func OpenVectorStore(ctx context.Context, cfg *config.Config, embedder rag.Embedder) (rag.VectorStore, error) {
	switch cfg.VectorStore {
	case "", config.VectorMemory:
		if cfg.IndexPath != "" {
			if _, err := os.Stat(cfg.IndexPath); err == nil {
				return store.LoadInMemoryVectorStore(cfg.IndexPath, embedder)
			} else if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to stat index %s: %w", cfg.IndexPath, err)
			}
		}
		strategy, err := store.ParseDistanceStrategy(cfg.Distance)
		if err != nil {
			return nil, err
		}
		return store.NewInMemoryVectorStore(embedder, store.WithDistanceStrategy(strategy)), nil

	case config.VectorPGVector:
		dim := embedder.GetDimension()
		if dim <= 0 {
			return nil, errors.New("cannot determine embedding dimension for pgvector")
		}
		vs, err := store.NewPGVectorStore(ctx, store.PGVectorOptions{
			ConnString: cfg.VectorDSN,
			Dimension:  dim,
		}, embedder)
		if err != nil {
			return nil, err
		}
		if err := vs.InitSchema(ctx); err != nil {
			vs.Close()
			return nil, err
		}
		log.Debug("using pgvector store with dimension %d", dim)
		return vs, nil
	}
	return nil, fmt.Errorf("%w: unknown vector store %q", config.ErrInvalidConfig, cfg.VectorStore)
}
