// Package config loads pipeline settings from the environment, an optional
// .env file and command line flags, in increasing order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/smallnest/pdfqa/log"
	"github.com/smallnest/pdfqa/provider"
	"github.com/smallnest/pdfqa/rag"
	"github.com/smallnest/pdfqa/rag/retriever"
	"github.com/smallnest/pdfqa/rag/splitter"
	"github.com/smallnest/pdfqa/rag/store"
)

// History store backends.
const (
	HistoryMemory   = "memory"
	HistoryFile     = "file"
	HistoryRedis    = "redis"
	HistorySqlite   = "sqlite"
	HistoryPostgres = "postgres"
)

// Vector store backends.
const (
	VectorMemory   = "memory"
	VectorPGVector = "pgvector"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds every tunable of the pipeline.
type Config struct {
	Provider      string
	OllamaHost    string
	OpenAIBaseURL string
	OpenAIAPIKey  string
	Model         string
	EmbedModel    string

	ChunkSize      int
	ChunkOverlap   int
	TopK           int
	SearchType     string
	ScoreThreshold float64
	LambdaMult     float64
	Distance       string
	Window         int

	VectorStore string
	VectorDSN   string
	IndexPath   string

	HistoryStore string
	HistoryDSN   string
	RedisAddr    string
	Session      string

	Addr       string
	IngestRoot string
	LogLevel   string
	Retries    int
}

// Default returns the settings of the reference pipeline: a local Ollama
// llama2, 1000/200 chunking, k=4 retrieval and a five turn window.
func Default() *Config {
	return &Config{
		Provider:     provider.Ollama,
		OllamaHost:   provider.DefaultOllamaURL,
		Model:        provider.DefaultModel,
		ChunkSize:    splitter.DefaultChunkSize,
		ChunkOverlap: splitter.DefaultChunkOverlap,
		TopK:         retriever.DefaultK,
		SearchType:   rag.SearchTypeSimilarity,
		LambdaMult:   retriever.DefaultLambdaMult,
		Distance:     string(store.Cosine),
		Window:       5,
		VectorStore:  VectorMemory,
		HistoryStore: HistoryMemory,
		RedisAddr:    "localhost:6379",
		Session:      "default",
		Addr:         ":8080",
		LogLevel:     "info",
	}
}

// Load reads envFile when it exists (".env" when empty) and then the environment.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("error loading %s: %w", envFile, err)
		}
		log.Debug("loaded environment from %s", envFile)
	}

	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from PDFQA_* and the provider variables.
func (c *Config) ApplyEnv() error {
	var errs []error

	c.Provider = getEnv("PDFQA_PROVIDER", c.Provider)
	c.OllamaHost = getEnv("OLLAMA_HOST", c.OllamaHost)
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.Model = getEnv("PDFQA_MODEL", c.Model)
	c.EmbedModel = getEnv("PDFQA_EMBED_MODEL", c.EmbedModel)

	c.ChunkSize = getEnvInt("PDFQA_CHUNK_SIZE", c.ChunkSize, &errs)
	c.ChunkOverlap = getEnvInt("PDFQA_CHUNK_OVERLAP", c.ChunkOverlap, &errs)
	c.TopK = getEnvInt("PDFQA_TOP_K", c.TopK, &errs)
	c.SearchType = getEnv("PDFQA_SEARCH_TYPE", c.SearchType)
	c.ScoreThreshold = getEnvFloat("PDFQA_SCORE_THRESHOLD", c.ScoreThreshold, &errs)
	c.LambdaMult = getEnvFloat("PDFQA_LAMBDA_MULT", c.LambdaMult, &errs)
	c.Distance = getEnv("PDFQA_DISTANCE", c.Distance)
	c.Window = getEnvInt("PDFQA_WINDOW", c.Window, &errs)

	c.VectorStore = getEnv("PDFQA_VECTOR_STORE", c.VectorStore)
	c.VectorDSN = getEnv("PDFQA_VECTOR_DSN", c.VectorDSN)
	c.IndexPath = getEnv("PDFQA_INDEX", c.IndexPath)

	c.HistoryStore = getEnv("PDFQA_HISTORY_STORE", c.HistoryStore)
	c.HistoryDSN = getEnv("PDFQA_HISTORY_DSN", c.HistoryDSN)
	c.RedisAddr = getEnv("PDFQA_REDIS_ADDR", c.RedisAddr)
	c.Session = getEnv("PDFQA_SESSION", c.Session)

	c.Addr = getEnv("PDFQA_ADDR", c.Addr)
	c.IngestRoot = getEnv("PDFQA_INGEST_ROOT", c.IngestRoot)
	c.LogLevel = getEnv("PDFQA_LOG_LEVEL", c.LogLevel)
	c.Retries = getEnvInt("PDFQA_RETRIES", c.Retries, &errs)

	return errors.Join(errs...)
}

// RegisterFlags binds the flags to c, using the current values as defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Provider, "provider", c.Provider, "model provider: "+strings.Join(provider.Names(), " or "))
	fs.StringVar(&c.Model, "model", c.Model, "chat model name")
	fs.StringVar(&c.EmbedModel, "embed-model", c.EmbedModel, "embedding model name (default: same as -model)")
	fs.StringVar(&c.OllamaHost, "ollama-host", c.OllamaHost, "Ollama server URL")
	fs.StringVar(&c.OpenAIBaseURL, "openai-base-url", c.OpenAIBaseURL, "OpenAI-compatible endpoint")

	fs.IntVar(&c.ChunkSize, "chunk-size", c.ChunkSize, "maximum chunk length in characters")
	fs.IntVar(&c.ChunkOverlap, "chunk-overlap", c.ChunkOverlap, "characters shared by neighbouring chunks")
	fs.IntVar(&c.TopK, "k", c.TopK, "number of chunks retrieved per question")
	fs.StringVar(&c.SearchType, "search-type", c.SearchType, "similarity, similarity_score_threshold or mmr")
	fs.Float64Var(&c.ScoreThreshold, "score-threshold", c.ScoreThreshold, "minimum relevance score")
	fs.Float64Var(&c.LambdaMult, "lambda-mult", c.LambdaMult, "mmr trade-off: 1 favours relevance, 0 favours diversity")
	fs.StringVar(&c.Distance, "distance", c.Distance, "cosine, euclidean or inner_product")
	fs.IntVar(&c.Window, "window", c.Window, "conversation turns kept in memory")

	fs.StringVar(&c.VectorStore, "vector-store", c.VectorStore, "memory or pgvector")
	fs.StringVar(&c.VectorDSN, "vector-dsn", c.VectorDSN, "Postgres connection string for pgvector")
	fs.StringVar(&c.IndexPath, "index", c.IndexPath, "load the in-memory index from this file if present, save it after ingest")

	fs.StringVar(&c.HistoryStore, "history-store", c.HistoryStore, "memory, file, redis, sqlite or postgres")
	fs.StringVar(&c.HistoryDSN, "history-dsn", c.HistoryDSN, "directory, database path or connection string for the history store")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "Redis address for the redis history store")
	fs.StringVar(&c.Session, "session", c.Session, "conversation session ID")

	fs.StringVar(&c.Addr, "addr", c.Addr, "HTTP listen address")
	fs.StringVar(&c.IngestRoot, "ingest-root", c.IngestRoot, "directory the HTTP API may ingest files from by path (default: uploads only)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn, error or none")
	fs.IntVar(&c.Retries, "retries", c.Retries, "retries for failing model or retrieval steps")
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if !provider.Valid(c.Provider) {
		add("unknown provider %q", c.Provider)
	}
	if c.ChunkSize <= 0 {
		add("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		add("chunk overlap must be in [0, chunk size), got %d", c.ChunkOverlap)
	}
	if c.TopK <= 0 {
		add("k must be positive, got %d", c.TopK)
	}
	switch c.SearchType {
	case rag.SearchTypeSimilarity, rag.SearchTypeMMR:
	case rag.SearchTypeScoreThreshold:
		if c.ScoreThreshold <= 0 {
			add("%s needs a positive score threshold", rag.SearchTypeScoreThreshold)
		}
	default:
		add("unknown search type %q", c.SearchType)
	}
	if c.LambdaMult < 0 || c.LambdaMult > 1 {
		add("lambda_mult must be within [0, 1], got %v", c.LambdaMult)
	}
	if _, err := store.ParseDistanceStrategy(c.Distance); err != nil {
		add("%v", err)
	}
	if c.Window <= 0 {
		add("window must be positive, got %d", c.Window)
	}

	switch c.VectorStore {
	case VectorMemory:
	case VectorPGVector:
		if c.VectorDSN == "" {
			add("pgvector needs a connection string")
		}
	default:
		add("unknown vector store %q", c.VectorStore)
	}

	switch c.HistoryStore {
	case HistoryMemory, HistoryFile, HistoryRedis, HistorySqlite:
	case HistoryPostgres:
		if c.HistoryDSN == "" {
			add("postgres history store needs a connection string")
		}
	default:
		add("unknown history store %q", c.HistoryStore)
	}
	if c.Session == "" {
		add("session must not be empty")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		add("%v", err)
	}
	if c.Retries < 0 {
		add("retries must not be negative, got %d", c.Retries)
	}

	return errors.Join(errs...)
}

// ProviderConfig returns the model settings for provider.New.
func (c *Config) ProviderConfig() provider.Config {
	pc := provider.Config{
		Provider:   c.Provider,
		Model:      c.Model,
		EmbedModel: c.EmbedModel,
	}
	switch strings.ToLower(c.Provider) {
	case provider.OpenAI:
		pc.BaseURL = c.OpenAIBaseURL
		pc.APIKey = c.OpenAIAPIKey
	default:
		pc.BaseURL = c.OllamaHost
	}
	return pc
}

// RetrievalConfig returns the retriever settings.
func (c *Config) RetrievalConfig() rag.RetrievalConfig {
	return rag.RetrievalConfig{
		K:              c.TopK,
		SearchType:     c.SearchType,
		ScoreThreshold: c.ScoreThreshold,
		LambdaMult:     rag.Float64(c.LambdaMult),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int, errs *[]error) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, key, value))
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64, errs *[]error) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, key, value))
		return defaultValue
	}
	return f
}
