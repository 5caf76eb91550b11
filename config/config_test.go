package config

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/pdfqa/provider"
	"github.com/smallnest/pdfqa/rag"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, provider.Ollama, cfg.Provider)
	assert.Equal(t, "llama2", cfg.Model)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.Equal(t, 4, cfg.TopK)
	assert.Equal(t, 5, cfg.Window)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("PDFQA_CHUNK_SIZE=500\nPDFQA_CHUNK_OVERLAP=50\nPDFQA_HISTORY_STORE=sqlite\n"), 0o644))

	// godotenv never overrides variables that are already set.
	t.Setenv("PDFQA_CHUNK_SIZE", "")
	t.Setenv("PDFQA_CHUNK_OVERLAP", "")
	t.Setenv("PDFQA_HISTORY_STORE", "")
	os.Unsetenv("PDFQA_CHUNK_SIZE")
	os.Unsetenv("PDFQA_CHUNK_OVERLAP")
	os.Unsetenv("PDFQA_HISTORY_STORE")

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap)
	assert.Equal(t, HistorySqlite, cfg.HistoryStore)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, Default().ChunkSize, cfg.ChunkSize)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PDFQA_PROVIDER", "openai")
	t.Setenv("PDFQA_MODEL", "gpt-4o")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", "")
	t.Setenv("PDFQA_TOP_K", "8")
	t.Setenv("PDFQA_SCORE_THRESHOLD", "0.25")
	t.Setenv("PDFQA_LAMBDA_MULT", "0")
	t.Setenv("PDFQA_INGEST_ROOT", "/srv/pdfs")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, 8, cfg.TopK)
	assert.InDelta(t, 0.25, cfg.ScoreThreshold, 1e-9)
	assert.Zero(t, cfg.LambdaMult)
	assert.Equal(t, "/srv/pdfs", cfg.IngestRoot)

	pc := cfg.ProviderConfig()
	assert.Equal(t, "sk-test", pc.APIKey)
	assert.Empty(t, pc.BaseURL)
}

func TestApplyEnvBadNumber(t *testing.T) {
	t.Setenv("PDFQA_TOP_K", "four")

	cfg := Default()
	err := cfg.ApplyEnv()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.Equal(t, 4, cfg.TopK)
}

func TestRegisterFlags(t *testing.T) {
	cfg := Default()
	fs := flag.NewFlagSet("pdfqa", flag.ContinueOnError)
	cfg.RegisterFlags(fs)

	require.NoError(t, fs.Parse([]string{"-k", "2", "-window", "3", "-history-store", "file", "-session", "s1"}))
	assert.Equal(t, 2, cfg.TopK)
	assert.Equal(t, 3, cfg.Window)
	assert.Equal(t, HistoryFile, cfg.HistoryStore)
	assert.Equal(t, "s1", cfg.Session)
	assert.Equal(t, 1000, cfg.ChunkSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.Provider = "bard" }},
		{"zero chunk size", func(c *Config) { c.ChunkSize = 0 }},
		{"overlap equals size", func(c *Config) { c.ChunkOverlap = c.ChunkSize }},
		{"negative overlap", func(c *Config) { c.ChunkOverlap = -1 }},
		{"zero k", func(c *Config) { c.TopK = 0 }},
		{"zero window", func(c *Config) { c.Window = 0 }},
		{"unknown search type", func(c *Config) { c.SearchType = "fuzzy" }},
		{"threshold search without threshold", func(c *Config) { c.SearchType = rag.SearchTypeScoreThreshold }},
		{"lambda above one", func(c *Config) { c.LambdaMult = 1.5 }},
		{"negative lambda", func(c *Config) { c.LambdaMult = -0.1 }},
		{"unknown distance", func(c *Config) { c.Distance = "manhattan" }},
		{"pgvector without dsn", func(c *Config) { c.VectorStore = VectorPGVector }},
		{"unknown vector store", func(c *Config) { c.VectorStore = "faiss" }},
		{"unknown history store", func(c *Config) { c.HistoryStore = "mongo" }},
		{"postgres history without dsn", func(c *Config) { c.HistoryStore = HistoryPostgres }},
		{"empty session", func(c *Config) { c.Session = "" }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"negative retries", func(c *Config) { c.Retries = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestValidateReportsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.TopK = 0
	cfg.Window = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "k must be positive")
	assert.Contains(t, err.Error(), "window must be positive")
}

func TestRetrievalConfig(t *testing.T) {
	cfg := Default()
	cfg.TopK = 6
	cfg.SearchType = rag.SearchTypeMMR

	rc := cfg.RetrievalConfig()
	assert.Equal(t, 6, rc.K)
	assert.Equal(t, rag.SearchTypeMMR, rc.SearchType)
	require.NotNil(t, rc.LambdaMult)
	assert.Equal(t, 0.5, *rc.LambdaMult)
}

func TestRetrievalConfig_LambdaZero(t *testing.T) {
	cfg := Default()
	fs := flag.NewFlagSet("pdfqa", flag.ContinueOnError)
	cfg.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-search-type", "mmr", "-lambda-mult", "0"}))
	require.NoError(t, cfg.Validate())

	rc := cfg.RetrievalConfig()
	require.NotNil(t, rc.LambdaMult)
	assert.Equal(t, 0.0, *rc.LambdaMult)
}

func TestProviderConfigOllama(t *testing.T) {
	cfg := Default()
	cfg.OllamaHost = "http://gpu:11434"

	pc := cfg.ProviderConfig()
	assert.Equal(t, provider.Ollama, pc.Provider)
	assert.Equal(t, "http://gpu:11434", pc.BaseURL)
}
