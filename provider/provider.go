// Package provider builds the chat model and the embedder used by the pipeline.
package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/smallnest/pdfqa/llms/openai"
	"github.com/smallnest/pdfqa/log"
	"github.com/smallnest/pdfqa/rag"
)

const (
	Ollama = "ollama"
	OpenAI = "openai"

	DefaultOllamaURL = "http://localhost:11434"
	DefaultModel     = "llama2"
)

// ErrUnknownProvider is returned for a provider name other than ollama or openai.
var ErrUnknownProvider = errors.New("unknown provider")

// Config selects and configures the model backend.
type Config struct {
	Provider   string
	Model      string
	EmbedModel string // defaults to Model
	BaseURL    string
	APIKey     string
	BatchSize  int
	HTTPClient *http.Client
}

// Models holds the chat model and the embedder built from one Config.
type Models struct {
	LLM      llms.Model
	Embedder rag.Embedder
}

// Names lists the supported providers.
func Names() []string {
	return []string{Ollama, OpenAI}
}

// Valid reports whether name is a supported provider.
func Valid(name string) bool {
	switch strings.ToLower(name) {
	case Ollama, OpenAI:
		return true
	}
	return false
}

// New creates the models for cfg.
func New(cfg Config) (*Models, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = cfg.Model
	}

	var (
		chat  llms.Model
		embed embeddings.EmbedderClient
		err   error
	)
	switch strings.ToLower(cfg.Provider) {
	case "", Ollama:
		chat, embed, err = newOllama(cfg)
	case OpenAI:
		chat, embed, err = newOpenAI(cfg)
	default:
		return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownProvider, cfg.Provider, strings.Join(Names(), ", "))
	}
	if err != nil {
		return nil, err
	}

	var opts []embeddings.Option
	if cfg.BatchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(cfg.BatchSize))
	}
	emb, err := embeddings.NewEmbedder(embed, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	log.Debug("using %s provider, model %s, embedding model %s", providerName(cfg.Provider), cfg.Model, cfg.EmbedModel)
	return &Models{
		LLM:      chat,
		Embedder: rag.NewLangChainEmbedder(emb),
	}, nil
}

func providerName(p string) string {
	if p == "" {
		return Ollama
	}
	return strings.ToLower(p)
}

func newOllama(cfg Config) (llms.Model, embeddings.EmbedderClient, error) {
	url := cfg.BaseURL
	if url == "" {
		url = DefaultOllamaURL
	}

	build := func(model string) (*ollama.LLM, error) {
		opts := []ollama.Option{ollama.WithModel(model), ollama.WithServerURL(url)}
		if cfg.HTTPClient != nil {
			opts = append(opts, ollama.WithHTTPClient(cfg.HTTPClient))
		}
		return ollama.New(opts...)
	}

	chat, err := build(cfg.Model)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create ollama model: %w", err)
	}
	if cfg.EmbedModel == cfg.Model {
		return chat, chat, nil
	}
	embed, err := build(cfg.EmbedModel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create ollama embedding model: %w", err)
	}
	return chat, embed, nil
}

func newOpenAI(cfg Config) (llms.Model, embeddings.EmbedderClient, error) {
	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.EmbedModel),
	}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, openai.WithHTTPClient(cfg.HTTPClient))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create openai model: %w", err)
	}
	return llm, llm, nil
}
