// Package assistant wires the document question-answering pipeline:
// loading, splitting, embedding, indexing, retrieval, memory and the
// conversational retrieval chain.
package assistant

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/pdfqa/chain"
	"github.com/smallnest/pdfqa/config"
	"github.com/smallnest/pdfqa/graph"
	"github.com/smallnest/pdfqa/log"
	"github.com/smallnest/pdfqa/memory"
	"github.com/smallnest/pdfqa/provider"
	"github.com/smallnest/pdfqa/rag"
	"github.com/smallnest/pdfqa/rag/loader"
	"github.com/smallnest/pdfqa/rag/retriever"
	"github.com/smallnest/pdfqa/rag/splitter"
	"github.com/smallnest/pdfqa/rag/store"
	histstore "github.com/smallnest/pdfqa/store"
)

// ErrEmptyIndex is returned when a question is asked before anything was ingested.
var ErrEmptyIndex = errors.New("no documents have been ingested")

// DefaultMaxSessions bounds the conversation chains kept in memory.
const DefaultMaxSessions = 256

// IngestReport summarizes one ingestion.
type IngestReport struct {
	Source    string `json:"source"`
	Pages     int    `json:"pages"`
	Chunks    int    `json:"chunks"`
	Dimension int    `json:"dimension"`
}

// Assistant answers questions about ingested documents, keeping one
// conversation window per session.
type Assistant struct {
	cfg         *config.Config
	llm         llms.Model
	embedder    rag.Embedder
	splitter    *splitter.RecursiveCharacterTextSplitter
	vectorStore rag.VectorStore
	retriever   *retriever.VectorRetriever
	history     histstore.HistoryStore

	// chains holds the most recently used session chains, front first.
	// An evicted session is restored from the history store on its next question.
	mu          sync.Mutex
	chains      map[string]*list.Element
	lru         *list.List
	maxSessions int
}

type sessionChain struct {
	id    string
	chain *chain.ConversationalRetrievalChain
}

// Option overrides a component that New would otherwise build from the config.
type Option func(*Assistant)

// WithLLM sets the chat model.
func WithLLM(llm llms.Model) Option {
	return func(a *Assistant) {
		a.llm = llm
	}
}

// WithEmbedder sets the embedder.
func WithEmbedder(e rag.Embedder) Option {
	return func(a *Assistant) {
		a.embedder = e
	}
}

// WithVectorStore sets the vector store.
func WithVectorStore(vs rag.VectorStore) Option {
	return func(a *Assistant) {
		a.vectorStore = vs
	}
}

// WithHistoryStore sets the history store.
func WithHistoryStore(hs histstore.HistoryStore) Option {
	return func(a *Assistant) {
		a.history = hs
	}
}

// WithMaxSessions caps the number of session chains kept in memory.
func WithMaxSessions(n int) Option {
	return func(a *Assistant) {
		a.maxSessions = n
	}
}

// New validates cfg and builds every component not supplied through opts.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Assistant, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Assistant{
		cfg:         cfg,
		chains:      make(map[string]*list.Element),
		lru:         list.New(),
		maxSessions: DefaultMaxSessions,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.maxSessions <= 0 {
		a.maxSessions = DefaultMaxSessions
	}

	if a.llm == nil || a.embedder == nil {
		models, err := provider.New(cfg.ProviderConfig())
		if err != nil {
			return nil, err
		}
		if a.llm == nil {
			a.llm = models.LLM
		}
		if a.embedder == nil {
			a.embedder = models.Embedder
		}
	}

	sp, err := splitter.NewRecursiveCharacterTextSplitter(
		splitter.WithChunkSize(cfg.ChunkSize),
		splitter.WithChunkOverlap(cfg.ChunkOverlap),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create splitter: %w", err)
	}
	a.splitter = sp

	if a.vectorStore == nil {
		if a.vectorStore, err = OpenVectorStore(ctx, cfg, a.embedder); err != nil {
			return nil, fmt.Errorf("failed to open vector store: %w", err)
		}
	}

	a.retriever, err = retriever.NewVectorRetriever(a.vectorStore, a.embedder, cfg.RetrievalConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create retriever: %w", err)
	}

	if a.history == nil {
		if a.history, err = OpenHistoryStore(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to open history store: %w", err)
		}
	}

	return a, nil
}

// Config returns the assistant's configuration.
func (a *Assistant) Config() *config.Config {
	return a.cfg
}

// Ingest loads the file at path, splits it into chunks and indexes them.
// The in-memory index is saved to the configured index path afterwards.
func (a *Assistant) Ingest(ctx context.Context, path string) (*IngestReport, error) {
	l, err := loader.ForFile(path)
	if err != nil {
		return nil, err
	}
	pages, err := l.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	report, err := a.IngestDocuments(ctx, pages)
	if err != nil {
		return nil, err
	}
	report.Source = path
	return report, nil
}

// IngestDocuments splits and indexes already loaded documents.
func (a *Assistant) IngestDocuments(ctx context.Context, docs []rag.Document) (*IngestReport, error) {
	chunks, err := a.splitter.SplitDocuments(docs)
	if err != nil {
		return nil, fmt.Errorf("failed to split documents: %w", err)
	}

	if err := store.FromDocuments(ctx, chunks, a.embedder, a.vectorStore); err != nil {
		return nil, err
	}

	if mem, ok := a.vectorStore.(*store.InMemoryVectorStore); ok && a.cfg.IndexPath != "" {
		if err := mem.Save(a.cfg.IndexPath); err != nil {
			return nil, err
		}
	}

	stats, err := a.vectorStore.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read index stats: %w", err)
	}
	return &IngestReport{
		Pages:     len(docs),
		Chunks:    len(chunks),
		Dimension: stats.Dimension,
	}, nil
}

// Stats describes the index.
func (a *Assistant) Stats(ctx context.Context) (*rag.VectorStoreStats, error) {
	return a.vectorStore.GetStats(ctx)
}

// Ask answers question in the configured session.
func (a *Assistant) Ask(ctx context.Context, question string) (*chain.ChainOutput, error) {
	return a.AskSession(ctx, a.cfg.Session, question)
}

// AskSession answers question in the given session, creating its memory on first use.
func (a *Assistant) AskSession(ctx context.Context, sessionID, question string) (*chain.ChainOutput, error) {
	stats, err := a.vectorStore.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read index stats: %w", err)
	}
	if stats.TotalDocuments == 0 {
		return nil, ErrEmptyIndex
	}

	c, err := a.chain(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := c.Invoke(ctx, chain.ChainInput{Question: question})
	if err != nil {
		return nil, err
	}
	log.Debug("answered in session %s in %v with %d sources", sessionID, time.Since(start), len(out.SourceDocuments))
	return out, nil
}

// Generate sends prompt straight to the model, bypassing retrieval and memory.
func (a *Assistant) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, a.llm, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate: %w", err)
	}
	return out, nil
}

// SimilaritySearch returns the k chunks closest to query. k <= 0 uses the configured k.
func (a *Assistant) SimilaritySearch(ctx context.Context, query string, k int) ([]rag.DocumentSearchResult, error) {
	if k <= 0 {
		k = a.cfg.TopK
	}
	return a.retriever.SimilaritySearch(ctx, query, k)
}

// History returns the window of the configured session.
func (a *Assistant) History(ctx context.Context) ([]*memory.Message, error) {
	return a.SessionHistory(ctx, a.cfg.Session)
}

// SessionHistory returns the last k turns of a session, oldest first.
// Reading a session that was never asked in returns no messages and does
// not create it.
func (a *Assistant) SessionHistory(ctx context.Context, sessionID string) ([]*memory.Message, error) {
	if c, ok := a.cachedChain(sessionID); ok {
		return c.Memory().History(), nil
	}
	if err := histstore.ValidateSession(sessionID); err != nil {
		return nil, err
	}

	msgs, err := a.history.Load(ctx, sessionID)
	switch {
	case errors.Is(err, histstore.ErrSessionNotFound):
		return []*memory.Message{}, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	return memory.LastTurns(msgs, a.cfg.Window), nil
}

// ClearSession forgets a session's conversation.
func (a *Assistant) ClearSession(ctx context.Context, sessionID string) error {
	if c, ok := a.cachedChain(sessionID); ok {
		return c.Memory().Clear(ctx)
	}
	if err := histstore.ValidateSession(sessionID); err != nil {
		return err
	}
	if err := a.history.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Sessions lists the sessions known to the history store.
func (a *Assistant) Sessions(ctx context.Context) ([]string, error) {
	return a.history.Sessions(ctx)
}

// Close releases the stores.
func (a *Assistant) Close() error {
	return errors.Join(a.history.Close(), a.vectorStore.Close())
}

// cachedChain returns the chain of a session that is already in memory.
func (a *Assistant) cachedChain(sessionID string) (*chain.ConversationalRetrievalChain, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	el, ok := a.chains[sessionID]
	if !ok {
		return nil, false
	}
	a.lru.MoveToFront(el)
	return el.Value.(*sessionChain).chain, true
}

func (a *Assistant) chain(ctx context.Context, sessionID string) (*chain.ConversationalRetrievalChain, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if el, ok := a.chains[sessionID]; ok {
		a.lru.MoveToFront(el)
		return el.Value.(*sessionChain).chain, nil
	}

	mem, err := memory.NewPersistentWindowMemory(ctx, a.cfg.Window, a.history, sessionID)
	if err != nil {
		return nil, err
	}

	opts := []chain.Option{
		chain.WithMemory(mem),
		chain.WithReturnSourceDocuments(true),
	}
	if a.cfg.Retries > 0 {
		opts = append(opts, chain.WithRetryPolicy(&graph.RetryPolicy{
			MaxRetries:      a.cfg.Retries,
			BackoffStrategy: graph.ExponentialBackoff,
			BaseDelay:       500 * time.Millisecond,
		}))
	}

	c, err := chain.NewConversationalRetrievalChain(a.llm, a.retriever, opts...)
	if err != nil {
		return nil, err
	}
	a.chains[sessionID] = a.lru.PushFront(&sessionChain{id: sessionID, chain: c})
	for a.lru.Len() > a.maxSessions {
		oldest := a.lru.Back()
		a.lru.Remove(oldest)
		delete(a.chains, oldest.Value.(*sessionChain).id)
		log.Debug("evicted session %s from memory", oldest.Value.(*sessionChain).id)
	}
	return c, nil
}
