package rag

import (
	"context"
	"time"
)

// Search types understood by retrievers.
const (
	SearchTypeSimilarity     = "similarity"
	SearchTypeScoreThreshold = "similarity_score_threshold"
	SearchTypeMMR            = "mmr"
)

// Document is a unit of text flowing through the pipeline: a loaded page,
// or a chunk cut from one.
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"embedding,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Source returns the "source" metadata value, or "" when absent.
func (d Document) Source() string {
	if s, ok := d.Metadata["source"].(string); ok {
		return s
	}
	return ""
}

// Page returns the "page" metadata value and whether it was set.
func (d Document) Page() (int, bool) {
	switch p := d.Metadata["page"].(type) {
	case int:
		return p, true
	case int64:
		return int(p), true
	case float64:
		return int(p), true
	}
	return 0, false
}

// DocumentSearchResult is a document paired with its relevance score.
// Higher scores are more relevant.
type DocumentSearchResult struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// RetrievalConfig controls a single retrieval.
type RetrievalConfig struct {
	K              int            `json:"k"`
	ScoreThreshold float64        `json:"score_threshold"`
	SearchType     string         `json:"search_type"`
	FetchK         int            `json:"fetch_k"`
	LambdaMult     *float64       `json:"lambda_mult,omitempty"`
	Filter         map[string]any `json:"filter,omitempty"`
}

// Float64 returns a pointer to v, for optional config fields such as LambdaMult.
func Float64(v float64) *float64 {
	return &v
}

// VectorStoreStats describes the contents of a vector store.
type VectorStoreStats struct {
	TotalDocuments int       `json:"total_documents"`
	TotalVectors   int       `json:"total_vectors"`
	Dimension      int       `json:"dimension"`
	LastUpdated    time.Time `json:"last_updated"`
}

// DocumentLoader loads documents from a source.
type DocumentLoader interface {
	Load(ctx context.Context) ([]Document, error)
}

// TextSplitter cuts text and documents into chunks.
type TextSplitter interface {
	SplitText(text string) ([]string, error)
	SplitDocuments(docs []Document) ([]Document, error)
}

// Embedder turns text into vectors.
type Embedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	GetDimension() int
}

// VectorStore stores embedded documents and searches them by vector.
type VectorStore interface {
	Add(ctx context.Context, docs []Document) error
	Search(ctx context.Context, query []float32, k int) ([]DocumentSearchResult, error)
	SearchWithFilter(ctx context.Context, query []float32, k int, filter map[string]any) ([]DocumentSearchResult, error)
	Delete(ctx context.Context, ids []string) error
	GetStats(ctx context.Context) (*VectorStoreStats, error)
	Close() error
}

// Retriever fetches the documents relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]Document, error)
	RetrieveWithK(ctx context.Context, query string, k int) ([]Document, error)
	RetrieveWithConfig(ctx context.Context, query string, config *RetrievalConfig) ([]DocumentSearchResult, error)
}
