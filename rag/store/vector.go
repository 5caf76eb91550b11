package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/smallnest/pdfqa/rag"
)

// DistanceStrategy selects how query and document vectors are compared.
type DistanceStrategy string

const (
	// Cosine scores by cosine similarity.
	Cosine DistanceStrategy = "cosine"
	// Euclidean scores by 1/(1+d) where d is the L2 distance.
	Euclidean DistanceStrategy = "euclidean"
	// InnerProduct scores by the dot product.
	InnerProduct DistanceStrategy = "inner_product"
)

var (
	// ErrNotFound is returned when updating a document that is not stored.
	ErrNotFound = errors.New("document not found")
	// ErrDimensionMismatch is returned when a vector does not match the store dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrNoEmbedder is returned when a document without an embedding is added
	// to a store that has no embedder.
	ErrNoEmbedder = errors.New("no embedder configured and document has no embedding")
)

// ParseDistanceStrategy converts a name into a DistanceStrategy.
func ParseDistanceStrategy(s string) (DistanceStrategy, error) {
	switch DistanceStrategy(s) {
	case "", Cosine:
		return Cosine, nil
	case Euclidean, "l2":
		return Euclidean, nil
	case InnerProduct, "ip", "dot":
		return InnerProduct, nil
	}
	return "", fmt.Errorf("unknown distance strategy %q", s)
}

// InMemoryVectorStore is a flat, exact-search vector index held in memory.
// It is safe for concurrent use.
type InMemoryVectorStore struct {
	mu          sync.RWMutex
	documents   []rag.Document
	embeddings  [][]float32
	embedder    rag.Embedder
	strategy    DistanceStrategy
	lastUpdated time.Time
}

var _ rag.VectorStore = (*InMemoryVectorStore)(nil)

// InMemoryOption configures an InMemoryVectorStore.
type InMemoryOption func(*InMemoryVectorStore)

// WithDistanceStrategy sets the scoring function.
func WithDistanceStrategy(strategy DistanceStrategy) InMemoryOption {
	return func(s *InMemoryVectorStore) {
		s.strategy = strategy
	}
}

// NewInMemoryVectorStore creates a new InMemoryVectorStore. embedder may be
// nil when every added document carries its own embedding.
func NewInMemoryVectorStore(embedder rag.Embedder, opts ...InMemoryOption) *InMemoryVectorStore {
	s := &InMemoryVectorStore{
		documents:  make([]rag.Document, 0),
		embeddings: make([][]float32, 0),
		embedder:   embedder,
		strategy:   Cosine,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add stores documents, embedding in one batch those that have no embedding yet.
func (s *InMemoryVectorStore) Add(ctx context.Context, documents []rag.Document) error {
	if len(documents) == 0 {
		return nil
	}

	var (
		missing []int
		texts   []string
	)
	for i, doc := range documents {
		if len(doc.Embedding) == 0 {
			missing = append(missing, i)
			texts = append(texts, doc.Content)
		}
	}

	embeddings := make([][]float32, len(documents))
	for i, doc := range documents {
		embeddings[i] = doc.Embedding
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
		for j, idx := range missing {
			embeddings[idx] = vectors[j]
		}
	}

	return s.AddBatch(ctx, documents, embeddings)
}

// AddBatch adds documents with explicit embeddings. A document whose ID is
// already stored replaces the stored copy in place and keeps its CreatedAt.
func (s *InMemoryVectorStore) AddBatch(ctx context.Context, documents []rag.Document, embeddings [][]float32) error {
	if len(documents) != len(embeddings) {
		return fmt.Errorf("documents and embeddings must have same length")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dimensionLocked()
	for i, emb := range embeddings {
		if len(emb) == 0 {
			return fmt.Errorf("document %s has an empty embedding", documents[i].ID)
		}
		if dim == 0 {
			dim = len(emb)
		}
		if len(emb) != dim {
			return fmt.Errorf("%w: document %s has %d, store has %d", ErrDimensionMismatch, documents[i].ID, len(emb), dim)
		}
	}

	positions := make(map[string]int, len(s.documents))
	for i, doc := range s.documents {
		if doc.ID != "" {
			positions[doc.ID] = i
		}
	}

	now := time.Now()
	for i, doc := range documents {
		doc.UpdatedAt = now
		doc.Embedding = embeddings[i]
		if pos, ok := positions[doc.ID]; ok && doc.ID != "" {
			if doc.CreatedAt.IsZero() {
				doc.CreatedAt = s.documents[pos].CreatedAt
			}
			s.documents[pos] = doc
			s.embeddings[pos] = embeddings[i]
			continue
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}
		if doc.ID != "" {
			positions[doc.ID] = len(s.documents)
		}
		s.documents = append(s.documents, doc)
		s.embeddings = append(s.embeddings, embeddings[i])
	}
	s.lastUpdated = now
	return nil
}

// Search returns the k documents scoring highest against queryEmbedding,
// best first. Equal scores keep insertion order.
func (s *InMemoryVectorStore) Search(ctx context.Context, queryEmbedding []float32, k int) ([]rag.DocumentSearchResult, error) {
	return s.SearchWithFilter(ctx, queryEmbedding, k, nil)
}

// SearchWithFilter is Search restricted to documents whose metadata contains
// every key/value pair of filter.
func (s *InMemoryVectorStore) SearchWithFilter(ctx context.Context, queryEmbedding []float32, k int, filter map[string]any) ([]rag.DocumentSearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.documents) == 0 {
		return []rag.DocumentSearchResult{}, nil
	}
	if dim := s.dimensionLocked(); len(queryEmbedding) != dim {
		return nil, fmt.Errorf("%w: query has %d, store has %d", ErrDimensionMismatch, len(queryEmbedding), dim)
	}

	type docScore struct {
		index int
		score float64
	}

	scores := make([]docScore, 0, len(s.documents))
	for i, doc := range s.documents {
		if !matchesFilter(doc, filter) {
			continue
		}
		scores = append(scores, docScore{index: i, score: s.score(queryEmbedding, s.embeddings[i])})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	if k > len(scores) {
		k = len(scores)
	}

	results := make([]rag.DocumentSearchResult, k)
	for i := 0; i < k; i++ {
		results[i] = rag.DocumentSearchResult{
			Document: s.documents[scores[i].index],
			Score:    scores[i].score,
		}
	}

	return results, nil
}

// Delete removes documents by ID
func (s *InMemoryVectorStore) Delete(ctx context.Context, ids []string) error {
	idMap := make(map[string]bool, len(ids))
	for _, id := range ids {
		idMap[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.documents[:0]
	embeddings := s.embeddings[:0]
	for i, doc := range s.documents {
		if !idMap[doc.ID] {
			docs = append(docs, doc)
			embeddings = append(embeddings, s.embeddings[i])
		}
	}

	s.documents = docs
	s.embeddings = embeddings
	s.lastUpdated = time.Now()
	return nil
}

// Update replaces stored documents with the same IDs, re-embedding those
// that carry no embedding.
func (s *InMemoryVectorStore) Update(ctx context.Context, documents []rag.Document) error {
	for _, doc := range documents {
		embedding := doc.Embedding
		if len(embedding) == 0 {
			if s.embedder == nil {
				return fmt.Errorf("%w: %s", ErrNoEmbedder, doc.ID)
			}
			var err error
			embedding, err = s.embedder.EmbedDocument(ctx, doc.Content)
			if err != nil {
				return fmt.Errorf("failed to embed document %s: %w", doc.ID, err)
			}
		}

		if err := s.replace(doc, embedding); err != nil {
			return err
		}
	}
	return nil
}

func (s *InMemoryVectorStore) replace(doc rag.Document, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dim := s.dimensionLocked(); dim != 0 && len(embedding) != dim {
		return fmt.Errorf("%w: document %s has %d, store has %d", ErrDimensionMismatch, doc.ID, len(embedding), dim)
	}

	for i, existing := range s.documents {
		if existing.ID == doc.ID {
			doc.CreatedAt = existing.CreatedAt
			doc.UpdatedAt = time.Now()
			doc.Embedding = embedding
			s.documents[i] = doc
			s.embeddings[i] = embedding
			s.lastUpdated = doc.UpdatedAt
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, doc.ID)
}

// GetStats returns statistics about the vector store
func (s *InMemoryVectorStore) GetStats(ctx context.Context) (*rag.VectorStoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &rag.VectorStoreStats{
		TotalDocuments: len(s.documents),
		TotalVectors:   len(s.embeddings),
		Dimension:      s.dimensionLocked(),
		LastUpdated:    s.lastUpdated,
	}, nil
}

// Documents returns a copy of the stored documents in insertion order.
func (s *InMemoryVectorStore) Documents() []rag.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]rag.Document(nil), s.documents...)
}

// Close drops all stored data.
func (s *InMemoryVectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents = make([]rag.Document, 0)
	s.embeddings = make([][]float32, 0)
	return nil
}

func (s *InMemoryVectorStore) dimensionLocked() int {
	if len(s.embeddings) == 0 {
		return 0
	}
	return len(s.embeddings[0])
}

func (s *InMemoryVectorStore) score(query, doc []float32) float64 {
	switch s.strategy {
	case Euclidean:
		return 1 / (1 + euclideanDistance32(query, doc))
	case InnerProduct:
		return dotProduct32(query, doc)
	default:
		return CosineSimilarity(query, doc)
	}
}

// matchesFilter checks if a document matches the given filter
func matchesFilter(doc rag.Document, filter map[string]any) bool {
	for key, value := range filter {
		docValue, exists := doc.Metadata[key]
		if !exists || !reflect.DeepEqual(docValue, value) {
			return false
		}
	}
	return true
}

// CosineSimilarity calculates cosine similarity between two float32 vectors.
// Vectors of different length or zero norm score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func dotProduct32(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func euclideanDistance32(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
