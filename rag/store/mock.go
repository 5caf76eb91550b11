package store

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// MockEmbedder is a deterministic bag-of-words embedder: each lower-cased
// word is hashed into one of Dimension buckets and the result is normalised.
// Texts sharing words get similar vectors, which is enough to exercise
// retrieval without a model server.
type MockEmbedder struct {
	Dimension int
}

// NewMockEmbedder creates a new MockEmbedder
func NewMockEmbedder(dimension int) *MockEmbedder {
	return &MockEmbedder{
		Dimension: dimension,
	}
}

// EmbedDocument generates mock embedding for a document
func (e *MockEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return e.generateEmbedding(text), nil
}

// EmbedDocuments generates mock embeddings for documents
func (e *MockEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = e.generateEmbedding(text)
	}
	return embeddings, nil
}

// GetDimension returns the embedding dimension
func (e *MockEmbedder) GetDimension() int {
	return e.Dimension
}

func (e *MockEmbedder) generateEmbedding(text string) []float32 {
	embedding := make([]float32, e.Dimension)

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		embedding[h.Sum32()%uint32(e.Dimension)]++
	}

	var norm float64
	for _, v := range embedding {
		norm += float64(v * v)
	}
	if norm == 0 {
		embedding[0] = 1
		return embedding
	}
	norm = math.Sqrt(norm)
	for i := range embedding {
		embedding[i] = float32(float64(embedding[i]) / norm)
	}

	return embedding
}
