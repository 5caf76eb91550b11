package store

import (
	"context"
	"fmt"

	"github.com/smallnest/pdfqa/log"
	"github.com/smallnest/pdfqa/rag"
)

// FromDocuments embeds docs in one batch with embedder and adds them to vs.
func FromDocuments(ctx context.Context, docs []rag.Document, embedder rag.Embedder, vs rag.VectorStore) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}

	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed %d chunks: %w", len(docs), err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("failed to embed chunks: got %d vectors for %d chunks", len(vectors), len(docs))
	}

	embedded := make([]rag.Document, len(docs))
	for i, doc := range docs {
		doc.Embedding = vectors[i]
		embedded[i] = doc
	}

	if err := vs.Add(ctx, embedded); err != nil {
		return fmt.Errorf("failed to index chunks: %w", err)
	}

	log.Info("indexed %d chunks (dimension %d)", len(docs), len(vectors[0]))
	return nil
}
