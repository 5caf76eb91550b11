package rag

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

// LangChainDocumentLoader adapts langchaingo's documentloaders.Loader to our DocumentLoader interface
type LangChainDocumentLoader struct {
	loader   documentloaders.Loader
	idPrefix string
}

// NewLangChainDocumentLoader creates a new adapter for langchaingo document loaders.
// Loaded documents get IDs of the form "<idPrefix>_<n>".
func NewLangChainDocumentLoader(loader documentloaders.Loader, idPrefix string) *LangChainDocumentLoader {
	if idPrefix == "" {
		idPrefix = "doc"
	}
	return &LangChainDocumentLoader{
		loader:   loader,
		idPrefix: idPrefix,
	}
}

// Load loads documents using the underlying langchaingo loader
func (l *LangChainDocumentLoader) Load(ctx context.Context) ([]Document, error) {
	schemaDocs, err := l.loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	docs := FromSchemaDocuments(schemaDocs)
	for i := range docs {
		docs[i].ID = fmt.Sprintf("%s_%d", l.idPrefix, i)
	}
	return docs, nil
}

// FromSchemaDocuments converts langchaingo documents to our Document type.
func FromSchemaDocuments(schemaDocs []schema.Document) []Document {
	docs := make([]Document, len(schemaDocs))
	for i, schemaDoc := range schemaDocs {
		docs[i] = Document{
			ID:       fmt.Sprintf("doc_%d", i),
			Content:  schemaDoc.PageContent,
			Metadata: copyMetadata(schemaDoc.Metadata),
		}
	}
	return docs
}

// ToSchemaDocuments converts documents to langchaingo's schema.Document.
func ToSchemaDocuments(docs []Document) []schema.Document {
	result := make([]schema.Document, len(docs))
	for i, doc := range docs {
		result[i] = schema.Document{
			PageContent: doc.Content,
			Metadata:    copyMetadata(doc.Metadata),
		}
	}
	return result
}

func copyMetadata(metadata map[string]any) map[string]any {
	result := make(map[string]any, len(metadata))
	maps.Copy(result, metadata)
	return result
}

// LangChainTextSplitter adapts langchaingo's textsplitter.TextSplitter to our TextSplitter interface
type LangChainTextSplitter struct {
	splitter textsplitter.TextSplitter
}

// NewLangChainTextSplitter creates a new adapter for langchaingo text splitters
func NewLangChainTextSplitter(splitter textsplitter.TextSplitter) *LangChainTextSplitter {
	return &LangChainTextSplitter{
		splitter: splitter,
	}
}

// SplitText splits text with the wrapped splitter.
func (l *LangChainTextSplitter) SplitText(text string) ([]string, error) {
	return l.splitter.SplitText(text)
}

// SplitDocuments splits every document and tags the chunks with their position.
func (l *LangChainTextSplitter) SplitDocuments(docs []Document) ([]Document, error) {
	var result []Document
	for _, doc := range docs {
		chunks, err := l.splitter.SplitText(doc.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to split document %s: %w", doc.ID, err)
		}
		result = append(result, ChunkDocuments(doc, chunks)...)
	}
	return result, nil
}

// ChunkDocuments builds the chunk documents cut from parent. Chunks inherit
// the parent's metadata and gain chunk_index, chunk_total and parent_id.
func ChunkDocuments(parent Document, chunks []string) []Document {
	result := make([]Document, 0, len(chunks))
	for i, chunk := range chunks {
		metadata := copyMetadata(parent.Metadata)
		metadata["chunk_index"] = i
		metadata["chunk_total"] = len(chunks)
		metadata["parent_id"] = parent.ID

		result = append(result, Document{
			ID:        fmt.Sprintf("%s_chunk_%d", parent.ID, i),
			Content:   chunk,
			Metadata:  metadata,
			CreatedAt: parent.CreatedAt,
			UpdatedAt: parent.UpdatedAt,
		})
	}
	return result
}

// LangChainEmbedder adapts langchaingo's embeddings.Embedder to our Embedder interface
type LangChainEmbedder struct {
	embedder embeddings.Embedder

	mu        sync.Mutex
	dimension int
}

// NewLangChainEmbedder creates a new adapter for langchaingo embedders
func NewLangChainEmbedder(embedder embeddings.Embedder) *LangChainEmbedder {
	return &LangChainEmbedder{
		embedder: embedder,
	}
}

// EmbedDocument embeds a single text as a query.
func (l *LangChainEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	embedding, err := l.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	l.remember(len(embedding))
	return embedding, nil
}

// EmbedDocuments embeds multiple texts in one call.
func (l *LangChainEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := l.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	if len(vectors) > 0 {
		l.remember(len(vectors[0]))
	}
	return vectors, nil
}

// GetDimension returns the embedding dimension seen so far, probing the
// model once if nothing has been embedded yet. Zero means unknown.
func (l *LangChainEmbedder) GetDimension() int {
	l.mu.Lock()
	dim := l.dimension
	l.mu.Unlock()
	if dim > 0 {
		return dim
	}

	probe, err := l.embedder.EmbedQuery(context.Background(), "dimension probe")
	if err != nil {
		return 0
	}
	l.remember(len(probe))
	return len(probe)
}

func (l *LangChainEmbedder) remember(dim int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dimension == 0 {
		l.dimension = dim
	}
}

// SchemaRetriever exposes a Retriever as langchaingo's schema.Retriever so it
// can be plugged into langchaingo chains.
type SchemaRetriever struct {
	retriever Retriever
}

var _ schema.Retriever = (*SchemaRetriever)(nil)

// NewSchemaRetriever wraps r.
func NewSchemaRetriever(r Retriever) *SchemaRetriever {
	return &SchemaRetriever{retriever: r}
}

// GetRelevantDocuments implements schema.Retriever.
func (s *SchemaRetriever) GetRelevantDocuments(ctx context.Context, query string) ([]schema.Document, error) {
	results, err := s.retriever.RetrieveWithConfig(ctx, query, nil)
	if err != nil {
		return nil, err
	}

	docs := make([]schema.Document, len(results))
	for i, res := range results {
		docs[i] = schema.Document{
			PageContent: res.Document.Content,
			Metadata:    copyMetadata(res.Document.Metadata),
			Score:       float32(res.Score),
		}
	}
	return docs, nil
}
