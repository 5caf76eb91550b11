package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

type mockLCEmbedder struct {
	calls int
	err   error
}

func (m *mockLCEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	res := make([][]float32, len(texts))
	for i := range texts {
		res[i] = []float32{0.1, 0.2, 0.3}
	}
	return res, nil
}

func (m *mockLCEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type mockRetriever struct {
	results []DocumentSearchResult
}

func (m *mockRetriever) Retrieve(ctx context.Context, query string) ([]Document, error) {
	return m.RetrieveWithK(ctx, query, len(m.results))
}

func (m *mockRetriever) RetrieveWithK(ctx context.Context, query string, k int) ([]Document, error) {
	docs := make([]Document, 0, k)
	for _, r := range m.results[:k] {
		docs = append(docs, r.Document)
	}
	return docs, nil
}

func (m *mockRetriever) RetrieveWithConfig(ctx context.Context, query string, config *RetrievalConfig) ([]DocumentSearchResult, error) {
	return m.results, nil
}

func TestLangChainDocumentLoader(t *testing.T) {
	csv := "name,role\nAsha,worker\nAnganwadi,centre\n"
	adapter := NewLangChainDocumentLoader(documentloaders.NewCSV(strings.NewReader(csv)), "people")

	docs, err := adapter.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "people_0", docs[0].ID)
	assert.Contains(t, docs[0].Content, "Asha")
	assert.Equal(t, "people_1", docs[1].ID)
}

func TestSchemaConversion(t *testing.T) {
	in := []schema.Document{{PageContent: "page one", Metadata: map[string]any{"page": 0}}}
	docs := FromSchemaDocuments(in)
	require.Len(t, docs, 1)
	assert.Equal(t, "page one", docs[0].Content)

	// metadata must be copied, not shared
	docs[0].Metadata["page"] = 9
	assert.Equal(t, 0, in[0].Metadata["page"])

	out := ToSchemaDocuments(docs)
	assert.Equal(t, "page one", out[0].PageContent)
	assert.Equal(t, 9, out[0].Metadata["page"])
}

func TestLangChainTextSplitter(t *testing.T) {
	adapter := NewLangChainTextSplitter(textsplitter.NewMarkdownTextSplitter(
		textsplitter.WithChunkSize(40),
		textsplitter.WithChunkOverlap(0),
	))

	parent := Document{
		ID:       "notes",
		Content:  "# Budget\n\nThe budget covers taxes.\n\n# Housing\n\nPM Awas Yojana builds homes.",
		Metadata: map[string]any{"source": "notes.md"},
	}

	chunks, err := adapter.SplitDocuments([]Document{parent})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.Equal(t, "notes.md", c.Metadata["source"])
		assert.Equal(t, i, c.Metadata["chunk_index"])
		assert.Equal(t, len(chunks), c.Metadata["chunk_total"])
		assert.Equal(t, "notes", c.Metadata["parent_id"])
	}
	assert.Equal(t, "notes_chunk_0", chunks[0].ID)
}

func TestLangChainEmbedder(t *testing.T) {
	ctx := context.Background()
	lc := &mockLCEmbedder{}
	adapter := NewLangChainEmbedder(lc)

	emb, err := adapter.EmbedDocument(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, emb)

	embs, err := adapter.EmbedDocuments(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, embs, 2)

	calls := lc.calls
	assert.Equal(t, 3, adapter.GetDimension())
	assert.Equal(t, calls, lc.calls, "dimension should be cached")
}

func TestLangChainEmbedder_Errors(t *testing.T) {
	adapter := NewLangChainEmbedder(&mockLCEmbedder{err: errors.New("model not found")})

	_, err := adapter.EmbedDocuments(context.Background(), []string{"a"})
	assert.EqualError(t, err, "model not found")
	assert.Equal(t, 0, adapter.GetDimension())
}

func TestSchemaRetriever(t *testing.T) {
	r := NewSchemaRetriever(&mockRetriever{results: []DocumentSearchResult{
		{Document: Document{Content: "ASHA workers", Metadata: map[string]any{"page": 3}}, Score: 0.9},
	}})

	docs, err := r.GetRelevantDocuments(context.Background(), "ASHA")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "ASHA workers", docs[0].PageContent)
	assert.InDelta(t, 0.9, docs[0].Score, 1e-6)
}

func TestDocumentAccessors(t *testing.T) {
	d := Document{Metadata: map[string]any{"source": "a.pdf", "page": 2}}
	assert.Equal(t, "a.pdf", d.Source())
	p, ok := d.Page()
	assert.True(t, ok)
	assert.Equal(t, 2, p)

	_, ok = Document{}.Page()
	assert.False(t, ok)
	assert.Equal(t, "", Document{}.Source())
}
