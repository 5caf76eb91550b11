package loader

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/smallnest/pdfqa/internal/pdftest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPDFLoader(t *testing.T) {
	path := pdftest.WriteFile(t, "budget.pdf", []string{
		"Interim Budget 2024-25\nAmrit Kaal as Kartavya Kaal",
		"Direct taxes: no change in tax rates",
		"ASHA workers covered under Ayushman Bharat",
	})

	docs, err := NewPDFLoader(path, WithPDFMetadata(map[string]any{"lang": "en"})).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 3)

	for i, doc := range docs {
		assert.Equal(t, path, doc.Metadata["source"])
		assert.Equal(t, i, doc.Metadata["page"])
		assert.Equal(t, 3, doc.Metadata["total_pages"])
		assert.Equal(t, "en", doc.Metadata["lang"])
	}
	assert.Contains(t, docs[0].Content, "Interim Budget 2024-25")
	assert.Contains(t, docs[0].Content, "Amrit Kaal")
	assert.Contains(t, docs[1].Content, "Direct taxes")
	assert.Contains(t, docs[2].Content, "ASHA workers")
}

func TestPDFLoaderFromReader(t *testing.T) {
	data := pdftest.Build([]string{"uploaded page"})

	docs, err := NewPDFLoaderFromReader(bytes.NewReader(data), int64(len(data)), "upload.pdf").Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "upload.pdf", docs[0].Metadata["source"])
	assert.Contains(t, docs[0].Content, "uploaded page")
}

func TestPDFLoaderErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing file", func(t *testing.T) {
		_, err := NewPDFLoader(filepath.Join(t.TempDir(), "missing.pdf")).Load(ctx)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("not a pdf", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fake.pdf")
		require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("not a pdf "), 20), 0644))

		_, err := NewPDFLoader(path).Load(ctx)
		assert.Error(t, err)
	})

	t.Run("cancelled", func(t *testing.T) {
		path := pdftest.WriteFile(t, "one.pdf", []string{"text"})
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := NewPDFLoader(path).Load(cctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
