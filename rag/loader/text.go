package loader

import (
	"context"
	"fmt"
	"maps"
	"os"

	"github.com/smallnest/pdfqa/rag"
)

// TextLoader loads documents from text files
type TextLoader struct {
	filePath string
	metadata map[string]any
}

// TextLoaderOption configures the TextLoader
type TextLoaderOption func(*TextLoader)

// WithMetadata sets additional metadata for loaded documents
func WithMetadata(metadata map[string]any) TextLoaderOption {
	return func(l *TextLoader) {
		maps.Copy(l.metadata, metadata)
	}
}

// NewTextLoader creates a new TextLoader
func NewTextLoader(filePath string, opts ...TextLoaderOption) *TextLoader {
	l := &TextLoader{
		filePath: filePath,
		metadata: make(map[string]any),
	}

	l.metadata["source"] = filePath
	l.metadata["type"] = "text"

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Load reads the whole file into a single document.
func (l *TextLoader) Load(ctx context.Context) ([]rag.Document, error) {
	content, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", l.filePath, err)
	}

	metadata := make(map[string]any, len(l.metadata))
	maps.Copy(metadata, l.metadata)

	return []rag.Document{{
		ID:       fmt.Sprintf("text_%s", l.filePath),
		Content:  string(content),
		Metadata: metadata,
	}}, nil
}
