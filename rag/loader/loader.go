// Package loader turns files into rag documents.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/smallnest/pdfqa/rag"
	"github.com/tmc/langchaingo/documentloaders"
)

// ErrUnsupportedFile is returned by ForFile for unknown extensions.
var ErrUnsupportedFile = errors.New("unsupported file type")

// ForFile picks a loader from the file extension.
func ForFile(path string) (rag.DocumentLoader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return NewPDFLoader(path), nil
	case ".txt", ".md", ".markdown":
		return NewTextLoader(path), nil
	case ".html", ".htm":
		return NewHTMLLoader(path, ""), nil
	case ".csv":
		return &csvLoader{path: path}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
	}
}

// csvLoader loads one document per CSV row through langchaingo's CSV loader.
type csvLoader struct {
	path string
}

func (l *csvLoader) Load(ctx context.Context) ([]rag.Document, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", l.path, err)
	}
	defer f.Close()

	docs, err := rag.NewLangChainDocumentLoader(documentloaders.NewCSV(f), l.path+"_row").Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load CSV %s: %w", l.path, err)
	}
	for i := range docs {
		docs[i].Metadata["source"] = l.path
		docs[i].Metadata["type"] = "csv"
	}
	return docs, nil
}
