package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/smallnest/pdfqa/log"
	"github.com/smallnest/pdfqa/rag"
)

// PDFLoader loads a PDF as one document per page.
type PDFLoader struct {
	filePath string
	reader   io.ReaderAt
	size     int64
	metadata map[string]any
	password string
}

// PDFLoaderOption configures the PDFLoader
type PDFLoaderOption func(*PDFLoader)

// WithPDFMetadata adds metadata to every page document.
func WithPDFMetadata(metadata map[string]any) PDFLoaderOption {
	return func(l *PDFLoader) {
		maps.Copy(l.metadata, metadata)
	}
}

// WithPassword sets the password used to open encrypted PDFs.
func WithPassword(password string) PDFLoaderOption {
	return func(l *PDFLoader) {
		l.password = password
	}
}

// NewPDFLoader creates a loader for the PDF at filePath.
func NewPDFLoader(filePath string, opts ...PDFLoaderOption) *PDFLoader {
	l := &PDFLoader{
		filePath: filePath,
		metadata: map[string]any{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewPDFLoaderFromReader creates a loader over PDF bytes that are already in
// memory, such as an upload. source is recorded as the "source" metadata.
func NewPDFLoaderFromReader(r io.ReaderAt, size int64, source string, opts ...PDFLoaderOption) *PDFLoader {
	l := NewPDFLoader(source, opts...)
	l.reader = r
	l.size = size
	return l
}

// Load reads every page. Page numbers in metadata start at 0.
func (l *PDFLoader) Load(ctx context.Context) (docs []rag.Document, err error) {
	r, err := l.open()
	if err != nil {
		return nil, err
	}

	// the pdf package panics on some malformed content streams
	defer func() {
		if rec := recover(); rec != nil {
			docs = nil
			err = fmt.Errorf("failed to parse PDF %s: %v", l.filePath, rec)
		}
	}()

	total := r.NumPage()
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := r.Page(i)
		if page.V.IsNull() {
			log.Debug("skipping null page %d of %s", i, l.filePath)
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}

		text, err := page.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d of %s: %w", i, l.filePath, err)
		}

		metadata := make(map[string]any, len(l.metadata)+4)
		maps.Copy(metadata, l.metadata)
		metadata["source"] = l.filePath
		metadata["page"] = i - 1
		metadata["total_pages"] = total
		metadata["type"] = "pdf"

		docs = append(docs, rag.Document{
			ID:       fmt.Sprintf("%s_page_%d", l.filePath, i-1),
			Content:  strings.TrimRight(text, " \n"),
			Metadata: metadata,
		})
	}

	log.Info("loaded %d pages from %s", len(docs), l.filePath)
	return docs, nil
}

func (l *PDFLoader) open() (*pdf.Reader, error) {
	ra, size := l.reader, l.size
	if ra == nil {
		data, err := os.ReadFile(l.filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open file %s: %w", l.filePath, err)
		}
		ra, size = bytes.NewReader(data), int64(len(data))
	}

	var pw func() string
	if l.password != "" {
		tried := false
		pw = func() string {
			if tried {
				return ""
			}
			tried = true
			return l.password
		}
	}

	r, err := pdf.NewReaderEncrypted(ra, size, pw)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF %s: %w", l.filePath, err)
	}
	return r, nil
}
