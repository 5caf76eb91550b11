package splitter

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/smallnest/pdfqa/log"
	"github.com/smallnest/pdfqa/rag"
)

// Default chunking parameters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// DefaultSeparators are tried in order: paragraphs, lines, words, characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// ErrInvalidChunkConfig is returned for a non-positive chunk size or an
// overlap that is negative or not smaller than the chunk size.
var ErrInvalidChunkConfig = errors.New("invalid chunk configuration")

// RecursiveCharacterTextSplitter recursively splits text while keeping related pieces together
type RecursiveCharacterTextSplitter struct {
	separators   []string
	chunkSize    int
	chunkOverlap int
	lengthFunc   func(string) int
}

var _ rag.TextSplitter = (*RecursiveCharacterTextSplitter)(nil)

// RecursiveCharacterTextSplitterOption configures the RecursiveCharacterTextSplitter
type RecursiveCharacterTextSplitterOption func(*RecursiveCharacterTextSplitter)

// WithChunkSize sets the chunk size for the splitter
func WithChunkSize(size int) RecursiveCharacterTextSplitterOption {
	return func(s *RecursiveCharacterTextSplitter) {
		s.chunkSize = size
	}
}

// WithChunkOverlap sets the chunk overlap for the splitter
func WithChunkOverlap(overlap int) RecursiveCharacterTextSplitterOption {
	return func(s *RecursiveCharacterTextSplitter) {
		s.chunkOverlap = overlap
	}
}

// WithSeparators sets the custom separators for the splitter
func WithSeparators(separators []string) RecursiveCharacterTextSplitterOption {
	return func(s *RecursiveCharacterTextSplitter) {
		s.separators = separators
	}
}

// WithLengthFunction sets a custom length function. The default counts runes.
func WithLengthFunction(fn func(string) int) RecursiveCharacterTextSplitterOption {
	return func(s *RecursiveCharacterTextSplitter) {
		s.lengthFunc = fn
	}
}

// NewRecursiveCharacterTextSplitter creates a splitter with chunk size 1000,
// overlap 200 and the default separators unless overridden.
func NewRecursiveCharacterTextSplitter(opts ...RecursiveCharacterTextSplitterOption) (*RecursiveCharacterTextSplitter, error) {
	s := &RecursiveCharacterTextSplitter{
		separators:   DefaultSeparators,
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		lengthFunc:   utf8.RuneCountInString,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.chunkSize <= 0 || s.chunkOverlap < 0 || s.chunkOverlap >= s.chunkSize {
		return nil, fmt.Errorf("%w: size %d, overlap %d", ErrInvalidChunkConfig, s.chunkSize, s.chunkOverlap)
	}
	if len(s.separators) == 0 {
		s.separators = DefaultSeparators
	}

	return s, nil
}

// SplitText splits text into chunks no longer than the chunk size, with
// consecutive chunks sharing up to the overlap.
func (s *RecursiveCharacterTextSplitter) SplitText(text string) ([]string, error) {
	return s.splitText(text, s.separators), nil
}

// SplitDocuments splits documents into chunks
func (s *RecursiveCharacterTextSplitter) SplitDocuments(docs []rag.Document) ([]rag.Document, error) {
	chunks := make([]rag.Document, 0, len(docs))

	for _, doc := range docs {
		textChunks, err := s.SplitText(doc.Content)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, rag.ChunkDocuments(doc, textChunks)...)
	}

	log.Info("split %d documents into %d chunks", len(docs), len(chunks))
	return chunks, nil
}

// splitText picks the first separator present in text, splits on it and
// merges the pieces; pieces that are still too long recurse with the
// remaining separators.
func (s *RecursiveCharacterTextSplitter) splitText(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var next []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			next = separators[i+1:]
			break
		}
	}

	var (
		final []string
		good  []string
	)
	for _, piece := range splitKeepingSeparator(text, separator) {
		if s.lengthFunc(piece) < s.chunkSize {
			good = append(good, piece)
			continue
		}

		if len(good) > 0 {
			final = append(final, s.mergeSplits(good)...)
			good = nil
		}
		if len(next) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.splitText(piece, next)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.mergeSplits(good)...)
	}

	return final
}

// mergeSplits joins small pieces into chunks. Pieces already carry their
// leading separator, so they are concatenated directly. When a chunk is
// emitted, pieces are dropped from its front until what remains fits in the
// overlap; that remainder starts the next chunk.
func (s *RecursiveCharacterTextSplitter) mergeSplits(pieces []string) []string {
	var (
		chunks  []string
		current []string
		total   int
	)

	for _, piece := range pieces {
		n := s.lengthFunc(piece)
		if total+n > s.chunkSize {
			if total > s.chunkSize {
				log.Debug("created a chunk of size %d, which is longer than the specified %d", total, s.chunkSize)
			}
			if len(current) > 0 {
				if chunk := strings.TrimSpace(strings.Join(current, "")); chunk != "" {
					chunks = append(chunks, chunk)
				}
				for total > s.chunkOverlap || (total+n > s.chunkSize && total > 0) {
					total -= s.lengthFunc(current[0])
					current = current[1:]
				}
			}
		}
		current = append(current, piece)
		total += n
	}

	if chunk := strings.TrimSpace(strings.Join(current, "")); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// splitKeepingSeparator splits text on sep and re-attaches sep to the front
// of every piece after the first. An empty sep splits into runes. Empty
// pieces are dropped.
func splitKeepingSeparator(text, sep string) []string {
	var parts []string
	if sep == "" {
		parts = make([]string, 0, len(text))
		for _, r := range text {
			parts = append(parts, string(r))
		}
	} else {
		parts = strings.Split(text, sep)
		for i := 1; i < len(parts); i++ {
			parts[i] = sep + parts[i]
		}
	}

	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
