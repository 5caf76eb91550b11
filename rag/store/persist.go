package store

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/smallnest/pdfqa/log"
	"github.com/smallnest/pdfqa/rag"
)

func init() {
	gob.Register(map[string]any{})
	gob.Register([]any{})
}

const indexFormatVersion = 1

type indexFile struct {
	Version    int
	Strategy   DistanceStrategy
	Documents  []rag.Document
	Embeddings [][]float32
}

// Save writes the index to path, replacing any existing file.
func (s *InMemoryVectorStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := indexFile{
		Version:    indexFormatVersion,
		Strategy:   s.strategy,
		Documents:  s.documents,
		Embeddings: s.embeddings,
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create index directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*")
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(&data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}

	log.Info("saved %d vectors to %s", len(data.Embeddings), path)
	return nil
}

// LoadInMemoryVectorStore reads an index written by Save. embedder is used
// for documents added afterwards.
func LoadInMemoryVectorStore(path string, embedder rag.Embedder) (*InMemoryVectorStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index %s: %w", path, err)
	}
	defer f.Close()

	var data indexFile
	if err := gob.NewDecoder(f).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode index %s: %w", path, err)
	}
	if data.Version != indexFormatVersion {
		return nil, fmt.Errorf("unsupported index version %d in %s", data.Version, path)
	}
	if len(data.Documents) != len(data.Embeddings) {
		return nil, fmt.Errorf("corrupt index %s: %d documents, %d vectors", path, len(data.Documents), len(data.Embeddings))
	}

	s := NewInMemoryVectorStore(embedder, WithDistanceStrategy(data.Strategy))
	s.documents = data.Documents
	s.embeddings = data.Embeddings
	if s.documents == nil {
		s.documents = make([]rag.Document, 0)
		s.embeddings = make([][]float32, 0)
	}

	log.Info("loaded %d vectors from %s", len(s.embeddings), path)
	return s, nil
}
