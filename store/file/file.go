package file

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/smallnest/pdfqa/store"
)

const ext = ".jsonl"

// FileHistoryStore writes each session to its own JSON lines file.
type FileHistoryStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileHistoryStore creates a store rooted at dir, creating it if needed
func NewFileHistoryStore(dir string) (*FileHistoryStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &FileHistoryStore{dir: dir}, nil
}

func (s *FileHistoryStore) path(sessionID string) string {
	return filepath.Join(s.dir, url.PathEscape(sessionID)+ext)
}

// Append writes messages at the end of the session file
func (s *FileHistoryStore) Append(ctx context.Context, sessionID string, messages ...*store.Message) error {
	if err := store.ValidateSession(sessionID); err != nil {
		return err
	}

	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	for _, m := range messages {
		if m == nil {
			continue
		}
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
	}
	if buf.Len() == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path(sessionID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open history file: %w", err)
	}
	if _, err := f.WriteString(buf.String()); err != nil {
		f.Close()
		return fmt.Errorf("failed to write history: %w", err)
	}
	return f.Close()
}

// Load reads all messages of a session
func (s *FileHistoryStore) Load(ctx context.Context, sessionID string) ([]*store.Message, error) {
	if err := store.ValidateSession(sessionID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path(sessionID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, store.NotFound(sessionID)
		}
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	var msgs []*store.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(strings.TrimSpace(scanner.Text())) == 0 {
			continue
		}
		var m store.Message
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message at line %d: %w", line, err)
		}
		msgs = append(msgs, &m)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}
	return msgs, nil
}

// Sessions lists the sessions that have a history file
func (s *FileHistoryStore) Sessions(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read history directory: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(name, ext))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Clear removes the session file
func (s *FileHistoryStore) Clear(ctx context.Context, sessionID string) error {
	if err := store.ValidateSession(sessionID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(sessionID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Close is a no-op
func (s *FileHistoryStore) Close() error {
	return nil
}
