package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSessionNotFound is returned by Load when a session has no stored messages.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidSession is returned for an empty session ID.
	ErrInvalidSession = errors.New("invalid session id")
)

// Message is a single persisted conversation message.
type Message struct {
	ID        string         `json:"id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// HistoryStore persists conversation messages grouped by session.
type HistoryStore interface {
	// Append adds messages to the end of a session's history
	Append(ctx context.Context, sessionID string, messages ...*Message) error

	// Load returns a session's messages, oldest first
	Load(ctx context.Context, sessionID string) ([]*Message, error)

	// Sessions lists the known session IDs
	Sessions(ctx context.Context) ([]string, error)

	// Clear removes all messages of a session
	Clear(ctx context.Context, sessionID string) error

	// Close releases the underlying resources
	Close() error
}

// ValidateSession rejects empty session IDs.
func ValidateSession(sessionID string) error {
	if sessionID == "" {
		return ErrInvalidSession
	}
	return nil
}

// CloneMessage returns a copy of m with its own metadata map.
func CloneMessage(m *Message) *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.Metadata != nil {
		c.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// NotFound wraps ErrSessionNotFound with the session ID.
func NotFound(sessionID string) error {
	return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
}
