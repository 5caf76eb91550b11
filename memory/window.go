package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smallnest/pdfqa/log"
	"github.com/smallnest/pdfqa/store"
)

const (
	RoleHuman = "human"
	RoleAI    = "ai"

	// DefaultWindowSize is the number of turns kept visible.
	DefaultWindowSize = 5
)

// Message is a single conversation message.
type Message = store.Message

// ErrSessionNotFound is returned by history stores for unknown sessions.
var ErrSessionNotFound = store.ErrSessionNotFound

// NewMessage creates a message with a fresh ID and the current time
func NewMessage(role, content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// Turn is a question and the answer given to it.
type Turn struct {
	Question string
	Answer   string
}

// Stats describes the memory contents.
type Stats struct {
	TotalMessages  int
	TotalTurns     int
	WindowMessages int
	WindowSize     int
	Oldest         time.Time
	Newest         time.Time
}

// ConversationWindowMemory stores all messages and exposes the last k turns.
type ConversationWindowMemory struct {
	mu        sync.RWMutex
	k         int
	messages  []*Message
	history   store.HistoryStore
	sessionID string
}

// NewConversationWindowMemory creates a process-local memory. k <= 0 selects DefaultWindowSize.
func NewConversationWindowMemory(k int) *ConversationWindowMemory {
	if k <= 0 {
		k = DefaultWindowSize
	}
	return &ConversationWindowMemory{k: k}
}

// NewPersistentWindowMemory creates a memory backed by a history store and
// loads the session's previous messages.
func NewPersistentWindowMemory(ctx context.Context, k int, hs store.HistoryStore, sessionID string) (*ConversationWindowMemory, error) {
	if hs == nil {
		return nil, errors.New("history store is nil")
	}
	if err := store.ValidateSession(sessionID); err != nil {
		return nil, err
	}

	m := NewConversationWindowMemory(k)
	m.history = hs
	m.sessionID = sessionID

	msgs, err := hs.Load(ctx, sessionID)
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		log.Debug("starting new session %s", sessionID)
	case err != nil:
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	default:
		m.messages = msgs
		log.Debug("restored %d messages for session %s", len(msgs), sessionID)
	}

	return m, nil
}

// K returns the window size in turns
func (m *ConversationWindowMemory) K() int {
	return m.k
}

// SessionID returns the session the memory persists to, or "" when local
func (m *ConversationWindowMemory) SessionID() string {
	return m.sessionID
}

// AddMessage appends a message
func (m *ConversationWindowMemory) AddMessage(ctx context.Context, msg *Message) error {
	if msg == nil {
		return errors.New("message is nil")
	}
	return m.append(ctx, msg)
}

// SaveTurn records a question and its answer
func (m *ConversationWindowMemory) SaveTurn(ctx context.Context, question, answer string) error {
	return m.append(ctx, NewMessage(RoleHuman, question), NewMessage(RoleAI, answer))
}

func (m *ConversationWindowMemory) append(ctx context.Context, msgs ...*Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.history != nil {
		if err := m.history.Append(ctx, m.sessionID, msgs...); err != nil {
			return fmt.Errorf("failed to persist history: %w", err)
		}
	}
	for _, msg := range msgs {
		m.messages = append(m.messages, store.CloneMessage(msg))
	}
	return nil
}

func (m *ConversationWindowMemory) window() []*Message {
	return LastTurns(m.messages, m.k)
}

// LastTurns returns copies of the messages of the last k turns, oldest first.
// k <= 0 selects DefaultWindowSize.
func LastTurns(msgs []*Message, k int) []*Message {
	if k <= 0 {
		k = DefaultWindowSize
	}
	start := 0
	if n := 2 * k; len(msgs) > n {
		start = len(msgs) - n
	}
	out := make([]*Message, 0, len(msgs)-start)
	for _, msg := range msgs[start:] {
		out = append(out, store.CloneMessage(msg))
	}
	return out
}

// GetContext returns the windowed messages, oldest first
func (m *ConversationWindowMemory) GetContext(ctx context.Context) ([]*Message, error) {
	return m.History(), nil
}

// History returns the last k turns as messages, oldest first
func (m *ConversationWindowMemory) History() []*Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.window()
}

// Turns returns the windowed messages paired into turns
func (m *ConversationWindowMemory) Turns() []Turn {
	return PairTurns(m.History())
}

// Clear forgets all messages, including the persisted session
func (m *ConversationWindowMemory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.history != nil {
		if err := m.history.Clear(ctx, m.sessionID); err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
	}
	m.messages = nil
	return nil
}

// GetStats reports message counts
func (m *ConversationWindowMemory) GetStats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{
		TotalMessages:  len(m.messages),
		TotalTurns:     len(PairTurns(m.messages)),
		WindowMessages: len(m.window()),
		WindowSize:     m.k,
	}
	if len(m.messages) > 0 {
		stats.Oldest = m.messages[0].Timestamp
		stats.Newest = m.messages[len(m.messages)-1].Timestamp
	}
	return stats, nil
}

// PairTurns groups messages into turns. A human message opens a turn and the
// next ai message answers it; an unanswered question yields an empty Answer.
func PairTurns(msgs []*Message) []Turn {
	var turns []Turn
	open := false
	for _, msg := range msgs {
		switch msg.Role {
		case RoleHuman:
			turns = append(turns, Turn{Question: msg.Content})
			open = true
		case RoleAI:
			if open {
				turns[len(turns)-1].Answer = msg.Content
				open = false
			} else {
				turns = append(turns, Turn{Answer: msg.Content})
			}
		}
	}
	return turns
}

// BufferString renders messages as "Human: ..." / "AI: ..." lines.
func BufferString(msgs []*Message) string {
	lines := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		prefix := msg.Role
		switch msg.Role {
		case RoleHuman:
			prefix = "Human"
		case RoleAI:
			prefix = "AI"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", prefix, msg.Content))
	}
	return strings.Join(lines, "\n")
}

// FromTurns converts turns to messages, skipping empty sides.
func FromTurns(turns []Turn) []*Message {
	msgs := make([]*Message, 0, 2*len(turns))
	for _, t := range turns {
		if t.Question != "" {
			msgs = append(msgs, NewMessage(RoleHuman, t.Question))
		}
		if t.Answer != "" {
			msgs = append(msgs, NewMessage(RoleAI, t.Answer))
		}
	}
	return msgs
}
