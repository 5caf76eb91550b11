package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/smallnest/pdfqa/store"
	storemem "github.com/smallnest/pdfqa/store/memory"
)

func TestConversationWindowMemory_Default(t *testing.T) {
	mem := NewConversationWindowMemory(0)
	if mem.K() != DefaultWindowSize {
		t.Errorf("Expected default window %d, got %d", DefaultWindowSize, mem.K())
	}

	mem = NewConversationWindowMemory(-3)
	if mem.K() != DefaultWindowSize {
		t.Errorf("Expected default window for negative k, got %d", mem.K())
	}
}

func TestConversationWindowMemory_Window(t *testing.T) {
	ctx := context.Background()
	mem := NewConversationWindowMemory(5)

	for i := 1; i <= 7; i++ {
		if err := mem.SaveTurn(ctx, fmt.Sprintf("Q%d", i), fmt.Sprintf("A%d", i)); err != nil {
			t.Fatalf("Failed to save turn: %v", err)
		}
	}

	history := mem.History()
	if len(history) != 10 {
		t.Fatalf("Expected 10 messages in window, got %d", len(history))
	}
	if history[0].Content != "Q3" || history[0].Role != RoleHuman {
		t.Errorf("Expected window to start at Q3, got %s %s", history[0].Role, history[0].Content)
	}
	if history[9].Content != "A7" || history[9].Role != RoleAI {
		t.Errorf("Expected window to end at A7, got %s %s", history[9].Role, history[9].Content)
	}

	turns := mem.Turns()
	if len(turns) != 5 {
		t.Fatalf("Expected 5 turns, got %d", len(turns))
	}
	if turns[0] != (Turn{Question: "Q3", Answer: "A3"}) {
		t.Errorf("Unexpected first turn: %+v", turns[0])
	}

	stats, err := mem.GetStats(ctx)
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.TotalMessages != 14 || stats.TotalTurns != 7 || stats.WindowMessages != 10 || stats.WindowSize != 5 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if stats.Newest.Before(stats.Oldest) {
		t.Errorf("Newest should not be before oldest")
	}
}

func TestConversationWindowMemory_HistoryIsCopy(t *testing.T) {
	ctx := context.Background()
	mem := NewConversationWindowMemory(2)
	_ = mem.SaveTurn(ctx, "What is Amrit Kaal?", "A vision.")

	h := mem.History()
	h[0].Content = "changed"

	if mem.History()[0].Content != "What is Amrit Kaal?" {
		t.Errorf("History should return copies")
	}
}

func TestConversationWindowMemory_Clear(t *testing.T) {
	ctx := context.Background()
	mem := NewConversationWindowMemory(5)
	_ = mem.SaveTurn(ctx, "Q", "A")

	if err := mem.Clear(ctx); err != nil {
		t.Fatalf("Failed to clear: %v", err)
	}

	msgs, _ := mem.GetContext(ctx)
	if len(msgs) != 0 {
		t.Errorf("Expected 0 messages after clear, got %d", len(msgs))
	}
	if err := mem.AddMessage(ctx, nil); err == nil {
		t.Errorf("Expected error for nil message")
	}
}

func TestPersistentWindowMemory(t *testing.T) {
	ctx := context.Background()
	hs := storemem.NewMemoryHistoryStore()

	first, err := NewPersistentWindowMemory(ctx, 2, hs, "session-1")
	if err != nil {
		t.Fatalf("Failed to create memory: %v", err)
	}
	if len(first.History()) != 0 {
		t.Errorf("New session should be empty")
	}

	for i := 1; i <= 3; i++ {
		_ = first.SaveTurn(ctx, fmt.Sprintf("Q%d", i), fmt.Sprintf("A%d", i))
	}

	// a second memory on the same session resumes the conversation
	second, err := NewPersistentWindowMemory(ctx, 2, hs, "session-1")
	if err != nil {
		t.Fatalf("Failed to reload memory: %v", err)
	}
	turns := second.Turns()
	if len(turns) != 2 || turns[0].Question != "Q2" || turns[1].Answer != "A3" {
		t.Errorf("Unexpected restored turns: %+v", turns)
	}

	stored, _ := hs.Load(ctx, "session-1")
	if len(stored) != 6 {
		t.Errorf("Expected all 6 messages stored, got %d", len(stored))
	}

	if err := second.Clear(ctx); err != nil {
		t.Fatalf("Failed to clear: %v", err)
	}
	if _, err := hs.Load(ctx, "session-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected session to be removed from store, got %v", err)
	}
}

type failingStore struct {
	store.HistoryStore
}

func (failingStore) Load(ctx context.Context, sessionID string) ([]*store.Message, error) {
	return nil, errors.New("backend down")
}

func (failingStore) Append(ctx context.Context, sessionID string, messages ...*store.Message) error {
	return errors.New("backend down")
}

func TestPersistentWindowMemory_Errors(t *testing.T) {
	ctx := context.Background()

	if _, err := NewPersistentWindowMemory(ctx, 5, nil, "s"); err == nil {
		t.Errorf("Expected error for nil store")
	}
	if _, err := NewPersistentWindowMemory(ctx, 5, storemem.NewMemoryHistoryStore(), ""); !errors.Is(err, store.ErrInvalidSession) {
		t.Errorf("Expected ErrInvalidSession, got %v", err)
	}
	if _, err := NewPersistentWindowMemory(ctx, 5, failingStore{}, "s"); err == nil {
		t.Errorf("Expected load error to propagate")
	}

	mem := NewConversationWindowMemory(5)
	mem.history = failingStore{}
	mem.sessionID = "s"
	if err := mem.SaveTurn(ctx, "Q", "A"); err == nil {
		t.Errorf("Expected append error to propagate")
	}
	if len(mem.History()) != 0 {
		t.Errorf("Failed save must not change the window")
	}
}

func TestLastTurns(t *testing.T) {
	var msgs []*Message
	for i := 1; i <= 3; i++ {
		msgs = append(msgs, NewMessage(RoleHuman, fmt.Sprintf("Q%d", i)), NewMessage(RoleAI, fmt.Sprintf("A%d", i)))
	}

	last := LastTurns(msgs, 2)
	if len(last) != 4 {
		t.Fatalf("Expected 4 messages, got %d", len(last))
	}
	if last[0].Content != "Q2" || last[3].Content != "A3" {
		t.Errorf("Expected Q2..A3, got %s..%s", last[0].Content, last[3].Content)
	}

	last[0].Content = "changed"
	if msgs[2].Content != "Q2" {
		t.Error("LastTurns should return copies")
	}

	if got := LastTurns(nil, 2); len(got) != 0 {
		t.Errorf("Expected no messages, got %d", len(got))
	}
}

func TestPairTurns(t *testing.T) {
	msgs := []*Message{
		NewMessage(RoleAI, "orphan answer"),
		NewMessage(RoleHuman, "Q1"),
		NewMessage(RoleAI, "A1"),
		NewMessage(RoleHuman, "Q2"),
	}

	turns := PairTurns(msgs)
	want := []Turn{{Answer: "orphan answer"}, {Question: "Q1", Answer: "A1"}, {Question: "Q2"}}
	if len(turns) != len(want) {
		t.Fatalf("Expected %d turns, got %d", len(want), len(turns))
	}
	for i := range want {
		if turns[i] != want[i] {
			t.Errorf("Turn %d: expected %+v, got %+v", i, want[i], turns[i])
		}
	}
}

func TestBufferStringAndFromTurns(t *testing.T) {
	msgs := FromTurns([]Turn{{Question: "What is direct taxes?", Answer: "Income tax."}, {Question: "Why?"}})
	if len(msgs) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(msgs))
	}

	got := BufferString(msgs)
	want := "Human: What is direct taxes?\nAI: Income tax.\nHuman: Why?"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}
