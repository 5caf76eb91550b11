// Package memory keeps the recent conversation for the retrieval chain.
//
// ConversationWindowMemory records every question and answer but exposes only
// the last k turns (2k messages) to callers, so prompts stay bounded no matter
// how long a chat runs. With a store.HistoryStore attached, the memory is
// rebuilt from the session's history on creation and every new message is
// written through.
//
//	mem := memory.NewConversationWindowMemory(5)
//	_ = mem.SaveTurn(ctx, "What is direct taxes?", answer)
//	for _, m := range mem.History() {
//		fmt.Println(m.Role, m.Content)
//	}
package memory
