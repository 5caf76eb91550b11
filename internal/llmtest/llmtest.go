// Package llmtest provides a scripted llms.Model for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// FakeLLM answers every call through Respond and records the messages it saw.
type FakeLLM struct {
	// Respond computes the reply; nil echoes the last line of the final message
	Respond func(messages []llms.MessageContent) (string, error)

	mu    sync.Mutex
	calls [][]llms.MessageContent
}

var _ llms.Model = (*FakeLLM)(nil)

// New creates a FakeLLM with the given responder.
func New(respond func(messages []llms.MessageContent) (string, error)) *FakeLLM {
	return &FakeLLM{Respond: respond}
}

// GenerateContent implements llms.Model.
func (f *FakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]llms.MessageContent(nil), messages...))
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		out string
		err error
	)
	if f.Respond != nil {
		out, err = f.Respond(messages)
	} else {
		lines := strings.Split(strings.TrimSpace(LastText(messages)), "\n")
		out = lines[len(lines)-1]
	}
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: out, StopReason: "stop"}}}, nil
}

// Call implements llms.Model.
func (f *FakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

// Calls returns the recorded message lists.
func (f *FakeLLM) Calls() [][]llms.MessageContent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]llms.MessageContent(nil), f.calls...)
}

// Prompts returns the text of the last message of every call.
func (f *FakeLLM) Prompts() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = LastText(c)
	}
	return out
}

// Text concatenates the text parts of a message.
func Text(m llms.MessageContent) string {
	var b strings.Builder
	for _, p := range m.Parts {
		if t, ok := p.(llms.TextContent); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

// LastText returns the text of the final message, or "".
func LastText(messages []llms.MessageContent) string {
	if len(messages) == 0 {
		return ""
	}
	return Text(messages[len(messages)-1])
}

// IsCondensePrompt reports whether the prompt asks for a standalone question.
func IsCondensePrompt(messages []llms.MessageContent) bool {
	return strings.Contains(LastText(messages), "Standalone question:")
}
