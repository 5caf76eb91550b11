package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"github.com/smallnest/pdfqa/graph"
	"github.com/smallnest/pdfqa/internal/llmtest"
	"github.com/smallnest/pdfqa/memory"
	"github.com/smallnest/pdfqa/rag"
)

type fakeRetriever struct {
	mu      sync.Mutex
	queries []string
	docs    []rag.DocumentSearchResult
	err     error
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string) ([]rag.Document, error) {
	return f.RetrieveWithK(ctx, query, len(f.docs))
}

func (f *fakeRetriever) RetrieveWithK(ctx context.Context, query string, k int) ([]rag.Document, error) {
	results, err := f.RetrieveWithConfig(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	docs := make([]rag.Document, 0, len(results))
	for _, r := range results {
		docs = append(docs, r.Document)
	}
	return docs, nil
}

func (f *fakeRetriever) RetrieveWithConfig(ctx context.Context, query string, config *rag.RetrievalConfig) ([]rag.DocumentSearchResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

func budgetDocs() *fakeRetriever {
	return &fakeRetriever{docs: []rag.DocumentSearchResult{
		{Document: rag.Document{ID: "p3", Content: "Direct taxes are paid to the government by the taxpayer.", Metadata: map[string]any{"page": 3}}, Score: 0.9},
		{Document: rag.Document{ID: "p7", Content: "No change in tax rates for direct and indirect taxes.", Metadata: map[string]any{"page": 7}}, Score: 0.8},
	}}
}

// scripted answers condense prompts with a fixed standalone question and QA
// prompts with an answer naming the question it saw.
func scripted(standalone string) *llmtest.FakeLLM {
	return llmtest.New(func(messages []llms.MessageContent) (string, error) {
		if llmtest.IsCondensePrompt(messages) {
			return "  " + standalone + "\n", nil
		}
		prompt := llmtest.LastText(messages)
		q := prompt[strings.LastIndex(prompt, "Question: ")+len("Question: "):]
		q = strings.TrimSuffix(q, "\nHelpful Answer:")
		return "Answer about: " + q, nil
	})
}

func TestChain_FirstQuestion(t *testing.T) {
	llm := scripted("unused")
	ret := budgetDocs()
	mem := memory.NewConversationWindowMemory(5)

	c, err := NewConversationalRetrievalChain(llm, ret, WithMemory(mem), WithReturnSourceDocuments(true))
	require.NoError(t, err)

	out, err := c.Invoke(context.Background(), ChainInput{Question: "What is direct taxes?"})
	require.NoError(t, err)

	assert.Equal(t, "Answer about: What is direct taxes?", out.Answer)
	assert.Equal(t, "What is direct taxes?", out.GeneratedQuestion)
	require.Len(t, out.SourceDocuments, 2)
	assert.Equal(t, "p3", out.SourceDocuments[0].Document.ID)

	// no history, so the only model call is the QA prompt
	prompts := llm.Prompts()
	require.Len(t, prompts, 1)
	assert.True(t, strings.HasPrefix(prompts[0], "Use the following pieces of context"))
	assert.Contains(t, prompts[0], "Direct taxes are paid to the government by the taxpayer.\n\nNo change in tax rates")
	assert.Equal(t, []string{"What is direct taxes?"}, ret.queries)

	require.Len(t, out.ChatHistory, 2)
	assert.Equal(t, memory.RoleHuman, out.ChatHistory[0].Role)
	assert.Equal(t, "What is direct taxes?", out.ChatHistory[0].Content)
	assert.Equal(t, out.Answer, out.ChatHistory[1].Content)
}

func TestChain_FollowUpIsCondensed(t *testing.T) {
	llm := scripted("What are the rates of direct taxes?")
	ret := budgetDocs()
	mem := memory.NewConversationWindowMemory(5)
	c, err := NewConversationalRetrievalChain(llm, ret, WithMemory(mem))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = c.Invoke(ctx, ChainInput{Question: "What is direct taxes?"})
	require.NoError(t, err)

	out, err := c.Invoke(ctx, ChainInput{Question: "What are their rates?"})
	require.NoError(t, err)

	assert.Equal(t, "What are the rates of direct taxes?", out.GeneratedQuestion)
	assert.Equal(t, "Answer about: What are the rates of direct taxes?", out.Answer)
	assert.Nil(t, out.SourceDocuments)
	assert.Equal(t, []string{"What is direct taxes?", "What are the rates of direct taxes?"}, ret.queries)

	calls := llm.Calls()
	require.Len(t, calls, 3)

	condense := llmtest.LastText(calls[1])
	assert.Contains(t, condense, "Chat History:\nHuman: What is direct taxes?\nAI: Answer about: What is direct taxes?")
	assert.Contains(t, condense, "Follow Up Input: What are their rates?")

	// the QA call carries the history as prior messages
	qa := calls[2]
	require.Len(t, qa, 3)
	assert.Equal(t, schema.ChatMessageTypeHuman, qa[0].Role)
	assert.Equal(t, schema.ChatMessageTypeAI, qa[1].Role)
	assert.Equal(t, "Answer about: What is direct taxes?", llmtest.Text(qa[1]))

	// memory stores the original question, not the condensed one
	turns := mem.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "What are their rates?", turns[1].Question)
	assert.Len(t, out.ChatHistory, 4)
}

func TestChain_RephraseQuestionDisabled(t *testing.T) {
	llm := scripted("What are the rates of direct taxes?")
	ret := budgetDocs()
	history := memory.FromTurns([]memory.Turn{{Question: "What is direct taxes?", Answer: "A tax."}})

	c, err := NewConversationalRetrievalChain(llm, ret, WithRephraseQuestion(false))
	require.NoError(t, err)

	out, err := c.Invoke(context.Background(), ChainInput{Question: "What are their rates?", ChatHistory: history})
	require.NoError(t, err)

	// retrieval uses the condensed question, the QA prompt the original one
	assert.Equal(t, []string{"What are the rates of direct taxes?"}, ret.queries)
	assert.Equal(t, "Answer about: What are their rates?", out.Answer)

	// without memory the output history is the input plus this turn
	require.Len(t, out.ChatHistory, 4)
	assert.Equal(t, "What are their rates?", out.ChatHistory[2].Content)
}

func TestChain_MemoryOverridesInputHistory(t *testing.T) {
	llm := scripted("never used")
	mem := memory.NewConversationWindowMemory(5)
	c, err := NewConversationalRetrievalChain(llm, budgetDocs(), WithMemory(mem))
	require.NoError(t, err)

	out, err := c.Invoke(context.Background(), ChainInput{
		Question:    "What is Amrit Kaal?",
		ChatHistory: memory.FromTurns([]memory.Turn{{Question: "ignored", Answer: "ignored"}}),
	})
	require.NoError(t, err)

	// memory is empty, so no condense call happens
	require.Len(t, llm.Calls(), 1)
	assert.Equal(t, "What is Amrit Kaal?", out.GeneratedQuestion)
	assert.Len(t, out.ChatHistory, 2)
}

func TestChain_WindowOfFiveTurns(t *testing.T) {
	llm := scripted("standalone")
	mem := memory.NewConversationWindowMemory(5)
	c, err := NewConversationalRetrievalChain(llm, budgetDocs(), WithMemory(mem))
	require.NoError(t, err)

	var out *ChainOutput
	for i := 1; i <= 7; i++ {
		out, err = c.Invoke(context.Background(), ChainInput{Question: fmt.Sprintf("Question %d", i)})
		require.NoError(t, err)
	}

	require.Len(t, out.ChatHistory, 10)
	assert.Equal(t, "Question 3", out.ChatHistory[0].Content)

	// the condense prompt of the last turn only saw the previous five turns
	last := llm.Prompts()
	condense := last[len(last)-2]
	assert.NotContains(t, condense, "Question 1\n")
	assert.Contains(t, condense, "Human: Question 2")
	assert.Contains(t, condense, "Human: Question 6")
}

func TestChain_CustomPrompts(t *testing.T) {
	llm := llmtest.New(func(messages []llms.MessageContent) (string, error) {
		return "ok", nil
	})
	c, err := NewConversationalRetrievalChain(llm, budgetDocs(),
		WithQAPrompt("CTX={{.context}} Q={{.question}}"),
		WithCallOptions(llms.WithTemperature(0)),
	)
	require.NoError(t, err)

	_, err = c.Run(context.Background(), "What is direct taxes?")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(llm.Prompts()[0], "CTX=Direct taxes"))
	assert.True(t, strings.HasSuffix(llm.Prompts()[0], "Q=What is direct taxes?"))
}

func TestChain_Errors(t *testing.T) {
	_, err := NewConversationalRetrievalChain(nil, budgetDocs())
	assert.ErrorIs(t, err, ErrNoLLM)

	_, err = NewConversationalRetrievalChain(scripted("x"), nil)
	assert.ErrorIs(t, err, ErrNoRetriever)

	c, err := NewConversationalRetrievalChain(scripted("x"), budgetDocs())
	require.NoError(t, err)
	_, err = c.Invoke(context.Background(), ChainInput{Question: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	t.Run("model failure leaves memory untouched", func(t *testing.T) {
		boom := errors.New("ollama: connection refused")
		llm := llmtest.New(func([]llms.MessageContent) (string, error) { return "", boom })
		mem := memory.NewConversationWindowMemory(5)
		c, err := NewConversationalRetrievalChain(llm, budgetDocs(), WithMemory(mem))
		require.NoError(t, err)

		_, err = c.Invoke(context.Background(), ChainInput{Question: "What is direct taxes?"})
		assert.ErrorIs(t, err, boom)
		assert.ErrorContains(t, err, NodeGenerate)
		assert.Empty(t, mem.History())
	})

	t.Run("retriever failure", func(t *testing.T) {
		ret := budgetDocs()
		ret.err = errors.New("embedding failed")
		c, err := NewConversationalRetrievalChain(scripted("x"), ret)
		require.NoError(t, err)

		_, err = c.Invoke(context.Background(), ChainInput{Question: "What is direct taxes?"})
		assert.ErrorContains(t, err, "embedding failed")
		assert.ErrorContains(t, err, NodeRetrieve)
	})
}

func TestChain_RetryPolicy(t *testing.T) {
	calls := 0
	llm := llmtest.New(func([]llms.MessageContent) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("model is loading")
		}
		return "recovered", nil
	})

	c, err := NewConversationalRetrievalChain(llm, budgetDocs(),
		WithRetryPolicy(&graph.RetryPolicy{MaxRetries: 1, BaseDelay: 1}))
	require.NoError(t, err)

	answer, err := c.Run(context.Background(), "What is direct taxes?")
	require.NoError(t, err)
	assert.Equal(t, "recovered", answer)
}

func TestStuffDocuments(t *testing.T) {
	assert.Equal(t, "", StuffDocuments(nil))
	assert.Equal(t, "a\n\nb", StuffDocuments([]rag.DocumentSearchResult{
		{Document: rag.Document{Content: "a"}},
		{Document: rag.Document{Content: "b"}},
	}))
}
