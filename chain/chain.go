package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
	"github.com/tmc/langchaingo/schema"

	"github.com/smallnest/pdfqa/graph"
	"github.com/smallnest/pdfqa/log"
	"github.com/smallnest/pdfqa/memory"
	"github.com/smallnest/pdfqa/rag"
)

// Node names of the chain graph.
const (
	NodeCondenseQuestion = "condense_question"
	NodeRetrieve         = "retrieve"
	NodeGenerate         = "generate"
	NodeSaveMemory       = "save_memory"
)

var (
	ErrNoLLM         = errors.New("chain: llm is nil")
	ErrNoRetriever   = errors.New("chain: retriever is nil")
	ErrEmptyQuestion = errors.New("chain: question is empty")
	ErrEmptyResponse = errors.New("chain: model returned no choices")
)

// ChainInput is one question, with optional prior history. When the chain
// has a memory attached, the memory's history is used instead.
type ChainInput struct {
	Question    string
	ChatHistory []*memory.Message
}

// ChainOutput is the result of one turn.
type ChainOutput struct {
	Answer            string
	SourceDocuments   []rag.DocumentSearchResult
	GeneratedQuestion string
	// ChatHistory is the windowed history after this turn
	ChatHistory []*memory.Message
}

// ChainState flows through the chain graph.
type ChainState struct {
	Question          string
	ChatHistory       []*memory.Message
	GeneratedQuestion string
	Documents         []rag.DocumentSearchResult
	Answer            string
}

// ConversationalRetrievalChain answers questions over a retriever with memory.
type ConversationalRetrievalChain struct {
	llm       llms.Model
	retriever rag.Retriever
	memory    *memory.ConversationWindowMemory

	condensePrompt        prompts.PromptTemplate
	qaPrompt              prompts.PromptTemplate
	returnSourceDocuments bool
	rephraseQuestion      bool
	callOptions           []llms.CallOption
	retryPolicy           *graph.RetryPolicy

	runnable *graph.StateRunnable[ChainState]
}

// Option configures the chain.
type Option func(*ConversationalRetrievalChain)

// WithMemory attaches a window memory. Its history overrides ChainInput.ChatHistory.
func WithMemory(m *memory.ConversationWindowMemory) Option {
	return func(c *ConversationalRetrievalChain) {
		c.memory = m
	}
}

// WithReturnSourceDocuments includes the retrieved chunks in the output.
func WithReturnSourceDocuments(v bool) Option {
	return func(c *ConversationalRetrievalChain) {
		c.returnSourceDocuments = v
	}
}

// WithRephraseQuestion controls whether the condensed question, rather than
// the original one, is passed to the QA prompt. Retrieval always uses the
// condensed question.
func WithRephraseQuestion(v bool) Option {
	return func(c *ConversationalRetrievalChain) {
		c.rephraseQuestion = v
	}
}

// WithCondensePrompt replaces the condense template. It sees .chat_history and .question.
func WithCondensePrompt(template string) Option {
	return func(c *ConversationalRetrievalChain) {
		c.condensePrompt = newCondensePrompt(template)
	}
}

// WithQAPrompt replaces the QA template. It sees .context and .question.
func WithQAPrompt(template string) Option {
	return func(c *ConversationalRetrievalChain) {
		c.qaPrompt = newQAPrompt(template)
	}
}

// WithCallOptions are passed to every model call.
func WithCallOptions(opts ...llms.CallOption) Option {
	return func(c *ConversationalRetrievalChain) {
		c.callOptions = append(c.callOptions, opts...)
	}
}

// WithRetryPolicy retries failing steps.
func WithRetryPolicy(p *graph.RetryPolicy) Option {
	return func(c *ConversationalRetrievalChain) {
		c.retryPolicy = p
	}
}

// NewConversationalRetrievalChain builds and compiles the chain graph.
func NewConversationalRetrievalChain(llm llms.Model, retriever rag.Retriever, opts ...Option) (*ConversationalRetrievalChain, error) {
	if llm == nil {
		return nil, ErrNoLLM
	}
	if retriever == nil {
		return nil, ErrNoRetriever
	}

	c := &ConversationalRetrievalChain{
		llm:              llm,
		retriever:        retriever,
		condensePrompt:   newCondensePrompt(DefaultCondenseTemplate),
		qaPrompt:         newQAPrompt(DefaultQATemplate),
		rephraseQuestion: true,
	}
	for _, opt := range opts {
		opt(c)
	}

	g := graph.NewStateGraph[ChainState]()
	g.AddNode(NodeCondenseQuestion, "rewrite the follow-up as a standalone question", c.condenseQuestion)
	g.AddNode(NodeRetrieve, "fetch relevant chunks", c.retrieve)
	g.AddNode(NodeGenerate, "answer from the stuffed chunks", c.generate)
	g.AddNode(NodeSaveMemory, "record the turn", c.saveMemory)
	g.AddEdge(NodeCondenseQuestion, NodeRetrieve)
	g.AddEdge(NodeRetrieve, NodeGenerate)
	g.AddEdge(NodeGenerate, NodeSaveMemory)
	g.AddEdge(NodeSaveMemory, graph.END)
	g.SetEntryPoint(NodeCondenseQuestion)
	g.SetRetryPolicy(c.retryPolicy)

	runnable, err := g.Compile()
	if err != nil {
		return nil, fmt.Errorf("failed to compile chain: %w", err)
	}
	c.runnable = runnable
	return c, nil
}

// Memory returns the attached memory, or nil.
func (c *ConversationalRetrievalChain) Memory() *memory.ConversationWindowMemory {
	return c.memory
}

// Invoke answers one question.
func (c *ConversationalRetrievalChain) Invoke(ctx context.Context, in ChainInput) (*ChainOutput, error) {
	if strings.TrimSpace(in.Question) == "" {
		return nil, ErrEmptyQuestion
	}

	history := in.ChatHistory
	if c.memory != nil {
		if len(in.ChatHistory) > 0 {
			log.Debug("ignoring %d input history messages, using memory", len(in.ChatHistory))
		}
		history = c.memory.History()
	}

	state, err := c.runnable.Invoke(ctx, ChainState{
		Question:    in.Question,
		ChatHistory: history,
	})
	if err != nil {
		return nil, err
	}

	out := &ChainOutput{
		Answer:            state.Answer,
		GeneratedQuestion: state.GeneratedQuestion,
	}
	if c.returnSourceDocuments {
		out.SourceDocuments = state.Documents
	}
	if c.memory != nil {
		out.ChatHistory = c.memory.History()
	} else {
		out.ChatHistory = append(append([]*memory.Message{}, history...),
			memory.NewMessage(memory.RoleHuman, state.Question),
			memory.NewMessage(memory.RoleAI, state.Answer),
		)
	}
	return out, nil
}

// Run answers a question and returns only the answer text.
func (c *ConversationalRetrievalChain) Run(ctx context.Context, question string) (string, error) {
	out, err := c.Invoke(ctx, ChainInput{Question: question})
	if err != nil {
		return "", err
	}
	return out.Answer, nil
}

func (c *ConversationalRetrievalChain) condenseQuestion(ctx context.Context, s ChainState) (ChainState, error) {
	s.GeneratedQuestion = s.Question
	if len(s.ChatHistory) == 0 {
		return s, nil
	}

	prompt, err := c.condensePrompt.Format(map[string]any{
		"chat_history": memory.BufferString(s.ChatHistory),
		"question":     s.Question,
	})
	if err != nil {
		return s, fmt.Errorf("failed to format condense prompt: %w", err)
	}

	standalone, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt, c.callOptions...)
	if err != nil {
		return s, fmt.Errorf("failed to condense question: %w", err)
	}
	if standalone = strings.TrimSpace(standalone); standalone != "" {
		s.GeneratedQuestion = standalone
	}
	log.Debug("condensed %q into %q", s.Question, s.GeneratedQuestion)
	return s, nil
}

func (c *ConversationalRetrievalChain) retrieve(ctx context.Context, s ChainState) (ChainState, error) {
	docs, err := c.retriever.RetrieveWithConfig(ctx, s.GeneratedQuestion, nil)
	if err != nil {
		return s, fmt.Errorf("failed to retrieve documents: %w", err)
	}
	s.Documents = docs
	return s, nil
}

func (c *ConversationalRetrievalChain) generate(ctx context.Context, s ChainState) (ChainState, error) {
	question := s.Question
	if c.rephraseQuestion {
		question = s.GeneratedQuestion
	}

	prompt, err := c.qaPrompt.Format(map[string]any{
		"context":  StuffDocuments(s.Documents),
		"question": question,
	})
	if err != nil {
		return s, fmt.Errorf("failed to format qa prompt: %w", err)
	}

	messages := make([]llms.MessageContent, 0, len(s.ChatHistory)+1)
	for _, m := range s.ChatHistory {
		role := schema.ChatMessageTypeHuman
		if m.Role == memory.RoleAI {
			role = schema.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, m.Content))
	}
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, prompt))

	resp, err := c.llm.GenerateContent(ctx, messages, c.callOptions...)
	if err != nil {
		return s, fmt.Errorf("failed to generate answer: %w", err)
	}
	if len(resp.Choices) == 0 {
		return s, ErrEmptyResponse
	}
	s.Answer = strings.TrimSpace(resp.Choices[0].Content)
	return s, nil
}

func (c *ConversationalRetrievalChain) saveMemory(ctx context.Context, s ChainState) (ChainState, error) {
	if c.memory == nil {
		return s, nil
	}
	if err := c.memory.SaveTurn(ctx, s.Question, s.Answer); err != nil {
		return s, err
	}
	return s, nil
}
