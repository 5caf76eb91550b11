// Package openai adapts any OpenAI-compatible chat and embedding endpoint
// (OpenAI, LM Studio, vLLM, llama.cpp server) to the langchaingo llms.Model
// interface.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

var (
	ErrEmptyResponse = errors.New("no response")
	ErrNotSetAuth    = errors.New("api key is not set")
)

// LLM is a client for an OpenAI-compatible API.
type LLM struct {
	client           *goopenai.Client
	model            string
	embeddingModel   string
	CallbacksHandler callbacks.Handler
}

var _ llms.Model = (*LLM)(nil)

// New returns a new client. The API key defaults to OPENAI_API_KEY and the
// endpoint to OPENAI_BASE_URL.
//
//	llm, err := openai.New(
//		openai.WithBaseURL("http://localhost:1234/v1"),
//		openai.WithAPIKey("lm-studio"),
//		openai.WithModel("llama-3.2-3b-instruct"),
//	)
func New(opts ...Option) (*LLM, error) {
	o := &options{
		apiKey:         getEnvOrDefault("OPENAI_API_KEY", ""),
		baseURL:        getEnvOrDefault("OPENAI_BASE_URL", ""),
		model:          DefaultModel,
		embeddingModel: DefaultEmbeddingModel,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.apiKey == "" {
		return nil, fmt.Errorf(`%w
You can pass auth info by using openai.New(openai.WithAPIKey("{API Key}"))
or
export OPENAI_API_KEY={API Key}`, ErrNotSetAuth)
	}

	cfg := goopenai.DefaultConfig(o.apiKey)
	if o.baseURL != "" {
		cfg.BaseURL = strings.TrimRight(o.baseURL, "/")
	}
	if o.httpClient != nil {
		cfg.HTTPClient = o.httpClient
	}

	return &LLM{
		client:           goopenai.NewClientWithConfig(cfg),
		model:            o.model,
		embeddingModel:   o.embeddingModel,
		CallbacksHandler: o.callbacksHandler,
	}, nil
}

// Call generates a response from the LLM for the given prompt.
func (o *LLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, o, prompt, options...)
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if o.CallbacksHandler != nil {
		o.CallbacksHandler.HandleLLMGenerateContentStart(ctx, messages)
	}

	opts := &llms.CallOptions{}
	for _, opt := range options {
		opt(opts)
	}

	req := goopenai.ChatCompletionRequest{
		Model:       o.modelName(*opts),
		Messages:    toChatMessages(messages),
		Temperature: float32(opts.Temperature),
		TopP:        float32(opts.TopP),
		MaxTokens:   opts.MaxTokens,
		Stop:        opts.StopWords,
	}

	var (
		resp *llms.ContentResponse
		err  error
	)
	if opts.StreamingFunc != nil {
		resp, err = o.stream(ctx, req, opts.StreamingFunc)
	} else {
		resp, err = o.complete(ctx, req)
	}
	if err != nil {
		if o.CallbacksHandler != nil {
			o.CallbacksHandler.HandleLLMError(ctx, err)
		}
		return nil, err
	}

	if o.CallbacksHandler != nil {
		o.CallbacksHandler.HandleLLMGenerateContentEnd(ctx, resp)
	}
	return resp, nil
}

func (o *LLM) complete(ctx context.Context, req goopenai.ChatCompletionRequest) (*llms.ContentResponse, error) {
	result, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	resp := &llms.ContentResponse{}
	for _, c := range result.Choices {
		resp.Choices = append(resp.Choices, &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: string(c.FinishReason),
			GenerationInfo: map[string]any{
				"prompt_tokens":     result.Usage.PromptTokens,
				"completion_tokens": result.Usage.CompletionTokens,
				"total_tokens":      result.Usage.TotalTokens,
			},
		})
	}
	return resp, nil
}

func (o *LLM) stream(ctx context.Context, req goopenai.ChatCompletionRequest, fn func(context.Context, []byte) error) (*llms.ContentResponse, error) {
	req.Stream = true
	s, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion stream failed: %w", err)
	}
	defer s.Close()

	var content strings.Builder
	stopReason := ""
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("chat completion stream failed: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if reason := chunk.Choices[0].FinishReason; reason != "" {
			stopReason = string(reason)
		}
		if delta == "" {
			continue
		}
		content.WriteString(delta)
		if err := fn(ctx, []byte(delta)); err != nil {
			return nil, err
		}
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:        content.String(),
			StopReason:     stopReason,
			GenerationInfo: map[string]any{},
		}},
	}, nil
}

// CreateEmbedding embeds texts with the configured embedding model.
func (o *LLM) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: texts,
		Model: goopenai.EmbeddingModel(o.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmptyResponse, len(resp.Data), len(texts))
	}

	emb := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(emb) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		emb[d.Index] = d.Embedding
	}
	return emb, nil
}

func (o *LLM) modelName(opts llms.CallOptions) string {
	if opts.Model != "" {
		return opts.Model
	}
	return o.model
}

func toChatMessages(messages []llms.MessageContent) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		var role string
		switch msg.Role {
		case schema.ChatMessageTypeSystem:
			role = goopenai.ChatMessageRoleSystem
		case schema.ChatMessageTypeAI:
			role = goopenai.ChatMessageRoleAssistant
		case schema.ChatMessageType("tool"): // ChatMessageTypeTool in newer langchaingo; absent in v0.1.7
			role = goopenai.ChatMessageRoleTool
		default:
			role = goopenai.ChatMessageRoleUser
		}

		var content strings.Builder
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				content.WriteString(text.Text)
			}
		}

		out = append(out, goopenai.ChatCompletionMessage{
			Role:    role,
			Content: content.String(),
		})
	}
	return out
}
