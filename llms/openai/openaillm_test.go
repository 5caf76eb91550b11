package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

type recordedRequest struct {
	path string
	body map[string]any
}

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, req recordedRequest)) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var recorded []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		rec := recordedRequest{path: r.URL.Path, body: body}
		recorded = append(recorded, rec)
		handler(w, rec)
	}))
	t.Cleanup(srv.Close)
	return srv, &recorded
}

func TestLLM_Create(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{
			name:    "with api key",
			opts:    []Option{WithAPIKey("test-key")},
			wantErr: false,
		},
		{
			name:    "with api key and model",
			opts:    []Option{WithAPIKey("test-key"), WithModel("llama2"), WithBaseURL("http://localhost:1234/v1/")},
			wantErr: false,
		},
		{
			name:    "without api key",
			opts:    []Option{WithAPIKey("")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OPENAI_API_KEY", "")
			llm, err := New(tt.opts...)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotSetAuth)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, llm)
		})
	}
}

func TestLLM_GenerateContent(t *testing.T) {
	srv, reqs := newTestServer(t, func(w http.ResponseWriter, req recordedRequest) {
		fmt.Fprint(w, `{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"Elon Musk is an entrepreneur."},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":6,"total_tokens":11}}`)
	})

	llm, err := New(WithAPIKey("k"), WithBaseURL(srv.URL+"/v1"), WithModel("llama2"))
	require.NoError(t, err)

	resp, err := llm.GenerateContent(context.Background(), []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, "You are helpful."),
		llms.TextParts(schema.ChatMessageTypeHuman, "Who is ", "Elon Musk?"),
		llms.TextParts(schema.ChatMessageTypeAI, "Let me think."),
	}, llms.WithTemperature(0.5))
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "Elon Musk is an entrepreneur.", resp.Choices[0].Content)
	assert.Equal(t, "stop", resp.Choices[0].StopReason)
	assert.Equal(t, 11, resp.Choices[0].GenerationInfo["total_tokens"])

	require.Len(t, *reqs, 1)
	got := (*reqs)[0]
	assert.Equal(t, "/v1/chat/completions", got.path)
	assert.Equal(t, "llama2", got.body["model"])
	assert.InDelta(t, 0.5, got.body["temperature"], 1e-6)

	msgs := got.body["messages"].([]any)
	require.Len(t, msgs, 3)
	roles := make([]string, 0, 3)
	for _, m := range msgs {
		roles = append(roles, m.(map[string]any)["role"].(string))
	}
	assert.Equal(t, []string{"system", "user", "assistant"}, roles)
	assert.Equal(t, "Who is Elon Musk?", msgs[1].(map[string]any)["content"])
}

func TestLLM_Call(t *testing.T) {
	srv, reqs := newTestServer(t, func(w http.ResponseWriter, req recordedRequest) {
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"pong"},"finish_reason":"stop"}]}`)
	})

	llm, err := New(WithAPIKey("k"), WithBaseURL(srv.URL))
	require.NoError(t, err)

	out, err := llm.Call(context.Background(), "ping", llms.WithModel("override"))
	require.NoError(t, err)
	assert.Equal(t, "pong", out)
	assert.Equal(t, "override", (*reqs)[0].body["model"])
}

func TestLLM_GenerateContentErrors(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		srv, _ := newTestServer(t, func(w http.ResponseWriter, req recordedRequest) {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error":{"message":"model not loaded","type":"server_error"}}`)
		})
		llm, err := New(WithAPIKey("k"), WithBaseURL(srv.URL))
		require.NoError(t, err)

		_, err = llm.Call(context.Background(), "hi")
		assert.ErrorContains(t, err, "model not loaded")
	})

	t.Run("no choices", func(t *testing.T) {
		srv, _ := newTestServer(t, func(w http.ResponseWriter, req recordedRequest) {
			fmt.Fprint(w, `{"choices":[]}`)
		})
		llm, err := New(WithAPIKey("k"), WithBaseURL(srv.URL))
		require.NoError(t, err)

		_, err = llm.Call(context.Background(), "hi")
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})
}

func TestLLM_Streaming(t *testing.T) {
	srv, reqs := newTestServer(t, func(w http.ResponseWriter, req recordedRequest) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Amrit", " Kaal"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	llm, err := New(WithAPIKey("k"), WithBaseURL(srv.URL))
	require.NoError(t, err)

	var chunks []string
	resp, err := llm.GenerateContent(context.Background(),
		[]llms.MessageContent{llms.TextParts(schema.ChatMessageTypeHuman, "What is Amrit Kaal?")},
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			chunks = append(chunks, string(chunk))
			return nil
		}),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"Amrit", " Kaal"}, chunks)
	assert.Equal(t, "Amrit Kaal", resp.Choices[0].Content)
	assert.Equal(t, "stop", resp.Choices[0].StopReason)
	assert.Equal(t, true, (*reqs)[0].body["stream"])
}

func TestLLM_CreateEmbedding(t *testing.T) {
	srv, reqs := newTestServer(t, func(w http.ResponseWriter, req recordedRequest) {
		// answer out of order to check that results follow the index field
		fmt.Fprint(w, `{"object":"list","data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}],"model":"nomic"}`)
	})

	llm, err := New(WithAPIKey("k"), WithBaseURL(srv.URL), WithEmbeddingModel("nomic"))
	require.NoError(t, err)

	emb, err := llm.CreateEmbedding(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, emb)

	got := (*reqs)[0]
	assert.True(t, strings.HasSuffix(got.path, "/embeddings"))
	assert.Equal(t, "nomic", got.body["model"])
	assert.Equal(t, []any{"first", "second"}, got.body["input"])

	_, err = llm.CreateEmbedding(context.Background(), []string{"only one"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}
