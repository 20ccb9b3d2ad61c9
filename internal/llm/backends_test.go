package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	data, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	return body
}

func TestOllamaGenerator_Generate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		got = decodeBody(t, r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"model":"deepseek-r1:1.5b","response":"hello team","done":true,"prompt_eval_count":3,"eval_count":2}`)
	}))
	defer srv.Close()

	tracker := NewTokenTracker()
	g, err := NewOllamaGenerator(srv.URL, "deepseek-r1:1.5b", srv.Client(), tracker)
	require.NoError(t, err)

	out, err := g.Generate(context.Background(), "build it", Options{System: "you are a dev", Temperature: 0.7, TopP: 0.9, MaxTokens: 2000})
	require.NoError(t, err)
	assert.Equal(t, "hello team", out)

	assert.Equal(t, "deepseek-r1:1.5b", got["model"])
	assert.Equal(t, "build it", got["prompt"])
	assert.Equal(t, "you are a dev", got["system"])
	assert.Equal(t, false, got["stream"])
	opts, ok := got["options"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 0.7, opts["temperature"])
	assert.Equal(t, 0.9, opts["top_p"])
	assert.Equal(t, float64(2000), opts["num_predict"])

	in, outTok := tracker.Total()
	assert.Equal(t, int64(3), in)
	assert.Equal(t, int64(2), outTok)
}

func TestOllamaGenerator_ServerErrorIsConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"model runner crashed"}`)
	}))
	defer srv.Close()

	g, err := NewOllamaGenerator(srv.URL, "m", srv.Client(), nil)
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), "x", Options{})
	assert.ErrorIs(t, err, ErrConnection)
}

func TestOllamaGenerator_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	g, err := NewOllamaGenerator(addr, "m", nil, nil)
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), "x", Options{})
	assert.ErrorIs(t, err, ErrConnection)
}

func TestOllamaGenerator_RequiresModel(t *testing.T) {
	_, err := NewOllamaGenerator("localhost:11434", "", nil, nil)
	assert.Error(t, err)
}

func TestOpenAIGenerator_Generate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		got = decodeBody(t, r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"m",
			"choices":[{"index":0,"message":{"role":"assistant","content":"api done"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":4,"completion_tokens":2,"total_tokens":6}}`)
	}))
	defer srv.Close()

	tracker := NewTokenTracker()
	g, err := NewOpenAIGenerator(FactoryConfig{Model: "m", OpenAIKey: "k", OpenAIBaseURL: srv.URL + "/v1/", Tracker: tracker})
	require.NoError(t, err)

	out, err := g.Generate(context.Background(), "write api", Options{System: "backend dev", MaxTokens: 100})
	require.NoError(t, err)
	assert.Equal(t, "api done", out)

	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
	assert.Equal(t, float64(100), got["max_completion_tokens"])
	assert.Equal(t, 1, tracker.Calls())
}

func TestAnthropicGenerator_Generate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"))
		got = decodeBody(t, r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5",
			"content":[{"type":"text","text":"evaluated"}],"stop_reason":"end_turn",
			"usage":{"input_tokens":5,"output_tokens":1}}`)
	}))
	defer srv.Close()

	g, err := NewAnthropicGenerator(FactoryConfig{Model: "claude-sonnet-4-5", AnthropicKey: "sk-ant-test", AnthropicBaseURL: srv.URL})
	require.NoError(t, err)

	out, err := g.Generate(context.Background(), "judge", Options{System: "coordinator", MaxTokens: 50})
	require.NoError(t, err)
	assert.Equal(t, "evaluated", out)
	assert.Equal(t, "claude-sonnet-4-5", got["model"])
	assert.Equal(t, float64(50), got["max_tokens"])
}

func TestAnthropicGenerator_Overloaded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(529)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
	}))
	defer srv.Close()

	g, err := NewAnthropicGenerator(FactoryConfig{Model: "m", AnthropicKey: "k", AnthropicBaseURL: srv.URL})
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), "x", Options{})
	assert.True(t, errors.Is(err, ErrConnection), "got %v", err)
}
