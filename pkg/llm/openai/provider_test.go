package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courselab/course-qa/pkg/llm"
	"github.com/courselab/course-qa/pkg/utils/httpclient"
	"github.com/courselab/course-qa/pkg/utils/json"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewProviderWithConfig(&Config{
		BaseURL:     srv.URL,
		APIKey:      "test-key",
		ChatModel:   "gpt-4o-mini",
		Timeout:     5 * time.Second,
		Temperature: 0.1,
		MaxTokens:   256,
	})
}

func TestCompleteSendsChatRequest(t *testing.T) {
	var captured map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		_, _ = w.Write([]byte(`{
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "hi there"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`))
	})

	completion, err := p.Complete(context.Background(), []llm.Message{
		{Role: llm.RoleUser, Content: "hello"},
	})
	require.NoError(t, err)

	assert.Equal(t, "hi there", completion.Text)
	assert.Equal(t, 15, completion.Usage.TotalTokens)

	assert.Equal(t, "gpt-4o-mini", captured["model"])
	assert.Equal(t, false, captured["stream"])
	assert.Equal(t, 0.1, captured["temperature"])
	assert.Equal(t, float64(256), captured["max_tokens"])

	messages := captured["messages"].([]any)
	require.Len(t, messages, 1)
	msg := messages[0].(map[string]any)
	assert.Equal(t, "user", msg["role"])
	assert.Equal(t, "hello", msg["content"])
}

func TestCompleteSurfacesStatusError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "rate limited"}`, http.StatusTooManyRequests)
	})

	_, err := p.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "q"}})
	require.Error(t, err)

	var statusErr *httpclient.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.Code)
}

func TestCompleteEmptyChoices(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"model": "gpt-4o-mini", "choices": []}`))
	})

	_, err := p.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "q"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestNewProviderRequiresAPIKey(t *testing.T) {
	_, err := NewProvider(map[string]any{"base_url": "http://localhost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}

func TestProviderRegistered(t *testing.T) {
	assert.Contains(t, llm.ListChatProviders(), ProviderName)
}
