// Package ollama implements the chat provider for a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/courselab/course-qa/pkg/llm"
	"github.com/courselab/course-qa/pkg/utils/httpclient"
	"github.com/courselab/course-qa/pkg/utils/json"
)

// ProviderName is the registry identifier for this provider.
const ProviderName = "ollama"

func init() {
	llm.RegisterChatProvider(ProviderName, NewProvider)
}

// Config holds the Ollama provider configuration.
type Config struct {
	// BaseURL is the Ollama server address.
	BaseURL string `json:"base_url" mapstructure:"base_url"`

	// ChatModel is the completion model.
	ChatModel string `json:"chat_model" mapstructure:"chat_model"`

	// Timeout is the per-request timeout. Local models can be slow on first
	// load, keep this generous.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// Temperature is the sampling temperature, 0 means server default.
	Temperature float64 `json:"temperature" mapstructure:"temperature"`

	// MaxTokens bounds the completion (num_predict), 0 means server default.
	MaxTokens int `json:"max_tokens" mapstructure:"max_tokens"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:   "http://localhost:11434",
		ChatModel: "llama3.1",
		Timeout:   120 * time.Second,
	}
}

// Provider is the Ollama chat provider.
type Provider struct {
	config *Config
	client *httpclient.Client
}

// NewProvider creates an Ollama provider from a config map.
func NewProvider(configMap map[string]any) (llm.ChatProvider, error) {
	cfg := DefaultConfig()

	if v, ok := configMap["base_url"].(string); ok && v != "" {
		cfg.BaseURL = v
	}
	if v, ok := configMap["chat_model"].(string); ok && v != "" {
		cfg.ChatModel = v
	}
	if v, ok := configMap["timeout"].(time.Duration); ok && v > 0 {
		cfg.Timeout = v
	}
	if v, ok := configMap["temperature"].(float64); ok {
		cfg.Temperature = v
	}
	if v, ok := configMap["max_tokens"].(int); ok {
		cfg.MaxTokens = v
	}

	return NewProviderWithConfig(cfg), nil
}

// NewProviderWithConfig creates an Ollama provider from structured config.
func NewProviderWithConfig(cfg *Config) *Provider {
	return &Provider{
		config: cfg,
		client: httpclient.NewClient(cfg.Timeout),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return ProviderName
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model           string      `json:"model"`
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

// Complete runs one chat-completion call.
func (p *Provider) Complete(ctx context.Context, messages []llm.Message) (*llm.Completion, error) {
	chatMessages := make([]chatMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = chatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}

	reqBody := chatRequest{
		Model:    p.config.ChatModel,
		Messages: chatMessages,
		Stream:   false,
	}

	options := make(map[string]any)
	if p.config.Temperature > 0 {
		options["temperature"] = p.config.Temperature
	}
	if p.config.MaxTokens > 0 {
		options["num_predict"] = p.config.MaxTokens
	}
	if len(options) > 0 {
		reqBody.Options = options
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp chatResponse
	if err := p.client.DoJSON(req, &resp); err != nil {
		return nil, err
	}

	return &llm.Completion{
		Text:  resp.Message.Content,
		Model: resp.Model,
		Usage: llm.TokenUsage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
	}, nil
}
