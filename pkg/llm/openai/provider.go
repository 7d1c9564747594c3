// Package openai implements the chat provider for the OpenAI API and
// OpenAI-compatible services.
//
// Basic usage:
//
//	import _ "github.com/courselab/course-qa/pkg/llm/openai"
//	import "github.com/courselab/course-qa/pkg/llm"
//
//	provider, err := llm.NewChatProvider("openai", map[string]any{
//	    "api_key": "your-api-key",
//	})
package openai

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
const ProviderName = "openai"

func init() {
	llm.RegisterChatProvider(ProviderName, NewProvider)
}

// Config holds the OpenAI provider configuration.
type Config struct {
	// BaseURL is the API base address. Point it at any OpenAI-compatible
	// endpoint (Azure OpenAI, LocalAI, vLLM).
	BaseURL string `json:"base_url" mapstructure:"base_url"`

	// APIKey is the API key.
	APIKey string `json:"api_key" mapstructure:"api_key"`

	// ChatModel is the completion model.
	ChatModel string `json:"chat_model" mapstructure:"chat_model"`

	// Timeout is the per-request timeout.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// Organization is the organization ID (optional).
	Organization string `json:"organization" mapstructure:"organization"`

	// Temperature is the sampling temperature, 0 means API default.
	Temperature float64 `json:"temperature" mapstructure:"temperature"`

	// MaxTokens bounds the completion, 0 means API default.
	MaxTokens int `json:"max_tokens" mapstructure:"max_tokens"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:   "https://api.openai.com/v1",
		ChatModel: "gpt-4o-mini",
		Timeout:   60 * time.Second,
	}
}

// Provider is the OpenAI chat provider.
type Provider struct {
	config *Config
	client *httpclient.Client
}

// NewProvider creates an OpenAI provider from a config map.
func NewProvider(configMap map[string]any) (llm.ChatProvider, error) {
	cfg := DefaultConfig()

	if v, ok := configMap["base_url"].(string); ok && v != "" {
		cfg.BaseURL = v
	}
	if v, ok := configMap["api_key"].(string); ok && v != "" {
		cfg.APIKey = v
	}
	if v, ok := configMap["chat_model"].(string); ok && v != "" {
		cfg.ChatModel = v
	}
	if v, ok := configMap["timeout"].(time.Duration); ok && v > 0 {
		cfg.Timeout = v
	}
	if v, ok := configMap["organization"].(string); ok && v != "" {
		cfg.Organization = v
	}
	if v, ok := configMap["temperature"].(float64); ok {
		cfg.Temperature = v
	}
	if v, ok := configMap["max_tokens"].(int); ok {
		cfg.MaxTokens = v
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api_key is required")
	}

	return NewProviderWithConfig(cfg), nil
}

// NewProviderWithConfig creates an OpenAI provider from structured config.
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
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
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
		Model:       p.config.ChatModel,
		Messages:    chatMessages,
		Stream:      false,
		MaxTokens:   p.config.MaxTokens,
		Temperature: p.config.Temperature,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.setHeaders(req)

	var resp chatResponse
	if err := p.client.DoJSON(req, &resp); err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: response contains no choices")
	}

	return &llm.Completion{
		Text:  resp.Choices[0].Message.Content,
		Model: resp.Model,
		Usage: llm.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	if p.config.Organization != "" {
		req.Header.Set("OpenAI-Organization", p.config.Organization)
	}
}
