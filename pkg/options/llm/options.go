// Package llm provides LLM provider configuration options.
package llm

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/courselab/course-qa/pkg/options"
)

var _ options.IOptions = (*ProviderOptions)(nil)

// ProviderOptions configures the chat-completion provider.
type ProviderOptions struct {
	// Provider is the provider name (openai, ollama).
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL is the API base address.
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// APIKey is the API key (required for openai).
	APIKey string `json:"-" mapstructure:"api-key"`

	// Model is the model name.
	Model string `json:"model" mapstructure:"model"`

	// Timeout is the per-request timeout.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries is the retry ceiling for transient completion failures.
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`

	// MaxTokens bounds the completion length.
	MaxTokens int `json:"max-tokens" mapstructure:"max-tokens"`

	// Temperature is the sampling temperature. Kept low for factual answers.
	Temperature float64 `json:"temperature" mapstructure:"temperature"`

	// Organization is the organization ID (openai, optional).
	Organization string `json:"organization" mapstructure:"organization"`
}

// NewProviderOptions creates default chat provider options.
func NewProviderOptions() *ProviderOptions {
	return &ProviderOptions{
		Provider:    "openai",
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-4o-mini",
		Timeout:     60 * time.Second,
		MaxRetries:  3,
		MaxTokens:   1024,
		Temperature: 0.1,
	}
}

// ToConfigMap converts the options to a config map for the provider factory.
func (o *ProviderOptions) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":     o.BaseURL,
		"api_key":      o.APIKey,
		"chat_model":   o.Model,
		"timeout":      o.Timeout,
		"max_tokens":   o.MaxTokens,
		"temperature":  o.Temperature,
		"organization": o.Organization,
	}
}

// AddFlags adds flags for LLM provider options to the specified FlagSet.
func (o *ProviderOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Provider, options.Join(prefixes...)+"llm.provider", o.Provider, "LLM provider (openai, ollama).")
	fs.StringVar(&o.BaseURL, options.Join(prefixes...)+"llm.base-url", o.BaseURL, "LLM API base URL.")
	fs.StringVar(&o.APIKey, options.Join(prefixes...)+"llm.api-key", o.APIKey, "LLM API key (DEPRECATED: use OPENAI_API_KEY env var instead).")
	fs.StringVar(&o.Model, options.Join(prefixes...)+"llm.model", o.Model, "LLM model name.")
	fs.DurationVar(&o.Timeout, options.Join(prefixes...)+"llm.timeout", o.Timeout, "LLM request timeout.")
	fs.IntVar(&o.MaxRetries, options.Join(prefixes...)+"llm.max-retries", o.MaxRetries, "LLM maximum number of retries.")
	fs.IntVar(&o.MaxTokens, options.Join(prefixes...)+"llm.max-tokens", o.MaxTokens, "Maximum completion tokens.")
	fs.Float64Var(&o.Temperature, options.Join(prefixes...)+"llm.temperature", o.Temperature, "Sampling temperature.")
	fs.StringVar(&o.Organization, options.Join(prefixes...)+"llm.organization", o.Organization, "LLM organization ID (optional).")
}

// Validate validates the LLM provider options.
func (o *ProviderOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Provider == "" {
		errs = append(errs, fmt.Errorf("llm.provider is required"))
	}
	if o.BaseURL == "" {
		errs = append(errs, fmt.Errorf("llm.base-url is required"))
	}
	if o.Model == "" {
		errs = append(errs, fmt.Errorf("llm.model is required"))
	}
	if o.Provider == "openai" && o.APIKey == "" {
		errs = append(errs, fmt.Errorf("llm.api-key is required for openai provider"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("llm.timeout must be positive"))
	}
	if o.Temperature < 0 || o.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be in [0, 2]"))
	}
	return errs
}

// Complete completes the LLM provider options with defaults.
func (o *ProviderOptions) Complete() error {
	if o.APIKey == "" {
		o.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 1024
	}
	return nil
}
