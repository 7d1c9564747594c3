// Package llm provides the chat-completion provider abstraction. Concrete
// providers register themselves by name so deployments select the backend
// through configuration.
package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a chat conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TokenUsage reports token accounting for one completion call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the result of one chat-completion call.
type Completion struct {
	Text  string     `json:"text"`
	Model string     `json:"model"`
	Usage TokenUsage `json:"usage"`
}

// ChatProvider is a chat-completion backend.
type ChatProvider interface {
	// Complete runs one chat-completion call.
	Complete(ctx context.Context, messages []Message) (*Completion, error)

	// Name returns the provider name.
	Name() string
}

// ChatProviderFactory builds a provider from a config map.
type ChatProviderFactory func(config map[string]any) (ChatProvider, error)

var registry = struct {
	mu        sync.RWMutex
	factories map[string]ChatProviderFactory
}{
	factories: make(map[string]ChatProviderFactory),
}

// RegisterChatProvider registers a provider factory under name. Called from
// provider package init functions.
func RegisterChatProvider(name string, factory ChatProviderFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.factories[name] = factory
}

// NewChatProvider creates a provider instance by name.
func NewChatProvider(name string, config map[string]any) (ChatProvider, error) {
	registry.mu.RLock()
	factory, ok := registry.factories[name]
	registry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown chat provider %q, registered providers: %s",
			name, strings.Join(ListChatProviders(), ", "))
	}
	return factory(config)
}

// ListChatProviders lists all registered provider names, sorted.
func ListChatProviders() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	names := make([]string, 0, len(registry.factories))
	for name := range registry.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
