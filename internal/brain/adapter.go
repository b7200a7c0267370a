// Package brain is the boundary to the external text-generation capability.
package brain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
)

// Message is one role-tagged entry in a model prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Roles accepted by the generation providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Request describes one bounded generation call.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// Adapter generates a reply for an assembled conversation context.
type Adapter interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Config controls adapter construction.
type Config struct {
	Provider        string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	AnthropicAPIKey string
	AnthropicModel  string
}

// NewAdapter builds the configured provider. In auto mode the first provider
// with credentials wins; with no credentials at all the mock provider is
// used so the service stays runnable locally.
func NewAdapter(cfg Config) (Adapter, string, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "auto"
	}

	switch provider {
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, "", errors.New("BRAIN_PROVIDER=openai but OPENAI_API_KEY is not set")
		}
		return NewOpenAIAdapter(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel), "openai", nil
	case "anthropic":
		if strings.TrimSpace(cfg.AnthropicAPIKey) == "" {
			return nil, "", errors.New("BRAIN_PROVIDER=anthropic but ANTHROPIC_API_KEY is not set")
		}
		return NewAnthropicAdapter(cfg.AnthropicAPIKey, cfg.AnthropicModel), "anthropic", nil
	case "mock":
		return NewMockAdapter(), "mock", nil
	case "auto":
		if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
			return NewOpenAIAdapter(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel), "openai", nil
		}
		if strings.TrimSpace(cfg.AnthropicAPIKey) != "" {
			return NewAnthropicAdapter(cfg.AnthropicAPIKey, cfg.AnthropicModel), "anthropic", nil
		}
		log.Printf("brain provider: mock (no model API key configured)")
		return NewMockAdapter(), "mock", nil
	default:
		return nil, "", fmt.Errorf("unsupported brain provider %q (expected auto|openai|anthropic|mock)", cfg.Provider)
	}
}
