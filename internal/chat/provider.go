// Package chat is the boundary to the external chat-messaging provider:
// user upsert, client token issuance, and channel provisioning. The core
// conversation logic never calls it.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
)

// Provider mirrors the thin CRUD surface the messaging backend offers.
type Provider interface {
	UpsertUser(ctx context.Context, userID, name string) error
	CreateToken(ctx context.Context, userID string) (string, error)
	CreateChannel(ctx context.Context, learnerID, coachID string) (string, error)
}

// Config controls provider construction.
type Config struct {
	Mode        string
	RelayURL    string
	TokenSecret string
}

// NewProvider builds the configured provider. Auto prefers a relay URL,
// then a local token secret, then the mock.
func NewProvider(cfg Config) (Provider, string, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "http":
		if strings.TrimSpace(cfg.RelayURL) == "" {
			return nil, "", errors.New("CHAT_PROVIDER_MODE=http but CHAT_PROVIDER_URL is not set")
		}
		return NewHTTPProvider(cfg.RelayURL), "http", nil
	case "local":
		if strings.TrimSpace(cfg.TokenSecret) == "" {
			return nil, "", errors.New("CHAT_PROVIDER_MODE=local but CHAT_TOKEN_SECRET is not set")
		}
		return NewLocalProvider(cfg.TokenSecret), "local", nil
	case "mock":
		return NewMockProvider(), "mock", nil
	case "auto":
		if strings.TrimSpace(cfg.RelayURL) != "" {
			return NewHTTPProvider(cfg.RelayURL), "http", nil
		}
		if strings.TrimSpace(cfg.TokenSecret) != "" {
			return NewLocalProvider(cfg.TokenSecret), "local", nil
		}
		log.Printf("chat provider: mock (no relay url or token secret configured)")
		return NewMockProvider(), "mock", nil
	default:
		return nil, "", fmt.Errorf("unsupported chat provider mode %q (expected auto|http|local|mock)", cfg.Mode)
	}
}
