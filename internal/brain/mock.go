package brain

import (
	"context"
	"fmt"
	"strings"
)

// MockAdapter provides deterministic local replies when no model API key
// is configured.
type MockAdapter struct{}

func NewMockAdapter() *MockAdapter { return &MockAdapter{} }

func (a *MockAdapter) Generate(ctx context.Context, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	last := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			last = strings.TrimSpace(req.Messages[i].Content)
			break
		}
	}
	if last == "" {
		return "I'm listening. What would you like to work on?", nil
	}
	return fmt.Sprintf("I hear you: %s. What would you like to focus on next?", last), nil
}
