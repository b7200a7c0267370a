package chat

import (
	"context"
	"fmt"
)

// MockProvider returns fixed values for local development and tests.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) UpsertUser(_ context.Context, userID, name string) error {
	return nil
}

func (p *MockProvider) CreateToken(_ context.Context, userID string) (string, error) {
	return "mock-token-" + userID, nil
}

func (p *MockProvider) CreateChannel(_ context.Context, learnerID, coachID string) (string, error) {
	return fmt.Sprintf("coach-%s-learner-%s", coachID, learnerID), nil
}
