package chat

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// LocalProvider issues tokens and channel ids locally, without a messaging
// backend. Tokens are HMAC-SHA256 over the user id so a relay holding the
// same secret can verify them.
type LocalProvider struct {
	secret []byte
}

func NewLocalProvider(secret string) *LocalProvider {
	return &LocalProvider{secret: []byte(secret)}
}

func (p *LocalProvider) UpsertUser(_ context.Context, userID, name string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required")
	}
	return nil
}

func (p *LocalProvider) CreateToken(_ context.Context, userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("user id is required")
	}
	mac := hmac.New(sha256.New, p.secret)
	mac.Write([]byte(userID))
	return userID + "." + hex.EncodeToString(mac.Sum(nil)), nil
}

func (p *LocalProvider) CreateChannel(_ context.Context, learnerID, coachID string) (string, error) {
	if strings.TrimSpace(learnerID) == "" || strings.TrimSpace(coachID) == "" {
		return "", fmt.Errorf("learner and coach ids are required")
	}
	return fmt.Sprintf("coach-%s-learner-%s", coachID, learnerID), nil
}
