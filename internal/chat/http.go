package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPProvider forwards provisioning calls to a messaging relay that holds
// the real provider credentials.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

func NewHTTPProvider(baseURL string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (p *HTTPProvider) UpsertUser(ctx context.Context, userID, name string) error {
	_, err := p.post(ctx, "/users", map[string]string{"id": userID, "name": name})
	return err
}

func (p *HTTPProvider) CreateToken(ctx context.Context, userID string) (string, error) {
	body, err := p.post(ctx, "/tokens", map[string]string{"user_id": userID})
	if err != nil {
		return "", err
	}
	var parsed struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if parsed.Token == "" {
		return "", fmt.Errorf("relay returned an empty token")
	}
	return parsed.Token, nil
}

func (p *HTTPProvider) CreateChannel(ctx context.Context, learnerID, coachID string) (string, error) {
	body, err := p.post(ctx, "/channels", map[string]string{
		"learner_id": learnerID,
		"coach_id":   coachID,
	})
	if err != nil {
		return "", err
	}
	var parsed struct {
		ChannelID string `json:"channel_id"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode channel response: %w", err)
	}
	if parsed.ChannelID == "" {
		return "", fmt.Errorf("relay returned an empty channel id")
	}
	return parsed.ChannelID, nil
}

func (p *HTTPProvider) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("relay http status %d: %s", res.StatusCode, string(body))
	}
	return body, nil
}
