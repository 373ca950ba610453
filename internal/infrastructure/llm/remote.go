package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ACRScanner/internal/config"
	"ACRScanner/internal/domain"
	"ACRScanner/internal/ports"
)

// RemoteClient implements ports.TextGenerator against OpenAI-compatible
// chat completion APIs (Gemini's compatibility endpoint by default).
type RemoteClient struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	callDelay    time.Duration
	httpClient   *http.Client
}

var (
	_ ports.TextGenerator = (*RemoteClient)(nil)
	_ ports.Paced         = (*RemoteClient)(nil)
)

// NewRemoteClient builds a client from configuration.
func NewRemoteClient(cfg config.RemoteConfig) *RemoteClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &RemoteClient{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		callDelay:    cfg.CallDelay,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CallDelay is the pause the stages keep between two successful calls.
func (c *RemoteClient) CallDelay() time.Duration {
	return c.callDelay
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletion struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate posts the prompt as a user message and returns the first choice.
func (c *RemoteClient) Generate(ctx context.Context, prompt string) (domain.Generation, error) {
	if c == nil {
		return domain.Generation{}, fmt.Errorf("remote client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return domain.Generation{}, fmt.Errorf("remote client misconfigured")
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []chatMessage{
			{Role: "system", Content: safePrompt(c.systemPrompt)},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return domain.Generation{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Generation{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Generation{}, fmt.Errorf("send prompt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		detail := strings.TrimSpace(string(payload))
		if isQuotaResponse(resp.StatusCode, detail) {
			return domain.Generation{}, fmt.Errorf("%w: %s: %s", ports.ErrQuotaExceeded, resp.Status, detail)
		}
		return domain.Generation{}, fmt.Errorf("remote error %s: %s", resp.Status, detail)
	}

	var completion chatCompletion
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return domain.Generation{}, fmt.Errorf("decode completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return domain.Generation{}, fmt.Errorf("completion has no choices")
	}

	return domain.Generation{Text: completion.Choices[0].Message.Content}, nil
}

func isQuotaResponse(status int, body string) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	lower := strings.ToLower(body)
	return strings.Contains(lower, "quota") || strings.Contains(lower, "resource_exhausted")
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You are an accessibility compliance analyst."
	}
	return prompt
}
