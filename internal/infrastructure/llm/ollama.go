package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ACRScanner/internal/config"
	"ACRScanner/internal/domain"
	"ACRScanner/internal/ports"
)

// OllamaClient talks to a locally hosted Ollama instance. Local calls are
// not quota-limited, so it does not implement ports.Paced.
type OllamaClient struct {
	baseURL     string
	model       string
	temperature float64
	httpClient  *http.Client
}

var _ ports.TextGenerator = (*OllamaClient)(nil)

// NewOllamaClient targets cfg.BaseURL. Generation on a laptop can be slow,
// so the HTTP client has no overall timeout; cancel through ctx instead.
func NewOllamaClient(cfg config.LocalConfig) *OllamaClient {
	return &OllamaClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{},
	}
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error,omitempty"`
}

// Generate sends a single-turn chat to /api/chat.
func (c *OllamaClient) Generate(ctx context.Context, prompt string) (domain.Generation, error) {
	if c.model == "" {
		return domain.Generation{}, fmt.Errorf("ollama model is not configured")
	}

	body, err := json.Marshal(ollamaChatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   false,
		Options:  map[string]any{"temperature": c.temperature},
	})
	if err != nil {
		return domain.Generation{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return domain.Generation{}, fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Generation{}, fmt.Errorf("chat request (is ollama running?): %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Generation{}, fmt.Errorf("chat: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var result ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return domain.Generation{}, fmt.Errorf("decoding chat response: %w", err)
	}
	if result.Error != "" {
		return domain.Generation{}, fmt.Errorf("ollama: %s", result.Error)
	}

	return domain.Generation{Text: result.Message.Content}, nil
}
