// Package providers implements the chat-completion client used to draft
// replies, targeting OpenAI-compatible APIs (Groq, OpenAI, OpenRouter,
// DeepSeek, VLLM, etc.).
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	apiKey      string
	apiBase     string
	chatPath    string // defaults to "/chat/completions"
	temperature float64
	client      *http.Client
}

// NewClient creates a generation client. apiBase defaults to the OpenAI API
// root when empty.
func NewClient(apiKey, apiBase string, temperature float64) *Client {
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	apiBase = strings.TrimRight(apiBase, "/")

	return &Client{
		apiKey:      apiKey,
		apiBase:     apiBase,
		chatPath:    "/chat/completions",
		temperature: temperature,
		client:      &http.Client{Timeout: 120 * time.Second},
	}
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GenerateWithFallback tries each model in list order and returns the first
// successful completion. There is no per-model retry and no delay between
// attempts: a failed model is logged and the scan moves on. When every model
// fails, the last model's error is returned (earlier errors were logged).
func (c *Client) GenerateWithFallback(ctx context.Context, models []string, systemPrompt string, history []ChatMessage) (string, error) {
	if len(models) == 0 {
		return "", ErrNoModels
	}

	var lastErr error
	for i, model := range models {
		slog.Debug("trying model", "attempt", i+1, "of", len(models), "model", model)

		text, err := c.Generate(ctx, model, systemPrompt, history)
		if err == nil {
			if i > 0 {
				slog.Debug("generated reply with fallback model", "model", model)
			}
			return text, nil
		}

		if IsRateLimited(err) {
			slog.Warn("model rate limited", "model", model)
		} else {
			slog.Warn("model failed", "model", model, "error", err)
		}
		lastErr = err
	}

	return "", lastErr
}

// Generate requests a single completion from one model. The system prompt is
// prepended to the history as a "system" message.
func (c *Client) Generate(ctx context.Context, model, systemPrompt string, history []ChatMessage) (string, error) {
	messages := make([]ChatMessage, 0, len(history)+1)
	messages = append(messages, ChatMessage{Role: "system", Content: systemPrompt})
	messages = append(messages, history...)

	body := completionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: c.temperature,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+c.chatPath, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", &HTTPError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var completion completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return completion.Choices[0].Message.Content, nil
}
