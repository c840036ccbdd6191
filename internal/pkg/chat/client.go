package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JonasBergmann/CompanionDeck/internal/pkg/env"
)

const (
	defaultAPIBaseURL = "https://api.openai.com/v1"
	defaultModel      = "gpt-4o-mini"
)

// Message is one turn of a conversation sent to the completion API.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer produces an assistant reply for a conversation. The HTTP client
// below is the production implementation; tests substitute their own.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Client talks to an OpenAI-compatible chat completion endpoint. Requests and
// responses are JSON with bearer auth.
type Client struct {
	APIKey     string
	APIBaseURL string
	Model      string

	HTTPClient *http.Client
}

func NewClientFromEnv() *Client {
	return &Client{
		APIKey:     strings.TrimSpace(env.GetEnv("AI_API_KEY", "")),
		APIBaseURL: strings.TrimSpace(env.GetEnv("AI_API_BASE_URL", defaultAPIBaseURL)),
		Model:      strings.TrimSpace(env.GetEnv("AI_MODEL", defaultModel)),
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Complete sends the conversation and returns the assistant's reply text.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return "", errors.New("AI_API_KEY is not configured")
	}
	if len(messages) == 0 {
		return "", errors.New("conversation is empty")
	}

	payload, err := json.Marshal(struct {
		Model    string    `json:"model"`
		Messages []Message `json:"messages"`
	}{
		Model:    c.Model,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.APIBaseURL, "/")+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("chat completion failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out struct {
		Choices []struct {
			Message Message `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}
