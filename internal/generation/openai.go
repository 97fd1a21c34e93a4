package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hyperjump/pdfinsight/internal/config"
)

const maxErrorBody = 512

// chatRequest is the request body of an OpenAI-compatible chat completion.
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

// chatResponse is the subset of the completion response we read.
type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// OpenAIClient calls an OpenAI-compatible /chat/completions endpoint (Groq by default).
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewOpenAIFactory returns a Factory whose clients share one HTTP client and
// one rate limiter derived from cfg.
func NewOpenAIFactory(cfg config.GenerationConfig) Factory {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	return func(model string) (Generator, error) {
		if cfg.APIKey == "" {
			return nil, ErrMissingAPIKey
		}
		if model == "" {
			return nil, fmt.Errorf("model name is required")
		}
		return &OpenAIClient{
			baseURL:    baseURL,
			apiKey:     cfg.APIKey,
			model:      model,
			httpClient: httpClient,
			limiter:    limiter,
		}, nil
	}
}

// Model returns the model name sent with every request.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Generate sends req as a non-streaming chat completion and returns the first choice.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    req.Messages(),
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := string(raw)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return "", fmt.Errorf("model %s returned status %d: %s", c.model, resp.StatusCode, msg)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("model %s error: %s", c.model, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("model %s returned no choices", c.model)
	}
	return parsed.Choices[0].Message.Content, nil
}
