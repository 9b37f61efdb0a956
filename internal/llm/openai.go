package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nugget/daybreak/internal/httpkit"
)

// OpenAIConfig configures an [OpenAIClient].
type OpenAIConfig struct {
	APIKey   string
	BaseURL  string // e.g. https://openrouter.ai/api/v1
	SiteURL  string // sent as HTTP-Referer
	SiteName string // sent as X-Title
	Timeout  time.Duration
}

// OpenAIClient calls a chat completions endpoint. It never retries:
// one Chat call is one HTTP request.
type OpenAIClient struct {
	apiKey     string
	endpoint   string
	siteURL    string
	siteName   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAIClient creates a client for cfg.BaseURL + "/chat/completions".
func NewOpenAIClient(cfg OpenAIConfig, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = httpkit.DefaultTimeout
	}

	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		siteURL:    cfg.SiteURL,
		siteName:   cfg.SiteName,
		httpClient: httpkit.NewClient(httpkit.WithTimeout(timeout)),
		logger:     logger.With("provider", "openai_compatible"),
	}
}

type completionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Chat sends req and returns the first choice's text verbatim.
func (c *OpenAIClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if c.apiKey == "" {
		return nil, &UnavailableError{Reason: ReasonNoCredential}
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, &UnavailableError{Reason: ReasonRequest, Err: fmt.Errorf("marshal request: %w", err)}
	}

	c.logger.Debug("preparing request",
		"model", req.Model,
		"family", ClassifyModel(req.Model).String(),
		"messages", len(req.Messages),
		"max_tokens", req.MaxTokens,
	)
	c.logger.Log(ctx, LevelTrace, "request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, &UnavailableError{Reason: ReasonRequest, Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.siteURL != "" {
		httpReq.Header.Set("HTTP-Referer", c.siteURL)
	}
	if c.siteName != "" {
		httpReq.Header.Set("X-Title", c.siteName)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &UnavailableError{Reason: ReasonTransport, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	if err := httpkit.CheckStatus(resp); err != nil {
		c.logger.Warn("API error", "status", resp.StatusCode, "error", err)
		return nil, &UnavailableError{Reason: ReasonStatus, Status: resp.StatusCode, Err: err}
	}

	var body completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &UnavailableError{Reason: ReasonDecode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(body.Choices) == 0 || body.Choices[0].Message.Content == nil {
		return nil, &UnavailableError{Reason: ReasonDecode, Err: errors.New("response has no choices[0].message.content")}
	}

	content := *body.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return nil, &UnavailableError{Reason: ReasonEmpty}
	}

	result := &ChatResponse{
		Model:    body.Model,
		Content:  content,
		Duration: time.Since(start),
	}
	if result.Model == "" {
		result.Model = req.Model
	}
	if body.Usage != nil {
		result.InputTokens = body.Usage.PromptTokens
		result.OutputTokens = body.Usage.CompletionTokens
	}

	c.logger.Debug("response received",
		"model", result.Model,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"elapsed", result.Duration.Round(time.Millisecond),
	)
	c.logger.Log(ctx, LevelTrace, "response content", "content", result.Content)

	return result, nil
}
