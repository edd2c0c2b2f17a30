// Package llm implements content.Completer against an OpenRouter-compatible
// chat completions API.
package llm

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

	"github.com/JakeFAU/content-orchestrator/internal/apperr"
	"github.com/JakeFAU/content-orchestrator/internal/config"
	"github.com/JakeFAU/content-orchestrator/internal/content"
	"github.com/JakeFAU/content-orchestrator/internal/metrics"
)

const (
	providerName = "openrouter"
	maxErrorBody = 2048
)

// Config configures the client.
type Config struct {
	BaseURL     string
	Model       string
	APIKey      config.KeyFunc
	Referer     string
	Title       string
	MaxTokens   int
	Temperature float64
}

// Client calls the chat completions endpoint. It sets no client-side timeout;
// the gateway enforces its own limits and the caller's context still applies.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

var _ content.Completer = (*Client)(nil)

// New constructs a Client. A nil httpClient uses a client without timeout.
func New(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, httpClient: httpClient}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *content.Usage `json:"usage"`
	Error *providerError `json:"error"`
}

type providerError struct {
	Message string          `json:"message"`
	Code    json.RawMessage `json:"code"`
	Type    string          `json:"type"`
}

// Complete sends one completion request and returns the first choice.
func (c *Client) Complete(ctx context.Context, req content.CompletionRequest) (content.Completion, error) {
	key, err := c.cfg.APIKey()
	if err != nil {
		return content.Completion{}, err
	}

	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	body := chatRequest{Model: model, MaxTokens: req.MaxTokens}
	if body.MaxTokens == 0 {
		body.MaxTokens = c.cfg.MaxTokens
	}
	temp := req.Temperature
	if temp == 0 {
		temp = c.cfg.Temperature
	}
	if temp > 0 {
		body.Temperature = &temp
	}
	if s := strings.TrimSpace(req.System); s != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: s})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})

	payload, err := json.Marshal(body)
	if err != nil {
		return content.Completion{}, fmt.Errorf("marshal completion request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return content.Completion{}, fmt.Errorf("new completion request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		httpReq.Header.Set("X-Title", c.cfg.Title)
	}

	start := time.Now()
	out, err := c.do(httpReq)
	metrics.ObserveProviderRequest(providerName, err, time.Since(start))
	if err != nil {
		return content.Completion{}, err
	}

	completion := content.Completion{Model: out.Model}
	if completion.Model == "" {
		completion.Model = model
	}
	if len(out.Choices) > 0 {
		completion.Text = strings.TrimSpace(out.Choices[0].Message.Content)
	}
	if out.Usage != nil {
		completion.Usage = *out.Usage
		metrics.ObserveTokens(completion.Model, out.Usage.PromptTokens, out.Usage.CompletionTokens)
	}
	return completion, nil
}

func (c *Client) do(req *http.Request) (chatResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return chatResponse{}, apperr.Wrap(apperr.CodeTimeout, providerName, err)
		}
		return chatResponse{}, apperr.Wrap(apperr.CodeNetwork, providerName, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return chatResponse{}, apperr.Wrap(apperr.CodeNetwork, providerName, fmt.Errorf("read body: %w", err))
	}

	var out chatResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode >= http.StatusBadRequest {
		msg, typ := "", ""
		if decodeErr == nil && out.Error != nil {
			msg, typ = out.Error.Message, out.Error.Type
		}
		return chatResponse{}, apperr.Provider(providerName, resp.StatusCode, typ, msg, truncate(raw))
	}
	if decodeErr != nil {
		return chatResponse{}, apperr.Provider(providerName, resp.StatusCode, "decode", "invalid JSON response", truncate(raw))
	}
	// OpenRouter reports some upstream failures in a 200 body.
	if out.Error != nil && len(out.Choices) == 0 {
		return chatResponse{}, apperr.Provider(providerName, resp.StatusCode, out.Error.Type, out.Error.Message, truncate(raw))
	}
	return out, nil
}

func truncate(raw []byte) string {
	if len(raw) > maxErrorBody {
		raw = raw[:maxErrorBody]
	}
	return string(raw)
}
