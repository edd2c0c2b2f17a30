// Package imagegen generates featured images through an image gateway, then
// decodes and uploads them to blob storage.
package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/content-orchestrator/internal/apperr"
	"github.com/JakeFAU/content-orchestrator/internal/config"
	"github.com/JakeFAU/content-orchestrator/internal/metrics"
)

const providerName = "image-gateway"

// ClientConfig configures the gateway client.
type ClientConfig struct {
	BaseURL string
	Model   string
	Size    string
	APIKey  config.KeyFunc
}

// Client calls an OpenAI-style /images/generations endpoint.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
}

// NewClient constructs a Client. A nil httpClient uses a client without timeout.
func NewClient(cfg ClientConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, httpClient: httpClient}
}

type generateRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format"`
}

type generateResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate returns the raw bytes of one generated image.
func (c *Client) Generate(ctx context.Context, prompt string) ([]byte, error) {
	key, err := c.cfg.APIKey()
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(generateRequest{
		Model:          c.cfg.Model,
		Prompt:         prompt,
		N:              1,
		Size:           c.cfg.Size,
		ResponseFormat: "b64_json",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal image request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/images/generations", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("new image request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	out, err := c.post(req)
	metrics.ObserveProviderRequest(providerName, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, apperr.New(apperr.CodeProvider, providerName, "response contained no images")
	}
	if b64 := out.Data[0].B64JSON; b64 != "" {
		return DecodeBase64(b64)
	}
	if u := out.Data[0].URL; u != "" {
		return c.download(ctx, u)
	}
	return nil, apperr.New(apperr.CodeProvider, providerName, "image payload was empty")
}

func (c *Client) post(req *http.Request) (generateResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return generateResponse{}, apperr.Wrap(apperr.CodeNetwork, providerName, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return generateResponse{}, apperr.Wrap(apperr.CodeNetwork, providerName, fmt.Errorf("read body: %w", err))
	}
	var out generateResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode >= http.StatusBadRequest || (decodeErr == nil && out.Error != nil) {
		msg, typ := "", ""
		if decodeErr == nil && out.Error != nil {
			msg, typ = out.Error.Message, out.Error.Type
		}
		return generateResponse{}, apperr.Provider(providerName, resp.StatusCode, typ, msg, string(raw[:min(len(raw), 2048)]))
	}
	if decodeErr != nil {
		return generateResponse{}, apperr.Provider(providerName, resp.StatusCode, "decode", "invalid JSON response", "")
	}
	return out, nil
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new image download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeNetwork, providerName, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, apperr.Provider(providerName, resp.StatusCode, "download", "", "")
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeNetwork, providerName, fmt.Errorf("read image: %w", err))
	}
	return data, nil
}

// DecodeBase64 decodes a raw or data-URL base64 payload.
func DecodeBase64(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		if _, after, ok := strings.Cut(payload, ","); ok {
			payload = after
		}
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeProvider, "decode image", err)
	}
	if len(data) == 0 {
		return nil, apperr.New(apperr.CodeProvider, "decode image", "empty image")
	}
	return data, nil
}
