package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/quotagate/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// GenerateRequest describes one generation job.
type GenerateRequest struct {
	Feature string         `json:"feature"`
	Prompt  string         `json:"prompt"`
	Inputs  map[string]any `json:"inputs,omitempty"`
}

// GenerateResponse is the upstream's payload on success.
type GenerateResponse struct {
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
}

// Client calls the generation backend over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *zap.Logger
}

type ClientParams struct {
	fx.In

	Cfg config.Config
	Log *zap.Logger
}

func NewClient(p ClientParams) *Client {
	timeout := time.Duration(p.Cfg.Upstream.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(p.Cfg.Upstream.BaseURL, "/"),
		apiKey:     p.Cfg.Upstream.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        p.Log.Named("upstream.client"),
	}
}

// Generate runs one generation job. Failures come back as ErrNotConfigured,
// ErrEmptyResult, or *ProviderError; the caller classifies them.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if c.baseURL == "" || c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.providerError(resp.StatusCode, raw)
	}

	var payload GenerateResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode upstream response: %w", err)
	}
	if strings.TrimSpace(payload.Content) == "" {
		return nil, ErrEmptyResult
	}
	return &payload, nil
}

func (c *Client) providerError(status int, raw []byte) error {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Error.Message == "" {
		return &ProviderError{
			StatusCode: status,
			Message:    strings.TrimSpace(string(raw)),
		}
	}
	return &ProviderError{
		StatusCode: status,
		Code:       envelope.Error.Code,
		Message:    envelope.Error.Message,
	}
}

var Module = fx.Module("upstream",
	fx.Provide(NewClient),
)
