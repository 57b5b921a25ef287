package client

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

	"cowsay-gateway/internal/health"
)

const (
	DefaultBaseURL = "http://localhost:80"
	DefaultTimeout = 30 * time.Second
)

type Config struct {
	BaseURL string
	Timeout time.Duration
	APIKey  string
}

// RenderRequest is the body of POST /cowsay.
type RenderRequest struct {
	Text *string `json:"text,omitempty"`
}

// RenderResponse is the success body of POST /cowsay.
type RenderResponse struct {
	CowsayOutput string `json:"cowsayOutput"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Client talks to a running cowsay gateway.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	return &Client{
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		apiKey:     config.APIKey,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Generate renders text and returns the ASCII art.
func (c *Client) Generate(ctx context.Context, text string) (string, error) {
	var resp RenderResponse
	if err := c.do(ctx, http.MethodPost, "/cowsay", RenderRequest{Text: &text}, &resp); err != nil {
		return "", fmt.Errorf("cowsay generation failed: %v", err)
	}
	return resp.CowsayOutput, nil
}

func (c *Client) Health(ctx context.Context) (*health.Response, error) {
	var resp health.Response
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, fmt.Errorf("health check failed: %v", err)
	}
	return &resp, nil
}

// Reachable reports whether the gateway answers its health check.
func (c *Client) Reachable(ctx context.Context) bool {
	_, err := c.Health(ctx)
	return err == nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %v", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorBody
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return errors.New(e.Error)
		}
		return fmt.Errorf("request failed with status code %d", resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %v", err)
	}
	return nil
}
