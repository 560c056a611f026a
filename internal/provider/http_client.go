package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// HTTPClientConfig configures the HTTP provider client.
type HTTPClientConfig struct {
	BaseURL       string
	Token         string
	Client        *http.Client
	Logger        *slog.Logger
	MaxAttempts   int
	RetryInterval time.Duration
}

// HTTPClient talks to the provider's REST API. Requests are retried up to
// MaxAttempts with RetryInterval between attempts; each failed attempt is
// logged at warn level.
type HTTPClient struct {
	baseURL       string
	token         string
	client        *http.Client
	logger        *slog.Logger
	maxAttempts   int
	retryInterval time.Duration
}

// NewHTTPClient constructs an HTTPClient from the provided configuration.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	interval := cfg.RetryInterval
	if interval < 0 {
		interval = 0
	}
	return &HTTPClient{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		token:         cfg.Token,
		client:        client,
		logger:        logger,
		maxAttempts:   attempts,
		retryInterval: interval,
	}
}

func (c *HTTPClient) CreateSession(ctx context.Context, cfg SessionConfig) (CreatedSession, error) {
	var created CreatedSession
	body, err := json.Marshal(cfg)
	if err != nil {
		return CreatedSession{}, fmt.Errorf("marshal session config: %w", err)
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/v1/live/sessions", body, &created); err != nil {
		return CreatedSession{}, err
	}
	if strings.TrimSpace(created.ProviderSessionID) == "" {
		return CreatedSession{}, fmt.Errorf("provider returned empty session id")
	}
	return created, nil
}

func (c *HTTPClient) DeleteSession(ctx context.Context, providerSessionID string) error {
	url := fmt.Sprintf("%s/v1/live/sessions/%s", c.baseURL, providerSessionID)
	return c.do(ctx, http.MethodDelete, url, nil, nil)
}

func (c *HTTPClient) GetSessionStatus(ctx context.Context, providerSessionID string) (SessionStatus, error) {
	var status SessionStatus
	url := fmt.Sprintf("%s/v1/live/sessions/%s/status", c.baseURL, providerSessionID)
	if err := c.do(ctx, http.MethodGet, url, nil, &status); err != nil {
		return SessionStatus{}, err
	}
	return status, nil
}

func (c *HTTPClient) do(ctx context.Context, method, url string, payload []byte, dest interface{}) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.client.Do(req)
		if err == nil {
			err = c.readResponse(resp, dest)
			if err == nil || errors.Is(err, ErrNotFound) {
				return err
			}
		}
		lastErr = err
		c.logger.Warn("provider request failed",
			"method", method,
			"url", url,
			"attempt", attempt,
			"error", err)
		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryInterval):
		}
	}
	return fmt.Errorf("%s %s after %d attempts: %w", method, url, c.maxAttempts, lastErr)
}

func (c *HTTPClient) readResponse(resp *http.Response, dest interface{}) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if dest == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var _ Client = (*HTTPClient)(nil)
