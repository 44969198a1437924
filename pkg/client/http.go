package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dukex/conformance/pkg/capability"
)

const fhirJSON = "application/fhir+json"

// Config configures an HTTPClient.
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
}

// HTTPClient implements Client over net/http. Replies with a 5xx status and network
// failures are retried; every other status is handed back to the caller as is.
type HTTPClient struct {
	config     Config
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPClient creates a client for the server at config.BaseURL.
func NewHTTPClient(config Config, logger *slog.Logger) (*HTTPClient, error) {
	if strings.TrimSpace(config.BaseURL) == "" {
		return nil, ErrNoBaseURL
	}

	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.Retries < 1 {
		config.Retries = 1
	}

	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")

	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPClient{
		config:     config,
		token:      config.Token,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger.With("module", "fhir_client"),
	}, nil
}

// BaseURL returns the normalized server address.
func (c *HTTPClient) BaseURL() string {
	return c.config.BaseURL
}

// SetAuth replaces the bearer token. An empty token disables the Authorization header.
func (c *HTTPClient) SetAuth(token string) {
	c.token = token
}

// Token returns the current bearer token.
func (c *HTTPClient) Token() string {
	return c.token
}

// Clone returns a copy with its own token.
func (c *HTTPClient) Clone() Client {
	clone := *c

	return &clone
}

// Get issues a GET request. path may be relative to the base URL or absolute.
func (c *HTTPClient) Get(ctx context.Context, path string, query url.Values, headers map[string]string) (*Response, error) {
	target := c.resolve(path)
	if len(query) > 0 {
		separator := "?"
		if strings.Contains(target, "?") {
			separator = "&"
		}

		target += separator + query.Encode()
	}

	var (
		response *Response
		lastErr  error
	)

	for attempt := 1; attempt <= c.config.Retries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		response, lastErr = c.do(ctx, target, headers)
		if lastErr != nil {
			if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
				break
			}

			continue
		}

		if response.Status < http.StatusInternalServerError {
			return response, nil
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("GET %s failed after %d attempts: %w", path, c.config.Retries, lastErr)
	}

	return response, nil
}

func (c *HTTPClient) do(ctx context.Context, target string, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", fhirJSON)

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	started := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.DebugContext(ctx, "request completed",
		"url", req.URL.Redacted(),
		"status", resp.StatusCode,
		"token_set", c.token != "",
		"duration", time.Since(started))

	return NewResponse(resp.StatusCode, resp.Header, body), nil
}

func (c *HTTPClient) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}

	return c.config.BaseURL + "/" + strings.TrimPrefix(path, "/")
}

// FetchCapabilities reads the server's capability document from "metadata".
func FetchCapabilities(ctx context.Context, c Client) (*capability.Index, error) {
	response, err := c.Get(ctx, "metadata", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch capability document: %w", err)
	}

	if response.Status != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch capability document: unexpected status %d", response.Status)
	}

	index, err := capability.Parse(response.Body)
	if err != nil {
		return nil, err
	}

	return index, nil
}
