package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxErrorBody = 64 << 10

// Client talks to a colsearch server.
type Client struct {
	baseURL string
	http    *http.Client
	apiKey  string
	obs     *observer
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("colsearch: base url %q must be absolute", baseURL)
	}

	cfg := &clientConfig{timeout: defaultTimeout}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: cfg.timeout}
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    cfg.httpClient,
		apiKey:  cfg.apiKey,
		obs:     obs,
	}, nil
}

// Search returns up to k passages for query. k <= 0 uses the server default.
func (c *Client) Search(ctx context.Context, query string, k int) (results []Result, err error) {
	start := time.Now()
	defer func() { c.obs.observe("search", start, err) }()

	body := searchRequest{Query: query}
	if k > 0 {
		body.K = &k
	}

	var resp searchResponse
	if _, err = c.do(ctx, http.MethodPost, "/search", body, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	if resp.Results == nil {
		resp.Results = []Result{}
	}
	return resp.Results, nil
}

// Health returns the service health. A not-ready service is reported in the
// status, not as an error.
func (c *Client) Health(ctx context.Context) (status HealthStatus, err error) {
	start := time.Now()
	defer func() { c.obs.observe("health", start, err) }()

	_, err = c.do(ctx, http.MethodGet, "/health", nil, &status, http.StatusOK, http.StatusServiceUnavailable)
	return status, err
}

// RestartBackend asks the server to retry a failed backend initialization.
func (c *Client) RestartBackend(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("restart_backend", start, err) }()

	_, err = c.do(ctx, http.MethodPost, "/admin/backend/restart", nil, nil, http.StatusAccepted)
	return err
}

// do sends a JSON request and decodes the response when its status is one of ok.
func (c *Client) do(ctx context.Context, method, path string, in, out any, ok ...int) (int, error) {
	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("colsearch: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("colsearch: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("colsearch: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	for _, s := range ok {
		if resp.StatusCode != s {
			continue
		}
		if out == nil {
			return resp.StatusCode, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("colsearch: decode response: %w", err)
		}
		return resp.StatusCode, nil
	}

	return resp.StatusCode, parseAPIError(resp)
}

func parseAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{Status: resp.StatusCode}

	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Code != "" {
		apiErr.Code = parsed.Code
		apiErr.Message = parsed.Message
		return apiErr
	}

	apiErr.Code = "unexpected_response"
	apiErr.Message = strings.TrimSpace(string(raw))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// IsRetryable reports whether err is worth retrying later: the backend is still
// loading or was unreachable.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable)
}
