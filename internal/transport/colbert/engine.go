package colbert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/colsearch/internal/domain/search/result"
	"github.com/kailas-cloud/colsearch/internal/usecase/backend"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultReadyTimeout   = 5 * time.Minute
	defaultPollInterval   = time.Second

	maxErrorBody = 4 << 10
)

// Artifacts the engine writes into every index directory; at least one must exist.
var indexArtifacts = []string{"plan.json", "metadata.json"}

// Config holds the engine endpoint settings.
type Config struct {
	URL            string
	RequestTimeout time.Duration
	ReadyTimeout   time.Duration
	PollInterval   time.Duration
	HTTPClient     *http.Client
	Logger         *zap.Logger
}

// IndexInfo is the subset of the engine's metadata.json worth logging.
type IndexInfo struct {
	NumPassages   int64 `json:"num_passages"`
	NumEmbeddings int64 `json:"num_embeddings"`
	NumChunks     int   `json:"num_chunks"`
}

// Engine is a handle on one index loaded by a remote late-interaction searcher.
type Engine struct {
	client    *http.Client
	searchURL string
	indexName string
	logger    *zap.Logger
}

type searchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

type searchResponse struct {
	PIDs   []int64   `json:"pids"`
	Scores []float64 `json:"scores"`
}

// NewFactory returns a backend.Factory that opens engine handles with cfg.
func NewFactory(cfg Config) backend.Factory {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = defaultReadyTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(ctx context.Context, indexRoot, indexName string) (backend.Engine, error) {
		return Open(ctx, &cfg, indexRoot, indexName)
	}
}

// Open verifies the index artifact on disk and waits until the engine has it loaded.
func Open(ctx context.Context, cfg *Config, indexRoot, indexName string) (*Engine, error) {
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("engine url %q is not absolute", cfg.URL)
	}

	dir := filepath.Join(indexRoot, indexName)
	info, err := inspectIndex(dir)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger.With(zap.String("index_name", indexName))
	logger.Info("Index artifact found",
		zap.String("dir", dir),
		zap.Int64("num_passages", info.NumPassages),
		zap.Int64("num_embeddings", info.NumEmbeddings),
	)

	indexURL := base.JoinPath("indexes", indexName).String()
	e := &Engine{
		client:    cfg.HTTPClient,
		searchURL: indexURL + "/search",
		indexName: indexName,
		logger:    logger,
	}

	start := time.Now()
	if err := e.waitLoaded(ctx, indexURL, cfg.ReadyTimeout, cfg.PollInterval); err != nil {
		return nil, err
	}
	logger.Info("Engine reports index loaded", zap.Duration("waited", time.Since(start)))

	return e, nil
}

// inspectIndex checks that dir is an index directory and reads metadata.json when present.
func inspectIndex(dir string) (IndexInfo, error) {
	st, err := os.Stat(dir)
	if err != nil {
		return IndexInfo{}, fmt.Errorf("index directory: %w", err)
	}
	if !st.IsDir() {
		return IndexInfo{}, fmt.Errorf("index path %s is not a directory", dir)
	}

	found := false
	for _, name := range indexArtifacts {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			found = true
			break
		}
	}
	if !found {
		return IndexInfo{}, fmt.Errorf("index directory %s has no %s", dir, strings.Join(indexArtifacts, " or "))
	}

	var info IndexInfo
	data, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &info); err != nil {
			return IndexInfo{}, fmt.Errorf("parse %s/metadata.json: %w", dir, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return IndexInfo{}, fmt.Errorf("read %s/metadata.json: %w", dir, err)
	}
	return info, nil
}

// waitLoaded polls the index endpoint until it answers 200.
func (e *Engine) waitLoaded(ctx context.Context, indexURL string, timeout, interval time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		err := e.probe(ctx, indexURL)
		if err == nil {
			return nil
		}
		// Keep the engine's own answer over a deadline hit mid-probe.
		if lastErr == nil || ctx.Err() == nil {
			lastErr = err
		}
		e.logger.Debug("Engine not ready yet", zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("engine did not load index %q within %s: %w", e.indexName, timeout, lastErr)
		case <-ticker.C:
		}
	}
}

func (e *Engine) probe(ctx context.Context, indexURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, indexURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("engine request: %w", err)
	}
	defer drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

// Search returns up to k hits for query in engine order.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]result.Hit, error) {
	body, err := json.Marshal(searchRequest{Query: query, K: k})
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.searchURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("engine request: %w", err)
	}
	defer drain(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if len(sr.PIDs) != len(sr.Scores) {
		return nil, fmt.Errorf("engine returned %d pids and %d scores", len(sr.PIDs), len(sr.Scores))
	}

	hits := make([]result.Hit, len(sr.PIDs))
	for i, pid := range sr.PIDs {
		hits[i] = result.Hit{ID: pid, Score: sr.Scores[i]}
	}
	return hits, nil
}

// Close releases idle connections to the engine.
func (e *Engine) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// statusError builds an error from a non-2xx response, preferring the engine's "detail" field.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if detail := extractDetail(raw); detail != "" {
		return fmt.Errorf("engine status %d: %s", resp.StatusCode, detail)
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return fmt.Errorf("engine status %d: %s", resp.StatusCode, msg)
	}
	return fmt.Errorf("engine status %d", resp.StatusCode)
}

func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxErrorBody))
	_ = body.Close()
}
