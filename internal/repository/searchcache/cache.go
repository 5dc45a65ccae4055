package searchcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/colsearch/internal/db"
	"github.com/kailas-cloud/colsearch/internal/domain/search/result"
	"github.com/kailas-cloud/colsearch/internal/usecase/backend"
)

const (
	cacheKeyPrefix = "colsearch:search:"
	hitSize        = 16 // int64 id + float64 score
)

// store is the consumer interface for the result cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// CachedEngine caches ranked hits per (index, k, query) in a key-value store.
type CachedEngine struct {
	inner      backend.Engine
	store      store
	index      string
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator around inner.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	inner backend.Engine,
	s store,
	index string,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEngine{
		inner:      inner,
		store:      s,
		index:      index,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Decorator adapts New for backend.Manager.WithDecorators.
func Decorator(
	s store, index string, ttl time.Duration, cacheTotal *prometheus.CounterVec, logger *zap.Logger,
) backend.Decorator {
	return func(inner backend.Engine) backend.Engine {
		return New(inner, s, index, ttl, cacheTotal, logger)
	}
}

// Search returns cached hits or calls the inner engine.
// Cache failures are logged and never fail the search.
func (c *CachedEngine) Search(ctx context.Context, query string, k int) ([]result.Hit, error) {
	key := c.cacheKey(query, k)

	if hits, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		return hits, nil
	}

	c.incCache("miss")

	hits, err := c.inner.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("engine search: %w", err)
	}

	c.putToCache(ctx, key, hits)
	return hits, nil
}

// Close forwards to the inner engine when it holds resources.
func (c *CachedEngine) Close() error {
	if closer, ok := c.inner.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (c *CachedEngine) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (c *CachedEngine) cacheKey(query string, k int) string {
	h := sha256.New()
	h.Write([]byte(c.index))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(k)))
	h.Write([]byte{0})
	h.Write([]byte(query))
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

func (c *CachedEngine) getFromCache(ctx context.Context, key string) ([]result.Hit, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached hits", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	hits, err := decodeHits(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached hits", zap.String("key", key), zap.Error(err))
		// Drop the entry so it cannot outlive a failing engine call.
		if err := c.store.Del(ctx, key); err != nil {
			c.logger.Warn("Failed to drop corrupt cache entry", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	return hits, true
}

func (c *CachedEngine) putToCache(ctx context.Context, key string, hits []result.Hit) {
	if err := c.store.SetWithTTL(ctx, key, encodeHits(hits), c.ttl); err != nil {
		c.logger.Warn("Failed to cache hits", zap.String("key", key), zap.Error(err))
	}
}

func encodeHits(hits []result.Hit) []byte {
	buf := make([]byte, len(hits)*hitSize)
	for i, h := range hits {
		off := i * hitSize
		binary.LittleEndian.PutUint64(buf[off:], uint64(h.ID))
		binary.LittleEndian.PutUint64(buf[off+8:], math.Float64bits(h.Score))
	}
	return buf
}

func decodeHits(data []byte) ([]result.Hit, error) {
	if len(data)%hitSize != 0 {
		return nil, fmt.Errorf("invalid search cache data: len=%d (not multiple of %d)", len(data), hitSize)
	}
	hits := make([]result.Hit, len(data)/hitSize)
	for i := range hits {
		off := i * hitSize
		hits[i] = result.Hit{
			ID:    int64(binary.LittleEndian.Uint64(data[off:])),
			Score: math.Float64frombits(binary.LittleEndian.Uint64(data[off+8:])),
		}
	}
	return hits, nil
}
