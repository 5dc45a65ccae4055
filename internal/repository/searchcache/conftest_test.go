package searchcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/colsearch/internal/db"
	"github.com/kailas-cloud/colsearch/internal/domain/search/result"
)

type mockEngine struct {
	hits   []result.Hit
	err    error
	calls  int
	closed bool
}

func (m *mockEngine) Search(_ context.Context, _ string, _ int) ([]result.Hit, error) {
	m.calls++
	return m.hits, m.err
}

func (m *mockEngine) Close() error {
	m.closed = true
	return nil
}

// memStore is an in-memory store; getFn/setFn override it per test.
type memStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	ttls  map[string]time.Duration
	getFn func(ctx context.Context, key string) ([]byte, error)
	setFn func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	dels  int
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	delete(m.ttls, key)
	m.dels++
	return nil
}

func newCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_search_cache_total",
	}, []string{"result"})
}

func newTestCachedEngine(t *testing.T, inner *mockEngine) (*CachedEngine, *memStore, *prometheus.CounterVec) {
	t.Helper()
	ms := newMemStore()
	counter := newCounter()
	return New(inner, ms, "wiki", time.Hour, counter, zap.NewNop()), ms, counter
}
