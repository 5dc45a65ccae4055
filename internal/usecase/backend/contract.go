package backend

import (
	"context"

	"github.com/kailas-cloud/colsearch/internal/domain/search/result"
)

// Engine is a loaded retrieval backend bound to one index.
// Search returns at most k hits ordered by descending relevance, and must be safe
// for concurrent callers. Engines holding resources may also implement io.Closer.
type Engine interface {
	Search(ctx context.Context, query string, k int) ([]result.Hit, error)
}

// Factory constructs an Engine for the index at indexRoot/indexName.
type Factory func(ctx context.Context, indexRoot, indexName string) (Engine, error)

// Decorator wraps a freshly constructed Engine (caching, instrumentation).
type Decorator func(Engine) Engine
