package search

import (
	"context"

	"github.com/kailas-cloud/colsearch/internal/domain/search/result"
)

// Backend ranks passages for a query.
type Backend interface {
	Search(ctx context.Context, query string, k int) ([]result.Hit, error)
}

// Initializer awaits backend construction (lazy init mode).
type Initializer interface {
	Init(ctx context.Context) error
}

// Metadata resolves passage ids to display text.
type Metadata interface {
	Lookup(id int64) (string, error)
}
