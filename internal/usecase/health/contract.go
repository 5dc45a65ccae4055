package health

import (
	"context"

	"github.com/kailas-cloud/colsearch/internal/usecase/backend"
)

// BackendStater reports the backend lifecycle state.
type BackendStater interface {
	State() backend.State
	IndexName() string
}

// DocumentCounter reports the number of loaded metadata records.
type DocumentCounter interface {
	Len() int
}

// CachePinger checks result cache availability.
type CachePinger interface {
	Ping(ctx context.Context) error
}
