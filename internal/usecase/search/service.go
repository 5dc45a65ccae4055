package search

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/colsearch/internal/domain"
	"github.com/kailas-cloud/colsearch/internal/domain/search/request"
	"github.com/kailas-cloud/colsearch/internal/domain/search/result"
	logpkg "github.com/kailas-cloud/colsearch/internal/logger"
	"github.com/kailas-cloud/colsearch/internal/metrics"
)

// InconsistencyError reports an engine id that has no metadata record.
type InconsistencyError struct {
	ID    int64
	Index string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("%s: engine returned id %d absent from metadata of index %q",
		domain.ErrMetadataInconsistency, e.ID, e.Index)
}

func (e *InconsistencyError) Unwrap() error { return domain.ErrMetadataInconsistency }

// Service joins engine rankings with passage metadata. It holds no per-request
// state and is safe for concurrent use.
type Service struct {
	backend   Backend
	metadata  Metadata
	init      Initializer
	indexName string
}

// New creates a search service.
func New(backend Backend, metadata Metadata, indexName string) *Service {
	return &Service{backend: backend, metadata: metadata, indexName: indexName}
}

// WithLazyInit makes every search first await backend construction.
func (s *Service) WithLazyInit(init Initializer) *Service {
	s.init = init
	return s
}

// Search runs the query and returns results in engine order.
// A hit with no metadata fails the whole request with domain.ErrMetadataInconsistency.
func (s *Service) Search(ctx context.Context, req *request.Request) ([]result.Result, error) {
	if s.init != nil {
		if err := s.init.Init(ctx); err != nil {
			if errors.Is(err, domain.ErrBackendUnavailable) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
		}
	}

	hits, err := s.backend.Search(ctx, req.Query(), req.K())
	if err != nil {
		return nil, fmt.Errorf("search backend: %w", err)
	}

	results := make([]result.Result, 0, len(hits))
	for _, h := range hits {
		text, err := s.metadata.Lookup(h.ID)
		if err != nil {
			if !errors.Is(err, domain.ErrDocumentNotFound) {
				return nil, fmt.Errorf("lookup id %d: %w", h.ID, err)
			}
			metrics.MetadataInconsistencyTotal.Inc()
			logpkg.FromContext(ctx).Error("Index and metadata disagree",
				zap.String("index_name", s.indexName),
				zap.Int64("doc_id", h.ID),
				zap.Float64("score", h.Score),
				zap.Int("hits", len(hits)),
			)
			return nil, &InconsistencyError{ID: h.ID, Index: s.indexName}
		}
		results = append(results, result.New(h.ID, text, h.Score))
	}

	return results, nil
}
