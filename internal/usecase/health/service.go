package health

import (
	"context"

	"github.com/kailas-cloud/colsearch/internal/usecase/backend"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status    Status
	Backend   backend.State
	IndexName string
	Documents int
	Checks    map[string]CheckResult
}

// Ready reports whether the service can answer searches.
func (r Report) Ready() bool { return r.Backend == backend.Ready }

// Service coordinates health checks.
type Service struct {
	backend   BackendStater
	documents DocumentCounter
	cache     CachePinger
}

// New creates a Service. cache can be nil.
func New(b BackendStater, documents DocumentCounter, cache CachePinger) *Service {
	return &Service{backend: b, documents: documents, cache: cache}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	state := s.backend.State()
	if state == backend.Ready {
		checks["backend"] = CheckOK
	} else {
		checks["backend"] = CheckError
	}

	docs := s.documents.Len()
	if docs > 0 {
		checks["metadata"] = CheckOK
	} else {
		checks["metadata"] = CheckError
	}

	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			checks["cache"] = CheckError
		} else {
			checks["cache"] = CheckOK
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{
		Status:    status,
		Backend:   state,
		IndexName: s.backend.IndexName(),
		Documents: docs,
		Checks:    checks,
	}
}
