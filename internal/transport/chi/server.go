package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	gochi "github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/colsearch/internal/domain"
	"github.com/kailas-cloud/colsearch/internal/domain/search/request"
	"github.com/kailas-cloud/colsearch/internal/domain/search/result"
	logpkg "github.com/kailas-cloud/colsearch/internal/logger"
	"github.com/kailas-cloud/colsearch/internal/metrics"
	"github.com/kailas-cloud/colsearch/internal/usecase/backend"
	healthuc "github.com/kailas-cloud/colsearch/internal/usecase/health"
)

const maxBodyBytes = 1 << 20

// Searcher answers validated search requests.
type Searcher interface {
	Search(ctx context.Context, req *request.Request) ([]result.Result, error)
}

// HealthChecker reports service health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// BackendRetrier re-attempts backend construction after a failure.
type BackendRetrier interface {
	Retry() error
	State() backend.State
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server serves the colsearch HTTP API.
type Server struct {
	search        Searcher
	health        HealthChecker
	backend       BackendRetrier
	defaultK      int
	maxK          int
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	search Searcher,
	health HealthChecker,
	b BackendRetrier,
	defaultK, maxK int,
	logger *zap.Logger,
) *Server {
	s := &Server{
		search:   search,
		health:   health,
		backend:  b,
		defaultK: defaultK,
		maxK:     maxK,
		logger:   logger,
	}
	// Order matters: an unavailable backend wraps its init failure.
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrBackendUnavailable, http.StatusServiceUnavailable, ErrorCodeBackendUnavailable),
		sentinelHandler(domain.ErrBackendInit, http.StatusServiceUnavailable, ErrorCodeBackendUnavailable),
		invalidRequestHandler,
		sentinelHandler(domain.ErrMetadataInconsistency,
			http.StatusInternalServerError, ErrorCodeMetadataInconsistency),
		sentinelHandler(domain.ErrBackendInternal, http.StatusInternalServerError, ErrorCodeBackendInternal),
	}
	return s
}

// Router builds the chi router with the full middleware chain.
func (s *Server) Router(apiKeys []string) http.Handler {
	r := gochi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(metrics.Middleware())

	r.Post("/search", s.Search)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Post("/admin/backend/restart", s.RestartBackend)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrorCodeInvalidRequest, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
	})
	return r
}

// Search handles POST /search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var body SearchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "Invalid request body: "+err.Error())
		return
	}

	req, err := request.New(body.Query, body.K, s.defaultK, s.maxK)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	results, err := s.search.Search(r.Context(), &req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]SearchResultItem, len(results))
	for i := range results {
		items[i] = searchResultToDTO(&results[i])
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: items})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if !report.Ready() {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:    string(report.Status),
		Backend:   string(report.Backend),
		IndexName: report.IndexName,
		Documents: report.Documents,
		Checks:    checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// RestartBackend handles POST /admin/backend/restart.
func (s *Server) RestartBackend(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Retry(); err != nil {
		if errors.Is(err, backend.ErrNotFailed) {
			writeError(w, http.StatusConflict, ErrorCodeConflict, err.Error())
			return
		}
		s.handleDomainError(w, r, err)
		return
	}
	logpkg.FromContext(r.Context()).Warn("Backend restart requested")
	writeJSON(w, http.StatusAccepted, RestartResponse{Backend: string(s.backend.State())})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
// The client sees the sentinel text only, never the wrapped internals.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, sentinel.Error())
		return true
	}
}

// invalidRequestHandler reports validation failures verbatim: they carry no internals.
func invalidRequestHandler(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, domain.ErrInvalidRequest) {
		return false
	}
	writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, err.Error())
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logpkg.FromContext(r.Context())
	for _, h := range s.errorHandlers {
		if h(w, err) {
			if errors.Is(err, domain.ErrInvalidRequest) {
				logger.Debug("request rejected", zap.Error(err))
			} else {
				logger.Warn("domain error", zap.Error(err))
			}
			return
		}
	}
	logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}

func searchResultToDTO(r *result.Result) SearchResultItem {
	return SearchResultItem{
		ID:    r.ID(),
		Text:  r.Text(),
		Score: r.Score(),
	}
}
