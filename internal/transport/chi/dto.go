package chi

// ErrorCode is the machine-readable error kind returned to clients.
type ErrorCode string

// Error codes.
const (
	ErrorCodeInvalidRequest        ErrorCode = "invalid_request"
	ErrorCodeBackendUnavailable    ErrorCode = "backend_unavailable"
	ErrorCodeMetadataInconsistency ErrorCode = "metadata_inconsistency"
	ErrorCodeBackendInternal       ErrorCode = "backend_internal"
	ErrorCodeInternalError         ErrorCode = "internal_error"
	ErrorCodeUnauthorized          ErrorCode = "unauthorized"
	ErrorCodeConflict              ErrorCode = "conflict"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query string `json:"query"`
	K     *int   `json:"k,omitempty"`
}

// SearchResultItem is one ranked passage.
type SearchResultItem struct {
	ID    int64   `json:"id"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// SearchResponse is the body of a successful search.
type SearchResponse struct {
	Results []SearchResultItem `json:"results"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Backend   string            `json:"backend"`
	IndexName string            `json:"index_name"`
	Documents int               `json:"documents"`
	Checks    map[string]string `json:"checks"`
}

// RestartResponse is the body of POST /admin/backend/restart.
type RestartResponse struct {
	Backend string `json:"backend"`
}
