package client

import (
	"errors"
	"fmt"
)

// Sentinel errors matching the service error codes.
// Use errors.Is() to check.
var (
	ErrInvalidRequest        = errors.New("invalid_request")
	ErrBackendUnavailable    = errors.New("backend_unavailable")
	ErrMetadataInconsistency = errors.New("metadata_inconsistency")
	ErrBackendInternal       = errors.New("backend_internal")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrConflict              = errors.New("conflict")
	ErrInternal              = errors.New("internal_error")
)

var sentinels = map[string]error{
	ErrInvalidRequest.Error():        ErrInvalidRequest,
	ErrBackendUnavailable.Error():    ErrBackendUnavailable,
	ErrMetadataInconsistency.Error(): ErrMetadataInconsistency,
	ErrBackendInternal.Error():       ErrBackendInternal,
	ErrUnauthorized.Error():          ErrUnauthorized,
	ErrConflict.Error():              ErrConflict,
	ErrInternal.Error():              ErrInternal,
}

// APIError is a non-2xx response from the service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("colsearch: %d %s: %s", e.Status, e.Code, e.Message)
}

// Is matches the sentinel for the error code.
func (e *APIError) Is(target error) bool {
	s, ok := sentinels[e.Code]
	return ok && s == target
}
