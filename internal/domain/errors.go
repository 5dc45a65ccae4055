package domain

import (
	"errors"
	"fmt"
)

// Startup errors. Any of these prevents the service from starting.
var (
	// ErrConfiguration signals an invalid or unusable configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrMetadataLoad signals a metadata file that cannot be loaded.
	ErrMetadataLoad = errors.New("metadata load error")
	// ErrBackendInit signals a failed retrieval backend construction.
	ErrBackendInit = errors.New("backend init error")
)

// Per-request errors.
var (
	// ErrInvalidRequest signals a client-caused validation failure.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidQuery signals an empty query reaching the backend.
	ErrInvalidQuery = fmt.Errorf("%w: query must not be empty", ErrInvalidRequest)
	// ErrBackendUnavailable signals that the backend is not ready to serve.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrBackendInternal signals a runtime fault inside the retrieval engine.
	ErrBackendInternal = errors.New("backend internal error")
	// ErrMetadataInconsistency signals an engine id with no metadata record.
	ErrMetadataInconsistency = errors.New("metadata inconsistency")
	// ErrDocumentNotFound signals a missing metadata record.
	ErrDocumentNotFound = errors.New("document not found")
)
