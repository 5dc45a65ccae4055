package request

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/colsearch/internal/domain"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum query length in characters (runes).
	MaxQueryLength = 4096
	DefaultK       = 10
	MaxK           = 100
)

// Request is a validated search query.
type Request struct {
	query string
	k     int
}

// New validates search parameters.
// A nil k falls back to defaultK. An explicit k must be in [1, maxK].
func New(query string, k *int, defaultK, maxK int) (Request, error) {
	if strings.TrimSpace(query) == "" {
		return Request{}, fmt.Errorf("%w: query is required", domain.ErrInvalidRequest)
	}
	if utf8.RuneCountInString(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("%w: query too long (max %d chars)", domain.ErrInvalidRequest, MaxQueryLength)
	}
	if maxK <= 0 {
		maxK = MaxK
	}
	if defaultK <= 0 {
		defaultK = DefaultK
	}

	topK := defaultK
	if k != nil {
		if *k <= 0 || *k > maxK {
			return Request{}, fmt.Errorf("%w: k must be between 1 and %d, got %d",
				domain.ErrInvalidRequest, maxK, *k)
		}
		topK = *k
	}

	return Request{query: query, k: topK}, nil
}

// Query returns the search query text.
func (r *Request) Query() string { return r.query }

// K returns the maximum number of results.
func (r *Request) K() int { return r.k }
