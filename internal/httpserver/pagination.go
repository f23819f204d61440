package httpserver

import (
	"fmt"
	"net/http"
	"strconv"
)

const (
	// DefaultLimit is the default number of items returned by a list endpoint.
	DefaultLimit = 25
	// MaxLimit is the maximum allowed value for the ?limit= query parameter.
	MaxLimit = 100
)

// ParseLimit extracts the ?limit= query parameter, defaulting to
// DefaultLimit and capping at MaxLimit. WhaleRay's list endpoints (deployment
// and service history) are append-only and small per user, so a single
// limit parameter is sufficient — no cursor or offset bookkeeping needed.
func ParseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return DefaultLimit, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if n > MaxLimit {
		n = MaxLimit
	}
	return n, nil
}
