package middleware

import (
	"net/http"
)

const (
	// DefaultMaxBodySize is 1MB for plain JSON endpoints
	DefaultMaxBodySize int64 = 1 << 20
)

// RequestSize limits the size of incoming request bodies.
//
// It wraps the request body with http.MaxBytesReader to enforce the limit.
// Upload endpoints pass their own cap derived from the configured photo and
// video size limits; everything else uses DefaultMaxBodySize.
func RequestSize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

			next.ServeHTTP(w, r)
		})
	}
}

// JSONRequestSize limits request bodies to 1MB for non-upload endpoints.
func JSONRequestSize() func(http.Handler) http.Handler {
	return RequestSize(DefaultMaxBodySize)
}
