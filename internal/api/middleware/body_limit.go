// Package middleware provides request body size limiting for admin writes.
package middleware

import "net/http"

// DefaultMaxBodyBytes caps request bodies on mutating admin endpoints
// (/api/v1/tokens, /api/v1/repositories) at 512KB; none of them accept
// artifact payloads, so there is no larger tier to carve out.
const DefaultMaxBodyBytes = 512 * 1024

// MaxBodySize returns middleware that limits request body size for methods
// that may carry one (POST, PUT, PATCH). GET/HEAD/DELETE are unaffected.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil {
				next.ServeHTTP(w, r)
				return
			}
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch:
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
