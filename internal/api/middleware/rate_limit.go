package middleware

import (
	"encoding/json"
	"net/http"

	goauth "github.com/pkgmirror/core/internal/auth"
	"github.com/pkgmirror/core/internal/pkg/logger"
	"github.com/pkgmirror/core/internal/pkg/metrics"
	"github.com/pkgmirror/core/internal/ports"
)

// RateLimit enforces the per-token hourly counter from spec.md §4.1/§8:
// once a request has an authenticated TokenPrincipal, it is charged against
// that token's rate_limit_max in KVCache. Session users and unauthenticated
// requests (handled by their own Auth failure path) are not rate limited
// here. A KVCache error fails open, matching EnforceRateLimit's contract.
func RateLimit(kv ports.KVCache, clock ports.Clock) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			outcome := goauth.OutcomeFromContext(r.Context())
			principal := outcome.TokenPrincipal
			if principal == nil {
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := goauth.EnforceRateLimit(r.Context(), kv, clock, principal.TokenID, principal.RateLimitMax)
			if err != nil {
				logger.StdLogger().Warn("rate limit check failed open", "token_id", principal.TokenID, "error", err)
			}
			if !allowed {
				metrics.RateLimitDeniedTotal.WithLabelValues(principal.TokenID).Inc()
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "3600")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
