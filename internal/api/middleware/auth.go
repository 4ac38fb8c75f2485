package middleware

import (
	"encoding/json"
	"net/http"

	goauth "github.com/pkgmirror/core/internal/auth"
	"github.com/pkgmirror/core/internal/pkg/logger"
	"github.com/pkgmirror/core/internal/ports"
)

// Auth authenticates every request via HTTP Basic (token credentials) or
// Bearer session token and attaches the resulting auth.Outcome to the
// request context. It never rejects a request itself for lack of
// credentials — unauthenticated traffic reaches public Composer routes
// fine; handlers that need a principal call auth.Require on the attached
// Outcome (spec.md §4.1). A non-nil error out of AuthenticateRequest means
// the lookup itself failed (a Database error), not that the credentials
// were rejected — legitimate rejections come back as a populated
// Outcome.Reason with a nil error — so this surfaces as 500, never folded
// into a client auth failure (spec.md §7).
func Auth(db ports.Database, kv ports.KVCache, clock ports.Clock, toucher goauth.TokenToucher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			outcome, err := goauth.AuthenticateRequest(r.Context(), r.Header.Get("Authorization"), db, kv, clock, toucher)
			if err != nil {
				writeInternalError(w, r, err)
				return
			}
			ctx := goauth.WithOutcome(r.Context(), outcome)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth wraps a handler that must reject unauthenticated or
// under-permissioned requests before running. Pass needsWrite=true for
// mutating admin operations (spec.md §4.1: readonly tokens get 403 on
// write-scoped endpoints).
func RequireAuth(needsWrite bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		outcome := goauth.OutcomeFromContext(r.Context())
		if err := goauth.Require(outcome, needsWrite); err != nil {
			if err == goauth.ErrForbidden {
				WriteAuthError(w, http.StatusForbidden, err.Error())
				return
			}
			WriteAuthError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next(w, r)
	}
}

// WriteAuthError renders the {"error","message"} body spec.md §4.1/§7
// mandates for 401/403 responses: "error" is the fixed status label,
// "message" is the specific reason (an auth.Outcome.Reason, or
// auth.ErrForbidden's text). Exported so httpapi's own outcome check on
// the public Composer/dist routes — which, unlike RequireAuth, must still
// let a missing Authorization header through as anonymous — renders the
// same shape.
func WriteAuthError(w http.ResponseWriter, status int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Basic realm="pkgmirror"`)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": errorLabel(status), "message": reason})
}

func errorLabel(status int) string {
	if status == http.StatusForbidden {
		return "Forbidden"
	}
	return "Unauthorized"
}

// writeInternalError renders the opaque 500 body spec.md §7 requires for
// internal errors — a short message plus a request ID echo, with the real
// error going only to the structured log.
func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := logger.FromContext(r.Context())
	logger.StdLogger().Error("authentication check failed", "request_id", reqID, "error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":      "Internal Server Error",
		"message":    "authentication check failed",
		"request_id": reqID,
	})
}
