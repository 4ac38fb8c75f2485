package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/pkgmirror/core/internal/pkg/logger"
)

// Recovery turns a panicking handler into a 500 JSON response instead of
// crashing the process, mirroring the teacher's recoveryMiddleware but
// rendering the structured {error,code,message,request_id} shape that
// httpapi's renderError uses.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				reqID := logger.FromContext(r.Context())
				logger.StdLogger().Error("panic recovered", "request_id", reqID, "path", r.URL.Path, "panic", rec)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":      "internal error",
					"code":       "INTERNAL_ERROR",
					"message":    "internal error",
					"request_id": reqID,
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
