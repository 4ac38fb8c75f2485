package httpapi

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"

	"github.com/pkgmirror/core/internal/apierr"
	"github.com/pkgmirror/core/internal/artifact"
	"github.com/pkgmirror/core/internal/metadata"
	"github.com/pkgmirror/core/internal/pkg/logger"
	"github.com/pkgmirror/core/internal/sync"
)

// problem is the wire shape every error response takes, matching the
// teacher's rest.APIError field-for-field.
type problem struct {
	Error     string            `json:"error"`
	Code      string            `json:"code,omitempty"`
	Message   string            `json:"message"`
	RequestID string            `json:"request_id,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

const (
	codeInvalidRequest = "INVALID_REQUEST"
	codeNotFound       = "NOT_FOUND"
	codeForbidden      = "FORBIDDEN"
	codeUnauthorized   = "UNAUTHORIZED"
	codeInternalError  = "INTERNAL_ERROR"
	codeTimeout        = "TIMEOUT"
	codeRateLimited    = "RATE_LIMIT_EXCEEDED"
	codeNotAcceptable  = "NOT_ACCEPTABLE"
	codeBadGateway     = "BAD_GATEWAY"
	codeUnavailable    = "SERVICE_UNAVAILABLE"
)

// renderError is the single place that writes an error response body,
// mirroring the teacher's respondStructuredError: handlers never write
// their own error bodies, they return an error and let this translate it
// (spec.md §7: "a top-level middleware renders them").
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := classify(err)
	reqID := logger.FromContext(r.Context())

	if apiErr.Status >= 500 {
		// Internal errors get an opaque client-facing message; the real
		// detail goes to the structured log, not the response body.
		logger.StdLogger().Error("request failed", "request_id", reqID, "path", r.URL.Path, "error", err)
	}

	respondStructuredError(w, apiErr.Status, codeFor(apiErr.Kind), apiErr.Message, reqID, apiErr.Details)
}

func respondStructuredError(w http.ResponseWriter, status int, code, message, requestID string, details map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Basic realm="pkgmirror"`)
	}
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "3600")
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem{
		Error:     message,
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Details:   details,
	})
}

func codeFor(kind apierr.Kind) string {
	switch kind {
	case apierr.KindInvalidRequest:
		return codeInvalidRequest
	case apierr.KindNotFound:
		return codeNotFound
	case apierr.KindForbidden:
		return codeForbidden
	case apierr.KindUnauthorized, apierr.KindUpstreamAuth:
		return codeUnauthorized
	case apierr.KindNotAcceptable:
		return codeNotAcceptable
	case apierr.KindRateLimited:
		return codeRateLimited
	case apierr.KindUpstreamTimeout:
		return codeTimeout
	case apierr.KindUpstreamDown:
		return codeUnavailable
	case apierr.KindUpstreamBadGW:
		return codeBadGateway
	default:
		return codeInternalError
	}
}

// classify translates any error a handler returns into an *apierr.Error,
// per spec.md §7's taxonomy. A handler that already built one via the
// apierr constructors passes straight through; everything else (the raw
// sentinels internal/metadata, internal/artifact, and internal/sync
// return) is mapped here so handlers never need to know status codes.
func classify(err error) *apierr.Error {
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, metadata.ErrNotFound):
		return apierr.NotFound("package not found")
	case errors.Is(err, sync.ErrRepositoryNotFound):
		return apierr.NotFound("repository not found")
	case errors.Is(err, artifact.ErrNotFound):
		return apierr.NotFound("artifact not found")
	case errors.Is(err, artifact.ErrUnauthorized):
		return apierr.UpstreamAuthFailed("upstream rejected credentials")
	case artifact.IsTimeout(err):
		return apierr.UpstreamTimeout("upstream request timed out")
	case isConnectionError(err):
		return apierr.UpstreamUnavailable("upstream unreachable")
	case errors.Is(err, artifact.ErrUpstream):
		return apierr.UpstreamBadGateway("upstream fetch failed")
	default:
		return apierr.Internal("internal error")
	}
}

// isConnectionError reports whether err is a connection-refused/DNS-failure
// class network error, which spec.md §7 maps to 503 rather than the
// generic 502 used for "other" upstream failures.
func isConnectionError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return isConnectionError(urlErr.Err)
	}
	return false
}
