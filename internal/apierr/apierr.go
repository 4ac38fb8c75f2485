// Package apierr gives httpapi handlers a way to return an error carrying
// its own HTTP status and client-facing message, so a single top-level
// middleware can render every handler's failure the same way (spec.md §7:
// "handlers do not catch their own errors; a top-level middleware renders
// them").
package apierr

import "net/http"

// Kind names the taxonomy bucket spec.md §7 sorts errors into. It exists
// mainly so httpapi/problem.go can pick the right APIError.Code without
// re-deriving it from the HTTP status.
type Kind string

const (
	KindInvalidRequest  Kind = "invalid_request"
	KindUnauthorized    Kind = "unauthorized"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindNotAcceptable   Kind = "not_acceptable"
	KindRateLimited     Kind = "rate_limited"
	KindUpstreamAuth    Kind = "upstream_auth_failed"
	KindUpstreamTimeout Kind = "upstream_timeout"
	KindUpstreamDown    Kind = "upstream_unavailable"
	KindUpstreamBadGW   Kind = "upstream_bad_gateway"
	KindInternal        Kind = "internal"
)

// Error is the value httpapi handlers return instead of a bare error;
// problem.go renders it into the {error,code,message,request_id,details?}
// JSON body.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Details map[string]string
}

func (e *Error) Error() string { return e.Message }

func newErr(kind Kind, status int, message string) *Error {
	return &Error{Kind: kind, Status: status, Message: message}
}

// InvalidRequest is a 400: malformed query params, bad JSON body, etc.
func InvalidRequest(message string) *Error { return newErr(KindInvalidRequest, http.StatusBadRequest, message) }

// Unauthorized is a 401: missing/invalid credentials.
func Unauthorized(message string) *Error { return newErr(KindUnauthorized, http.StatusUnauthorized, message) }

// Forbidden is a 403: authenticated but insufficient permission, or a
// mutation against a protected entity (the packagist singleton).
func Forbidden(message string) *Error { return newErr(KindForbidden, http.StatusForbidden, message) }

// NotFound is a 404: package, version, artifact, repository, or token absent.
func NotFound(message string) *Error { return newErr(KindNotFound, http.StatusNotFound, message) }

// NotAcceptable is a 406: an explicitly unsupported client version family.
func NotAcceptable(message string) *Error {
	return newErr(KindNotAcceptable, http.StatusNotAcceptable, message)
}

// RateLimited is a 429.
func RateLimited(message string) *Error {
	return newErr(KindRateLimited, http.StatusTooManyRequests, message)
}

// UpstreamAuthFailed is a 401 with a distinct code: upstream rejected our
// credentials (spec.md §7: "401/403 from upstream → 401 'auth_failed'").
func UpstreamAuthFailed(message string) *Error {
	return newErr(KindUpstreamAuth, http.StatusUnauthorized, message)
}

// UpstreamTimeout is a 504: the 25s upstream deadline (spec.md §5) was hit.
func UpstreamTimeout(message string) *Error {
	return newErr(KindUpstreamTimeout, http.StatusGatewayTimeout, message)
}

// UpstreamUnavailable is a 503: connection refused / DNS failure reaching upstream.
func UpstreamUnavailable(message string) *Error {
	return newErr(KindUpstreamDown, http.StatusServiceUnavailable, message)
}

// UpstreamBadGateway is a 502: any other non-2xx/timeout upstream failure.
func UpstreamBadGateway(message string) *Error {
	return newErr(KindUpstreamBadGW, http.StatusBadGateway, message)
}

// Internal is a 500: DB write failure, cache failure, or anything
// unexpected. message is deliberately short and opaque; details go to the
// structured log, not the response.
func Internal(message string) *Error { return newErr(KindInternal, http.StatusInternalServerError, message) }

// WithDetails attaches field-level validation detail to an existing error.
func (e *Error) WithDetails(details map[string]string) *Error {
	e.Details = details
	return e
}
