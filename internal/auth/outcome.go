// Package auth implements the request admission layer: authenticating
// bearer sessions and HTTP-Basic package tokens, enforcing per-token
// hourly rate limits, and the readonly/write permission check (spec.md
// §4.1).
package auth

import "github.com/pkgmirror/core/internal/models"

// Outcome is the result of AuthenticateRequest: exactly one of Session,
// TokenPrincipal is non-nil, or Reason is non-empty (Unauthorized).
type Outcome struct {
	Session        *Session
	TokenPrincipal *TokenPrincipal
	Reason         string // non-empty iff unauthorized
}

// Session is the authenticated-UI-user case.
type Session struct {
	UserID string
	Email  string
}

// TokenPrincipal is the authenticated-client-tool case.
type TokenPrincipal struct {
	TokenID      string
	Permissions  models.Permission
	RateLimitMax int64
}

// Unauthenticated reports whether the outcome failed authentication.
func (o Outcome) Unauthenticated() bool {
	return o.Session == nil && o.TokenPrincipal == nil
}

// CanWrite reports whether this outcome's principal may perform write
// operations. Sessions (UI users) are always allowed; tokens need
// permissions=write.
func (o Outcome) CanWrite() bool {
	if o.Session != nil {
		return true
	}
	if o.TokenPrincipal != nil {
		return o.TokenPrincipal.Permissions == models.PermissionWrite
	}
	return false
}
