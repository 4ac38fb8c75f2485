package auth

import "errors"

// ErrForbidden is returned by Require when the authenticated principal's
// permissions do not cover the requested operation (spec.md §4.1: returns
// 403 if a token's permissions=readonly and the handler requires write).
var ErrForbidden = errors.New("auth: insufficient permission")

// Require checks outcome against the permission a handler needs. Pass
// needsWrite=true for mutating operations. The returned error's message is
// outcome.Reason itself (e.g. "invalid token", "token expired", "missing
// credentials") so callers can surface the specific reason spec.md §4.1
// mandates rather than a generic rejection.
func Require(outcome Outcome, needsWrite bool) error {
	if outcome.Unauthenticated() {
		reason := outcome.Reason
		if reason == "" {
			reason = "missing credentials"
		}
		return errors.New(reason)
	}
	if needsWrite && !outcome.CanWrite() {
		return ErrForbidden
	}
	return nil
}
