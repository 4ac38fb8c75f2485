package auth

import (
	"strconv"
	"strings"

	"github.com/pkgmirror/core/internal/models"
)

// tokenLookupResult is the subset of a Token row the burst cache needs:
// enough to build a TokenPrincipal and re-check expiry without a second
// Database round trip.
type tokenLookupResult struct {
	ID           string
	Permissions  models.Permission
	RateLimitMax int64
	ExpiresAt    *int64
}

// encodeCachedToken/decodeCachedToken give the 5s KV burst cache a stable
// wire format: "id\x00permissions\x00rate_limit_max\x00expires_at_or_empty".
func encodeCachedToken(t *tokenLookupResult) string {
	expires := ""
	if t.ExpiresAt != nil {
		expires = strconv.FormatInt(*t.ExpiresAt, 10)
	}
	return strings.Join([]string{t.ID, string(t.Permissions), strconv.FormatInt(t.RateLimitMax, 10), expires}, "\x00")
}

func decodeCachedToken(raw string) (*tokenLookupResult, error) {
	parts := strings.SplitN(raw, "\x00", 4)
	if len(parts) != 4 {
		return nil, errBadBasicCredentials
	}
	rateLimitMax, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, err
	}
	result := &tokenLookupResult{ID: parts[0], Permissions: models.Permission(parts[1]), RateLimitMax: rateLimitMax}
	if parts[3] != "" {
		v, err := strconv.ParseInt(parts[3], 10, 64)
		if err != nil {
			return nil, err
		}
		result.ExpiresAt = &v
	}
	return result, nil
}
