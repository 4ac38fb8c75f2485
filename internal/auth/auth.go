package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/pkgmirror/core/internal/pkg/metrics"
	"github.com/pkgmirror/core/internal/ports"
)

const tokenCacheTTL = 5 * time.Second

// TokenToucher defers the TokenTouched{token_id, now} job so
// AuthenticateRequest never blocks the response on it (spec.md §4.1 step 6).
type TokenToucher interface {
	EnqueueTokenTouched(ctx context.Context, tokenID string, now int64)
}

// AuthenticateRequest inspects an Authorization header value per spec.md
// §4.1: "Bearer <token>" looks up a Session in KVCache; "Basic
// base64(user:pass)" with username "token" looks up a package Token by the
// SHA-256 hash of the password, through a 5s KVCache burst cache
// write-through to the Database. Any other shape, or a missing header,
// yields Outcome.Unauthenticated().
func AuthenticateRequest(ctx context.Context, authHeader string, db ports.Database, kv ports.KVCache, clock ports.Clock, toucher TokenToucher) (Outcome, error) {
	if authHeader == "" {
		return Outcome{Reason: "missing credentials"}, nil
	}

	var method string
	var outcome Outcome
	var err error

	switch {
	case strings.HasPrefix(authHeader, "Bearer "):
		method = "bearer"
		outcome, err = authenticateBearer(ctx, strings.TrimPrefix(authHeader, "Bearer "), kv)
	case strings.HasPrefix(authHeader, "Basic "):
		method = "basic"
		outcome, err = authenticateBasic(ctx, strings.TrimPrefix(authHeader, "Basic "), db, kv, clock, toucher)
	default:
		return Outcome{Reason: "unrecognized authorization scheme"}, nil
	}

	result := "success"
	if err != nil || outcome.Unauthenticated() {
		result = "failure"
	}
	metrics.AuthOutcomeTotal.WithLabelValues(method, result).Inc()
	return outcome, err
}

func authenticateBearer(ctx context.Context, token string, kv ports.KVCache) (Outcome, error) {
	if kv == nil {
		return Outcome{Reason: "sessions unavailable"}, nil
	}
	raw, err := kv.Get(ctx, "session:"+token)
	if err != nil || raw == "" {
		return Outcome{Reason: "invalid session"}, nil
	}
	userID, email, ok := splitSessionValue(raw)
	if !ok {
		return Outcome{Reason: "invalid session"}, nil
	}
	return Outcome{Session: &Session{UserID: userID, Email: email}}, nil
}

// splitSessionValue decodes the KV session value, stored as "user_id\x00email".
func splitSessionValue(raw string) (userID, email string, ok bool) {
	parts := strings.SplitN(raw, "\x00", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// EncodeSessionValue is the inverse of splitSessionValue, used wherever a
// Session is written to the KVCache (outside this core's scope, but shared
// here so any caller uses the same wire format).
func EncodeSessionValue(userID, email string) string {
	return userID + "\x00" + email
}

var errBadBasicCredentials = errors.New("auth: malformed basic credentials")

func authenticateBasic(ctx context.Context, encoded string, db ports.Database, kv ports.KVCache, clock ports.Clock, toucher TokenToucher) (Outcome, error) {
	secret, err := decodeBasicSecret(encoded)
	if err != nil {
		return Outcome{Reason: "invalid credentials"}, nil
	}

	hash := hashSecret(secret)

	tok, err := lookupTokenByHash(ctx, hash, db, kv)
	if err != nil {
		return Outcome{}, err
	}
	if tok == nil {
		return Outcome{Reason: "invalid token"}, nil
	}
	now := clock.NowUnix()
	if tok.ExpiresAt != nil && *tok.ExpiresAt < now {
		return Outcome{Reason: "token expired"}, nil
	}

	if toucher != nil {
		toucher.EnqueueTokenTouched(ctx, tok.ID, now)
	}

	return Outcome{TokenPrincipal: &TokenPrincipal{TokenID: tok.ID, Permissions: tok.Permissions, RateLimitMax: tok.RateLimitMax}}, nil
}

// decodeBasicSecret decodes "Basic base64(user:pass)", rejecting anything
// whose username is not the literal "token".
func decodeBasicSecret(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errBadBasicCredentials
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 || parts[0] != "token" {
		return "", errBadBasicCredentials
	}
	return parts[1], nil
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// lookupTokenByHash implements the 5s burst cache, write-through to the
// Database on miss (spec.md §4.1 step 4).
func lookupTokenByHash(ctx context.Context, hash string, db ports.Database, kv ports.KVCache) (*tokenLookupResult, error) {
	key := "token:" + hash
	if kv != nil {
		if cached, err := kv.Get(ctx, key); err == nil && cached != "" {
			return decodeCachedToken(cached)
		}
	}

	tok, err := db.GetTokenByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, nil
	}

	result := &tokenLookupResult{ID: tok.ID, Permissions: tok.Permissions, RateLimitMax: tok.RateLimitMax, ExpiresAt: tok.ExpiresAt}
	if kv != nil {
		_ = kv.Put(ctx, key, encodeCachedToken(result), tokenCacheTTL)
	}
	return result, nil
}
