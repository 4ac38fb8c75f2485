package models

// Permission is the coarse-grained capability a Token grants.
type Permission string

const (
	PermissionReadonly Permission = "readonly"
	PermissionWrite    Permission = "write"
)

// Token is a long-lived client credential. The plaintext secret is returned
// exactly once at creation time and is never stored; lookup is keyed on
// Hash, the hex-encoded SHA-256 of the secret.
type Token struct {
	ID           string     `json:"id" db:"id"`
	Description  string     `json:"description" db:"description"`
	Hash         string     `json:"-" db:"hash"`
	Permissions  Permission `json:"permissions" db:"permissions"`
	RateLimitMax int64      `json:"rate_limit_max" db:"rate_limit_max"`
	CreatedAt    int64      `json:"created_at" db:"created_at"`
	ExpiresAt    *int64     `json:"expires_at,omitempty" db:"expires_at"`
	LastUsedAt   *int64     `json:"last_used_at,omitempty" db:"last_used_at"`
}

// Unlimited reports whether RateLimitMax imposes no cap (0 or negative).
func (t *Token) Unlimited() bool {
	return t.RateLimitMax <= 0
}

// Expired reports whether the token has a set expiry that has passed.
func (t *Token) Expired(nowUnix int64) bool {
	return t.ExpiresAt != nil && *t.ExpiresAt < nowUnix
}

// CanWrite reports whether this token's permission level allows mutation.
func (t *Token) CanWrite() bool {
	return t.Permissions == PermissionWrite
}
