package auth

import "time"

// Identity is the authenticated caller as established by the auth
// middleware, before any permission resolution happens. Subject is
// the stable identifier from the identity provider.
type Identity struct {
	Subject string `json:"subject"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`

	// UserID is the internal user record resolved from Subject.
	// Zero when the subject has not been registered yet.
	UserID int64 `json:"user_id,omitempty"`
}

// APIToken is a long-lived service credential. Only the SHA-256 hash
// is stored; the plaintext token is shown once at creation.
type APIToken struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	TokenHash   string     `json:"-"`
	TokenPrefix string     `json:"token_prefix"`
	Name        string     `json:"name"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// Revoked reports whether the token has been revoked
func (t *APIToken) Revoked() bool {
	return t.RevokedAt != nil
}

// Expired reports whether the token is past its expiry
func (t *APIToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}
