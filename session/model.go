package session

import "time"

// Session is one refresh-token registry row. RefreshHash holds the SHA-256
// of the current refresh secret; the secret itself is never stored.
type Session struct {
	ID         string
	IdentityID string

	RefreshHash [32]byte

	UserAgent string
	IPAddress string

	CreatedAt time.Time
	RotatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Revoked reports whether the session has been invalidated.
func (s *Session) Revoked() bool {
	return s != nil && s.RevokedAt != nil
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return s != nil && !s.ExpiresAt.After(now)
}
