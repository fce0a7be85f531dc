package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"math/big"

	"github.com/google/uuid"
)

// RefreshSecretLength is the number of random bytes in a refresh token secret.
const RefreshSecretLength = 32

// refreshTokenLength is the decoded wire size: 16 byte session id
// followed by the secret.
const refreshTokenLength = 16 + RefreshSecretLength

// ErrTokenShape is returned when a refresh token does not decode to the
// expected binary layout.
var ErrTokenShape = errors.New("refresh token has invalid shape")

// NewRefreshSecret returns a fresh random refresh secret.
func NewRefreshSecret() ([]byte, error) {
	secret := make([]byte, RefreshSecretLength)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return nil, err
	}
	return secret, nil
}

// EncodeRefreshToken packs a session id and secret into the opaque wire
// form handed to clients: base64url(session uuid bytes || secret).
func EncodeRefreshToken(sessionID uuid.UUID, secret []byte) (string, error) {
	if len(secret) != RefreshSecretLength {
		return "", ErrTokenShape
	}
	raw := make([]byte, 0, refreshTokenLength)
	raw = append(raw, sessionID[:]...)
	raw = append(raw, secret...)
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeRefreshToken splits an opaque refresh token back into its
// session id and secret. The secret is returned unhashed; callers hash
// it before any comparison or storage.
func DecodeRefreshToken(token string) (uuid.UUID, []byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return uuid.Nil, nil, ErrTokenShape
	}
	if len(raw) != refreshTokenLength {
		return uuid.Nil, nil, ErrTokenShape
	}
	var id uuid.UUID
	copy(id[:], raw[:16])
	return id, raw[16:], nil
}

// HashRefreshSecret returns the digest stored server side in place of
// the refresh secret.
func HashRefreshSecret(secret []byte) [32]byte {
	return sha256.Sum256(secret)
}

// HashCodeString digests a short-lived code (password reset) for
// storage so the plaintext never touches Redis.
func HashCodeString(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// NewOTP returns a zero-padded numeric one-time code of the given
// number of digits, drawn from crypto/rand without modulo bias.
func NewOTP(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("otp digits out of range")
	}
	max := big.NewInt(10)
	for i := 1; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	code := n.String()
	for len(code) < digits {
		code = "0" + code
	}
	return code, nil
}
