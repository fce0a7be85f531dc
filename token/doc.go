// Package token mints and verifies the signed access tokens of the BENTO
// auth core.
//
// Tokens are JWTs signed with ed25519 (default) or HMAC-SHA-256. Claims use
// short tags: uid (identity), sid (session), rl (role level), sch (school).
// When claim encryption is enabled, the role and school claims are sealed
// into a chacha20poly1305 envelope carried in the env claim instead of
// appearing in plaintext; validation requires the same 32-byte key.
//
// Parsing restricts accepted algorithms to the configured method and
// classifies failures into [ErrExpired] and [ErrMalformed] only.
package token
