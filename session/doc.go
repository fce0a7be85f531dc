// Package session implements the server-side revocation registry for
// refresh tokens on PostgreSQL.
//
// # Design
//
// Each session row pairs a refresh-token identifier (the session uuid) with
// the SHA-256 hash of the current refresh secret. Rotation is a single
// compare-and-swap UPDATE: the provided hash must match the live one and the
// row must be neither revoked nor expired. When the CAS misses, a follow-up
// read classifies the failure with the precedence revoked > reuse > expired
// > not-found, so revocation always wins over expiry.
//
// Revocation sets revoked_at and is idempotent; rows are never deleted, the
// registry is append-only apart from hash rotation.
package session
