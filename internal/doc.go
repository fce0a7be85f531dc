// Package internal holds shared helpers for the bentoauth module:
// the refresh token wire codec, secret generation, and hashing.
package internal
