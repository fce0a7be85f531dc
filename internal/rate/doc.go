// Package rate provides Redis-backed fixed-window counters guarding the
// login, refresh, and TOTP verification paths.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key
// prefixes:
//   - bal:  login per-username
//   - bali: login per-IP
//   - bar:  refresh per-session
//   - bat:  TOTP attempts per-identity
//
// Counters here answer "how fast", not "how many failures total"; the
// durable anomaly counter lives in the attempt store.
package rate
