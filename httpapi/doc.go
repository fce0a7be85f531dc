// Package httpapi exposes the authentication engine over HTTP.
//
// The router serves the token lifecycle (login, refresh, logout), MFA
// enrollment and verification, password change and reset, account
// management, the per-account security report, a health probe, and a
// Prometheus scrape endpoint. Error responses carry stable snake_case
// codes; credential failures are collapsed so callers cannot probe for
// account existence.
package httpapi
