// Package postgres implements the engine's identity, login-attempt, and
// MFA-secret persistence on PostgreSQL via pgx. Schema migrations are
// embedded and applied with golang-migrate.
package postgres
