// Package bentoauth implements the authentication and session-security core
// of the BENTO school canteen reporting system.
//
// The central type is [Engine], built through [New] and [Builder]. The engine
// verifies credentials against Argon2id hashes, gates logins behind optional
// TOTP second factors, tracks consecutive login failures per account and
// notifies an external collaborator when the failure threshold is crossed,
// and issues signed access tokens paired with opaque rotating refresh tokens
// backed by a server-side session registry.
//
// Persistence is injected through the [Store] and [SessionStore] interfaces.
// The postgres and session packages ship PostgreSQL implementations; the
// engine itself never speaks SQL. Redis backs the short-lived state: login
// and refresh throttles, TOTP attempt limiting, and password-reset codes.
//
// A typical setup:
//
//	engine, err := bentoauth.New().
//		WithConfig(bentoauth.DefaultConfig()).
//		WithStore(pgStore).
//		WithSessionStore(sessionStore).
//		WithRedis(redisClient).
//		WithNotifier(mailer).
//		Build()
package bentoauth
