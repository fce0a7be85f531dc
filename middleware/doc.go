// Package middleware exposes HTTP middleware adapters for access-token
// authentication and permission enforcement built on bentoauth.Engine.
//
//   - [Authenticate] validates the bearer token at the engine's configured
//     mode and injects the resolved principal into the request context.
//   - [RequireJWTOnly] and [RequireStrict] override the validation mode for
//     the wrapped handler.
//   - [RequirePermission] rejects principals whose role lacks the named
//     permission. It must run inside an authentication guard.
//
// This package translates HTTP semantics into Engine calls; every
// authentication and authorization decision is delegated to the engine.
package middleware
