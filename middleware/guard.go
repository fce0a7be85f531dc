package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/ProjectSCARS/bentoauth"
)

type principalContextKey struct{}

// PrincipalFromContext extracts the principal injected by a guard.
func PrincipalFromContext(ctx context.Context) (*bentoauth.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*bentoauth.Principal)
	return p, ok
}

// Guard returns middleware that validates the bearer token at the given
// route mode and injects the resolved principal into the request context.
func Guard(engine *bentoauth.Engine, routeMode bentoauth.RouteMode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				unauthorized(w)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}

			principal, err := engine.Validate(r.Context(), token, routeMode)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Authenticate validates at the engine's configured default mode.
func Authenticate(engine *bentoauth.Engine) func(http.Handler) http.Handler {
	return Guard(engine, bentoauth.ModeInherit)
}

// RequireJWTOnly overrides the validation mode to pure stateless JWT
// verification for the wrapped handler.
func RequireJWTOnly(engine *bentoauth.Engine) func(http.Handler) http.Handler {
	return Guard(engine, bentoauth.ModeJWTOnly)
}

// RequireStrict additionally requires a live session record.
func RequireStrict(engine *bentoauth.Engine) func(http.Handler) http.Handler {
	return Guard(engine, bentoauth.ModeStrict)
}

// RequirePermission rejects requests whose principal's role lacks the
// named permission. Must be mounted inside an authentication guard.
func RequirePermission(engine *bentoauth.Engine, perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				unauthorized(w)
				return
			}
			if engine == nil || !engine.HasPermission(principal.RoleLevel, perm) {
				forbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}
	return token, true
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}

func forbidden(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"error":"forbidden"}`))
}
