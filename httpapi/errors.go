package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ProjectSCARS/bentoauth"
)

type errorResponse struct {
	Error string `json:"error"`
}

type errorMapping struct {
	status int
	code   string
}

// sentinelMappings orders more specific sentinels before broader ones so
// wrapped errors resolve to the tightest code.
var sentinelMappings = []struct {
	sentinel error
	errorMapping
}{
	{bentoauth.ErrRefreshReuse, errorMapping{http.StatusUnauthorized, "refresh_reuse"}},
	{bentoauth.ErrTokenRevoked, errorMapping{http.StatusUnauthorized, "token_revoked"}},
	{bentoauth.ErrTokenExpired, errorMapping{http.StatusUnauthorized, "token_expired"}},
	{bentoauth.ErrTokenMalformed, errorMapping{http.StatusUnauthorized, "token_malformed"}},
	{bentoauth.ErrMFARequired, errorMapping{http.StatusUnauthorized, "mfa_required"}},
	{bentoauth.ErrMFAInvalidCode, errorMapping{http.StatusUnauthorized, "mfa_invalid"}},
	{bentoauth.ErrMFANotEnrolled, errorMapping{http.StatusConflict, "mfa_not_enrolled"}},
	{bentoauth.ErrMFAAlreadyEnabled, errorMapping{http.StatusConflict, "mfa_already_enabled"}},
	{bentoauth.ErrMFARateLimited, errorMapping{http.StatusTooManyRequests, "mfa_rate_limited"}},
	{bentoauth.ErrRateLimited, errorMapping{http.StatusTooManyRequests, "rate_limited"}},
	{bentoauth.ErrInvalidCredentials, errorMapping{http.StatusUnauthorized, "invalid_credentials"}},
	{bentoauth.ErrAccountDeactivated, errorMapping{http.StatusForbidden, "account_deactivated"}},
	{bentoauth.ErrIdentityNotFound, errorMapping{http.StatusNotFound, "identity_not_found"}},
	{bentoauth.ErrUsernameTaken, errorMapping{http.StatusConflict, "username_taken"}},
	{bentoauth.ErrUsernamePolicy, errorMapping{http.StatusUnprocessableEntity, "username_policy"}},
	{bentoauth.ErrPasswordPolicy, errorMapping{http.StatusUnprocessableEntity, "password_policy"}},
	{bentoauth.ErrPasswordReuse, errorMapping{http.StatusUnprocessableEntity, "password_reuse"}},
	{bentoauth.ErrLastAdmin, errorMapping{http.StatusConflict, "last_admin"}},
	{bentoauth.ErrUnknownRole, errorMapping{http.StatusUnprocessableEntity, "unknown_role"}},
	{bentoauth.ErrResetAttempts, errorMapping{http.StatusTooManyRequests, "reset_attempts_exceeded"}},
	{bentoauth.ErrResetInvalid, errorMapping{http.StatusBadRequest, "reset_invalid"}},
	{bentoauth.ErrSessionLimitExceeded, errorMapping{http.StatusTooManyRequests, "session_limit_exceeded"}},
	{bentoauth.ErrStoreUnavailable, errorMapping{http.StatusServiceUnavailable, "backend_unavailable"}},
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	for _, m := range sentinelMappings {
		if errors.Is(err, m.sentinel) {
			writeJSON(w, m.status, errorResponse{Error: m.code})
			return
		}
	}

	s.logger.Error("unmapped engine error", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal_error"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeBadRequest(w http.ResponseWriter, code string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: code})
}

// decodeBody parses a JSON request body into dst, rejecting trailing data.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing request body")
	}
	return nil
}
