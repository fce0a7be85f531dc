package httpapi

import (
	"net/http"

	"github.com/ProjectSCARS/bentoauth/middleware"
)

type passwordChangeRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (s *Server) handlePasswordChange(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	var req passwordChangeRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "malformed_request")
		return
	}

	if err := s.engine.ChangePassword(r.Context(), principal.IdentityID, req.OldPassword, req.NewPassword); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resetRequestBody struct {
	Username string `json:"username"`
}

// handleResetRequest always answers 202 for well-formed input so callers
// cannot probe which usernames exist.
func (s *Server) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	var req resetRequestBody
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "malformed_request")
		return
	}

	if err := s.engine.RequestPasswordReset(r.Context(), req.Username); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type resetConfirmBody struct {
	Username    string `json:"username"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

func (s *Server) handleResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req resetConfirmBody
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "malformed_request")
		return
	}

	if err := s.engine.ConfirmPasswordReset(r.Context(), req.Username, req.Code, req.NewPassword); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
