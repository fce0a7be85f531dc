package httpapi

import (
	"net/http"

	"github.com/ProjectSCARS/bentoauth/middleware"
)

type mfaProvisionResponse struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
}

func (s *Server) handleMFAEnroll(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	provision, err := s.engine.BeginMFAEnrollment(r.Context(), principal.IdentityID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mfaProvisionResponse{
		Secret: provision.SecretBase32,
		URI:    provision.URI,
	})
}

type mfaCodeRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleMFAConfirm(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	var req mfaCodeRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "malformed_request")
		return
	}

	if err := s.engine.ConfirmMFAEnrollment(r.Context(), principal.IdentityID, req.Code); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMFAVerify is the step-up endpoint for sensitive operations that
// re-check possession of the authenticator.
func (s *Server) handleMFAVerify(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	var req mfaCodeRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "malformed_request")
		return
	}

	if err := s.engine.VerifyMFACode(r.Context(), principal.IdentityID, req.Code); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type mfaDisableRequest struct {
	Password string `json:"password,omitempty"`
	Code     string `json:"code,omitempty"`
}

func (s *Server) handleMFADisable(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	var req mfaDisableRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "malformed_request")
		return
	}

	if err := s.engine.DisableMFA(r.Context(), principal.IdentityID, req.Password, req.Code); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
