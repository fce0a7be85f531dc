package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ProjectSCARS/bentoauth"
	"github.com/ProjectSCARS/bentoauth/permission"
)

type createUserRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	RoleLevel uint8  `json:"role_level"`
	SchoolID  string `json:"school_id,omitempty"`
}

type userResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	RoleLevel uint8  `json:"role_level"`
	SchoolID  string `json:"school_id,omitempty"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "malformed_request")
		return
	}

	identity, err := s.engine.CreateAccount(r.Context(), bentoauth.CreateAccountRequest{
		Username:  req.Username,
		Password:  req.Password,
		RoleLevel: permission.RoleLevel(req.RoleLevel),
		SchoolID:  req.SchoolID,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, userResponse{
		ID:        identity.ID,
		Username:  identity.Username,
		RoleLevel: uint8(identity.RoleLevel),
		SchoolID:  identity.SchoolID,
	})
}

func (s *Server) handleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeactivateAccount(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReactivateUser(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ReactivateAccount(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
