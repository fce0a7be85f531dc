package httpapi

import (
	"net/http"

	"github.com/ProjectSCARS/bentoauth/middleware"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	MFACode  string `json:"mfa_code,omitempty"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "malformed_request")
		return
	}

	result, err := s.engine.LoginWithMFA(r.Context(), req.Username, req.Password, req.MFACode)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "malformed_request")
		return
	}

	access, refresh, err := s.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  access,
		RefreshToken: refresh,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "malformed_request")
		return
	}

	if err := s.engine.LogoutByRefreshToken(r.Context(), req.RefreshToken); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	if err := s.engine.LogoutAll(r.Context(), principal.IdentityID); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSecurityReport(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	report, err := s.engine.SecurityReport(r.Context(), principal.IdentityID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, securityReportResponse{
		IdentityID:        report.IdentityID,
		Username:          report.Username,
		AnomalyState:      report.AnomalyState.String(),
		FailedAttempts:    report.FailedAttempts,
		LastFailureSource: report.LastFailureSource,
		ActiveSessions:    report.ActiveSessions,
		MFAEnabled:        report.MFAEnabled,
		Deactivated:       report.Deactivated,
		LastLoginSource:   report.LastLoginSource,
	})
}

type securityReportResponse struct {
	IdentityID        string `json:"identity_id"`
	Username          string `json:"username"`
	AnomalyState      string `json:"anomaly_state"`
	FailedAttempts    int    `json:"failed_attempts"`
	LastFailureSource string `json:"last_failure_source,omitempty"`
	ActiveSessions    int    `json:"active_sessions"`
	MFAEnabled        bool   `json:"mfa_enabled"`
	Deactivated       bool   `json:"deactivated"`
	LastLoginSource   string `json:"last_login_source,omitempty"`
}
