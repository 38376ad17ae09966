package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/techscire/scirecount-core/internal/audit"
	"github.com/techscire/scirecount-core/internal/auth"
)

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the response body for POST /auth/login.
type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// handleLogin checks the dashboard credentials from configuration and
// returns a signed access token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := auth.CheckDashboard(s.secCfg.Dashboard, req.Username, req.Password); err != nil {
		if errors.Is(err, auth.ErrInvalidHash) {
			s.logger.Error("dashboard password hash is unusable", "error", err)
		}
		s.logger.Warn("dashboard login rejected", "username", req.Username)
		s.recordAudit(r.Context(), &audit.Entry{
			Action:     audit.ActionLoginFailed,
			EntityType: audit.EntitySession,
			Actor:      req.Username,
			Details:    map[string]any{"remote_addr": r.RemoteAddr},
		})
		writeUnauthorized(w, "invalid credentials")
		return
	}

	signed, ttl, err := s.issueToken(req.Username)
	if err != nil {
		s.logger.Error("signing access token", "error", err)
		writeInternalError(w, "failed to generate token")
		return
	}

	s.recordAudit(r.Context(), &audit.Entry{
		Action:     audit.ActionLogin,
		EntityType: audit.EntitySession,
		Actor:      req.Username,
	})
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int(ttl.Seconds()),
	})
}

// issueToken signs an operator access token for subject.
func (s *Server) issueToken(subject string) (string, time.Duration, error) {
	ttl := time.Duration(s.secCfg.JWT.AccessTokenTTL) * time.Minute
	return auth.IssueAccessToken(s.secCfg.JWT.Secret, subject, auth.RoleOperator, ttl)
}

// parseToken verifies an access token against the configured secret.
func (s *Server) parseToken(raw string) (*auth.Claims, error) {
	return auth.ParseAccessToken(raw, s.secCfg.JWT.Secret)
}
