package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/nerrad567/mavbridge/internal/auth"
)

// loginRequest is the body of POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is returned on successful login.
type loginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
	Role        auth.Role `json:"role"`
}

// identityResponse describes the caller of GET /auth/me.
type identityResponse struct {
	AuthEnabled bool              `json:"auth_enabled"`
	Username    string            `json:"username,omitempty"`
	Role        auth.Role         `json:"role,omitempty"`
	Permissions []auth.Permission `json:"permissions,omitempty"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
}

// handleLogin exchanges operator credentials for a bearer token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		writeNotFound(w, "authentication is not enabled")
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeValidationError(w, "username and password are required")
		return
	}

	token, claims, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.logger.Warn("login failed", "username", req.Username)
			writeUnauthorized(w, "invalid credentials")
			return
		}
		s.logger.Error("login error", "username", req.Username, "error", err)
		writeInternalError(w, "failed to issue token")
		return
	}

	s.logger.Info("operator logged in", "username", claims.Subject, "role", claims.Role)
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.auth.TTL().Seconds()),
		ExpiresAt:   claims.ExpiresAt.Time,
		Role:        claims.Role,
	})
}

// handleWhoAmI reports the identity behind the request token.
func (s *Server) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusOK, identityResponse{AuthEnabled: false})
		return
	}

	resp := identityResponse{
		AuthEnabled: true,
		Username:    claims.Subject,
		Role:        claims.Role,
		Permissions: auth.PermissionsForRole(claims.Role),
	}
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time
		resp.ExpiresAt = &exp
	}
	writeJSON(w, http.StatusOK, resp)
}
