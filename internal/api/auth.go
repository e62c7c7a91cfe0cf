package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/dashauth/internal/auth"
)

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// refreshTokenRequest is the request body for POST /auth/refresh and /auth/logout.
type refreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// permissionsResponse is the body of GET /auth/permissions.
type permissionsResponse struct {
	Role        auth.Role    `json:"role"`
	Permissions []auth.Grant `json:"permissions"`
}

// decodeJSON decodes the request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// handleLogin exchanges credentials for an access and refresh token pair.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	res, err := s.auth.Login(r.Context(), auth.LoginRequest{
		Username:  req.Username,
		Password:  req.Password,
		ClientIP:  clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// handleRefresh mints a new access token from a refresh token.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// handleLogout revokes a refresh token. Revoking a token that is not active
// is a client error, so a second logout with the same token fails.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		if errors.Is(err, auth.ErrTokenNotFound) {
			writeBadRequest(w, msgInvalidRefreshToken)
			return
		}
		s.writeAuthError(w, r, err)
		return
	}

	writeMessage(w, "Successfully logged out")
}

// handleForgotPassword always acknowledges, whether or not the email exists.
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	//nolint:errcheck // RequestPasswordReset never reports failures to callers
	s.auth.RequestPasswordReset(r.Context(), req.Email)

	writeMessage(w, "If the email exists, a password reset link has been sent")
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.auth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeMessage(w, "Password reset successfully")
}

// handleMe returns the authenticated principal.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, principalFromContext(r.Context()))
}

// handlePermissions returns the permission grants of the caller's role.
func (s *Server) handlePermissions(w http.ResponseWriter, r *http.Request) {
	p := principalFromContext(r.Context())
	writeJSON(w, http.StatusOK, permissionsResponse{
		Role:        p.Role,
		Permissions: auth.PermissionsFor(p.Role),
	})
}

// handleChangePassword replaces the caller's password.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p := principalFromContext(r.Context())
	if err := s.auth.ChangePassword(r.Context(), p, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeBadRequest(w, msgWrongPassword)
			return
		}
		s.writeAuthError(w, r, err)
		return
	}

	writeMessage(w, "Password changed successfully")
}
