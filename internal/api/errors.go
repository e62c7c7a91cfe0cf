package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/nerrad567/dashauth/internal/auth"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeRateLimited  = "rate_limited"
)

// Client-facing messages. Authentication failures never say which check failed.
const (
	msgBadCredentials      = "Incorrect username or password"
	msgInvalidBearer       = "Could not validate credentials"
	msgInvalidRefreshToken = "Invalid refresh token"
	msgRefreshTokenExpired = "Refresh token expired"
	msgPrincipalUnusable   = "User not found or inactive"
	msgWrongPassword       = "Incorrect current password"
	msgForbidden           = "Not enough permissions"
	msgUserNotFound        = "User not found"
	msgSelfDeletion        = "Cannot delete yourself"
	msgUsernameTaken       = "Username already exists"
	msgEmailTaken          = "Email already exists"
	msgInternal            = "internal server error"
)

// messageResponse is the body of simple acknowledgements.
type messageResponse struct {
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeMessage writes a 200 acknowledgement.
func writeMessage(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, messageResponse{Message: message})
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response with a Bearer challenge.
func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, msgForbidden)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeAuthError maps an error returned by the auth service to a response.
// Handlers that give a kind a different meaning (logout, change password,
// admin lookups) check for it before falling through to here.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeUnauthorized(w, msgBadCredentials)
	case errors.Is(err, auth.ErrTokenInvalid):
		writeUnauthorized(w, msgInvalidBearer)
	case errors.Is(err, auth.ErrTokenNotFound):
		writeUnauthorized(w, msgInvalidRefreshToken)
	case errors.Is(err, auth.ErrTokenExpired):
		writeUnauthorized(w, msgRefreshTokenExpired)
	case errors.Is(err, auth.ErrPrincipalNotFound), errors.Is(err, auth.ErrPrincipalInactive):
		writeUnauthorized(w, msgPrincipalUnusable)
	case errors.Is(err, auth.ErrPermissionDenied):
		writeForbidden(w)
	case errors.Is(err, auth.ErrSelfDeletionRejected):
		writeBadRequest(w, msgSelfDeletion)
	case errors.Is(err, auth.ErrDuplicateIdentity):
		if strings.Contains(err.Error(), "username") {
			writeBadRequest(w, msgUsernameTaken)
			return
		}
		writeBadRequest(w, msgEmailTaken)
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, validationMessage(err))
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeInternalError(w, msgInternal)
	}
}

// validationMessage strips the sentinel prefix from a wrapped
// ErrInvalidInput, leaving the human-readable detail.
func validationMessage(err error) string {
	prefix := auth.ErrInvalidInput.Error() + ": "
	parts := strings.Split(err.Error(), "\n")
	for i, p := range parts {
		parts[i] = strings.TrimPrefix(p, prefix)
	}
	return strings.Join(parts, "; ")
}
