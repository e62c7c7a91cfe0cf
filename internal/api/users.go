package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/dashauth/internal/audit"
	"github.com/nerrad567/dashauth/internal/auth"
)

// ─── Request/Response Types ────────────────────────────────────────

type createUserRequest struct {
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Password  string    `json:"password"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      auth.Role `json:"role"`
}

type sessionsResponse struct {
	Sessions []auth.Session `json:"sessions"`
	Count    int            `json:"count"`
}

type revokeSessionsResponse struct {
	Message string `json:"message"`
	Revoked int64  `json:"revoked"`
}

// ─── Handlers ──────────────────────────────────────────────────────

// handleListUsers returns a page of principals.
//
// Query parameters:
//   - skip: number of principals to skip (default 0)
//   - limit: page size (default 100)
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset := queryInt(q.Get("skip"), 0)
	limit := queryInt(q.Get("limit"), auth.DefaultListLimit)

	users, err := s.auth.ListPrincipals(r.Context(), principalFromContext(r.Context()), offset, limit)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}
	if users == nil {
		users = []auth.Principal{}
	}

	writeJSON(w, http.StatusOK, users)
}

// handleCreateUser creates a new principal. The role defaults to "other".
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	caller := principalFromContext(r.Context())
	p, err := s.auth.CreatePrincipal(r.Context(), caller, auth.NewPrincipal{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
	})
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	s.auditLog(audit.ActionCreate, p.ID, caller.ID, map[string]any{
		"username": p.Username,
		"role":     p.Role,
	})

	writeJSON(w, http.StatusCreated, p)
}

// handleGetUser returns a single principal by ID.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := principalID(w, r)
	if !ok {
		return
	}

	p, err := s.auth.GetPrincipal(r.Context(), principalFromContext(r.Context()), id)
	if err != nil {
		s.writeAdminError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// handleUpdateUser applies a partial update. Absent fields are unchanged.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := principalID(w, r)
	if !ok {
		return
	}

	var patch auth.PrincipalPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	caller := principalFromContext(r.Context())
	p, err := s.auth.UpdatePrincipal(r.Context(), caller, id, patch)
	if err != nil {
		s.writeAdminError(w, r, err)
		return
	}

	s.auditLog(audit.ActionUpdate, p.ID, caller.ID, patchDetails(patch))

	writeJSON(w, http.StatusOK, p)
}

// handleDeleteUser deactivates a principal. The row is kept.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := principalID(w, r)
	if !ok {
		return
	}

	caller := principalFromContext(r.Context())
	if err := s.auth.DeactivatePrincipal(r.Context(), caller, id); err != nil {
		s.writeAdminError(w, r, err)
		return
	}

	s.auditLog(audit.ActionDeactivate, id, caller.ID, nil)

	writeMessage(w, "User deleted successfully")
}

// handleListUserSessions returns the unexpired sessions of a principal.
func (s *Server) handleListUserSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := principalID(w, r)
	if !ok {
		return
	}

	sessions, err := s.auth.ListSessions(r.Context(), principalFromContext(r.Context()), id)
	if err != nil {
		s.writeAdminError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []auth.Session{}
	}

	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: sessions, Count: len(sessions)})
}

// handleRevokeUserSessions revokes every active refresh token of a principal.
func (s *Server) handleRevokeUserSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := principalID(w, r)
	if !ok {
		return
	}

	caller := principalFromContext(r.Context())
	n, err := s.auth.RevokeSessions(r.Context(), caller, id)
	if err != nil {
		s.writeAdminError(w, r, err)
		return
	}

	s.auditLog(audit.ActionRevokeSessions, id, caller.ID, map[string]any{"revoked": n})

	writeJSON(w, http.StatusOK, revokeSessionsResponse{Message: "Sessions revoked", Revoked: n})
}

// writeAdminError is writeAuthError for admin routes, where a missing
// target principal is a 404 rather than an authentication failure.
func (s *Server) writeAdminError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, auth.ErrPrincipalNotFound) {
		writeNotFound(w, msgUserNotFound)
		return
	}
	s.writeAuthError(w, r, err)
}

// principalID parses the {id} URL parameter, writing a 400 when malformed.
func principalID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, "invalid user id")
		return 0, false
	}
	return id, true
}

// queryInt parses a non-negative integer query value, falling back to def.
func queryInt(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// patchDetails lists which fields an update touched, without values for
// anything but role and active state.
func patchDetails(p auth.PrincipalPatch) map[string]any {
	d := map[string]any{}
	if p.Email != nil {
		d["email"] = true
	}
	if p.FirstName != nil {
		d["first_name"] = true
	}
	if p.LastName != nil {
		d["last_name"] = true
	}
	if p.Role != nil {
		d["role"] = *p.Role
	}
	if p.IsActive != nil {
		d["is_active"] = *p.IsActive
	}
	return d
}
