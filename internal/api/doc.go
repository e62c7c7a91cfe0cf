// Package api implements the dashauth HTTP REST API.
//
// This package provides:
//   - Credential endpoints (login, refresh, logout, password reset)
//   - Current-principal endpoints (me, permissions, change password)
//   - Principal administration guarded by the permission matrix
//   - The audit trail of administrative actions
//   - Middleware stack (request ID, real IP, logging, recovery, CORS,
//     body limit, rate limit, bearer authentication)
//
// # Security
//
// Every authentication failure is answered with the same generic 401 body
// so callers cannot tell an unknown user from a wrong password or an
// inactive account. Permission failures are a generic 403. Login and
// forgot-password are rate limited per client IP; when the rate limit
// backend is unreachable requests are let through and a warning is logged.
//
// # Lifecycle
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
