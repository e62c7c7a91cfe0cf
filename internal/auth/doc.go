// Package auth is the authentication and authorisation core of dashauth.
//
// It issues and verifies credentials, manages refresh-token and session
// lifecycles and evaluates a static role-based permission matrix.
//
//   - bcrypt password hashing (Hasher)
//   - HMAC-signed JWT access tokens (Signer)
//   - opaque refresh tokens stored only as SHA-256 digests
//   - a closed role enumeration mapped to resource/action grants
//   - a Store interface with a SQLite implementation
//
// Access tokens are stateless, but the principal is re-read from the Store
// on every request so deactivation and role changes apply immediately.
// Refresh tokens are stateful: they stay usable only while unrevoked and
// unexpired, and revocation is terminal.
//
// The Service is constructed explicitly with NewService and holds no
// mutable state beyond its collaborators, so it is safe for concurrent use.
package auth
