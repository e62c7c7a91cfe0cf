package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nerrad567/dashauth/internal/audit"
	"github.com/nerrad567/dashauth/internal/auth"
	"github.com/nerrad567/dashauth/internal/infrastructure/config"
	"github.com/nerrad567/dashauth/internal/infrastructure/database"
	"github.com/nerrad567/dashauth/internal/infrastructure/logging"
	"github.com/nerrad567/dashauth/migrations"
)

const (
	testSecret   = "api-test-signing-secret-of-32-bytes!!"
	testPassword = "correct-horse-1"
)

// apiFixture is a server wired to a real SQLite database.
type apiFixture struct {
	srv     *Server
	handler http.Handler
	store   *auth.SQLiteStore
	hasher  *auth.Hasher
}

func newAPIFixture(t *testing.T, mutate ...func(*Deps)) *apiFixture {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "api.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	_, err = db.Migrator(migrations.FS).Up(context.Background())
	require.NoError(t, err)

	signer, err := auth.NewSigner(auth.SignerConfig{Secret: testSecret, AccessTTL: 30 * time.Minute})
	require.NoError(t, err)

	logger := logging.Discard()
	store := auth.NewSQLiteStore(db)
	hasher := auth.NewHasher(bcrypt.MinCost)
	svc, err := auth.NewService(auth.ServiceDeps{
		Store:  store,
		Signer: signer,
		Hasher: hasher,
		Logger: logger.Logger,
	})
	require.NoError(t, err)

	auditRepo := audit.NewSQLiteRepository(db.DB)
	deps := Deps{
		Config: config.APIConfig{Host: "127.0.0.1", Port: 8000},
		Logger: logger,
		Auth:   svc,
		Audit:  auditRepo,
	}
	for _, m := range mutate {
		m(&deps)
	}

	srv, err := New(deps)
	require.NoError(t, err)

	return &apiFixture{
		srv:     srv,
		handler: srv.buildRouter(),
		store:   store,
		hasher:  hasher,
	}
}

// addPrincipal stores an active principal whose password is testPassword.
func (f *apiFixture) addPrincipal(t *testing.T, username string, role auth.Role) *auth.Principal {
	t.Helper()

	hash, err := f.hasher.Hash(testPassword)
	require.NoError(t, err)

	now := time.Now().UTC()
	p := &auth.Principal{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     username,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, f.store.InsertPrincipal(context.Background(), p))
	return p
}

// do sends a request through the router. body is JSON-encoded unless nil.
func (f *apiFixture) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader = http.NoBody
	if body != nil {
		r = jsonBody(t, body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

// doRaw sends body unmodified, without credentials.
func (f *apiFixture) doRaw(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

// login returns the login response for username, failing the test on error.
func (f *apiFixture) login(t *testing.T, username string) auth.LoginResult {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", loginRequest{Username: username, Password: testPassword}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res auth.LoginResult
	decode(t, rec, &res)
	return res
}

// flushAudit writes every queued audit entry.
func (f *apiFixture) flushAudit() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.srv.drainAuditLog(ctx)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) Error {
	t.Helper()
	var e Error
	decode(t, rec, &e)
	return e
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(v))
	return &buf
}
