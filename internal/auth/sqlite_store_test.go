package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSQLiteStore_PrincipalLifecycle(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	p := insertPrincipal(t, store, "alice", "correct-password", RoleDev)
	if p.ID == 0 {
		t.Fatal("InsertPrincipal() should assign an ID")
	}

	byID, err := store.FindPrincipalByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("FindPrincipalByID() error = %v", err)
	}
	if byID.Username != "alice" || byID.Role != RoleDev || !byID.IsActive {
		t.Errorf("FindPrincipalByID() = %+v", byID)
	}
	if !byID.CreatedAt.Equal(p.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", byID.CreatedAt, p.CreatedAt)
	}
	if byID.LastLogin != nil {
		t.Errorf("LastLogin = %v, want nil", byID.LastLogin)
	}

	if _, err := store.FindPrincipalByUsername(ctx, "alice"); err != nil {
		t.Errorf("FindPrincipalByUsername() error = %v", err)
	}
	if _, err := store.FindPrincipalByEmail(ctx, "ALICE@example.com"); err != nil {
		t.Errorf("FindPrincipalByEmail() should ignore case, error = %v", err)
	}
	if _, err := store.FindPrincipalByID(ctx, 9999); !errors.Is(err, ErrPrincipalNotFound) {
		t.Errorf("FindPrincipalByID(missing) error = %v, want ErrPrincipalNotFound", err)
	}

	byID.Role = RoleDevOps
	byID.IsActive = false
	byID.UpdatedAt = byID.UpdatedAt.Add(time.Hour)
	if err := store.UpdatePrincipal(ctx, byID); err != nil {
		t.Fatalf("UpdatePrincipal() error = %v", err)
	}

	at := time.Date(2026, 3, 2, 9, 30, 0, 123456000, time.UTC)
	if err := store.TouchLastLogin(ctx, p.ID, at); err != nil {
		t.Fatalf("TouchLastLogin() error = %v", err)
	}
	if err := store.UpdatePasswordHash(ctx, p.ID, "new-hash", at); err != nil {
		t.Fatalf("UpdatePasswordHash() error = %v", err)
	}

	got, err := store.FindPrincipalByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("FindPrincipalByID() error = %v", err)
	}
	if got.Role != RoleDevOps || got.IsActive {
		t.Errorf("update not persisted: role=%s active=%v", got.Role, got.IsActive)
	}
	if got.LastLogin == nil || !got.LastLogin.Equal(at) {
		t.Errorf("LastLogin = %v, want %v", got.LastLogin, at)
	}
	if got.PasswordHash != "new-hash" {
		t.Errorf("PasswordHash = %q, want new-hash", got.PasswordHash)
	}

	missing := &Principal{ID: 9999, Role: RoleDev}
	if err := store.UpdatePrincipal(ctx, missing); !errors.Is(err, ErrPrincipalNotFound) {
		t.Errorf("UpdatePrincipal(missing) error = %v, want ErrPrincipalNotFound", err)
	}
}

func TestSQLiteStore_DuplicateIdentity(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	insertPrincipal(t, store, "alice", "password", RoleDev)

	dupUsername := &Principal{Username: "alice", Email: "other@example.com", PasswordHash: "h", FirstName: "A", LastName: "B", Role: RoleDev}
	err := store.InsertPrincipal(ctx, dupUsername)
	if !errors.Is(err, ErrDuplicateIdentity) || !strings.Contains(err.Error(), "username") {
		t.Errorf("duplicate username error = %v", err)
	}

	dupEmail := &Principal{Username: "alice2", Email: "alice@example.com", PasswordHash: "h", FirstName: "A", LastName: "B", Role: RoleDev}
	err = store.InsertPrincipal(ctx, dupEmail)
	if !errors.Is(err, ErrDuplicateIdentity) || !strings.Contains(err.Error(), "email") {
		t.Errorf("duplicate email error = %v", err)
	}

	// The column itself is case-insensitive, not only the lookups.
	dupEmailCase := &Principal{Username: "alice3", Email: "Alice@Example.COM", PasswordHash: "h", FirstName: "A", LastName: "B", Role: RoleDev}
	err = store.InsertPrincipal(ctx, dupEmailCase)
	if !errors.Is(err, ErrDuplicateIdentity) || !strings.Contains(err.Error(), "email") {
		t.Errorf("duplicate email with different case error = %v", err)
	}

	n, err := store.CountPrincipals(ctx)
	if err != nil {
		t.Fatalf("CountPrincipals() error = %v", err)
	}
	if n != 1 {
		t.Errorf("CountPrincipals() = %d, want 1", n)
	}
}

func TestSQLiteStore_ListPrincipals(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	for _, name := range []string{"alice", "bob", "carol"} {
		insertPrincipal(t, store, name, "password", RoleDev)
	}

	page, err := store.ListPrincipals(ctx, 1, 1)
	if err != nil {
		t.Fatalf("ListPrincipals() error = %v", err)
	}
	if len(page) != 1 || page[0].Username != "bob" {
		t.Errorf("ListPrincipals(1, 1) = %+v, want [bob]", page)
	}

	empty, err := store.ListPrincipals(ctx, 10, 10)
	if err != nil {
		t.Fatalf("ListPrincipals() error = %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("ListPrincipals past end = %v, want empty non-nil slice", empty)
	}
}

func TestSQLiteStore_RefreshTokens(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	p := insertPrincipal(t, store, "alice", "password", RoleDev)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tok := &RefreshToken{PrincipalID: p.ID, Token: "raw-refresh", ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	if err := store.InsertRefreshToken(ctx, tok); err != nil {
		t.Fatalf("InsertRefreshToken() error = %v", err)
	}
	if tok.TokenHash != HashToken("raw-refresh") {
		t.Error("InsertRefreshToken() should store the digest")
	}

	var stored string
	if err := store.q.QueryRowContext(ctx, "SELECT token_hash FROM refresh_tokens WHERE id = ?", tok.ID).Scan(&stored); err != nil {
		t.Fatalf("reading token row: %v", err)
	}
	if stored == "raw-refresh" {
		t.Error("raw token must not be stored")
	}

	found, err := store.FindRefreshToken(ctx, "raw-refresh")
	if err != nil {
		t.Fatalf("FindRefreshToken() error = %v", err)
	}
	if found.PrincipalID != p.ID || found.Revoked || !found.ExpiresAt.Equal(tok.ExpiresAt) {
		t.Errorf("FindRefreshToken() = %+v", found)
	}
	if found.Token != "" {
		t.Error("FindRefreshToken() should not return a raw token")
	}

	if _, err := store.FindRefreshToken(ctx, "unknown"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("FindRefreshToken(unknown) error = %v, want ErrTokenNotFound", err)
	}

	ok, err := store.RevokeRefreshToken(ctx, "raw-refresh")
	if err != nil || !ok {
		t.Fatalf("RevokeRefreshToken() = %v, %v; want true, nil", ok, err)
	}
	ok, err = store.RevokeRefreshToken(ctx, "raw-refresh")
	if err != nil || ok {
		t.Errorf("second RevokeRefreshToken() = %v, %v; want false, nil", ok, err)
	}

	found, err = store.FindRefreshToken(ctx, "raw-refresh")
	if err != nil {
		t.Fatalf("FindRefreshToken() error = %v", err)
	}
	if !found.Revoked {
		t.Error("token should be revoked")
	}
}

func TestSQLiteStore_RevokeAllRefreshTokens(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	alice := insertPrincipal(t, store, "alice", "password", RoleDev)
	bob := insertPrincipal(t, store, "bob", "password", RoleDev)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, raw := range []string{"a1", "a2", "a3"} {
		if err := store.InsertRefreshToken(ctx, &RefreshToken{PrincipalID: alice.ID, Token: raw, ExpiresAt: now.Add(time.Hour), CreatedAt: now}); err != nil {
			t.Fatalf("InsertRefreshToken() error = %v", err)
		}
	}
	if err := store.InsertRefreshToken(ctx, &RefreshToken{PrincipalID: bob.ID, Token: "b1", ExpiresAt: now.Add(time.Hour), CreatedAt: now}); err != nil {
		t.Fatalf("InsertRefreshToken() error = %v", err)
	}
	if _, err := store.RevokeRefreshToken(ctx, "a1"); err != nil {
		t.Fatalf("RevokeRefreshToken() error = %v", err)
	}

	n, err := store.RevokeAllRefreshTokens(ctx, alice.ID)
	if err != nil {
		t.Fatalf("RevokeAllRefreshTokens() error = %v", err)
	}
	if n != 2 {
		t.Errorf("RevokeAllRefreshTokens() = %d, want 2", n)
	}

	b, err := store.FindRefreshToken(ctx, "b1")
	if err != nil {
		t.Fatalf("FindRefreshToken() error = %v", err)
	}
	if b.Revoked {
		t.Error("other principal's token should stay active")
	}
}

func TestSQLiteStore_SessionsAndExpiry(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	p := insertPrincipal(t, store, "alice", "password", RoleDev)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sessions := []*Session{
		{SessionID: "s-old", PrincipalID: p.ID, ExpiresAt: now.Add(-time.Minute), CreatedAt: now.Add(-25 * time.Hour), LastActivity: now},
		{SessionID: "s-new", PrincipalID: p.ID, ClientIP: "10.0.0.1", UserAgent: "curl/8", ExpiresAt: now.Add(time.Hour), CreatedAt: now, LastActivity: now},
	}
	for _, s := range sessions {
		if err := store.InsertSession(ctx, s); err != nil {
			t.Fatalf("InsertSession() error = %v", err)
		}
	}

	active, err := store.ListActiveSessions(ctx, p.ID, now)
	if err != nil {
		t.Fatalf("ListActiveSessions() error = %v", err)
	}
	if len(active) != 1 || active[0].SessionID != "s-new" || active[0].ClientIP != "10.0.0.1" {
		t.Errorf("ListActiveSessions() = %+v, want only s-new", active)
	}

	tokens := []*RefreshToken{
		{PrincipalID: p.ID, Token: "expired", ExpiresAt: now.Add(-time.Second), CreatedAt: now.Add(-8 * 24 * time.Hour)},
		{PrincipalID: p.ID, Token: "live", ExpiresAt: now.Add(time.Hour), CreatedAt: now},
	}
	for _, tok := range tokens {
		if err := store.InsertRefreshToken(ctx, tok); err != nil {
			t.Fatalf("InsertRefreshToken() error = %v", err)
		}
	}

	nTokens, nSessions, err := store.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if nTokens != 1 || nSessions != 1 {
		t.Errorf("DeleteExpired() = (%d, %d), want (1, 1)", nTokens, nSessions)
	}
	if _, err := store.FindRefreshToken(ctx, "live"); err != nil {
		t.Errorf("live token should survive: %v", err)
	}
	if _, err := store.FindRefreshToken(ctx, "expired"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("expired token should be deleted, error = %v", err)
	}
}

func TestSQLiteStore_WithinTxRollsBack(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	p := insertPrincipal(t, store, "alice", "password", RoleDev)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	boom := errors.New("session insert failed")
	err := store.WithinTx(ctx, func(tx Store) error {
		if err := tx.InsertRefreshToken(ctx, &RefreshToken{PrincipalID: p.ID, Token: "tx-token", ExpiresAt: now.Add(time.Hour), CreatedAt: now}); err != nil {
			return err
		}
		// Nested calls join the outer transaction.
		return tx.WithinTx(ctx, func(Store) error { return boom })
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithinTx() error = %v, want %v", err, boom)
	}

	if _, err := store.FindRefreshToken(ctx, "tx-token"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("token should have been rolled back, error = %v", err)
	}
}

func TestRefreshToken_Predicates(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tok := &RefreshToken{ExpiresAt: now}

	if tok.Expired(now) {
		t.Error("token should not be expired at exactly its expiry instant")
	}
	if !tok.Expired(now.Add(time.Nanosecond)) {
		t.Error("token should be expired after its expiry instant")
	}
	if !tok.Usable(now.Add(-time.Minute)) {
		t.Error("unrevoked unexpired token should be usable")
	}
	tok.Revoked = true
	if tok.Usable(now.Add(-time.Minute)) {
		t.Error("revoked token should not be usable")
	}
}
