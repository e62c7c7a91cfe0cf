package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func validNewPrincipal() NewPrincipal {
	return NewPrincipal{
		Username:  "carol",
		Email:     "carol@example.com",
		Password:  "s3cret-pass",
		FirstName: "Carol",
		LastName:  "Jones",
		Role:      RoleQA,
	}
}

func TestValidateUsername(t *testing.T) {
	valid := []string{"bob", "alice.smith", "dev_ops-1", "ABC"}
	for _, u := range valid {
		assert.NoError(t, ValidateUsername(u), u)
	}

	invalid := []string{"", "ab", "has space", "emoji✓", "semi;colon", string(make([]byte, 51))}
	for _, u := range invalid {
		assert.ErrorIs(t, ValidateUsername(u), ErrInvalidInput, u)
	}
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("alice@example.com"))

	for _, e := range []string{"", "alice", "alice@localhost", "Alice <alice@example.com>", "@example.com"} {
		assert.ErrorIs(t, ValidateEmail(e), ErrInvalidInput, e)
	}
}

func TestNewPrincipal_Validate(t *testing.T) {
	t.Run("defaults role", func(t *testing.T) {
		in := validNewPrincipal()
		in.Role = ""
		require.NoError(t, in.Validate())
		assert.Equal(t, RoleOther, in.Role)
	})

	t.Run("unknown role", func(t *testing.T) {
		in := validNewPrincipal()
		in.Role = "admin"
		assert.ErrorIs(t, in.Validate(), ErrInvalidInput)
	})

	t.Run("reports every bad field", func(t *testing.T) {
		in := NewPrincipal{Username: "x", Email: "nope", Password: "1"}
		err := in.Validate()
		require.ErrorIs(t, err, ErrInvalidInput)
		for _, field := range []string{"username", "email", "password", "first_name", "last_name"} {
			assert.Contains(t, err.Error(), field)
		}
	})
}

func TestCreatePrincipal(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	admin := insertPrincipal(t, f.store, "admin", "correct", RoleManagement)
	ctx := context.Background()

	p, err := f.svc.CreatePrincipal(ctx, admin, validNewPrincipal())
	require.NoError(t, err)
	assert.NotZero(t, p.ID)
	assert.True(t, p.IsActive)
	assert.False(t, p.IsSuperuser)
	assert.Equal(t, RoleQA, p.Role)
	assert.NotEqual(t, "s3cret-pass", p.PasswordHash)

	_, err = f.svc.Authenticate(ctx, "carol", "s3cret-pass")
	assert.NoError(t, err)
	assert.Contains(t, f.events.types(), EventPrincipalCreated)
}

func TestCreatePrincipal_Duplicates(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	admin := insertPrincipal(t, f.store, "admin", "correct", RoleManagement)
	ctx := context.Background()

	_, err := f.svc.CreatePrincipal(ctx, admin, validNewPrincipal())
	require.NoError(t, err)

	sameName := validNewPrincipal()
	sameName.Email = "other@example.com"
	_, err = f.svc.CreatePrincipal(ctx, admin, sameName)
	require.ErrorIs(t, err, ErrDuplicateIdentity)
	assert.Contains(t, err.Error(), "username")

	sameEmail := validNewPrincipal()
	sameEmail.Username = "carol2"
	sameEmail.Email = "CAROL@example.com"
	_, err = f.svc.CreatePrincipal(ctx, admin, sameEmail)
	require.ErrorIs(t, err, ErrDuplicateIdentity)
	assert.Contains(t, err.Error(), "email")

	count, err := f.store.CountPrincipals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAdminOperations_RequirePermission(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	dev := insertPrincipal(t, f.store, "dev", "correct", RoleDev)
	target := insertPrincipal(t, f.store, "target", "correct", RoleOther)
	ctx := context.Background()

	_, err := f.svc.CreatePrincipal(ctx, dev, validNewPrincipal())
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = f.svc.ListPrincipals(ctx, dev, 0, 10)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = f.svc.GetPrincipal(ctx, dev, target.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = f.svc.UpdatePrincipal(ctx, dev, target.ID, PrincipalPatch{FirstName: ptr("X")})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.ErrorIs(t, f.svc.DeactivatePrincipal(ctx, dev, target.ID), ErrPermissionDenied)
	_, err = f.svc.ListSessions(ctx, dev, target.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = f.svc.RevokeSessions(ctx, dev, target.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.svc.CreatePrincipal(ctx, nil, validNewPrincipal())
	assert.ErrorIs(t, err, ErrPermissionDenied)

	count, err := f.store.CountPrincipals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestListAndGetPrincipal(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	admin := insertPrincipal(t, f.store, "admin", "correct", RoleManagement)
	insertPrincipal(t, f.store, "bob", "correct", RoleDev)
	ctx := context.Background()

	all, err := f.svc.ListPrincipals(ctx, admin, -5, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	page, err := f.svc.ListPrincipals(ctx, admin, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "bob", page[0].Username)

	got, err := f.svc.GetPrincipal(ctx, admin, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin", got.Username)

	_, err = f.svc.GetPrincipal(ctx, admin, 4242)
	assert.ErrorIs(t, err, ErrPrincipalNotFound)
}

func TestUpdatePrincipal(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	admin := insertPrincipal(t, f.store, "admin", "correct", RoleManagement)
	bob := insertPrincipal(t, f.store, "bob", "correct", RoleDev)
	insertPrincipal(t, f.store, "eve", "correct", RoleDev)
	ctx := context.Background()

	t.Run("partial update", func(t *testing.T) {
		p, err := f.svc.UpdatePrincipal(ctx, admin, bob.ID, PrincipalPatch{Role: ptr(RoleDevOps)})
		require.NoError(t, err)
		assert.Equal(t, RoleDevOps, p.Role)
		assert.Equal(t, "bob@example.com", p.Email)
		assert.Equal(t, "Test", p.FirstName)
	})

	t.Run("email taken", func(t *testing.T) {
		_, err := f.svc.UpdatePrincipal(ctx, admin, bob.ID, PrincipalPatch{Email: ptr("eve@example.com")})
		assert.ErrorIs(t, err, ErrDuplicateIdentity)
	})

	t.Run("same email different case", func(t *testing.T) {
		_, err := f.svc.UpdatePrincipal(ctx, admin, bob.ID, PrincipalPatch{Email: ptr("Bob@example.com")})
		assert.NoError(t, err)
	})

	t.Run("invalid field", func(t *testing.T) {
		_, err := f.svc.UpdatePrincipal(ctx, admin, bob.ID, PrincipalPatch{FirstName: ptr("")})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("missing principal", func(t *testing.T) {
		_, err := f.svc.UpdatePrincipal(ctx, admin, 4242, PrincipalPatch{FirstName: ptr("X")})
		assert.ErrorIs(t, err, ErrPrincipalNotFound)
	})

	t.Run("self deactivation rejected", func(t *testing.T) {
		_, err := f.svc.UpdatePrincipal(ctx, admin, admin.ID, PrincipalPatch{IsActive: ptr(false)})
		assert.ErrorIs(t, err, ErrSelfDeletionRejected)

		stored, err := f.store.FindPrincipalByID(ctx, admin.ID)
		require.NoError(t, err)
		assert.True(t, stored.IsActive)
	})

	t.Run("deactivate another", func(t *testing.T) {
		p, err := f.svc.UpdatePrincipal(ctx, admin, bob.ID, PrincipalPatch{IsActive: ptr(false)})
		require.NoError(t, err)
		assert.False(t, p.IsActive)
	})
}

func TestDeactivatePrincipal(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	admin := insertPrincipal(t, f.store, "admin", "correct", RoleManagement)
	bob := insertPrincipal(t, f.store, "bob", "correct", RoleDev)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.DeactivatePrincipal(ctx, admin, admin.ID), ErrSelfDeletionRejected)
	stored, err := f.store.FindPrincipalByID(ctx, admin.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)

	require.NoError(t, f.svc.DeactivatePrincipal(ctx, admin, bob.ID))
	stored, err = f.store.FindPrincipalByID(ctx, bob.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive, "deactivation keeps the row")

	_, err = f.svc.Login(ctx, LoginRequest{Username: "bob", Password: "correct"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	assert.ErrorIs(t, f.svc.DeactivatePrincipal(ctx, admin, 4242), ErrPrincipalNotFound)
}

func TestSessions(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	admin := insertPrincipal(t, f.store, "admin", "correct", RoleManagement)
	bob := insertPrincipal(t, f.store, "bob", "correct", RoleDev)
	ctx := context.Background()

	first := f.login(t, "bob", "correct")
	f.login(t, "bob", "correct")

	sessions, err := f.svc.ListSessions(ctx, admin, bob.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	n, err := f.svc.RevokeSessions(ctx, admin, bob.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = f.svc.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	n, err = f.svc.RevokeSessions(ctx, admin, bob.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = f.svc.ListSessions(ctx, admin, 4242)
	assert.ErrorIs(t, err, ErrPrincipalNotFound)
	_, err = f.svc.RevokeSessions(ctx, admin, 4242)
	assert.ErrorIs(t, err, ErrPrincipalNotFound)
}
