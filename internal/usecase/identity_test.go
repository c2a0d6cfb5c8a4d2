package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verilab/verilab/internal/domain"
)

func (f *fixture) seedTenant(t *testing.T) (domain.Tenant, domain.User) {
	t.Helper()
	tenant, admin, err := f.identity.CreateTenantWithAdmin(context.Background(),
		"Acme Diagnostics", "acme", "admin@acme.test", "Acme Admin", "correct horse")
	require.NoError(t, err)
	return tenant, admin
}

func TestCreateTenantWithAdmin_SeedsRules(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	tenant, admin := f.seedTenant(t)

	assert.Equal(t, "acme", tenant.Slug)
	assert.Equal(t, domain.RoleAdmin, admin.Role)
	assert.Empty(t, admin.PasswordHash)

	rules, err := f.settings.ListRules(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.Len(t, rules, 4)
}

func TestCreateTenantWithAdmin_ShortPassword(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	_, _, err := f.identity.CreateTenantWithAdmin(context.Background(),
		"Acme", "acme", "admin@acme.test", "Acme Admin", "short")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestLogin_RoundTrip(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	tenant, admin := f.seedTenant(t)
	ctx := context.Background()

	token, user, err := f.identity.Login(ctx, "acme", "admin@acme.test", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, user.ID)
	assert.Empty(t, user.PasswordHash)

	ident, err := f.identity.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, ident.TenantID)
	assert.Equal(t, admin.ID, ident.UserID)
	assert.Equal(t, domain.RoleAdmin, ident.Role)

	me, err := f.identity.Me(ctx, ident)
	require.NoError(t, err)
	assert.Equal(t, "admin@acme.test", me.Email)
	assert.Empty(t, me.PasswordHash)
}

func TestLogin_FailuresCollapseToUnauthorized(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	f.seedTenant(t)
	ctx := context.Background()

	for _, tc := range []struct {
		name                  string
		slug, email, password string
	}{
		{"wrong password", "acme", "admin@acme.test", "wrong"},
		{"unknown email", "acme", "nobody@acme.test", "correct horse"},
		{"unknown tenant", "nope", "admin@acme.test", "correct horse"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := f.identity.Login(ctx, tc.slug, tc.email, tc.password)
			assert.ErrorIs(t, err, domain.ErrUnauthorized)
		})
	}
}

func TestAuthenticate_GarbageToken(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	_, err := f.identity.Authenticate(context.Background(), "not.a.jwt")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAuthenticate_WrongKeyRejected(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	f.seedTenant(t)
	ctx := context.Background()

	token, _, err := f.identity.Login(ctx, "acme", "admin@acme.test", "correct horse")
	require.NoError(t, err)

	other := defaultFixture(t) // different store, same secret default
	other.identity.SecretKey = []byte("some-other-secret")
	_, err = other.identity.Authenticate(ctx, token)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestCreateUser_DuplicateEmailConflicts(t *testing.T) {
	t.Parallel()
	f := defaultFixture(t)
	tenant, _ := f.seedTenant(t)
	ctx := context.Background()

	u, err := f.identity.CreateUser(ctx, tenant.ID, "tech@acme.test", "Tech One", "password1", domain.RoleTechnician)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleTechnician, u.Role)

	// Email uniqueness is case-insensitive.
	_, err = f.identity.CreateUser(ctx, tenant.ID, "TECH@acme.test", "Tech Two", "password2", domain.RoleTechnician)
	assert.ErrorIs(t, err, domain.ErrConflict)
}
