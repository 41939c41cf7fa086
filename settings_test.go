package admin_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	admin "github.com/siapi-biru/siapi-admin"
)

func TestCheckRolesBeforeDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("no default role configured", func(t *testing.T) {
		f := newFixture()

		err := admin.CheckRolesBeforeDelete(ctx, f.settings(), []uuid.UUID{uuid.New()})
		assert.NoError(t, err)
	})

	t.Run("unrelated roles may be deleted", func(t *testing.T) {
		f := newFixture()
		defaultRole := uuid.New()
		f.opts = &admin.ProviderOptions{AutoRegister: true, DefaultRole: &defaultRole}

		err := admin.CheckRolesBeforeDelete(ctx, f.settings(), []uuid.UUID{uuid.New(), uuid.New()})
		assert.NoError(t, err)
	})

	t.Run("the default SSO role is protected", func(t *testing.T) {
		f := newFixture()
		defaultRole := uuid.New()
		f.opts = &admin.ProviderOptions{AutoRegister: true, DefaultRole: &defaultRole}

		err := admin.CheckRolesBeforeDelete(ctx, f.settings(), []uuid.UUID{uuid.New(), defaultRole})
		assert.ErrorIs(t, err, admin.ErrDefaultRoleProtected)
	})
}

func TestProviderOptionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	store := f.settings()

	defaultRole := uuid.New()
	in := &admin.ProviderOptions{
		AutoRegister: true,
		DefaultRole:  &defaultRole,
		Providers:    []string{"okta"},
	}

	require.NoError(t, store.SetProviderOptions(ctx, in))

	out, err := store.GetProviderOptions(ctx)
	require.NoError(t, err)

	assert.True(t, out.AutoRegister)
	require.NotNil(t, out.DefaultRole)
	assert.Equal(t, defaultRole, *out.DefaultRole)
	assert.Equal(t, []string{"okta"}, out.Providers)
}
