package admin_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	admin "github.com/siapi-biru/siapi-admin"
)

// fakeStrategy is a scriptable authentication strategy.
type fakeStrategy struct {
	name string
	user *admin.User
	err  error
}

func (s fakeStrategy) Name() string { return s.name }

func (s fakeStrategy) Attempt(context.Context, admin.Credentials) (*admin.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.user, nil
}

func newLocalStrategy(f *fixture) *admin.LocalStrategy {
	return admin.NewLocalStrategy(admin.NewCredentialValidator(f.userStore()))
}

func TestStrategyRegistry_LocalAuthentication(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	bus := &recordingBus{}

	seedUser(t, f, "kai@example.com", "Password1", true)

	registry := admin.NewStrategyRegistry(newLocalStrategy(f),
		admin.WithRegistryEventBus(bus),
	)

	user, err := registry.Authenticate(ctx, admin.LocalStrategyName, admin.Credentials{
		Email:    "kai@example.com",
		Password: "Password1",
	})
	require.NoError(t, err)
	assert.Equal(t, "kai@example.com", user.Email)

	success := bus.named(admin.EventAuthSuccess)
	require.Len(t, success, 1)
	assert.Equal(t, admin.LocalStrategyName, success[0].payload.Provider)
	assert.Equal(t, user.ID, success[0].payload.User.ID)
}

func TestStrategyRegistry_FailedAttemptEmitsError(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	bus := &recordingBus{}

	seedUser(t, f, "kai@example.com", "Password1", true)

	registry := admin.NewStrategyRegistry(newLocalStrategy(f),
		admin.WithRegistryEventBus(bus),
	)

	_, err := registry.Authenticate(ctx, admin.LocalStrategyName, admin.Credentials{
		Email:    "kai@example.com",
		Password: "WrongPassword1",
	})
	assert.ErrorIs(t, err, admin.ErrInvalidCredentials)

	failed := bus.named(admin.EventAuthError)
	require.Len(t, failed, 1)
	assert.Equal(t, admin.LocalStrategyName, failed[0].payload.Provider)
	assert.Error(t, failed[0].payload.Error)
}

func TestStrategyRegistry_UnknownStrategy(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	bus := &recordingBus{}

	registry := admin.NewStrategyRegistry(newLocalStrategy(f),
		admin.WithRegistryEventBus(bus),
	)

	_, err := registry.Authenticate(ctx, "saml", admin.Credentials{})
	assert.ErrorIs(t, err, admin.ErrStrategyNotFound)

	failed := bus.named(admin.EventAuthError)
	require.Len(t, failed, 1)
	assert.Equal(t, "saml", failed[0].payload.Provider)
}

func TestStrategyRegistry_InternalErrorsAreMasked(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	bus := &recordingBus{}

	registry := admin.NewStrategyRegistry(newLocalStrategy(f),
		admin.WithRegistryEventBus(bus),
	)

	dbErr := stderrors.New("pq: connection refused")
	require.NoError(t, registry.Reload(ctx, nil))

	broken := fakeStrategy{name: "broken", err: dbErr}
	registry = admin.NewStrategyRegistry(broken, admin.WithRegistryEventBus(bus))

	_, err := registry.Authenticate(ctx, "broken", admin.Credentials{})
	require.Error(t, err)

	// The client never sees the backend failure detail.
	assert.NotContains(t, err.Error(), "connection refused")

	var rich *goerrors.Error
	require.ErrorAs(t, err, &rich)
	assert.Equal(t, goerrors.CategoryInternal, rich.Category)

	// The audit event keeps the original error.
	failed := bus.named(admin.EventAuthError)
	require.NotEmpty(t, failed)
	assert.ErrorIs(t, failed[len(failed)-1].payload.Error, dbErr)
}

func TestStrategyRegistry_FederatedRegistrationGated(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	federated := fakeStrategy{name: "okta", user: &admin.User{Email: "kai@example.com"}}

	t.Run("gate disabled", func(t *testing.T) {
		registry := admin.NewStrategyRegistry(newLocalStrategy(f),
			admin.WithRegistryFeatureGate(stubGate{enabled: false}),
		)

		err := registry.RegisterFederated(ctx, federated)
		assert.ErrorIs(t, err, admin.ErrSSODisabled)

		_, ok := registry.Get("okta")
		assert.False(t, ok)
	})

	t.Run("gate enabled", func(t *testing.T) {
		registry := admin.NewStrategyRegistry(newLocalStrategy(f),
			admin.WithRegistryFeatureGate(stubGate{enabled: true}),
		)

		require.NoError(t, registry.RegisterFederated(ctx, federated))

		_, ok := registry.Get("okta")
		assert.True(t, ok)
		assert.Equal(t, []string{admin.LocalStrategyName, "okta"}, registry.Names())
	})
}

func TestStrategyRegistry_Reload(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	registry := admin.NewStrategyRegistry(newLocalStrategy(f),
		admin.WithRegistryFeatureGate(stubGate{enabled: true}),
	)

	require.NoError(t, registry.RegisterFederated(ctx, fakeStrategy{name: "okta"}))
	require.NoError(t, registry.RegisterFederated(ctx, fakeStrategy{name: "azure"}))

	// Replacing the set drops strategies that are not named again.
	require.NoError(t, registry.Reload(ctx, []admin.Strategy{fakeStrategy{name: "okta"}}))

	assert.Equal(t, []string{admin.LocalStrategyName, "okta"}, registry.Names())

	_, ok := registry.Get("azure")
	assert.False(t, ok)

	t.Run("empty reload keeps local", func(t *testing.T) {
		require.NoError(t, registry.Reload(ctx, nil))
		assert.Equal(t, []string{admin.LocalStrategyName}, registry.Names())

		_, ok := registry.Get(admin.LocalStrategyName)
		assert.True(t, ok)
	})

	t.Run("reload with federated strategies consults the gate", func(t *testing.T) {
		gated := admin.NewStrategyRegistry(newLocalStrategy(f),
			admin.WithRegistryFeatureGate(stubGate{enabled: false}),
		)

		err := gated.Reload(ctx, []admin.Strategy{fakeStrategy{name: "okta"}})
		assert.ErrorIs(t, err, admin.ErrSSODisabled)
	})
}

func TestStrategyRegistry_ConcurrentReloadAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	seedUser(t, f, "kai@example.com", "Password1", true)

	registry := admin.NewStrategyRegistry(newLocalStrategy(f),
		admin.WithRegistryFeatureGate(stubGate{enabled: true}),
	)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)

		go func(i int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				strategies := []admin.Strategy{
					fakeStrategy{name: fmt.Sprintf("provider-%d", i)},
				}
				_ = registry.Reload(ctx, strategies)
			}
		}(i)

		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				// The local strategy must stay resolvable through every
				// reload.
				user, err := registry.Authenticate(ctx, admin.LocalStrategyName, admin.Credentials{
					Email:    "kai@example.com",
					Password: "Password1",
				})
				assert.NoError(t, err)
				assert.NotNil(t, user)
			}
		}()
	}
	wg.Wait()
}
