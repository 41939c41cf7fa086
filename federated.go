package admin

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// FederatedProvider turns an external-provider assertion (an authorization
// code exchange result, an ID token) into a normalized profile.
type FederatedProvider interface {
	Name() string
	Profile(ctx context.Context, assertion string) (Profile, error)
}

// FederatedResolver maps a successful external-provider profile to a local
// user: either an existing account or a just-in-time registration under the
// configured policy. Every rejection collapses to the same generic
// connection error so providers stay indistinguishable to outside observers;
// the precise cause travels as error metadata for the audit trail.
type FederatedResolver struct {
	manager  *UserManager
	roles    RoleStore
	settings SettingsStore
	events   EventBus
	logger   Logger
}

// NewFederatedResolver creates a FederatedResolver.
func NewFederatedResolver(manager *UserManager, roles RoleStore, settings SettingsStore) *FederatedResolver {
	return &FederatedResolver{
		manager:  manager,
		roles:    roles,
		settings: settings,
		events:   noopEventBus{},
		logger:   defLogger{},
	}
}

func (r *FederatedResolver) WithEventBus(bus EventBus) *FederatedResolver {
	r.events = normalizeEventBus(bus)
	return r
}

func (r *FederatedResolver) WithLogger(l Logger) *FederatedResolver {
	r.logger = normalizeLogger(l)
	return r
}

// Resolve returns the local user for the given provider profile.
func (r *FederatedResolver) Resolve(ctx context.Context, provider string, profile Profile) (*User, error) {
	if profile.Email == "" {
		return nil, connectionError("profile has no email")
	}

	user, err := r.manager.FindOne(ctx, UserFilter{Email: profile.Email}, true)
	if err != nil && !errors.IsNotFound(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up federated user")
	}

	if user != nil {
		return r.existingUser(user)
	}

	return r.registerUser(ctx, provider, profile)
}

func (r *FederatedResolver) existingUser(user *User) (*User, error) {
	if !user.IsActive {
		return nil, connectionError("deactivated user tried to login (" + user.ID.String() + ")")
	}
	return user, nil
}

func (r *FederatedResolver) registerUser(ctx context.Context, provider string, profile Profile) (*User, error) {
	opts, err := r.settings.GetProviderOptions(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load federated login settings")
	}

	if !opts.AutoRegister || opts.DefaultRole == nil || !profile.HasRegistrationInfo() {
		return nil, connectionError("auto registration rejected by policy")
	}

	defaultRole, err := r.roles.FindOne(ctx, *opts.DefaultRole)
	if err != nil || defaultRole == nil {
		// Misconfigured default role degrades to denial, never to detail.
		r.logger.Error("federated default role %s is misconfigured: %v", opts.DefaultRole, err)
		return nil, connectionError("default role is misconfigured")
	}

	user, err := r.manager.Create(ctx, CreateUserInput{
		Email:     profile.Email,
		Username:  profile.Username,
		Firstname: profile.Firstname,
		Lastname:  profile.Lastname,
		RoleIDs:   []uuid.UUID{defaultRole.ID},
		IsActive:  true,
		UseHashid: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to auto-register federated user")
	}

	r.events.Emit(EventAuthAutoRegistration, AuthEventPayload{User: user, Provider: provider})

	return user, nil
}

func connectionError(cause string) error {
	return ErrConnectionFailure.Clone().WithMetadata(map[string]any{"cause": cause})
}

// FederatedStrategy adapts a FederatedProvider plus the resolver into a
// registry strategy.
type FederatedStrategy struct {
	provider FederatedProvider
	resolver *FederatedResolver
}

// NewFederatedStrategy creates a strategy for the given provider.
func NewFederatedStrategy(provider FederatedProvider, resolver *FederatedResolver) *FederatedStrategy {
	return &FederatedStrategy{provider: provider, resolver: resolver}
}

// Name implements Strategy.
func (s *FederatedStrategy) Name() string {
	return s.provider.Name()
}

// Attempt implements Strategy.
func (s *FederatedStrategy) Attempt(ctx context.Context, creds Credentials) (*User, error) {
	profile, err := s.provider.Profile(ctx, creds.Assertion)
	if err != nil {
		return nil, connectionError(err.Error())
	}
	return s.resolver.Resolve(ctx, s.provider.Name(), profile)
}

var _ Strategy = (*FederatedStrategy)(nil)
