package admin

import (
	"context"
	"sync"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
)

// LocalStrategyName is the name of the always-present credentials strategy.
const LocalStrategyName = "local"

// Credentials is the input to an authentication attempt. Local logins use
// Email/Password, federated logins carry the raw provider assertion.
type Credentials struct {
	Email     string
	Password  string
	Assertion string
}

// Strategy is a named authentication method. Attempt resolves the input to a
// local user or fails.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, creds Credentials) (*User, error)
}

// StrategyRegistry holds the named login strategies and composes them into a
// single authentication pipeline. The local strategy is always present;
// federated strategies are registered at startup when the SSO feature gate is
// enabled. Reads never observe a partially mutated strategy set.
type StrategyRegistry struct {
	mu          sync.RWMutex
	strategies  map[string]Strategy
	order       []string
	events      EventBus
	featureGate gate.FeatureGate
	logger      Logger
}

// RegistryOption customizes the registry.
type RegistryOption func(*StrategyRegistry)

// WithRegistryEventBus sets the bus auth events are emitted on.
func WithRegistryEventBus(bus EventBus) RegistryOption {
	return func(r *StrategyRegistry) {
		r.events = normalizeEventBus(bus)
	}
}

// WithRegistryFeatureGate sets the gate consulted before registering
// federated strategies.
func WithRegistryFeatureGate(g gate.FeatureGate) RegistryOption {
	return func(r *StrategyRegistry) {
		r.featureGate = g
	}
}

// WithRegistryLogger overrides the registry logger.
func WithRegistryLogger(l Logger) RegistryOption {
	return func(r *StrategyRegistry) {
		r.logger = normalizeLogger(l)
	}
}

// NewStrategyRegistry creates a registry seeded with the local strategy.
func NewStrategyRegistry(local Strategy, opts ...RegistryOption) *StrategyRegistry {
	r := &StrategyRegistry{
		strategies: map[string]Strategy{},
		events:     noopEventBus{},
		logger:     defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	r.strategies[LocalStrategyName] = local
	r.order = []string{LocalStrategyName}

	return r
}

// RegisterFederated adds a federated strategy. It is a no-op error when the
// SSO feature gate is disabled.
func (r *StrategyRegistry) RegisterFederated(ctx context.Context, s Strategy) error {
	if err := requireSSOGate(ctx, r.featureGate); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.strategies[s.Name()]; !exists {
		r.order = append(r.order, s.Name())
	}
	r.strategies[s.Name()] = s

	return nil
}

// Reload atomically replaces the federated strategy set, keeping the local
// strategy. Safe to call concurrently with in-flight authentication attempts.
func (r *StrategyRegistry) Reload(ctx context.Context, federated []Strategy) error {
	if len(federated) > 0 {
		if err := requireSSOGate(ctx, r.featureGate); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	local := r.strategies[LocalStrategyName]
	r.strategies = map[string]Strategy{LocalStrategyName: local}
	r.order = []string{LocalStrategyName}

	for _, s := range federated {
		if s == nil {
			continue
		}
		if _, exists := r.strategies[s.Name()]; !exists {
			r.order = append(r.order, s.Name())
		}
		r.strategies[s.Name()] = s
	}

	return nil
}

// Get returns the strategy registered under name.
func (r *StrategyRegistry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[name]
	return s, ok
}

// Names returns the registered strategy names in registration order.
func (r *StrategyRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Authenticate runs one authentication attempt against the named strategy.
// Every outcome emits an auth event; failures surface only the generic
// taxonomy errors, never internal detail.
func (r *StrategyRegistry) Authenticate(ctx context.Context, strategyName string, creds Credentials) (*User, error) {
	strategy, ok := r.Get(strategyName)
	if !ok {
		r.emitError(strategyName, ErrStrategyNotFound)
		return nil, ErrStrategyNotFound
	}

	user, err := strategy.Attempt(ctx, creds)
	if err != nil {
		r.emitError(strategyName, err)
		return nil, clientSafeAuthError(err)
	}

	r.events.Emit(EventAuthSuccess, AuthEventPayload{User: user, Provider: strategyName})

	return user, nil
}

func (r *StrategyRegistry) emitError(provider string, err error) {
	r.events.Emit(EventAuthError, AuthEventPayload{Provider: provider, Error: err})
}

// clientSafeAuthError maps internal failures to an opaque client-visible
// error. The audit event keeps the original.
func clientSafeAuthError(err error) error {
	var rich *errors.Error
	if errors.As(err, &rich) {
		switch rich.Category {
		case errors.CategoryAuth, errors.CategoryAuthz, errors.CategoryValidation, errors.CategoryNotFound:
			return err
		}
	}
	return errors.New("An error occurred during authentication", errors.CategoryInternal)
}
