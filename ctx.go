package admin

import "context"

var userCtxKey = &contextKey{"user"}
var abilityCtxKey = &contextKey{"ability"}

type contextKey struct {
	name string
}

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok
}

// WithAbilityContext sets the Ability in the given context
func WithAbilityContext(r context.Context, ability *Ability) context.Context {
	return context.WithValue(r, abilityCtxKey, ability)
}

// AbilityFromContext extracts the Ability from the standard context
func AbilityFromContext(ctx context.Context) (*Ability, bool) {
	raw, ok := ctx.Value(abilityCtxKey).(*Ability)
	return raw, ok
}

// Can is a convenience function to check permissions directly from the
// standard context. Without an ability in the context it denies.
func Can(ctx context.Context, action, subject string, conditionContext ...string) bool {
	ability, ok := AbilityFromContext(ctx)
	if !ok {
		return false
	}
	return ability.Can(action, subject, conditionContext...)
}
