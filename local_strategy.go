package admin

import "context"

// LocalStrategy authenticates email/password credentials through the
// CredentialValidator.
type LocalStrategy struct {
	validator *CredentialValidator
}

// NewLocalStrategy creates the local credentials strategy.
func NewLocalStrategy(validator *CredentialValidator) *LocalStrategy {
	return &LocalStrategy{validator: validator}
}

// Name implements Strategy.
func (s *LocalStrategy) Name() string {
	return LocalStrategyName
}

// Attempt implements Strategy.
func (s *LocalStrategy) Attempt(ctx context.Context, creds Credentials) (*User, error) {
	return s.validator.CheckCredentials(ctx, creds.Email, creds.Password)
}

var _ Strategy = (*LocalStrategy)(nil)
