package admin

import (
	"context"

	"github.com/goliatone/go-errors"
)

// CredentialValidator verifies email/password pairs against stored hashes.
type CredentialValidator struct {
	users  UserStore
	logger Logger
}

// NewCredentialValidator creates a CredentialValidator backed by the given
// user store.
func NewCredentialValidator(users UserStore) *CredentialValidator {
	return &CredentialValidator{
		users:  users,
		logger: defLogger{},
	}
}

func (v *CredentialValidator) WithLogger(l Logger) *CredentialValidator {
	v.logger = normalizeLogger(l)
	return v
}

// CheckCredentials looks up the user by email and verifies the password.
// Unknown email and wrong password both return ErrInvalidCredentials so the
// two cases are indistinguishable; ErrInactiveUser is returned only after
// the credentials matched.
func (v *CredentialValidator) CheckCredentials(ctx context.Context, email, password string) (*User, error) {
	user, err := v.users.FindOne(ctx, UserFilter{Email: email}, true)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user during credential check")
	}

	if user == nil || user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.IsActive {
		return nil, ErrInactiveUser
	}

	return user, nil
}
