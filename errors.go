package admin

import "github.com/goliatone/go-errors"

const (
	TextCodeInvalidCredentials   = "invalid_credentials"
	TextCodeInactiveUser         = "inactive_user"
	TextCodeInvalidToken         = "invalid_token"
	TextCodeInvalidRegistration  = "invalid_registration_token"
	TextCodeLastSuperAdmin       = "last_super_admin"
	TextCodeWeakPassword         = "weak_password"
	TextCodeDuplicateEmail       = "duplicate_email"
	TextCodeProviderMisconfig    = "provider_misconfigured"
	TextCodeConnectionFailure    = "connection_failure"
	TextCodeStrategyNotFound     = "strategy_not_found"
	TextCodeSSODisabled          = "sso_disabled"
	TextCodeAdminAlreadyExists   = "admin_already_exists"
	TextCodeMissingSuperAdmin    = "missing_super_admin_role"
	TextCodeDefaultRoleProtected = "default_sso_role_protected"
)

// ErrInvalidCredentials covers both unknown email and wrong password. The two
// cases must stay byte-identical to avoid user enumeration.
var ErrInvalidCredentials = errors.New("Invalid credentials", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrInactiveUser is returned only after a credential match against a
// deactivated account.
var ErrInactiveUser = errors.New("User not active", errors.CategoryAuth).
	WithTextCode(TextCodeInactiveUser).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidToken is returned for malformed, expired or signature-mismatched
// session tokens.
var ErrInvalidToken = errors.New("Invalid token", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidRegistrationToken is returned when a registration token does not
// match any pending invitation.
var ErrInvalidRegistrationToken = errors.New("Invalid registration info", errors.CategoryBadInput).
	WithTextCode(TextCodeInvalidRegistration).
	WithCode(errors.CodeBadRequest)

// ErrInvalidResetToken is returned when a password-reset token does not match
// any active user.
var ErrInvalidResetToken = errors.New("Invalid reset token", errors.CategoryBadInput).
	WithTextCode("invalid_reset_token").
	WithCode(errors.CodeBadRequest)

// ErrLastSuperAdmin is returned by any mutation that would leave the system
// without an active super admin.
var ErrLastSuperAdmin = errors.New("You must have at least one user with super admin role", errors.CategoryValidation).
	WithTextCode(TextCodeLastSuperAdmin).
	WithCode(errors.CodeBadRequest)

// ErrWeakPassword is returned when a password fails the strength policy.
var ErrWeakPassword = errors.New("Invalid password. Expected a minimum of 8 characters with at least one number and one uppercase letter", errors.CategoryValidation).
	WithTextCode(TextCodeWeakPassword).
	WithCode(errors.CodeBadRequest)

// ErrDuplicateEmail is returned when a user with the given email already exists.
var ErrDuplicateEmail = errors.New("Email already taken", errors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail).
	WithCode(errors.CodeConflict)

// ErrProviderMisconfigured signals a broken federated-login configuration,
// e.g. a default role that no longer exists. Never shown to clients: callers
// surface ErrConnectionFailure instead.
var ErrProviderMisconfigured = errors.New("federated provider misconfigured", errors.CategoryInternal).
	WithTextCode(TextCodeProviderMisconfig)

// ErrConnectionFailure is the single generic failure surfaced to clients for
// every rejected federated login, whatever the internal cause.
var ErrConnectionFailure = errors.New("Invalid connection payload", errors.CategoryAuth).
	WithTextCode(TextCodeConnectionFailure).
	WithCode(errors.CodeUnauthorized)

// ErrStrategyNotFound is returned when an authentication attempt names an
// unregistered strategy.
var ErrStrategyNotFound = errors.New("authentication strategy not found", errors.CategoryNotFound).
	WithTextCode(TextCodeStrategyNotFound).
	WithCode(errors.CodeNotFound)

// ErrSSODisabled is returned when federated login is attempted while the
// feature gate is off.
var ErrSSODisabled = errors.New("sso is not enabled", errors.CategoryAuthz).
	WithTextCode(TextCodeSSODisabled).
	WithCode(errors.CodeForbidden)

// ErrAdminAlreadyExists rejects a bootstrap registration once any admin
// user exists.
var ErrAdminAlreadyExists = errors.New("You cannot register a new super admin", errors.CategoryValidation).
	WithTextCode(TextCodeAdminAlreadyExists).
	WithCode(errors.CodeBadRequest)

// ErrMissingSuperAdminRole signals that the reserved super-admin role is
// absent from the role store. This is a deployment defect.
var ErrMissingSuperAdminRole = errors.New("the super admin role does not exist", errors.CategoryInternal).
	WithTextCode(TextCodeMissingSuperAdmin)

// ErrDefaultRoleProtected rejects deletion of the role currently configured
// as the default SSO role.
var ErrDefaultRoleProtected = errors.New("This role is used as the default SSO role. Make sure to change this configuration before deleting the role", errors.CategoryValidation).
	WithTextCode(TextCodeDefaultRoleProtected).
	WithCode(errors.CodeBadRequest)

// IsValidationError reports whether err carries the validation category used
// for invariant violations (last super admin, weak password).
func IsValidationError(err error) bool {
	var rich *errors.Error
	if !errors.As(err, &rich) {
		return false
	}
	return rich.Category == errors.CategoryValidation
}
