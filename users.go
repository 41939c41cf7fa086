package admin

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// TxRunner serializes a read-count-then-write sequence against the backing
// store. Implementations run fn inside a transaction; stores resolve the
// transaction from ctx. The super-admin invariant checks are only safe under
// a runner that provides this guarantee.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TxRunnerFunc adapts a function to the TxRunner interface.
type TxRunnerFunc func(ctx context.Context, fn func(ctx context.Context) error) error

// RunInTx implements TxRunner.
func (f TxRunnerFunc) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if f == nil {
		return fn(ctx)
	}
	return f(ctx, fn)
}

type passthroughTxRunner struct{}

func (passthroughTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// CreateUserInput is a partial user used for invitations and registrations.
type CreateUserInput struct {
	Firstname string
	Lastname  string
	Username  string
	Email     string
	Phone     string
	Password  string
	RoleIDs   []uuid.UUID
	// IsActive is true for bootstrap and just-in-time registrations; invited
	// users stay inactive until they redeem their registration token.
	IsActive bool
	// UseHashid derives a deterministic user id from the email.
	UseHashid bool
}

// UpdateUserInput is a partial update. Nil fields are left untouched.
type UpdateUserInput struct {
	Firstname *string
	Lastname  *string
	Username  *string
	Email     *string
	Phone     *string
	Password  *string
	IsActive  *bool
	RoleIDs   []uuid.UUID
}

// RegisterInput redeems a registration token.
type RegisterInput struct {
	RegistrationToken string
	UserInfo          RegisterUserInfo
}

// RegisterUserInfo carries the fields a user completes during registration.
type RegisterUserInfo struct {
	Firstname string
	Lastname  string
	Password  string
}

// RegistrationInfo is the public projection of a pending invitation.
type RegistrationInfo struct {
	Email     string `json:"email"`
	Firstname string `json:"firstname,omitempty"`
	Lastname  string `json:"lastname,omitempty"`
}

// UserManager implements the admin user lifecycle: invitations, updates,
// deletions and registration, enforcing the rule that at least one active
// user always holds the super-admin role.
type UserManager struct {
	users     UserStore
	roles     RoleStore
	tokens    TokenService
	tx        TxRunner
	telemetry Telemetry
	logger    Logger
}

// NewUserManager creates a UserManager.
func NewUserManager(users UserStore, roles RoleStore, tokens TokenService) *UserManager {
	return &UserManager{
		users:     users,
		roles:     roles,
		tokens:    tokens,
		tx:        passthroughTxRunner{},
		telemetry: noopTelemetry{},
		logger:    defLogger{},
	}
}

// WithTxRunner sets the transaction runner used by invariant-sensitive
// mutations. Without one the check-then-write is not serialized against
// concurrent writers.
func (m *UserManager) WithTxRunner(tx TxRunner) *UserManager {
	if tx != nil {
		m.tx = tx
	}
	return m
}

func (m *UserManager) WithTelemetry(t Telemetry) *UserManager {
	m.telemetry = normalizeTelemetry(t)
	return m
}

func (m *UserManager) WithLogger(l Logger) *UserManager {
	m.logger = normalizeLogger(l)
	return m
}

// Store exposes the underlying user store for collaborators that operate
// below the lifecycle rules, like the password reset flow.
func (m *UserManager) Store() UserStore {
	return m.users
}

// Create persists a new admin user. Inactive users get a single-use
// registration token; passwords are hashed before they reach the store.
func (m *UserManager) Create(ctx context.Context, input CreateUserInput) (*User, error) {
	user := &User{
		Firstname: input.Firstname,
		Lastname:  input.Lastname,
		Username:  input.Username,
		Email:     input.Email,
		Phone:     input.Phone,
		IsActive:  input.IsActive,
	}

	if input.UseHashid {
		if id, err := hashid.NewUUID(input.Email); err == nil {
			user.ID = id
		}
	}

	if !input.IsActive {
		token, err := m.tokens.CreateOpaqueToken()
		if err != nil {
			return nil, err
		}
		user.RegistrationToken = &token
	}

	if input.Password != "" {
		hash, err := HashPassword(input.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}

	for _, roleID := range input.RoleIDs {
		user.Roles = append(user.Roles, &Role{ID: roleID})
	}

	created, err := m.users.Create(ctx, user)
	if err != nil {
		return nil, err
	}

	m.sendDidInviteUser(ctx)

	return created, nil
}

// UpdateByID applies a partial update. Role or activation changes that would
// leave the system without an active super admin fail with a validation
// error and mutate nothing; the check and the write share one transaction.
func (m *UserManager) UpdateByID(ctx context.Context, id uuid.UUID, input UpdateUserInput) (*User, error) {
	var updated *User

	err := m.tx.RunInTx(ctx, func(ctx context.Context) error {
		if input.RoleIDs != nil {
			lastAdmin, err := m.IsLastSuperAdmin(ctx, id)
			if err != nil {
				return err
			}

			superAdmin, err := m.roles.GetSuperAdminWithUserCount(ctx)
			if err != nil {
				return err
			}

			if lastAdmin && !containsID(input.RoleIDs, superAdmin.Role.ID) {
				return ErrLastSuperAdmin
			}
		}

		if input.IsActive != nil && !*input.IsActive {
			lastAdmin, err := m.IsLastSuperAdmin(ctx, id)
			if err != nil {
				return err
			}
			if lastAdmin {
				return ErrLastSuperAdmin
			}
		}

		patch := UserPatch{
			Firstname: input.Firstname,
			Lastname:  input.Lastname,
			Username:  input.Username,
			Email:     input.Email,
			Phone:     input.Phone,
			IsActive:  input.IsActive,
			RoleIDs:   input.RoleIDs,
		}

		if input.Password != nil {
			hash, err := HashPassword(*input.Password)
			if err != nil {
				return err
			}
			patch.PasswordHash = &hash
		}

		var err error
		updated, err = m.users.Update(ctx, id, patch)
		return err
	})

	if err != nil {
		return nil, err
	}

	return updated, nil
}

// DeleteByID removes a single user unless they are the last super admin.
func (m *UserManager) DeleteByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var deleted *User

	err := m.tx.RunInTx(ctx, func(ctx context.Context) error {
		user, err := m.users.FindOne(ctx, UserFilter{ID: &id}, true)
		if err != nil {
			return err
		}

		if user.HasSuperAdminRole() {
			superAdmin, err := m.roles.GetSuperAdminWithUserCount(ctx)
			if err != nil {
				return err
			}
			if superAdmin.UsersCount == 1 {
				return ErrLastSuperAdmin
			}
		}

		removed, err := m.users.Delete(ctx, UserFilter{ID: &id})
		if err != nil {
			return err
		}
		if len(removed) > 0 {
			deleted = removed[0]
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return deleted, nil
}

// DeleteByIDs removes a batch of users. If the batch would eliminate every
// super admin the whole batch fails and nothing is deleted.
func (m *UserManager) DeleteByIDs(ctx context.Context, ids []uuid.UUID) ([]*User, error) {
	var deleted []*User

	err := m.tx.RunInTx(ctx, func(ctx context.Context) error {
		superAdmin, err := m.roles.GetSuperAdminWithUserCount(ctx)
		if err != nil {
			return err
		}

		toDelete, err := m.users.CountSuperAdminsIn(ctx, ids)
		if err != nil {
			return err
		}

		if superAdmin.UsersCount == toDelete {
			return ErrLastSuperAdmin
		}

		deleted, err = m.users.Delete(ctx, UserFilter{IDs: ids})
		return err
	})

	if err != nil {
		return nil, err
	}

	return deleted, nil
}

// Register redeems a one-time registration token: sets names and password,
// activates the account and voids the token so it cannot be replayed.
func (m *UserManager) Register(ctx context.Context, input RegisterInput) (*User, error) {
	if err := ValidatePasswordStrength(input.UserInfo.Password); err != nil {
		return nil, err
	}

	user, err := m.users.FindOne(ctx, UserFilter{RegistrationToken: input.RegistrationToken}, false)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrInvalidRegistrationToken
		}
		return nil, err
	}

	hash, err := HashPassword(input.UserInfo.Password)
	if err != nil {
		return nil, err
	}

	active := true
	var noToken *string

	return m.users.Update(ctx, user.ID, UserPatch{
		Firstname:         &input.UserInfo.Firstname,
		Lastname:          &input.UserInfo.Lastname,
		PasswordHash:      &hash,
		IsActive:          &active,
		RegistrationToken: &noToken,
	})
}

// ResetPasswordByEmail sets a new password for the user with the given email
// after checking the strength policy. Administrative path, used by the
// reset CLI.
func (m *UserManager) ResetPasswordByEmail(ctx context.Context, email, password string) error {
	user, err := m.users.FindOne(ctx, UserFilter{Email: email}, false)
	if err != nil {
		if errors.IsNotFound(err) {
			return errors.New("user not found for email: "+email, errors.CategoryNotFound)
		}
		return err
	}

	if err := ValidatePasswordStrength(password); err != nil {
		return err
	}

	_, err = m.UpdateByID(ctx, user.ID, UpdateUserInput{Password: &password})
	return err
}

// IsLastSuperAdmin reports whether the given user is the only member of the
// super-admin role.
func (m *UserManager) IsLastSuperAdmin(ctx context.Context, id uuid.UUID) (bool, error) {
	user, err := m.users.FindOne(ctx, UserFilter{ID: &id}, true)
	if err != nil {
		if errors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	superAdmin, err := m.roles.GetSuperAdminWithUserCount(ctx)
	if err != nil {
		return false, err
	}

	return superAdmin.UsersCount == 1 && user.HasSuperAdminRole(), nil
}

// Exists reports whether any user matches the filter.
func (m *UserManager) Exists(ctx context.Context, filter UserFilter) (bool, error) {
	count, err := m.users.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Count counts users matching the filter.
func (m *UserManager) Count(ctx context.Context, filter UserFilter) (int, error) {
	return m.users.Count(ctx, filter)
}

// FindOne returns a single user matching the filter.
func (m *UserManager) FindOne(ctx context.Context, filter UserFilter, populateRoles bool) (*User, error) {
	return m.users.FindOne(ctx, filter, populateRoles)
}

// FindRegistrationInfo returns the pending invitation matching the token, or
// nil when the token is unknown.
func (m *UserManager) FindRegistrationInfo(ctx context.Context, registrationToken string) (*RegistrationInfo, error) {
	user, err := m.users.FindOne(ctx, UserFilter{RegistrationToken: registrationToken}, false)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	return &RegistrationInfo{
		Email:     user.Email,
		Firstname: user.Firstname,
		Lastname:  user.Lastname,
	}, nil
}

func (m *UserManager) sendDidInviteUser(ctx context.Context) {
	numberOfUsers, err := m.users.Count(ctx, UserFilter{})
	if err != nil {
		m.logger.Warn("telemetry user count failed: %v", err)
		return
	}

	numberOfRoles, err := m.roles.Count(ctx)
	if err != nil {
		m.logger.Warn("telemetry role count failed: %v", err)
		return
	}

	m.telemetry.Send(ctx, "didInviteUser", map[string]any{
		"numberOfUsers": numberOfUsers,
		"numberOfRoles": numberOfRoles,
	})
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
