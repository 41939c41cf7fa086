package admin

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// RegisterAdminMessage bootstraps the very first super admin. It is only
// valid while no admin user exists.
type RegisterAdminMessage struct {
	Firstname  string `json:"firstname"`
	Lastname   string `json:"lastname"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	OnResponse func(resp *RegisterAdminResponse)
}

func (m RegisterAdminMessage) Type() string { return "admin.register_admin" }

// RegisterAdminResponse carries the created user and their session token.
type RegisterAdminResponse struct {
	User  *User
	Token string
}

// RegisterAdminHandler executes the bootstrap registration.
type RegisterAdminHandler struct {
	manager   *UserManager
	roles     RoleStore
	tokens    TokenService
	telemetry Telemetry
}

// NewRegisterAdminHandler creates a RegisterAdminHandler.
func NewRegisterAdminHandler(manager *UserManager, roles RoleStore, tokens TokenService) *RegisterAdminHandler {
	return &RegisterAdminHandler{
		manager:   manager,
		roles:     roles,
		tokens:    tokens,
		telemetry: noopTelemetry{},
	}
}

func (h *RegisterAdminHandler) WithTelemetry(t Telemetry) *RegisterAdminHandler {
	h.telemetry = normalizeTelemetry(t)
	return h
}

func (h *RegisterAdminHandler) Execute(ctx context.Context, event RegisterAdminMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during admin registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterAdminHandler) execute(ctx context.Context, event RegisterAdminMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := ValidatePasswordStrength(event.Password); err != nil {
		return err
	}

	hasAdmin, err := h.manager.Exists(ctx, UserFilter{})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check for existing admins")
	}
	if hasAdmin {
		return ErrAdminAlreadyExists
	}

	superAdmin, err := h.roles.FindByCode(ctx, SuperAdminCode)
	if err != nil || superAdmin == nil {
		return ErrMissingSuperAdminRole
	}

	user, err := h.manager.Create(ctx, CreateUserInput{
		Firstname: event.Firstname,
		Lastname:  event.Lastname,
		Email:     event.Email,
		Password:  event.Password,
		RoleIDs:   []uuid.UUID{superAdmin.ID},
		IsActive:  true,
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create first admin")
	}

	h.telemetry.Send(ctx, "didCreateFirstAdmin", nil)

	token, err := h.tokens.CreateToken(TokenPayload{ID: user.ID})
	if err != nil {
		return err
	}

	if event.OnResponse != nil {
		event.OnResponse(&RegisterAdminResponse{User: user, Token: token})
	}

	return nil
}
