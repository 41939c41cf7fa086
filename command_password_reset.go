package admin

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// ForgotPasswordMessage starts a password reset for the given email. The
// flow reveals nothing about whether the email exists.
type ForgotPasswordMessage struct {
	Email string `json:"email"`
}

func (m ForgotPasswordMessage) Type() string { return "admin.password_reset_init" }

// ForgotPasswordHandler stores a single-use reset token and mails the reset
// link. Mailer failures are logged server side and never disclosed.
type ForgotPasswordHandler struct {
	users    UserStore
	tokens   TokenService
	mailer   Mailer
	resetURL string
	logger   Logger
}

// NewForgotPasswordHandler creates a ForgotPasswordHandler. resetURL is the
// absolute admin URL the emailed code is appended to.
func NewForgotPasswordHandler(users UserStore, tokens TokenService, mailer Mailer, resetURL string) *ForgotPasswordHandler {
	return &ForgotPasswordHandler{
		users:    users,
		tokens:   tokens,
		mailer:   mailer,
		resetURL: resetURL,
		logger:   defLogger{},
	}
}

func (h *ForgotPasswordHandler) WithLogger(l Logger) *ForgotPasswordHandler {
	h.logger = normalizeLogger(l)
	return h
}

func (h *ForgotPasswordHandler) Execute(ctx context.Context, event ForgotPasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ForgotPasswordHandler) execute(ctx context.Context, event ForgotPasswordMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	active := true
	user, err := h.users.FindOne(ctx, UserFilter{Email: event.Email, IsActive: &active}, false)
	if err != nil {
		if goerrors.IsNotFound(err) {
			// Unknown email: do nothing, reveal nothing.
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up user for password reset")
	}

	token, err := h.tokens.CreateOpaqueToken()
	if err != nil {
		return err
	}

	if _, err := h.users.Update(ctx, user.ID, UserPatch{ResetPasswordToken: ptrTo(&token)}); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store reset token")
	}

	if h.mailer != nil {
		url := h.resetURL + "?code=" + token
		if err := h.mailer.SendForgotPassword(ctx, user.Email, url); err != nil {
			h.logger.Error("forgot password email failed: %v", err)
		}
	}

	return nil
}

// ResetPasswordMessage redeems a reset token against a new password.
type ResetPasswordMessage struct {
	ResetPasswordToken string `json:"resetPasswordToken"`
	Password           string `json:"password"`
	OnResponse         func(resp *ResetPasswordResponse)
}

func (m ResetPasswordMessage) Type() string { return "admin.password_reset_finalize" }

// ResetPasswordResponse carries the updated user and a fresh session token.
type ResetPasswordResponse struct {
	User  *User
	Token string
}

// ResetPasswordHandler finalizes a password reset: the token is single use
// and voided in the same write that sets the new password.
type ResetPasswordHandler struct {
	users  UserStore
	tokens TokenService
	tx     TxRunner
}

// NewResetPasswordHandler creates a ResetPasswordHandler.
func NewResetPasswordHandler(users UserStore, tokens TokenService) *ResetPasswordHandler {
	return &ResetPasswordHandler{
		users:  users,
		tokens: tokens,
		tx:     passthroughTxRunner{},
	}
}

func (h *ResetPasswordHandler) WithTxRunner(tx TxRunner) *ResetPasswordHandler {
	if tx != nil {
		h.tx = tx
	}
	return h
}

func (h *ResetPasswordHandler) Execute(ctx context.Context, event ResetPasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ResetPasswordHandler) execute(ctx context.Context, event ResetPasswordMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := ValidatePasswordStrength(event.Password); err != nil {
		return err
	}

	var updated *User

	err := h.tx.RunInTx(ctx, func(ctx context.Context) error {
		active := true
		user, err := h.users.FindOne(ctx, UserFilter{ResetPasswordToken: event.ResetPasswordToken, IsActive: &active}, false)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrInvalidResetToken
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up reset token")
		}

		hash, err := HashPassword(event.Password)
		if err != nil {
			return err
		}

		var noToken *string
		updated, err = h.users.Update(ctx, user.ID, UserPatch{
			PasswordHash:       &hash,
			ResetPasswordToken: &noToken,
		})
		return err
	})

	if err != nil {
		return err
	}

	token, err := h.tokens.CreateToken(TokenPayload{ID: updated.ID})
	if err != nil {
		return err
	}

	if event.OnResponse != nil {
		event.OnResponse(&ResetPasswordResponse{User: updated, Token: token})
	}

	return nil
}

func ptrTo[T any](v T) *T {
	return &v
}
