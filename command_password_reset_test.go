package admin_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	admin "github.com/siapi-biru/siapi-admin"
)

func TestForgotPasswordHandler(t *testing.T) {
	ctx := context.Background()
	resetURL := "https://admin.example.com/auth/reset-password"

	t.Run("stores a token and mails the reset link", func(t *testing.T) {
		f := newFixture()
		user := seedUser(t, f, "kai@example.com", "Password1", true)

		tokens := admin.NewTokenService(newTestConfig(), nil)
		mailer := &recordingMailer{}
		handler := admin.NewForgotPasswordHandler(f.userStore(), tokens, mailer, resetURL)

		require.NoError(t, handler.Execute(ctx, admin.ForgotPasswordMessage{Email: "kai@example.com"}))

		stored, err := f.userStore().FindOne(ctx, admin.UserFilter{ID: &user.ID}, false)
		require.NoError(t, err)
		require.NotNil(t, stored.ResetPasswordToken)

		require.Len(t, mailer.urls, 1)
		assert.Equal(t, []string{"kai@example.com"}, mailer.to)
		assert.Equal(t, resetURL+"?code="+*stored.ResetPasswordToken, mailer.urls[0])
	})

	// Unknown and inactive accounts answer exactly like known ones.
	t.Run("unknown email succeeds silently", func(t *testing.T) {
		f := newFixture()

		tokens := admin.NewTokenService(newTestConfig(), nil)
		mailer := &recordingMailer{}
		handler := admin.NewForgotPasswordHandler(f.userStore(), tokens, mailer, resetURL)

		require.NoError(t, handler.Execute(ctx, admin.ForgotPasswordMessage{Email: "nobody@example.com"}))
		assert.Empty(t, mailer.urls)
	})

	t.Run("inactive user succeeds silently", func(t *testing.T) {
		f := newFixture()
		user := seedUser(t, f, "inactive@example.com", "Password1", false)

		tokens := admin.NewTokenService(newTestConfig(), nil)
		mailer := &recordingMailer{}
		handler := admin.NewForgotPasswordHandler(f.userStore(), tokens, mailer, resetURL)

		require.NoError(t, handler.Execute(ctx, admin.ForgotPasswordMessage{Email: "inactive@example.com"}))
		assert.Empty(t, mailer.urls)

		stored, err := f.userStore().FindOne(ctx, admin.UserFilter{ID: &user.ID}, false)
		require.NoError(t, err)
		assert.Nil(t, stored.ResetPasswordToken)
	})

	t.Run("mailer failure does not fail the flow", func(t *testing.T) {
		f := newFixture()
		seedUser(t, f, "kai@example.com", "Password1", true)

		tokens := admin.NewTokenService(newTestConfig(), nil)
		mailer := &recordingMailer{err: assert.AnError}
		handler := admin.NewForgotPasswordHandler(f.userStore(), tokens, mailer, resetURL)

		assert.NoError(t, handler.Execute(ctx, admin.ForgotPasswordMessage{Email: "kai@example.com"}))
	})
}

func TestResetPasswordHandler(t *testing.T) {
	ctx := context.Background()

	prepare := func(t *testing.T, f *fixture, email string) string {
		t.Helper()

		seedUser(t, f, email, "OldPassword1", true)

		tokens := admin.NewTokenService(newTestConfig(), nil)
		handler := admin.NewForgotPasswordHandler(f.userStore(), tokens, &recordingMailer{}, "https://example.com/reset")
		require.NoError(t, handler.Execute(ctx, admin.ForgotPasswordMessage{Email: email}))

		stored, err := f.userStore().FindOne(ctx, admin.UserFilter{Email: email}, false)
		require.NoError(t, err)
		require.NotNil(t, stored.ResetPasswordToken)
		return *stored.ResetPasswordToken
	}

	t.Run("redeems the token and rotates the password", func(t *testing.T) {
		f := newFixture()
		code := prepare(t, f, "kai@example.com")

		tokens := admin.NewTokenService(newTestConfig(), nil)
		handler := admin.NewResetPasswordHandler(f.userStore(), tokens)

		var res *admin.ResetPasswordResponse
		err := handler.Execute(ctx, admin.ResetPasswordMessage{
			ResetPasswordToken: code,
			Password:           "NewPassword1",
			OnResponse:         func(resp *admin.ResetPasswordResponse) { res = resp },
		})
		require.NoError(t, err)
		require.NotNil(t, res)

		assert.NoError(t, admin.ComparePasswordAndHash("NewPassword1", res.User.PasswordHash))
		assert.Nil(t, res.User.ResetPasswordToken)

		decoded := tokens.DecodeToken(res.Token)
		assert.True(t, decoded.IsValid)
		assert.Equal(t, res.User.ID, decoded.Payload.ID)
	})

	t.Run("token is single use", func(t *testing.T) {
		f := newFixture()
		code := prepare(t, f, "kai@example.com")

		tokens := admin.NewTokenService(newTestConfig(), nil)
		handler := admin.NewResetPasswordHandler(f.userStore(), tokens)

		msg := admin.ResetPasswordMessage{
			ResetPasswordToken: code,
			Password:           "NewPassword1",
		}

		require.NoError(t, handler.Execute(ctx, msg))

		err := handler.Execute(ctx, msg)
		assert.ErrorIs(t, err, admin.ErrInvalidResetToken)
	})

	t.Run("unknown token", func(t *testing.T) {
		f := newFixture()

		tokens := admin.NewTokenService(newTestConfig(), nil)
		handler := admin.NewResetPasswordHandler(f.userStore(), tokens)

		err := handler.Execute(ctx, admin.ResetPasswordMessage{
			ResetPasswordToken: "bogus",
			Password:           "NewPassword1",
		})
		assert.ErrorIs(t, err, admin.ErrInvalidResetToken)
	})

	t.Run("weak replacement password is rejected", func(t *testing.T) {
		f := newFixture()
		code := prepare(t, f, "kai@example.com")

		tokens := admin.NewTokenService(newTestConfig(), nil)
		handler := admin.NewResetPasswordHandler(f.userStore(), tokens)

		err := handler.Execute(ctx, admin.ResetPasswordMessage{
			ResetPasswordToken: code,
			Password:           "weak",
		})
		assert.ErrorIs(t, err, admin.ErrWeakPassword)

		// The token survives the failed attempt.
		stored, err := f.userStore().FindOne(ctx, admin.UserFilter{ResetPasswordToken: code}, false)
		require.NoError(t, err)
		assert.NotNil(t, stored)
	})
}
