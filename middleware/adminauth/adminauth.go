// Package adminauth guards admin routes behind a bearer session token. Each
// request decodes the token, loads the active user with its roles and builds
// a fresh ability, so revoked roles take effect immediately.
package adminauth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	admin "github.com/siapi-biru/siapi-admin"
)

const (
	// UserKey is the fiber locals key holding the authenticated *admin.User.
	UserKey = "adminUser"
	// AbilityKey is the fiber locals key holding the request *admin.Ability.
	AbilityKey = "adminAbility"
)

// Config configures the guard. Tokens, Users and Abilities are required.
type Config struct {
	Tokens    admin.TokenService
	Users     admin.UserStore
	Abilities *admin.AbilityEngine
	Logger    admin.Logger

	// Filter skips the guard for matching requests.
	Filter func(c *fiber.Ctx) bool

	// AuthScheme is the expected Authorization prefix. Defaults to "Bearer".
	AuthScheme string

	// ErrorHandler renders authentication failures. Defaults to a JSON 401.
	ErrorHandler func(c *fiber.Ctx, err error) error
}

func (cfg *Config) setDefaults() {
	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}
}

func defaultErrorHandler(c *fiber.Ctx, _ error) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": fiber.Map{
			"status":  fiber.StatusUnauthorized,
			"name":    "UnauthorizedError",
			"message": "Invalid token",
		},
	})
}

// New builds the guard middleware.
func New(cfg Config) fiber.Handler {
	cfg.setDefaults()

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		raw, ok := extractBearer(c, cfg.AuthScheme)
		if !ok {
			return cfg.ErrorHandler(c, admin.ErrInvalidToken)
		}

		decoded := cfg.Tokens.DecodeToken(raw)
		if !decoded.IsValid {
			return cfg.ErrorHandler(c, admin.ErrInvalidToken)
		}

		ctx := c.UserContext()
		id := decoded.Payload.ID
		active := true

		user, err := cfg.Users.FindOne(ctx, admin.UserFilter{
			ID:       &id,
			IsActive: &active,
		}, true)
		if err != nil {
			return cfg.ErrorHandler(c, admin.ErrInvalidToken)
		}

		ability, err := cfg.Abilities.GenerateAbility(ctx, user)
		if err != nil {
			if cfg.Logger != nil {
				cfg.Logger.Error("failed to build ability for user %s: %v", user.ID, err)
			}
			return cfg.ErrorHandler(c, admin.ErrInvalidToken)
		}

		c.Locals(UserKey, user)
		c.Locals(AbilityKey, ability)

		return c.Next()
	}
}

// RequireAbility gates a route on a single action/subject pair. Mount after
// New.
func RequireAbility(action, subject string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ability := AbilityFromCtx(c)
		if ability == nil || !ability.Can(action, subject) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": fiber.Map{
					"status":  fiber.StatusForbidden,
					"name":    "ForbiddenError",
					"message": "Forbidden",
				},
			})
		}
		return c.Next()
	}
}

// UserFromCtx returns the authenticated user or nil.
func UserFromCtx(c *fiber.Ctx) *admin.User {
	user, _ := c.Locals(UserKey).(*admin.User)
	return user
}

// AbilityFromCtx returns the request ability or nil.
func AbilityFromCtx(c *fiber.Ctx) *admin.Ability {
	ability, _ := c.Locals(AbilityKey).(*admin.Ability)
	return ability
}

func extractBearer(c *fiber.Ctx, scheme string) (string, bool) {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return "", false
	}

	prefix := scheme + " "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}

	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
