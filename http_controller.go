package admin

import (
	stderrors "errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
)

// JWTCookieName is the cookie carrying the session token after a federated
// redirect.
const JWTCookieName = "jwtToken"

// AdminControllerRoutes maps every handler to its mounted path. Paths are
// relative to the router group the controller is registered on.
type AdminControllerRoutes struct {
	Login            string
	RenewToken       string
	RegistrationInfo string
	Register         string
	RegisterAdmin    string
	ForgotPassword   string
	ResetPassword    string
	Users            string
	ProviderCallback string
}

// AdminController wires the authentication services into fiber handlers.
type AdminController struct {
	Logger    Logger
	Registry  *StrategyRegistry
	Tokens    TokenService
	Users     *UserManager
	Roles     RoleStore
	Repo      RepositoryManager
	Telemetry Telemetry
	Mailer    Mailer
	Routes    *AdminControllerRoutes

	// ResetPasswordURL is the public page a reset email links to.
	ResetPasswordURL string

	// SuccessRedirect and ErrorRedirect terminate the federated callback.
	SuccessRedirect string
	ErrorRedirect   string
}

type AdminControllerOption func(*AdminController) *AdminController

func NewAdminController(opts ...AdminControllerOption) *AdminController {
	c := &AdminController{
		Logger:          defLogger{},
		Telemetry:       noopTelemetry{},
		SuccessRedirect: "/admin/auth/login/success",
		ErrorRedirect:   "/admin/auth/login/error",
		Routes: &AdminControllerRoutes{
			Login:            "/login",
			RenewToken:       "/renew-token",
			RegistrationInfo: "/registration-info",
			Register:         "/register",
			RegisterAdmin:    "/register-admin",
			ForgotPassword:   "/forgot-password",
			ResetPassword:    "/reset-password",
			Users:            "/users",
			ProviderCallback: "/connect/:provider/callback",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	return c
}

func WithControllerLogger(logger Logger) AdminControllerOption {
	return func(c *AdminController) *AdminController {
		c.Logger = normalizeLogger(logger)
		return c
	}
}

func WithControllerTelemetry(t Telemetry) AdminControllerOption {
	return func(c *AdminController) *AdminController {
		c.Telemetry = normalizeTelemetry(t)
		return c
	}
}

// RegisterAdminRoutes mounts the controller on app, typically under /admin.
func RegisterAdminRoutes(app fiber.Router, c *AdminController) {
	app.Post(c.Routes.Login, c.Login)
	app.Post(c.Routes.RenewToken, c.RenewToken)

	app.Get(c.Routes.RegistrationInfo, c.RegistrationInfo)
	app.Post(c.Routes.Register, c.Register)
	app.Post(c.Routes.RegisterAdmin, c.RegisterAdmin)

	app.Post(c.Routes.ForgotPassword, c.ForgotPassword)
	app.Post(c.Routes.ResetPassword, c.ResetPassword)

	app.Post(c.Routes.Users, c.CreateUser)
	app.Delete(c.Routes.Users+"/batch-delete", c.DeleteUsers)
	app.Get(c.Routes.Users+"/:id", c.GetUser)
	app.Put(c.Routes.Users+"/:id", c.UpdateUser)
	app.Delete(c.Routes.Users+"/:id", c.DeleteUser)

	app.Get(c.Routes.ProviderCallback, c.ProviderCallback)
}

// HTTPStatus maps a domain error to its response status.
func HTTPStatus(err error) int {
	var rich *errors.Error
	if !errors.As(err, &rich) {
		return fiber.StatusInternalServerError
	}

	switch rich.Category {
	case errors.CategoryAuth:
		return fiber.StatusUnauthorized
	case errors.CategoryAuthz:
		return fiber.StatusForbidden
	case errors.CategoryValidation, errors.CategoryBadInput:
		return fiber.StatusBadRequest
	case errors.CategoryNotFound:
		return fiber.StatusNotFound
	case errors.CategoryConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func errorName(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "ValidationError"
	case fiber.StatusUnauthorized:
		return "UnauthorizedError"
	case fiber.StatusForbidden:
		return "ForbiddenError"
	case fiber.StatusNotFound:
		return "NotFoundError"
	case fiber.StatusConflict:
		return "ConflictError"
	default:
		return "ApplicationError"
	}
}

func (a *AdminController) writeError(c *fiber.Ctx, err error) error {
	status := HTTPStatus(err)
	message := "An error occurred"

	var rich *errors.Error
	if errors.As(err, &rich) && status < fiber.StatusInternalServerError {
		message = rich.Message
	}

	if status >= fiber.StatusInternalServerError {
		a.Logger.Error("admin http error: %v", err)
	}

	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"status":  status,
			"name":    errorName(status),
			"message": message,
		},
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": fiber.Map{
			"status":  fiber.StatusBadRequest,
			"name":    "ValidationError",
			"message": message,
		},
	})
}

// LoginPayload is the local credential pair.
type LoginPayload struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

func (p LoginPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, is.Email),
		validation.Field(&p.Password, validation.Required),
	)
}

func (a *AdminController) Login(c *fiber.Ctx) error {
	payload := new(LoginPayload)

	if err := c.BodyParser(payload); err != nil {
		return badRequest(c, "Failed to parse body")
	}

	if err := payload.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	user, err := a.Registry.Authenticate(c.UserContext(), LocalStrategyName, Credentials{
		Email:    payload.Email,
		Password: payload.Password,
	})
	if err != nil {
		return a.writeError(c, err)
	}

	token, err := a.Tokens.CreateToken(TokenPayload{ID: user.ID})
	if err != nil {
		return a.writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"token": token,
			"user":  SanitizeUser(user),
		},
	})
}

// RenewTokenPayload wraps the token to refresh.
type RenewTokenPayload struct {
	Token string `form:"token" json:"token"`
}

func (p RenewTokenPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Token, validation.Required),
	)
}

func (a *AdminController) RenewToken(c *fiber.Ctx) error {
	payload := new(RenewTokenPayload)

	if err := c.BodyParser(payload); err != nil {
		return badRequest(c, "Failed to parse body")
	}

	if err := payload.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	token, err := a.Tokens.RenewToken(payload.Token)
	if err != nil {
		return a.writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{"token": token},
	})
}

func (a *AdminController) RegistrationInfo(c *fiber.Ctx) error {
	code := c.Query("registrationToken")
	if code == "" {
		return badRequest(c, "Invalid registration info")
	}

	info, err := a.Users.FindRegistrationInfo(c.UserContext(), code)
	if err != nil {
		return a.writeError(c, err)
	}

	if info == nil {
		return a.writeError(c, ErrInvalidRegistrationToken)
	}

	return c.JSON(fiber.Map{"data": info})
}

// RegisterPayload finalizes an invitation.
type RegisterPayload struct {
	RegistrationToken string              `form:"registrationToken" json:"registrationToken"`
	UserInfo          RegisterUserPayload `form:"userInfo" json:"userInfo"`
}

// RegisterUserPayload carries the invitee-supplied profile fields.
type RegisterUserPayload struct {
	Firstname string `form:"firstname" json:"firstname"`
	Lastname  string `form:"lastname" json:"lastname"`
	Password  string `form:"password" json:"password"`
}

func (p RegisterPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.RegistrationToken, validation.Required),
		validation.Field(&p.UserInfo, validation.Required),
	)
}

func (p RegisterUserPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Firstname, validation.Required, validation.Length(1, 200)),
		validation.Field(&p.Lastname, validation.Required, validation.Length(1, 200)),
		validation.Field(&p.Password, validation.Required),
	)
}

func (a *AdminController) Register(c *fiber.Ctx) error {
	payload := new(RegisterPayload)

	if err := c.BodyParser(payload); err != nil {
		return badRequest(c, "Failed to parse body")
	}

	if err := payload.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	user, err := a.Users.Register(c.UserContext(), RegisterInput{
		RegistrationToken: payload.RegistrationToken,
		UserInfo: RegisterUserInfo{
			Firstname: payload.UserInfo.Firstname,
			Lastname:  payload.UserInfo.Lastname,
			Password:  payload.UserInfo.Password,
		},
	})
	if err != nil {
		return a.writeError(c, err)
	}

	token, err := a.Tokens.CreateToken(TokenPayload{ID: user.ID})
	if err != nil {
		return a.writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"token": token,
			"user":  SanitizeUser(user),
		},
	})
}

// RegisterAdminPayload bootstraps the first super admin.
type RegisterAdminPayload struct {
	Firstname string `form:"firstname" json:"firstname"`
	Lastname  string `form:"lastname" json:"lastname"`
	Email     string `form:"email" json:"email"`
	Password  string `form:"password" json:"password"`
}

func (p RegisterAdminPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Firstname, validation.Required, validation.Length(1, 200)),
		validation.Field(&p.Lastname, validation.Required, validation.Length(1, 200)),
		validation.Field(&p.Email, validation.Required, is.Email),
		validation.Field(&p.Password, validation.Required),
	)
}

func (a *AdminController) RegisterAdmin(c *fiber.Ctx) error {
	payload := new(RegisterAdminPayload)

	if err := c.BodyParser(payload); err != nil {
		return badRequest(c, "Failed to parse body")
	}

	if err := payload.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	var res *RegisterAdminResponse

	handler := NewRegisterAdminHandler(a.Users, a.Roles, a.Tokens).
		WithTelemetry(a.Telemetry)

	err := handler.Execute(c.UserContext(), RegisterAdminMessage{
		Firstname: payload.Firstname,
		Lastname:  payload.Lastname,
		Email:     payload.Email,
		Password:  payload.Password,
		OnResponse: func(resp *RegisterAdminResponse) {
			res = resp
		},
	})
	if err != nil {
		return a.writeError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"data": fiber.Map{
			"token": res.Token,
			"user":  SanitizeUser(res.User),
		},
	})
}

// ForgotPasswordPayload starts a password reset.
type ForgotPasswordPayload struct {
	Email string `form:"email" json:"email"`
}

func (p ForgotPasswordPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, is.Email),
	)
}

func (a *AdminController) ForgotPassword(c *fiber.Ctx) error {
	payload := new(ForgotPasswordPayload)

	if err := c.BodyParser(payload); err != nil {
		return badRequest(c, "Failed to parse body")
	}

	if err := payload.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	handler := NewForgotPasswordHandler(a.Users.Store(), a.Tokens, a.Mailer, a.ResetPasswordURL).
		WithLogger(a.Logger)

	if err := handler.Execute(c.UserContext(), ForgotPasswordMessage{Email: payload.Email}); err != nil {
		return a.writeError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ResetPasswordPayload finalizes a password reset.
type ResetPasswordPayload struct {
	ResetPasswordToken string `form:"resetPasswordToken" json:"resetPasswordToken"`
	Password           string `form:"password" json:"password"`
}

func (p ResetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.ResetPasswordToken, validation.Required),
		validation.Field(&p.Password, validation.Required),
	)
}

func (a *AdminController) ResetPassword(c *fiber.Ctx) error {
	payload := new(ResetPasswordPayload)

	if err := c.BodyParser(payload); err != nil {
		return badRequest(c, "Failed to parse body")
	}

	if err := payload.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	var res *ResetPasswordResponse

	handler := NewResetPasswordHandler(a.Users.Store(), a.Tokens).
		WithTxRunner(a.Repo)

	err := handler.Execute(c.UserContext(), ResetPasswordMessage{
		ResetPasswordToken: payload.ResetPasswordToken,
		Password:           payload.Password,
		OnResponse: func(resp *ResetPasswordResponse) {
			res = resp
		},
	})
	if err != nil {
		return a.writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"token": res.Token,
			"user":  SanitizeUser(res.User),
		},
	})
}

// CreateUserPayload invites a new admin user.
type CreateUserPayload struct {
	Email     string      `form:"email" json:"email"`
	Firstname string      `form:"firstname" json:"firstname"`
	Lastname  string      `form:"lastname" json:"lastname"`
	Phone     string      `form:"phone" json:"phone"`
	Roles     []uuid.UUID `form:"roles" json:"roles"`
}

func (p CreateUserPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, is.Email),
		validation.Field(&p.Firstname, validation.Required, validation.Length(1, 200)),
		validation.Field(&p.Lastname, validation.Required, validation.Length(1, 200)),
		validation.Field(&p.Phone, validation.By(validateOptionalPhone)),
		validation.Field(&p.Roles, validation.Required),
	)
}

// validateOptionalPhone accepts an empty value or an E.164 formatted number.
func validateOptionalPhone(value any) error {
	raw, _ := value.(string)
	if raw == "" {
		return nil
	}

	num, err := phonenumbers.Parse(raw, "")
	if err != nil {
		return stderrors.New("must be a valid international phone number")
	}

	if !phonenumbers.IsValidNumber(num) {
		return stderrors.New("must be a valid international phone number")
	}

	return nil
}

func (a *AdminController) CreateUser(c *fiber.Ctx) error {
	payload := new(CreateUserPayload)

	if err := c.BodyParser(payload); err != nil {
		return badRequest(c, "Failed to parse body")
	}

	if err := payload.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	ctx := c.UserContext()

	taken, err := a.Users.Exists(ctx, UserFilter{Email: payload.Email})
	if err != nil {
		return a.writeError(c, err)
	}

	if taken {
		return a.writeError(c, ErrDuplicateEmail)
	}

	user, err := a.Users.Create(ctx, CreateUserInput{
		Email:     payload.Email,
		Firstname: payload.Firstname,
		Lastname:  payload.Lastname,
		Phone:     payload.Phone,
		RoleIDs:   payload.Roles,
	})
	if err != nil {
		return a.writeError(c, err)
	}

	data := fiber.Map{"user": SanitizeUser(user)}
	if user.RegistrationToken != nil {
		data["registrationToken"] = *user.RegistrationToken
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": data})
}

func (a *AdminController) GetUser(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid user id")
	}

	user, err := a.Users.FindOne(c.UserContext(), UserFilter{ID: &id}, true)
	if err != nil {
		return a.writeError(c, err)
	}

	return c.JSON(fiber.Map{"data": SanitizeUser(user)})
}

// UpdateUserPayload carries a partial user update. Absent fields are left
// untouched.
type UpdateUserPayload struct {
	Email     *string     `form:"email" json:"email"`
	Firstname *string     `form:"firstname" json:"firstname"`
	Lastname  *string     `form:"lastname" json:"lastname"`
	Phone     *string     `form:"phone" json:"phone"`
	Password  *string     `form:"password" json:"password"`
	IsActive  *bool       `form:"isActive" json:"isActive"`
	Roles     []uuid.UUID `form:"roles" json:"roles"`
}

func (p UpdateUserPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, is.Email),
		validation.Field(&p.Phone, validation.By(func(value any) error {
			raw, _ := value.(*string)
			if raw == nil {
				return nil
			}
			return validateOptionalPhone(*raw)
		})),
	)
}

func (a *AdminController) UpdateUser(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid user id")
	}

	payload := new(UpdateUserPayload)

	if err := c.BodyParser(payload); err != nil {
		return badRequest(c, "Failed to parse body")
	}

	if err := payload.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	ctx := c.UserContext()

	if payload.Email != nil {
		current, err := a.Users.FindOne(ctx, UserFilter{ID: &id}, false)
		if err != nil {
			return a.writeError(c, err)
		}

		if current.Email != *payload.Email {
			taken, err := a.Users.Exists(ctx, UserFilter{Email: *payload.Email})
			if err != nil {
				return a.writeError(c, err)
			}
			if taken {
				return a.writeError(c, ErrDuplicateEmail)
			}
		}
	}

	user, err := a.Users.UpdateByID(ctx, id, UpdateUserInput{
		Email:     payload.Email,
		Firstname: payload.Firstname,
		Lastname:  payload.Lastname,
		Phone:     payload.Phone,
		Password:  payload.Password,
		IsActive:  payload.IsActive,
		RoleIDs:   payload.Roles,
	})
	if err != nil {
		return a.writeError(c, err)
	}

	return c.JSON(fiber.Map{"data": SanitizeUser(user)})
}

func (a *AdminController) DeleteUser(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid user id")
	}

	user, err := a.Users.DeleteByID(c.UserContext(), id)
	if err != nil {
		return a.writeError(c, err)
	}

	return c.JSON(fiber.Map{"data": SanitizeUser(user)})
}

// DeleteUsersPayload names the users a batch delete removes.
type DeleteUsersPayload struct {
	IDs []uuid.UUID `form:"ids" json:"ids"`
}

func (p DeleteUsersPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.IDs, validation.Required),
	)
}

func (a *AdminController) DeleteUsers(c *fiber.Ctx) error {
	payload := new(DeleteUsersPayload)

	if err := c.BodyParser(payload); err != nil {
		return badRequest(c, "Failed to parse body")
	}

	if err := payload.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	deleted, err := a.Users.DeleteByIDs(c.UserContext(), payload.IDs)
	if err != nil {
		return a.writeError(c, err)
	}

	out := make([]*SanitizedUser, len(deleted))
	for i, u := range deleted {
		out[i] = SanitizeUser(u)
	}

	return c.JSON(fiber.Map{"data": out})
}

// ProviderCallback terminates a federated login redirect. On success the
// session token travels to the success page in a short lived cookie, never
// in the URL.
func (a *AdminController) ProviderCallback(c *fiber.Ctx) error {
	provider := c.Params("provider")

	assertion := c.Query("id_token")
	if assertion == "" {
		assertion = c.Query("code")
	}

	user, err := a.Registry.Authenticate(c.UserContext(), provider, Credentials{
		Assertion: assertion,
	})
	if err != nil {
		a.Logger.Debug("federated callback rejected: %v", err)
		return c.Redirect(a.ErrorRedirect, fiber.StatusFound)
	}

	token, err := a.Tokens.CreateToken(TokenPayload{ID: user.ID})
	if err != nil {
		return c.Redirect(a.ErrorRedirect, fiber.StatusFound)
	}

	c.Cookie(&fiber.Cookie{
		Name:     JWTCookieName,
		Value:    token,
		Expires:  time.Now().Add(5 * time.Minute),
		Secure:   true,
		HTTPOnly: false,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	return c.Redirect(a.SuccessRedirect, fiber.StatusFound)
}
