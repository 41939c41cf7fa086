package admin

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Logger is the minimal logging surface the package depends on.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds token service options.
type Config interface {
	GetSigningKey() string
	GetTokenExpiration() int
	GetIssuer() string
	GetAudience() []string
}

// UserFilter narrows user lookups. Zero-value fields are ignored.
type UserFilter struct {
	ID                 *uuid.UUID
	Email              string
	IsActive           *bool
	RegistrationToken  string
	ResetPasswordToken string
	IDs                []uuid.UUID
}

// UserPatch carries a partial update. Nil fields are left untouched.
type UserPatch struct {
	Firstname          *string
	Lastname           *string
	Username           *string
	Email              *string
	Phone              *string
	PasswordHash       *string
	IsActive           *bool
	RegistrationToken  **string
	ResetPasswordToken **string
	RoleIDs            []uuid.UUID
}

// UserStore is the persistence collaborator for admin users. Implementations
// must populate roles when asked and serialize read-count-then-write
// sequences executed through RunInTx.
type UserStore interface {
	FindOne(ctx context.Context, filter UserFilter, populateRoles bool) (*User, error)
	Create(ctx context.Context, user *User) (*User, error)
	Update(ctx context.Context, id uuid.UUID, patch UserPatch) (*User, error)
	Delete(ctx context.Context, filter UserFilter) ([]*User, error)
	Count(ctx context.Context, filter UserFilter) (int, error)
	CountSuperAdminsIn(ctx context.Context, ids []uuid.UUID) (int, error)
}

// RoleStore is the persistence collaborator for roles and permissions.
type RoleStore interface {
	FindOne(ctx context.Context, id uuid.UUID) (*Role, error)
	FindByCode(ctx context.Context, code string) (*Role, error)
	Exists(ctx context.Context) (bool, error)
	Count(ctx context.Context) (int, error)
	// FindForUser performs a fresh fetch of the user's roles with their
	// permissions. Callers must not cache the result across role mutations.
	FindForUser(ctx context.Context, userID uuid.UUID) ([]*Role, error)
	// GetSuperAdminWithUserCount returns the reserved super-admin role and its
	// current active member count in one consistent read.
	GetSuperAdminWithUserCount(ctx context.Context) (*SuperAdminRole, error)
}

// SettingsStore persists the federated-login policy blob.
type SettingsStore interface {
	GetProviderOptions(ctx context.Context) (*ProviderOptions, error)
	SetProviderOptions(ctx context.Context, opts *ProviderOptions) error
}

// Telemetry receives fire-and-forget usage pings. Implementations must never
// block or fail the calling operation.
type Telemetry interface {
	Send(ctx context.Context, event string, properties map[string]any)
}

// Mailer delivers templated notification emails.
type Mailer interface {
	SendForgotPassword(ctx context.Context, to string, resetURL string) error
}

type noopTelemetry struct{}

func (noopTelemetry) Send(context.Context, string, map[string]any) {}

func normalizeTelemetry(t Telemetry) Telemetry {
	if t == nil {
		return noopTelemetry{}
	}
	return t
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] ADMIN "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] ADMIN "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] ADMIN "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] ADMIN "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
