package admin

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Reserved role codes. Built-in roles are identified by code, never by name:
// names are mutable and localizable, codes are not.
const (
	SuperAdminCode = "siapi-super-admin"
	EditorCode     = "siapi-editor"
	AuthorCode     = "siapi-author"
)

// User is the admin user model.
type User struct {
	bun.BaseModel `bun:"table:admin_users,alias:usr"`

	ID                 uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Firstname          string     `bun:"firstname" json:"firstname,omitempty"`
	Lastname           string     `bun:"lastname" json:"lastname,omitempty"`
	Username           string     `bun:"username" json:"username,omitempty"`
	Email              string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone              string     `bun:"phone" json:"phone,omitempty"`
	PasswordHash       string     `bun:"password_hash" json:"-"`
	IsActive           bool       `bun:"is_active" json:"isActive"`
	RegistrationToken  *string    `bun:"registration_token,nullzero" json:"-"`
	ResetPasswordToken *string    `bun:"reset_password_token,nullzero" json:"-"`
	Roles              []*Role    `bun:"m2m:admin_users_roles,join:User=Role" json:"roles,omitempty"`
	CreatedAt          *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt          *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// HasSuperAdminRole reports whether the user holds the reserved super-admin
// role. Comparison is by role code only.
func (u *User) HasSuperAdminRole() bool {
	if u == nil {
		return false
	}
	for _, role := range u.Roles {
		if role != nil && role.Code == SuperAdminCode {
			return true
		}
	}
	return false
}

// RoleIDs returns the ids of the user's assigned roles.
func (u *User) RoleIDs() []uuid.UUID {
	if u == nil {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(u.Roles))
	for _, role := range u.Roles {
		if role != nil {
			ids = append(ids, role.ID)
		}
	}
	return ids
}

// Role groups a set of permissions. Roles are shared across users and live
// independently of any single user.
type Role struct {
	bun.BaseModel `bun:"table:admin_roles,alias:rol"`

	ID          uuid.UUID     `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name        string        `bun:"name,notnull" json:"name,omitempty"`
	Code        string        `bun:"code,notnull,unique" json:"code,omitempty"`
	Description string        `bun:"description" json:"description,omitempty"`
	Permissions []*Permission `bun:"rel:has-many,join:id=role_id" json:"permissions,omitempty"`
	CreatedAt   *time.Time    `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt   *time.Time    `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Permission grants an action over a subject, optionally narrowed by
// condition identifiers.
type Permission struct {
	bun.BaseModel `bun:"table:admin_permissions,alias:perm"`

	ID         uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	RoleID     uuid.UUID  `bun:"role_id,notnull,type:uuid" json:"role_id,omitempty"`
	Action     string     `bun:"action,notnull" json:"action,omitempty"`
	Subject    string     `bun:"subject" json:"subject,omitempty"`
	Conditions []string   `bun:"conditions,type:jsonb" json:"conditions,omitempty"`
	CreatedAt  *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// UserRole is the users <-> roles join table.
type UserRole struct {
	bun.BaseModel `bun:"table:admin_users_roles,alias:usrrol"`

	UserID uuid.UUID `bun:"user_id,pk,type:uuid"`
	User   *User     `bun:"rel:belongs-to,join:user_id=id"`
	RoleID uuid.UUID `bun:"role_id,pk,type:uuid"`
	Role   *Role     `bun:"rel:belongs-to,join:role_id=id"`
}

// SuperAdminRole is the super-admin role together with its current active
// member count, as reported by the RoleStore in a single read.
type SuperAdminRole struct {
	Role       *Role
	UsersCount int
}

// ProviderOptions is the persisted federated-login policy blob.
type ProviderOptions struct {
	AutoRegister bool       `json:"autoRegister"`
	DefaultRole  *uuid.UUID `json:"defaultRole,omitempty"`
	Providers    []string   `json:"providers,omitempty"`
}

// Profile is the normalized identity returned by an external provider after a
// successful federated assertion. Email is mandatory, the remaining fields
// depend on what the provider exposes.
type Profile struct {
	Email     string `json:"email"`
	Firstname string `json:"firstname,omitempty"`
	Lastname  string `json:"lastname,omitempty"`
	Username  string `json:"username,omitempty"`
}

// HasRegistrationInfo reports whether the profile carries enough identity to
// register a new user: a username, or both first and last name.
func (p Profile) HasRegistrationInfo() bool {
	return p.Username != "" || (p.Firstname != "" && p.Lastname != "")
}

// SanitizedUser is the client-visible projection of a User: no password hash,
// no single-use tokens, slim roles.
type SanitizedUser struct {
	ID        uuid.UUID       `json:"id"`
	Firstname string          `json:"firstname,omitempty"`
	Lastname  string          `json:"lastname,omitempty"`
	Username  string          `json:"username,omitempty"`
	Email     string          `json:"email"`
	IsActive  bool            `json:"isActive"`
	Roles     []SanitizedRole `json:"roles,omitempty"`
}

// SanitizedRole is the slim role projection embedded in SanitizedUser.
type SanitizedRole struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	Description string    `json:"description,omitempty"`
}

// SanitizeUser strips private fields from a user record before it crosses the
// API boundary.
func SanitizeUser(user *User) *SanitizedUser {
	if user == nil {
		return nil
	}

	out := &SanitizedUser{
		ID:        user.ID,
		Firstname: user.Firstname,
		Lastname:  user.Lastname,
		Username:  user.Username,
		Email:     user.Email,
		IsActive:  user.IsActive,
	}

	for _, role := range user.Roles {
		if role == nil {
			continue
		}
		out.Roles = append(out.Roles, SanitizedRole{
			ID:          role.ID,
			Name:        role.Name,
			Code:        role.Code,
			Description: role.Description,
		})
	}

	return out
}
