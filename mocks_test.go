package admin_test

import (
	"context"
	"sync"

	"github.com/goliatone/go-featuregate/gate"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"

	admin "github.com/siapi-biru/siapi-admin"
)

type testConfig struct {
	signingKey      string
	tokenExpiration int
	issuer          string
	audience        []string
}

func (c testConfig) GetSigningKey() string   { return c.signingKey }
func (c testConfig) GetTokenExpiration() int { return c.tokenExpiration }
func (c testConfig) GetIssuer() string       { return c.issuer }
func (c testConfig) GetAudience() []string   { return c.audience }

func newTestConfig() testConfig {
	return testConfig{
		signingKey:      "test-signing-key",
		tokenExpiration: 24,
		issuer:          "test-issuer",
		audience:        []string{"test-audience"},
	}
}

// fixture is a shared in-memory backend for the store interfaces. It keeps
// users and roles consistent so invariant checks observe realistic state.
type fixture struct {
	mu    sync.Mutex
	users map[uuid.UUID]*admin.User
	roles map[uuid.UUID]*admin.Role
	opts  *admin.ProviderOptions
}

func newFixture() *fixture {
	return &fixture{
		users: map[uuid.UUID]*admin.User{},
		roles: map[uuid.UUID]*admin.Role{},
		opts:  &admin.ProviderOptions{},
	}
}

func (f *fixture) addRole(code string, permissions ...*admin.Permission) *admin.Role {
	f.mu.Lock()
	defer f.mu.Unlock()

	role := &admin.Role{
		ID:          uuid.New(),
		Name:        code,
		Code:        code,
		Permissions: permissions,
	}
	f.roles[role.ID] = role
	return role
}

func (f *fixture) addUser(user *admin.User) *admin.User {
	f.mu.Lock()
	defer f.mu.Unlock()

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	f.users[user.ID] = user
	return user
}

func (f *fixture) userStore() *memUsers { return &memUsers{f: f} }
func (f *fixture) roleStore() *memRoles { return &memRoles{f: f} }
func (f *fixture) settings() *memSettings {
	return &memSettings{f: f}
}

func cloneUser(u *admin.User) *admin.User {
	cp := *u
	cp.Roles = append([]*admin.Role(nil), u.Roles...)
	if u.RegistrationToken != nil {
		token := *u.RegistrationToken
		cp.RegistrationToken = &token
	}
	if u.ResetPasswordToken != nil {
		token := *u.ResetPasswordToken
		cp.ResetPasswordToken = &token
	}
	return &cp
}

type memUsers struct {
	f *fixture
}

var _ admin.UserStore = (*memUsers)(nil)

func (s *memUsers) match(u *admin.User, filter admin.UserFilter) bool {
	if filter.ID != nil && u.ID != *filter.ID {
		return false
	}
	if filter.Email != "" && u.Email != filter.Email {
		return false
	}
	if filter.IsActive != nil && u.IsActive != *filter.IsActive {
		return false
	}
	if filter.RegistrationToken != "" {
		if u.RegistrationToken == nil || *u.RegistrationToken != filter.RegistrationToken {
			return false
		}
	}
	if filter.ResetPasswordToken != "" {
		if u.ResetPasswordToken == nil || *u.ResetPasswordToken != filter.ResetPasswordToken {
			return false
		}
	}
	if len(filter.IDs) > 0 {
		found := false
		for _, id := range filter.IDs {
			if u.ID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (s *memUsers) FindOne(_ context.Context, filter admin.UserFilter, _ bool) (*admin.User, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()

	for _, u := range s.f.users {
		if s.match(u, filter) {
			return cloneUser(u), nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (s *memUsers) Create(_ context.Context, user *admin.User) (*admin.User, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	roles := make([]*admin.Role, 0, len(user.Roles))
	for _, role := range user.Roles {
		if stored, ok := s.f.roles[role.ID]; ok {
			roles = append(roles, stored)
		} else {
			roles = append(roles, role)
		}
	}
	user.Roles = roles

	s.f.users[user.ID] = cloneUser(user)
	return cloneUser(user), nil
}

func (s *memUsers) Update(_ context.Context, id uuid.UUID, patch admin.UserPatch) (*admin.User, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()

	u, ok := s.f.users[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}

	if patch.Firstname != nil {
		u.Firstname = *patch.Firstname
	}
	if patch.Lastname != nil {
		u.Lastname = *patch.Lastname
	}
	if patch.Username != nil {
		u.Username = *patch.Username
	}
	if patch.Email != nil {
		u.Email = *patch.Email
	}
	if patch.Phone != nil {
		u.Phone = *patch.Phone
	}
	if patch.PasswordHash != nil {
		u.PasswordHash = *patch.PasswordHash
	}
	if patch.IsActive != nil {
		u.IsActive = *patch.IsActive
	}
	if patch.RegistrationToken != nil {
		u.RegistrationToken = *patch.RegistrationToken
	}
	if patch.ResetPasswordToken != nil {
		u.ResetPasswordToken = *patch.ResetPasswordToken
	}
	if patch.RoleIDs != nil {
		roles := make([]*admin.Role, 0, len(patch.RoleIDs))
		for _, roleID := range patch.RoleIDs {
			if role, ok := s.f.roles[roleID]; ok {
				roles = append(roles, role)
			}
		}
		u.Roles = roles
	}

	return cloneUser(u), nil
}

func (s *memUsers) Delete(_ context.Context, filter admin.UserFilter) ([]*admin.User, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()

	var deleted []*admin.User
	for id, u := range s.f.users {
		if s.match(u, filter) {
			deleted = append(deleted, cloneUser(u))
			delete(s.f.users, id)
		}
	}
	return deleted, nil
}

func (s *memUsers) Count(_ context.Context, filter admin.UserFilter) (int, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()

	count := 0
	for _, u := range s.f.users {
		if s.match(u, filter) {
			count++
		}
	}
	return count, nil
}

func (s *memUsers) CountSuperAdminsIn(_ context.Context, ids []uuid.UUID) (int, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()

	count := 0
	for _, id := range ids {
		u, ok := s.f.users[id]
		if !ok || !u.IsActive {
			continue
		}
		if u.HasSuperAdminRole() {
			count++
		}
	}
	return count, nil
}

type memRoles struct {
	f *fixture
}

var _ admin.RoleStore = (*memRoles)(nil)

func (s *memRoles) FindOne(_ context.Context, id uuid.UUID) (*admin.Role, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()

	role, ok := s.f.roles[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	return role, nil
}

func (s *memRoles) FindByCode(_ context.Context, code string) (*admin.Role, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()

	for _, role := range s.f.roles {
		if role.Code == code {
			return role, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (s *memRoles) Exists(_ context.Context) (bool, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	return len(s.f.roles) > 0, nil
}

func (s *memRoles) Count(_ context.Context) (int, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	return len(s.f.roles), nil
}

func (s *memRoles) FindForUser(_ context.Context, userID uuid.UUID) ([]*admin.Role, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()

	u, ok := s.f.users[userID]
	if !ok {
		return nil, nil
	}

	roles := make([]*admin.Role, 0, len(u.Roles))
	for _, role := range u.Roles {
		if stored, ok := s.f.roles[role.ID]; ok {
			roles = append(roles, stored)
		}
	}
	return roles, nil
}

func (s *memRoles) GetSuperAdminWithUserCount(_ context.Context) (*admin.SuperAdminRole, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()

	var super *admin.Role
	for _, role := range s.f.roles {
		if role.Code == admin.SuperAdminCode {
			super = role
			break
		}
	}
	if super == nil {
		return nil, admin.ErrMissingSuperAdminRole
	}

	count := 0
	for _, u := range s.f.users {
		if !u.IsActive {
			continue
		}
		for _, role := range u.Roles {
			if role.ID == super.ID {
				count++
				break
			}
		}
	}

	return &admin.SuperAdminRole{Role: super, UsersCount: count}, nil
}

type memSettings struct {
	f *fixture
}

var _ admin.SettingsStore = (*memSettings)(nil)

func (s *memSettings) GetProviderOptions(_ context.Context) (*admin.ProviderOptions, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	opts := *s.f.opts
	return &opts, nil
}

func (s *memSettings) SetProviderOptions(_ context.Context, opts *admin.ProviderOptions) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if opts == nil {
		opts = &admin.ProviderOptions{}
	}
	cp := *opts
	s.f.opts = &cp
	return nil
}

// stubGate implements gate.FeatureGate with a fixed answer.
type stubGate struct {
	enabled bool
	err     error
}

func (g stubGate) Enabled(context.Context, string, ...gate.ResolveOption) (bool, error) {
	return g.enabled, g.err
}

// recordingBus captures emitted auth events.
type recordingBus struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	name    string
	payload admin.AuthEventPayload
}

func (b *recordingBus) Emit(event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	auth, _ := payload.(admin.AuthEventPayload)
	b.events = append(b.events, recordedEvent{name: event, payload: auth})
}

func (b *recordingBus) named(name string) []recordedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []recordedEvent
	for _, evt := range b.events {
		if evt.name == name {
			out = append(out, evt)
		}
	}
	return out
}

// recordingTelemetry captures usage pings.
type recordingTelemetry struct {
	mu     sync.Mutex
	events []string
}

func (t *recordingTelemetry) Send(_ context.Context, event string, _ map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

func (t *recordingTelemetry) has(event string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.events {
		if e == event {
			return true
		}
	}
	return false
}

// recordingMailer captures reset emails.
type recordingMailer struct {
	mu   sync.Mutex
	to   []string
	urls []string
	err  error
}

func (m *recordingMailer) SendForgotPassword(_ context.Context, to, resetURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.to = append(m.to, to)
	m.urls = append(m.urls, resetURL)
	return nil
}
