// Package admin implements the authentication and authorization core of the
// siapi administration backend: session token issuance and validation, a
// pluggable login-strategy registry (local credentials plus optional federated
// providers), computation of a user's effective permission set, and the user
// lifecycle operations that protect the system from ever losing its last
// active super admin.
//
// The package is storage-agnostic: components declare the collaborators they
// need (UserStore, RoleStore, SettingsStore, EventBus, Telemetry) and the
// reference implementations in repo_users.go and repo_roles.go back them with
// bun. HTTP controllers in http_controller.go and the request guard in
// middleware/adminauth are thin adapters over the same services.
package admin
