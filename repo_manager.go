package admin

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

type txContextKey struct{}

// RepositoryManager exposes the bun-backed store implementations plus the
// transaction runner the lifecycle manager serializes invariant checks with.
type RepositoryManager interface {
	TxRunner
	Users() UserStore
	Roles() RoleStore
	Settings() SettingsStore
	Validate() error
	MustValidate()
}

type mngr struct {
	db       *bun.DB
	users    UserStore
	roles    RoleStore
	settings SettingsStore
}

// NewRepositoryManager creates the reference store set on top of db. The db
// must have the UserRole m2m model registered.
func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:       db,
		users:    NewUsersRepository(db),
		roles:    NewRolesRepository(db),
		settings: NewSettingsRepository(db),
	}
}

// RegisterModels registers the m2m join table with bun. Call once per db.
func RegisterModels(db *bun.DB) {
	db.RegisterModel((*UserRole)(nil))
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.roles == nil {
		return errors.New("repository roles should be initialized")
	}

	if m.settings == nil {
		return errors.New("repository settings should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

// RunInTx runs fn inside a database transaction. The transaction handle is
// carried in ctx so every store call made from fn joins it.
func (m mngr) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return m.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(context.WithValue(ctx, txContextKey{}, tx))
	})
}

func (m mngr) Users() UserStore {
	return m.users
}

func (m mngr) Roles() RoleStore {
	return m.roles
}

func (m mngr) Settings() SettingsStore {
	return m.settings
}

// idbFromContext resolves the ambient transaction, falling back to db.
func idbFromContext(ctx context.Context, db *bun.DB) bun.IDB {
	if tx, ok := ctx.Value(txContextKey{}).(bun.Tx); ok {
		return tx
	}
	return db
}
