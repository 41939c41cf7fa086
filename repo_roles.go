package admin

import (
	"context"
	"database/sql"
	"errors"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type roles struct {
	repository.Repository[*Role]
	db *bun.DB
}

var _ RoleStore = (*roles)(nil)

// NewRolesRepository builds the bun-backed RoleStore.
func NewRolesRepository(db *bun.DB) RoleStore {
	repo := repository.NewRepository[*Role](db, repository.ModelHandlers[*Role]{
		NewRecord: func() *Role { return &Role{} },
		GetID: func(r *Role) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *Role, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string { return "code" },
	})

	return &roles{
		Repository: repo,
		db:         db,
	}
}

func (r *roles) idb(ctx context.Context) bun.IDB {
	return idbFromContext(ctx, r.db)
}

func (r *roles) FindOne(ctx context.Context, id uuid.UUID) (*Role, error) {
	record := new(Role)

	err := r.idb(ctx).NewSelect().
		Model(record).
		Where("rol.id = ?", id).
		Relation("Permissions").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}

	return record, nil
}

func (r *roles) FindByCode(ctx context.Context, code string) (*Role, error) {
	record := new(Role)

	err := r.idb(ctx).NewSelect().
		Model(record).
		Where("rol.code = ?", code).
		Relation("Permissions").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"code": code,
				})
		}
		return nil, err
	}

	return record, nil
}

func (r *roles) Exists(ctx context.Context) (bool, error) {
	count, err := r.Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *roles) Count(ctx context.Context) (int, error) {
	return r.idb(ctx).NewSelect().
		Model((*Role)(nil)).
		Count(ctx)
}

func (r *roles) FindForUser(ctx context.Context, userID uuid.UUID) ([]*Role, error) {
	var records []*Role

	err := r.idb(ctx).NewSelect().
		Model(&records).
		Join("JOIN admin_users_roles AS usrrol ON usrrol.role_id = rol.id").
		Where("usrrol.user_id = ?", userID).
		Relation("Permissions").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (r *roles) GetSuperAdminWithUserCount(ctx context.Context) (*SuperAdminRole, error) {
	role, err := r.FindByCode(ctx, SuperAdminCode)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrMissingSuperAdminRole
		}
		return nil, err
	}

	count, err := r.idb(ctx).NewSelect().
		Model((*User)(nil)).
		Join("JOIN admin_users_roles AS usrrol ON usrrol.user_id = usr.id").
		Where("usrrol.role_id = ?", role.ID).
		Where("usr.is_active = ?", true).
		Count(ctx)
	if err != nil {
		return nil, err
	}

	return &SuperAdminRole{Role: role, UsersCount: count}, nil
}
