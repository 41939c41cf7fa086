package admin

import (
	"context"
	"database/sql"
	"errors"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var _ UserStore = (*users)(nil)

// NewUsersRepository builds the bun-backed UserStore. Calls made through a
// RunInTx context join that transaction.
func NewUsersRepository(db *bun.DB) UserStore {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string { return "email" },
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (r *users) idb(ctx context.Context) bun.IDB {
	return idbFromContext(ctx, r.db)
}

func applyUserFilter(q *bun.SelectQuery, filter UserFilter) *bun.SelectQuery {
	if filter.ID != nil {
		q = q.Where("usr.id = ?", *filter.ID)
	}

	if filter.Email != "" {
		q = q.Where("lower(usr.email) = lower(?)", filter.Email)
	}

	if filter.IsActive != nil {
		q = q.Where("usr.is_active = ?", *filter.IsActive)
	}

	if filter.RegistrationToken != "" {
		q = q.Where("usr.registration_token = ?", filter.RegistrationToken)
	}

	if filter.ResetPasswordToken != "" {
		q = q.Where("usr.reset_password_token = ?", filter.ResetPasswordToken)
	}

	if len(filter.IDs) > 0 {
		q = q.Where("usr.id IN (?)", bun.In(filter.IDs))
	}

	return q
}

func (r *users) FindOne(ctx context.Context, filter UserFilter, populateRoles bool) (*User, error) {
	record := new(User)

	q := r.idb(ctx).NewSelect().Model(record)
	q = applyUserFilter(q, filter)

	if populateRoles {
		q = q.Relation("Roles").Relation("Roles.Permissions")
	}

	if err := q.Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}

	return record, nil
}

func (r *users) Create(ctx context.Context, user *User) (*User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	idb := r.idb(ctx)

	if _, err := idb.NewInsert().Model(user).Exec(ctx); err != nil {
		return nil, err
	}

	if len(user.Roles) > 0 {
		if err := r.replaceRoles(ctx, idb, user.ID, roleIDsOf(user.Roles)); err != nil {
			return nil, err
		}
	}

	return r.FindOne(ctx, UserFilter{ID: &user.ID}, true)
}

func (r *users) Update(ctx context.Context, id uuid.UUID, patch UserPatch) (*User, error) {
	idb := r.idb(ctx)

	q := idb.NewUpdate().Model((*User)(nil)).Where("usr.id = ?", id)
	touched := false

	set := func(column string, value any) {
		q = q.Set("? = ?", bun.Ident(column), value)
		touched = true
	}

	if patch.Firstname != nil {
		set("firstname", *patch.Firstname)
	}

	if patch.Lastname != nil {
		set("lastname", *patch.Lastname)
	}

	if patch.Username != nil {
		set("username", *patch.Username)
	}

	if patch.Email != nil {
		set("email", *patch.Email)
	}

	if patch.Phone != nil {
		set("phone", *patch.Phone)
	}

	if patch.PasswordHash != nil {
		set("password_hash", *patch.PasswordHash)
	}

	if patch.IsActive != nil {
		set("is_active", *patch.IsActive)
	}

	if patch.RegistrationToken != nil {
		set("registration_token", *patch.RegistrationToken)
	}

	if patch.ResetPasswordToken != nil {
		set("reset_password_token", *patch.ResetPasswordToken)
	}

	if touched {
		set("updated_at", bun.Safe("current_timestamp"))

		res, err := q.Exec(ctx)
		if err != nil {
			return nil, err
		}

		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return nil, repository.NewRecordNotFound()
		}
	}

	if patch.RoleIDs != nil {
		if err := r.replaceRoles(ctx, idb, id, patch.RoleIDs); err != nil {
			return nil, err
		}
	}

	return r.FindOne(ctx, UserFilter{ID: &id}, true)
}

func (r *users) Delete(ctx context.Context, filter UserFilter) ([]*User, error) {
	idb := r.idb(ctx)

	var records []*User
	q := applyUserFilter(idb.NewSelect().Model(&records), filter)
	if err := q.Relation("Roles").Scan(ctx); err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return records, nil
	}

	ids := make([]uuid.UUID, len(records))
	for i, u := range records {
		ids[i] = u.ID
	}

	if _, err := idb.NewDelete().
		Model((*UserRole)(nil)).
		Where("usrrol.user_id IN (?)", bun.In(ids)).
		Exec(ctx); err != nil {
		return nil, err
	}

	if _, err := idb.NewDelete().
		Model((*User)(nil)).
		Where("usr.id IN (?)", bun.In(ids)).
		Exec(ctx); err != nil {
		return nil, err
	}

	return records, nil
}

func (r *users) Count(ctx context.Context, filter UserFilter) (int, error) {
	q := applyUserFilter(r.idb(ctx).NewSelect().Model((*User)(nil)), filter)
	return q.Count(ctx)
}

// CountSuperAdminsIn counts how many of ids are active holders of the
// super-admin role. Used to decide whether a batch delete would remove the
// last one.
func (r *users) CountSuperAdminsIn(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	return r.idb(ctx).NewSelect().
		Model((*User)(nil)).
		Join("JOIN admin_users_roles AS usrrol ON usrrol.user_id = usr.id").
		Join("JOIN admin_roles AS rol ON rol.id = usrrol.role_id").
		Where("rol.code = ?", SuperAdminCode).
		Where("usr.is_active = ?", true).
		Where("usr.id IN (?)", bun.In(ids)).
		Count(ctx)
}

// replaceRoles swaps the user's role assignments for exactly ids.
func (r *users) replaceRoles(ctx context.Context, idb bun.IDB, userID uuid.UUID, ids []uuid.UUID) error {
	if _, err := idb.NewDelete().
		Model((*UserRole)(nil)).
		Where("usrrol.user_id = ?", userID).
		Exec(ctx); err != nil {
		return err
	}

	if len(ids) == 0 {
		return nil
	}

	links := make([]*UserRole, len(ids))
	for i, roleID := range ids {
		links[i] = &UserRole{UserID: userID, RoleID: roleID}
	}

	_, err := idb.NewInsert().Model(&links).Exec(ctx)
	return err
}

func roleIDsOf(roles []*Role) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(roles))
	for _, role := range roles {
		if role != nil {
			ids = append(ids, role.ID)
		}
	}
	return ids
}
