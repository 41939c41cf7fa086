package admin

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProviderOptionsKey is the settings row holding the federated-login policy.
const ProviderOptionsKey = "auth.providers.options"

// Setting is a single persisted configuration entry, keyed by name with a
// JSON value blob.
type Setting struct {
	bun.BaseModel `bun:"table:admin_settings,alias:cfg"`

	Key       string          `bun:"key,pk" json:"key"`
	Value     json.RawMessage `bun:"value,type:jsonb" json:"value"`
	CreatedAt *time.Time      `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt *time.Time      `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

type settings struct {
	db *bun.DB
}

var _ SettingsStore = (*settings)(nil)

// NewSettingsRepository builds the bun-backed SettingsStore.
func NewSettingsRepository(db *bun.DB) SettingsStore {
	return &settings{db: db}
}

func (r *settings) idb(ctx context.Context) bun.IDB {
	return idbFromContext(ctx, r.db)
}

// GetProviderOptions returns the stored federated-login policy. A missing row
// yields the restrictive default: auto-registration off, no default role.
func (r *settings) GetProviderOptions(ctx context.Context) (*ProviderOptions, error) {
	record := new(Setting)

	err := r.idb(ctx).NewSelect().
		Model(record).
		Where("cfg.key = ?", ProviderOptionsKey).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return &ProviderOptions{}, nil
		}
		return nil, errors.Wrap(err, errors.CategoryOperation, "failed to load provider options")
	}

	opts := new(ProviderOptions)
	if err := json.Unmarshal(record.Value, opts); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "malformed provider options payload")
	}

	return opts, nil
}

func (r *settings) SetProviderOptions(ctx context.Context, opts *ProviderOptions) error {
	if opts == nil {
		opts = &ProviderOptions{}
	}

	value, err := json.Marshal(opts)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to encode provider options")
	}

	record := &Setting{
		Key:   ProviderOptionsKey,
		Value: value,
	}

	_, err = r.idb(ctx).NewInsert().
		Model(record).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = current_timestamp").
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "failed to store provider options")
	}

	return nil
}

// CheckRolesBeforeDelete rejects deleting any role currently configured as
// the federated auto-registration default. Dropping it silently would break
// every subsequent first-time federated login.
func CheckRolesBeforeDelete(ctx context.Context, store SettingsStore, ids []uuid.UUID) error {
	opts, err := store.GetProviderOptions(ctx)
	if err != nil {
		return err
	}

	if opts.DefaultRole == nil {
		return nil
	}

	for _, id := range ids {
		if id == *opts.DefaultRole {
			return ErrDefaultRoleProtected
		}
	}

	return nil
}
