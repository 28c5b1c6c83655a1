package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/samber/oops"
	"github.com/uptrace/bun"

	"github.com/MrEthical07/stateauth"
)

// UserRepository implements stateauth.UserRepository using bun.
type UserRepository struct {
	db *bun.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *bun.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts u.
func (r *UserRepository) Create(ctx context.Context, u *stateauth.User) error {
	now := time.Now().UTC()
	model := &userModel{
		ID:                  u.ID,
		Username:            u.Username,
		PasswordHash:        u.PasswordHash,
		SecondFactorEnabled: u.SecondFactorEnabled,
		SecondFactorSecret:  u.SecondFactorSecret,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if _, err := r.db.NewInsert().Model(model).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return oops.Code("USER_EXISTS").With("username", u.Username).Errorf("username already taken")
		}
		return oops.Code("USER_CREATE_FAILED").With("user_id", u.ID).Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID without the password hash.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*stateauth.User, error) {
	var model userModel
	err := r.db.NewSelect().Model(&model).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("user_id", id).Wrap(stateauth.ErrUserNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").With("user_id", id).Wrap(err)
	}
	u := model.toUser()
	u.PasswordHash = ""
	return u, nil
}

// FindByIdentifier looks a user up by exact username, matching the unique
// column.
func (r *UserRepository) FindByIdentifier(ctx context.Context, identifier string, withPasswordHash bool) (*stateauth.User, error) {
	var model userModel
	err := r.db.NewSelect().Model(&model).Where("username = ?", identifier).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("identifier", identifier).Wrap(stateauth.ErrUserNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_FIND_FAILED").With("identifier", identifier).Wrap(err)
	}
	u := model.toUser()
	if !withPasswordHash {
		u.PasswordHash = ""
	}
	return u, nil
}

// Update applies the non-nil fields of upd, guarded by
// ExpectSecondFactorEnabled when set.
func (r *UserRepository) Update(ctx context.Context, id string, upd stateauth.UserUpdate) error {
	q := r.db.NewUpdate().
		Model((*userModel)(nil)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id)
	if upd.PasswordHash != nil {
		q = q.Set("password_hash = ?", *upd.PasswordHash)
	}
	if upd.SecondFactor != nil {
		q = q.Set("two_factor_enabled = ?", upd.SecondFactor.Enabled).
			Set("two_factor_secret = ?", upd.SecondFactor.Secret)
	}
	if upd.ExpectSecondFactorEnabled != nil {
		q = q.Where("two_factor_enabled = ?", *upd.ExpectSecondFactorEnabled)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").With("user_id", id).Wrap(err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	exists, err := r.db.NewSelect().Model((*userModel)(nil)).Where("id = ?", id).Exists(ctx)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").With("user_id", id).Wrap(err)
	}
	switch {
	case !exists:
		return oops.Code("USER_NOT_FOUND").With("user_id", id).Wrap(stateauth.ErrUserNotFound)
	case upd.ExpectSecondFactorEnabled == nil:
		return nil
	}
	return oops.Code("USER_PRECONDITION_FAILED").With("user_id", id).Wrap(stateauth.ErrPreconditionFailed)
}
