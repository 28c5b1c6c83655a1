package postgres

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/MrEthical07/stateauth"
)

// UserRepository implements stateauth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool poolIface
	now  func() time.Time
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool, now: time.Now}
}

// Create inserts a user. The username must be unique.
func (r *UserRepository) Create(ctx context.Context, u *stateauth.User) error {
	now := r.now()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, username, password_hash, two_factor_enabled, two_factor_secret, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, u.ID, u.Username, u.PasswordHash, u.SecondFactorEnabled, u.SecondFactorSecret, now)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("USER_EXISTS").With("username", u.Username).Errorf("username already taken")
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("user_id", u.ID).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID without the password hash.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*stateauth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, username, two_factor_enabled, two_factor_secret
		FROM users WHERE id = $1
	`, id)

	var u stateauth.User
	err := row.Scan(&u.ID, &u.Username, &u.SecondFactorEnabled, &u.SecondFactorSecret)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("user_id", id).Wrap(stateauth.ErrUserNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").With("user_id", id).Wrap(err)
	}
	return &u, nil
}

// FindByIdentifier looks a user up by exact username. The
// password hash is selected only when withPasswordHash is set.
func (r *UserRepository) FindByIdentifier(ctx context.Context, identifier string, withPasswordHash bool) (*stateauth.User, error) {
	hashColumn := "''"
	if withPasswordHash {
		hashColumn = "password_hash"
	}
	row := r.pool.QueryRow(ctx, `
		SELECT id, username, `+hashColumn+`, two_factor_enabled, two_factor_secret
		FROM users WHERE username = $1
	`, identifier)

	var u stateauth.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.SecondFactorEnabled, &u.SecondFactorSecret)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("identifier", identifier).Wrap(stateauth.ErrUserNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_FIND_FAILED").With("identifier", identifier).Wrap(err)
	}
	return &u, nil
}

// Update applies the non-nil fields of upd. With
// ExpectSecondFactorEnabled set the row is only touched while the stored
// flag still matches, otherwise stateauth.ErrPreconditionFailed is returned.
func (r *UserRepository) Update(ctx context.Context, id string, upd stateauth.UserUpdate) error {
	args := []any{id, r.now()}
	sets := []string{"updated_at = $2"}
	bind := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}
	if upd.PasswordHash != nil {
		bind("password_hash", *upd.PasswordHash)
	}
	if upd.SecondFactor != nil {
		bind("two_factor_enabled", upd.SecondFactor.Enabled)
		bind("two_factor_secret", upd.SecondFactor.Secret)
	}

	where := "id = $1"
	if upd.ExpectSecondFactorEnabled != nil {
		args = append(args, *upd.ExpectSecondFactorEnabled)
		where += " AND two_factor_enabled = $" + strconv.Itoa(len(args))
	}

	tag, err := r.pool.Exec(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE `+where, args...)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("user_id", id).
			Wrap(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if upd.ExpectSecondFactorEnabled == nil {
		return oops.Code("USER_NOT_FOUND").With("user_id", id).Wrap(stateauth.ErrUserNotFound)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "check user existence").
			With("user_id", id).
			Wrap(err)
	}
	if !exists {
		return oops.Code("USER_NOT_FOUND").With("user_id", id).Wrap(stateauth.ErrUserNotFound)
	}
	return oops.Code("USER_PRECONDITION_FAILED").With("user_id", id).Wrap(stateauth.ErrPreconditionFailed)
}
