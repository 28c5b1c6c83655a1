package postgres

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/MrEthical07/stateauth/session"
)

const sessionColumns = `id, user_id, state, expires_at, last_second_factor_at, client_ip, user_agent, device, created_at`

// SessionRepository implements stateauth.SessionRepository using PostgreSQL.
type SessionRepository struct {
	pool poolIface
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool poolIface) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create stores a new session. A duplicate state returns
// session.ErrStateConflict.
func (r *SessionRepository) Create(ctx context.Context, sess *session.Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		sess.ID,
		sess.UserID,
		sess.State,
		sess.ExpiresAt,
		sess.LastSecondFactorAt,
		sess.Metadata.ClientIP,
		sess.Metadata.UserAgent,
		sess.Metadata.Device,
		sess.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("SESSION_STATE_CONFLICT").
				With("session_id", sess.ID).
				Wrap(session.ErrStateConflict)
		}
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("user_id", sess.UserID).
			Wrap(err)
	}
	return nil
}

// FindByID retrieves a session by its ID.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*session.Session, error) {
	return r.Find(ctx, session.Criteria{ID: id})
}

// FindByState retrieves the session currently carrying state.
func (r *SessionRepository) FindByState(ctx context.Context, state string) (*session.Session, error) {
	return r.Find(ctx, session.Criteria{State: state})
}

// Find retrieves the oldest session matching every non-empty criteria field.
func (r *SessionRepository) Find(ctx context.Context, criteria session.Criteria) (*session.Session, error) {
	if criteria.Empty() {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(session.ErrNotFound)
	}

	var (
		where []string
		args  []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where = append(where, column+" = $"+strconv.Itoa(len(args)))
	}
	add("id", criteria.ID)
	add("state", criteria.State)
	add("user_id", criteria.UserID)

	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY created_at
		LIMIT 1
	`, args...)

	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").
			With("criteria", criteria).
			Wrap(session.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_FIND_FAILED").
			With("operation", "find session").
			Wrap(err)
	}
	return sess, nil
}

// CompareAndSwap applies m when the stored state still equals
// m.ExpectedState, in one UPDATE statement.
func (r *SessionRepository) CompareAndSwap(ctx context.Context, id string, m session.Mutation) (*session.Session, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE sessions SET
			state = $3,
			expires_at = CASE WHEN $4::boolean THEN NULL ELSE expires_at END,
			last_second_factor_at = COALESCE($5::timestamptz, last_second_factor_at)
		WHERE id = $1 AND state = $2
		RETURNING `+sessionColumns,
		id, m.ExpectedState, m.State, m.ClearExpiresAt, m.LastSecondFactorAt,
	)

	sess, err := scanSession(row)
	switch {
	case err == nil:
		return sess, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, r.missOrConflict(ctx, id)
	case isUniqueViolation(err):
		return nil, oops.Code("SESSION_STATE_CONFLICT").
			With("session_id", id).
			Wrap(session.ErrStateConflict)
	default:
		return nil, oops.Code("SESSION_SWAP_FAILED").
			With("operation", "swap session state").
			With("session_id", id).
			Wrap(err)
	}
}

// missOrConflict explains an UPDATE that matched no row.
func (r *SessionRepository) missOrConflict(ctx context.Context, id string) error {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return oops.Code("SESSION_SWAP_FAILED").
			With("operation", "check session existence").
			With("session_id", id).
			Wrap(err)
	}
	if !exists {
		return oops.Code("SESSION_NOT_FOUND").With("session_id", id).Wrap(session.ErrNotFound)
	}
	return oops.Code("SESSION_STATE_CONFLICT").With("session_id", id).Wrap(session.ErrStateConflict)
}

// Delete removes a session by ID. Deleting a missing session is not an error.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session").
			With("session_id", id).
			Wrap(err)
	}
	return nil
}

// DeleteExpired removes pending sessions whose deadline passed before now
// and returns how many were removed.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, oops.Code("SESSION_PURGE_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*session.Session, error) {
	var (
		sess      session.Session
		expiresAt *time.Time
		lastSF    *time.Time
	)
	err := row.Scan(
		&sess.ID,
		&sess.UserID,
		&sess.State,
		&expiresAt,
		&lastSF,
		&sess.Metadata.ClientIP,
		&sess.Metadata.UserAgent,
		&sess.Metadata.Device,
		&sess.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	sess.ExpiresAt = expiresAt
	sess.LastSecondFactorAt = lastSF
	return &sess, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
