package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/samber/oops"
	"github.com/uptrace/bun"

	"github.com/MrEthical07/stateauth/session"
)

// SessionRepository implements stateauth.SessionRepository using bun.
type SessionRepository struct {
	db *bun.DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *bun.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts sess. A duplicate state returns session.ErrStateConflict.
func (r *SessionRepository) Create(ctx context.Context, sess *session.Session) error {
	if _, err := r.db.NewInsert().Model(fromSession(sess)).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return oops.Code("SESSION_STATE_CONFLICT").
				With("session_id", sess.ID).
				Wrap(session.ErrStateConflict)
		}
		return oops.Code("SESSION_CREATE_FAILED").With("user_id", sess.UserID).Wrap(err)
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

// Find retrieves the oldest session matching criteria.
func (r *SessionRepository) Find(ctx context.Context, criteria session.Criteria) (*session.Session, error) {
	if criteria.Empty() {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(session.ErrNotFound)
	}
	return r.find(ctx, r.db, criteria)
}

func (r *SessionRepository) find(ctx context.Context, db bun.IDB, criteria session.Criteria) (*session.Session, error) {
	var model sessionModel
	q := db.NewSelect().Model(&model)
	if criteria.ID != "" {
		q = q.Where("id = ?", criteria.ID)
	}
	if criteria.State != "" {
		q = q.Where("state = ?", criteria.State)
	}
	if criteria.UserID != "" {
		q = q.Where("user_id = ?", criteria.UserID)
	}

	err := q.Order("created_at").Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").
			With("criteria", criteria).
			Wrap(session.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_FIND_FAILED").Wrap(err)
	}
	return model.toSession(), nil
}

// CompareAndSwap applies m inside a transaction. The UPDATE is filtered on
// the expected state; the follow-up read sees the row this transaction
// just wrote.
func (r *SessionRepository) CompareAndSwap(ctx context.Context, id string, m session.Mutation) (*session.Session, error) {
	var out *session.Session
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewUpdate().
			Model((*sessionModel)(nil)).
			Set("state = ?", m.State).
			Where("id = ?", id).
			Where("state = ?", m.ExpectedState)
		if m.ClearExpiresAt {
			q = q.Set("expires_at = NULL")
		}
		if m.LastSecondFactorAt != nil {
			q = q.Set("last_second_factor_at = ?", m.LastSecondFactorAt.UTC())
		}

		res, err := q.Exec(ctx)
		if err != nil {
			if isUniqueViolation(err) {
				return oops.Code("SESSION_STATE_CONFLICT").With("session_id", id).Wrap(session.ErrStateConflict)
			}
			return oops.Code("SESSION_SWAP_FAILED").With("session_id", id).Wrap(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return r.missOrConflict(ctx, tx, id)
		}

		out, err = r.find(ctx, tx, session.Criteria{ID: id})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SessionRepository) missOrConflict(ctx context.Context, db bun.IDB, id string) error {
	exists, err := db.NewSelect().Model((*sessionModel)(nil)).Where("id = ?", id).Exists(ctx)
	if err != nil {
		return oops.Code("SESSION_SWAP_FAILED").With("session_id", id).Wrap(err)
	}
	if !exists {
		return oops.Code("SESSION_NOT_FOUND").With("session_id", id).Wrap(session.ErrNotFound)
	}
	return oops.Code("SESSION_STATE_CONFLICT").With("session_id", id).Wrap(session.ErrStateConflict)
}

// Delete removes a session by ID.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.NewDelete().Model((*sessionModel)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").With("session_id", id).Wrap(err)
	}
	return nil
}

// DeleteExpired removes pending sessions whose deadline is not after now.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*sessionModel)(nil)).
		Where("expires_at IS NOT NULL").
		Where("expires_at <= ?", now.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, oops.Code("SESSION_PURGE_FAILED").Wrap(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
