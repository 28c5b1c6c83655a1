package stateauth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/stateauth/internal"
	"github.com/MrEthical07/stateauth/session"
)

const createSessionAttempts = 3

// SessionManager owns the session lifecycle: creation, atomic state rotation,
// lazy expiry on read, and promotion out of the pending phase.
//
//	Docs: docs/session.md
type SessionManager struct {
	repo    SessionRepository
	clock   Clock
	logger  *slog.Logger
	metrics *Metrics
}

func newSessionManager(repo SessionRepository, clock Clock, logger *slog.Logger, metrics *Metrics) *SessionManager {
	return &SessionManager{repo: repo, clock: clock, logger: logger, metrics: metrics}
}

// Create persists a new session for userID. A positive ttl makes the session
// pending until now+ttl.
func (m *SessionManager) Create(ctx context.Context, userID string, meta session.Metadata, ttl time.Duration) (*session.Session, error) {
	now := m.clock.Now().UTC()

	var lastErr error
	for attempt := 0; attempt < createSessionAttempts; attempt++ {
		id, err := internal.NewSessionID()
		if err != nil {
			return nil, err
		}
		state, err := internal.NewState()
		if err != nil {
			return nil, err
		}

		sess := &session.Session{
			ID:        id,
			UserID:    userID,
			State:     state,
			Metadata:  meta,
			CreatedAt: now,
		}
		if ttl > 0 {
			exp := now.Add(ttl)
			sess.ExpiresAt = &exp
		}

		err = m.repo.Create(ctx, sess)
		if err == nil {
			m.metrics.Inc(MetricSessionCreated)
			return sess, nil
		}
		if !errors.Is(err, session.ErrStateConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// LoadActive returns the session matching criteria. A pending session past
// its deadline is deleted and reported as [ErrSessionExpired]; a later
// lookup then returns [ErrSessionNotFound].
func (m *SessionManager) LoadActive(ctx context.Context, criteria session.Criteria) (*session.Session, error) {
	if criteria.Empty() {
		return nil, ErrSessionNotFound
	}

	sess, err := m.repo.Find(ctx, criteria)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if sess.ExpiredAt(m.clock.Now()) {
		if err := m.Revoke(ctx, sess.ID); err != nil {
			m.logger.WarnContext(ctx, "expired session not deleted", "session_id", sess.ID, "error", err)
		}
		m.metrics.Inc(MetricSessionExpired)
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// Rotate replaces the state of sess with a fresh value, conditional on the
// stored state still equalling sess.State.
func (m *SessionManager) Rotate(ctx context.Context, sess *session.Session) (*session.Session, error) {
	next, err := internal.NewState()
	if err != nil {
		return nil, err
	}
	return m.swap(ctx, sess, session.Mutation{
		ExpectedState: sess.State,
		State:         next,
	})
}

// Promote ends the pending phase of sess: it clears ExpiresAt, records the
// second-factor time and rotates the state in one conditional update.
func (m *SessionManager) Promote(ctx context.Context, sess *session.Session) (*session.Session, error) {
	next, err := internal.NewState()
	if err != nil {
		return nil, err
	}
	now := m.clock.Now().UTC()
	out, err := m.swap(ctx, sess, session.Mutation{
		ExpectedState:      sess.State,
		State:              next,
		ClearExpiresAt:     true,
		LastSecondFactorAt: &now,
	})
	if err != nil {
		return nil, err
	}
	m.metrics.Inc(MetricSessionPromoted)
	return out, nil
}

// Revoke deletes the session. Deleting an unknown session is not an error.
func (m *SessionManager) Revoke(ctx context.Context, sessionID string) error {
	return m.repo.Delete(ctx, sessionID)
}

func (m *SessionManager) swap(ctx context.Context, sess *session.Session, mut session.Mutation) (*session.Session, error) {
	out, err := m.repo.CompareAndSwap(ctx, sess.ID, mut)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrStateConflict):
			return nil, ErrSessionStateConflict
		case errors.Is(err, session.ErrNotFound):
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return out, nil
}
