// Package memory provides mutex-guarded in-process repositories for
// examples, tests and single-node tools.
package memory

import (
	"context"
	"sync"

	"github.com/MrEthical07/stateauth"
	"github.com/MrEthical07/stateauth/session"
)

// UserRepository keeps users in a map keyed by ID.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]stateauth.User
}

// NewUserRepository returns an empty repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{users: map[string]stateauth.User{}}
}

// Put inserts or replaces u.
func (r *UserRepository) Put(u stateauth.User) {
	r.mu.Lock()
	r.users[u.ID] = u
	r.mu.Unlock()
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*stateauth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, stateauth.ErrUserNotFound
	}
	u.PasswordHash = ""
	return &u, nil
}

// FindByIdentifier matches usernames exactly.
func (r *UserRepository) FindByIdentifier(_ context.Context, identifier string, withPasswordHash bool) (*stateauth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Username == identifier {
			if !withPasswordHash {
				u.PasswordHash = ""
			}
			return &u, nil
		}
	}
	return nil, stateauth.ErrUserNotFound
}

func (r *UserRepository) Update(_ context.Context, id string, upd stateauth.UserUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return stateauth.ErrUserNotFound
	}
	if upd.ExpectSecondFactorEnabled != nil && u.SecondFactorEnabled != *upd.ExpectSecondFactorEnabled {
		return stateauth.ErrPreconditionFailed
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.SecondFactor != nil {
		u.SecondFactorEnabled = upd.SecondFactor.Enabled
		u.SecondFactorSecret = upd.SecondFactor.Secret
	}
	r.users[id] = u
	return nil
}

// SessionRepository keeps sessions in a map with a state index. A single
// mutex makes CompareAndSwap atomic.
type SessionRepository struct {
	mu      sync.Mutex
	byID    map[string]*session.Session
	byState map[string]string
}

// NewSessionRepository returns an empty repository.
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		byID:    map[string]*session.Session{},
		byState: map[string]string{},
	}
}

func (r *SessionRepository) Create(_ context.Context, sess *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byState[sess.State]; taken {
		return session.ErrStateConflict
	}
	r.byID[sess.ID] = sess.Clone()
	r.byState[sess.State] = sess.ID
	return nil
}

func (r *SessionRepository) FindByID(ctx context.Context, id string) (*session.Session, error) {
	return r.Find(ctx, session.Criteria{ID: id})
}

func (r *SessionRepository) FindByState(ctx context.Context, state string) (*session.Session, error) {
	return r.Find(ctx, session.Criteria{State: state})
}

func (r *SessionRepository) Find(_ context.Context, criteria session.Criteria) (*session.Session, error) {
	if criteria.Empty() {
		return nil, session.ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if criteria.State != "" {
		sess, ok := r.byID[r.byState[criteria.State]]
		if !ok || !criteria.Matches(sess) {
			return nil, session.ErrNotFound
		}
		return sess.Clone(), nil
	}

	var oldest *session.Session
	for _, sess := range r.byID {
		if criteria.Matches(sess) && (oldest == nil || sess.CreatedAt.Before(oldest.CreatedAt)) {
			oldest = sess
		}
	}
	if oldest == nil {
		return nil, session.ErrNotFound
	}
	return oldest.Clone(), nil
}

func (r *SessionRepository) CompareAndSwap(_ context.Context, id string, m session.Mutation) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.byID[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	if sess.State != m.ExpectedState {
		return nil, session.ErrStateConflict
	}
	if owner, taken := r.byState[m.State]; taken && owner != id {
		return nil, session.ErrStateConflict
	}

	next := m.Apply(sess)
	delete(r.byState, sess.State)
	r.byState[next.State] = id
	r.byID[id] = next
	return next.Clone(), nil
}

func (r *SessionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.byID[id]; ok {
		delete(r.byState, sess.State)
		delete(r.byID, id)
	}
	return nil
}

// Len returns the number of stored sessions.
func (r *SessionRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

var (
	_ stateauth.UserRepository    = (*UserRepository)(nil)
	_ stateauth.SessionRepository = (*SessionRepository)(nil)
)
