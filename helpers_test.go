package stateauth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/MrEthical07/stateauth/session"
)

const testPassword = "correct-pw"

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[string]*User{}}
}

func (r *memUserRepo) add(t testing.TB, id, username string, cost int) *User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), cost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &User{ID: id, Username: username, PasswordHash: string(hash)}
	r.mu.Lock()
	r.users[id] = u
	r.mu.Unlock()
	return u
}

func (r *memUserRepo) get(id string) User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.users[id]
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *u
	out.PasswordHash = ""
	return &out, nil
}

func (r *memUserRepo) FindByIdentifier(_ context.Context, identifier string, withHash bool) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == identifier {
			out := *u
			if !withHash {
				out.PasswordHash = ""
			}
			return &out, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *memUserRepo) Update(_ context.Context, id string, upd UserUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	if upd.ExpectSecondFactorEnabled != nil && u.SecondFactorEnabled != *upd.ExpectSecondFactorEnabled {
		return ErrPreconditionFailed
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.SecondFactor != nil {
		u.SecondFactorEnabled = upd.SecondFactor.Enabled
		u.SecondFactorSecret = upd.SecondFactor.Secret
	}
	return nil
}

// memSessionRepo is a mutex-guarded SessionRepository used where Redis is
// not under test.
type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: map[string]*session.Session{}}
}

func (r *memSessionRepo) Create(_ context.Context, sess *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.State == sess.State {
			return session.ErrStateConflict
		}
	}
	r.sessions[sess.ID] = sess.Clone()
	return nil
}

func (r *memSessionRepo) FindByID(ctx context.Context, id string) (*session.Session, error) {
	return r.Find(ctx, session.Criteria{ID: id})
}

func (r *memSessionRepo) FindByState(ctx context.Context, state string) (*session.Session, error) {
	return r.Find(ctx, session.Criteria{State: state})
}

func (r *memSessionRepo) Find(_ context.Context, c session.Criteria) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if c.Matches(s) {
			return s.Clone(), nil
		}
	}
	return nil, session.ErrNotFound
}

func (r *memSessionRepo) CompareAndSwap(_ context.Context, id string, m session.Mutation) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	if s.State != m.ExpectedState {
		return nil, session.ErrStateConflict
	}
	next := m.Apply(s)
	r.sessions[id] = next
	return next.Clone(), nil
}

func (r *memSessionRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.BcryptCost = bcrypt.MinCost
	return cfg
}

type testEnv struct {
	engine *Engine
	users  *memUserRepo
	clock  *fakeClock
	store  *session.Store
	mr     *miniredis.Miniredis
}

func newTestEnv(t testing.TB, mutate func(*Config)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	users := newMemUserRepo()
	users.add(t, "u-alice", "alice", bcrypt.MinCost)
	users.add(t, "u-bob", "bob", bcrypt.MinCost)

	clock := newFakeClock()
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserRepository(users).
		WithClock(clock).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	return &testEnv{
		engine: engine,
		users:  users,
		clock:  clock,
		store:  session.NewStore(rdb, cfg.Session.RedisPrefix, cfg.Session.PendingRetention),
		mr:     mr,
	}
}

// enableSecondFactor enrolls userID and returns the secret.
func (env *testEnv) enableSecondFactor(t *testing.T, userID string) string {
	t.Helper()
	enr, err := env.engine.EnableSecondFactor(context.Background(), userID)
	if err != nil {
		t.Fatalf("enable second factor: %v", err)
	}
	return enr.Secret
}

func (env *testEnv) currentCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := env.engine.TwoFactor().CodeAt(secret, env.clock.Now())
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	return code
}

func (env *testEnv) login(t testing.TB, username string) *LoginResult {
	t.Helper()
	res, err := env.engine.Login(context.Background(), username, testPassword, session.Metadata{})
	if err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	return res
}
