package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no session matches the lookup.
var ErrNotFound = errors.New("session not found")

// ErrStateConflict is returned when a conditional update finds a state other
// than the expected one, or when a new state value is already taken.
var ErrStateConflict = errors.New("session state conflict")

// ErrRedisUnavailable is returned for transport and script failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrCorrupt is returned when a stored session cannot be decoded.
var ErrCorrupt = errors.New("session record corrupt")

const (
	swapStatusNotFound  int64 = 0
	swapStatusMismatch  int64 = 2
	swapStatusSwapped   int64 = 3
	swapStatusStateUsed int64 = 4
)

const (
	createStatusStateUsed int64 = 0
	createStatusCreated   int64 = 1
	createStatusIDUsed    int64 = 2
)

const createSessionScript = `
if redis.call("EXISTS", KEYS[2]) == 1 then
  return 0
end
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 2
end
redis.call("HSET", KEYS[1], unpack(ARGV, 4))
redis.call("SET", KEYS[2], ARGV[1])
redis.call("SADD", KEYS[3], ARGV[1])
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call("PEXPIRE", KEYS[1], ttl)
  redis.call("PEXPIRE", KEYS[2], ttl)
end
return 1
`

var createSessionLua = redis.NewScript(createSessionScript)

const swapStateScript = `
local current = redis.call("HGET", KEYS[1], "state")
if not current then
  return {0}
end
if current ~= ARGV[2] then
  return {2}
end
if redis.call("EXISTS", KEYS[3]) == 1 then
  return {4}
end

redis.call("HSET", KEYS[1], "state", ARGV[3])
if ARGV[4] == "1" then
  redis.call("HDEL", KEYS[1], "exp")
  redis.call("PERSIST", KEYS[1])
end
if ARGV[5] ~= "" then
  redis.call("HSET", KEYS[1], "l2f", ARGV[5])
end

if redis.call("GET", KEYS[2]) == ARGV[1] then
  redis.call("DEL", KEYS[2])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl > 0 then
  redis.call("SET", KEYS[3], ARGV[1], "PX", ttl)
else
  redis.call("SET", KEYS[3], ARGV[1])
end

return {3, redis.call("HGETALL", KEYS[1])}
`

var swapStateLua = redis.NewScript(swapStateScript)

const deleteSessionScript = `
local state = redis.call("HGET", KEYS[1], "state")
if not state then
  return 0
end
local uid = redis.call("HGET", KEYS[1], "uid")
redis.call("DEL", KEYS[1])
local stateKey = ARGV[2] .. state
if redis.call("GET", stateKey) == ARGV[1] then
  redis.call("DEL", stateKey)
end
if uid then
  redis.call("SREM", ARGV[3] .. uid, ARGV[1])
end
return 1
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// Store is a Redis-backed session repository. Every state transition runs
// inside a Lua script so the compare-and-set and its index maintenance are
// atomic.
//
//	Docs: docs/session.md
type Store struct {
	redis            redis.UniversalClient
	prefix           string
	pendingRetention time.Duration
}

// NewStore creates a session [Store]. prefix namespaces every key;
// pendingRetention is added to the pending window when computing the Redis
// TTL of pending sessions, so abandoned logins are eventually reclaimed
// without Redis expiring them before the core has seen them expire.
func NewStore(client redis.UniversalClient, prefix string, pendingRetention time.Duration) *Store {
	if prefix == "" {
		prefix = "sa"
	}
	if pendingRetention < 0 {
		pendingRetention = 0
	}
	return &Store{
		redis:            client,
		prefix:           prefix,
		pendingRetention: pendingRetention,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *Store) stateKeyPrefix() string {
	return s.prefix + ":st:"
}

func (s *Store) stateKey(state string) string {
	return s.stateKeyPrefix() + state
}

func (s *Store) userKeyPrefix() string {
	return s.prefix + ":u:"
}

func (s *Store) userKey(userID string) string {
	return s.userKeyPrefix() + userID
}

// Create persists a new session. It fails with [ErrStateConflict] if the
// state value or the session ID is already in use.
//
//	Performance: 1 Lua EVALSHA.
func (s *Store) Create(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return errors.New("session id required")
	}
	fields, err := Encode(sess)
	if err != nil {
		return err
	}

	var ttl time.Duration
	if sess.ExpiresAt != nil {
		ttl = sess.ExpiresAt.Sub(sess.CreatedAt) + s.pendingRetention
		if ttl < time.Millisecond {
			ttl = time.Millisecond
		}
	}

	args := make([]any, 0, 3+len(fields)*2)
	args = append(args, sess.ID, sess.State, ttl.Milliseconds())
	for _, name := range sortedFieldNames(fields) {
		args = append(args, name, fields[name])
	}

	status, err := createSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sess.ID), s.stateKey(sess.State), s.userKey(sess.UserID)},
		args...,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch status {
	case createStatusCreated:
		return nil
	case createStatusStateUsed, createStatusIDUsed:
		return ErrStateConflict
	default:
		return fmt.Errorf("%w: unknown create script status %d", ErrRedisUnavailable, status)
	}
}

// FindByID loads a session by identifier.
//
//	Performance: 1 Redis HGETALL.
func (s *Store) FindByID(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, ErrNotFound
	}
	fields, err := s.redis.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	sess, err := Decode(sessionID, fields)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Join(ErrCorrupt, err)
	}
	return sess, nil
}

// FindByState loads the session currently carrying state. A session that
// rotated away between the index read and the hash read is reported as not
// found, since no session carries that state any more.
//
//	Performance: 1 GET + 1 HGETALL.
func (s *Store) FindByState(ctx context.Context, state string) (*Session, error) {
	if state == "" {
		return nil, ErrNotFound
	}
	sessionID, err := s.redis.Get(ctx, s.stateKey(state)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := s.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.State != state {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Find returns the first session matching every non-empty criteria field.
// User-only lookups scan the user's index set in ID order.
func (s *Store) Find(ctx context.Context, criteria Criteria) (*Session, error) {
	switch {
	case criteria.Empty():
		return nil, errors.New("empty session criteria")
	case criteria.ID != "":
		return matchOrNotFound(s.FindByID(ctx, criteria.ID))(criteria)
	case criteria.State != "":
		return matchOrNotFound(s.FindByState(ctx, criteria.State))(criteria)
	}

	ids, err := s.redis.SMembers(ctx, s.userKey(criteria.UserID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	sort.Strings(ids)
	for _, id := range ids {
		sess, err := s.FindByID(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if criteria.Matches(sess) {
			return sess, nil
		}
	}
	return nil, ErrNotFound
}

func matchOrNotFound(sess *Session, err error) func(Criteria) (*Session, error) {
	return func(c Criteria) (*Session, error) {
		if err != nil {
			return nil, err
		}
		if !c.Matches(sess) {
			return nil, ErrNotFound
		}
		return sess, nil
	}
}

// CompareAndSwap applies m only if the stored state still equals
// m.ExpectedState, moving the state index in the same script.
//
//	Performance: 1 Lua EVALSHA (atomic compare-and-swap).
//	Security: two callers presenting the same expected state cannot both win.
func (s *Store) CompareAndSwap(ctx context.Context, sessionID string, m Mutation) (*Session, error) {
	if sessionID == "" || m.ExpectedState == "" || m.State == "" {
		return nil, errors.New("session id, expected state and next state required")
	}

	clear := "0"
	if m.ClearExpiresAt {
		clear = "1"
	}
	lastSecondFactor := ""
	if m.LastSecondFactorAt != nil {
		lastSecondFactor = strconv.FormatInt(m.LastSecondFactorAt.UnixMilli(), 10)
	}

	result, err := swapStateLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sessionID), s.stateKey(m.ExpectedState), s.stateKey(m.State)},
		sessionID,
		m.ExpectedState,
		m.State,
		clear,
		lastSecondFactor,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid swap script response", ErrRedisUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid swap script status", ErrRedisUnavailable)
	}

	switch code {
	case swapStatusNotFound:
		return nil, ErrNotFound
	case swapStatusMismatch, swapStatusStateUsed:
		return nil, ErrStateConflict
	case swapStatusSwapped:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing swapped session payload", ErrRedisUnavailable)
		}
		fields, err := flatPairs(parts[1])
		if err != nil {
			return nil, err
		}
		sess, err := Decode(sessionID, fields)
		if err != nil {
			return nil, errors.Join(ErrCorrupt, err)
		}
		return sess, nil
	default:
		return nil, fmt.Errorf("%w: unknown swap script status %d", ErrRedisUnavailable, code)
	}
}

// Delete removes a session with its state and user index entries. Deleting
// a missing session is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	_, err := deleteSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sessionID)},
		sessionID,
		s.stateKeyPrefix(),
		s.userKeyPrefix(),
	).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ActiveSessionIDs returns the session IDs indexed for a user.
func (s *Store) ActiveSessionIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func sortedFieldNames(fields map[string]any) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func flatPairs(raw interface{}) (map[string]string, error) {
	items, ok := raw.([]interface{})
	if !ok || len(items)%2 != 0 {
		return nil, fmt.Errorf("%w: invalid session payload", ErrRedisUnavailable)
	}
	out := make(map[string]string, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		k, kok := items[i].(string)
		v, vok := items[i+1].(string)
		if !kok || !vok {
			return nil, fmt.Errorf("%w: invalid session payload entry", ErrRedisUnavailable)
		}
		out[k] = v
	}
	return out, nil
}
