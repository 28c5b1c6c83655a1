package stateauth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCompleteSecondFactorPromotesSession(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	secret := env.enableSecondFactor(t, "u-alice")

	res := env.login(t, "alice")
	pair, err := env.engine.CompleteSecondFactor(ctx, res.PendingRef, env.currentCode(t, secret))
	if err != nil {
		t.Fatalf("complete second factor: %v", err)
	}

	claims, err := env.engine.Tokens().Verify(pair.AccessToken)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if claims.State == res.PendingRef {
		t.Fatalf("promotion must rotate state")
	}

	sess, err := env.store.FindByState(ctx, claims.State)
	if err != nil {
		t.Fatalf("find promoted session: %v", err)
	}
	if sess.ExpiresAt != nil {
		t.Fatalf("promoted session must be unbounded")
	}
	if sess.LastSecondFactorAt == nil || !sess.LastSecondFactorAt.Equal(env.clock.Now()) {
		t.Fatalf("expected lastSecondFactorAt %v, got %v", env.clock.Now(), sess.LastSecondFactorAt)
	}

	// The pending reference is single use.
	_, err = env.engine.CompleteSecondFactor(ctx, res.PendingRef, env.currentCode(t, secret))
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound on reused pending ref, got %v", err)
	}
}

func TestCompleteSecondFactorWrongCodeKeepsPending(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	secret := env.enableSecondFactor(t, "u-alice")

	res := env.login(t, "alice")
	before, err := env.store.FindByState(ctx, res.PendingRef)
	if err != nil {
		t.Fatalf("find pending: %v", err)
	}

	good := env.currentCode(t, secret)
	bad := "000000"
	if bad == good {
		bad = "111111"
	}
	for i := 0; i < 3; i++ {
		if _, err := env.engine.CompleteSecondFactor(ctx, res.PendingRef, bad); !errors.Is(err, ErrInvalidTwoFactorCode) {
			t.Fatalf("expected ErrInvalidTwoFactorCode, got %v", err)
		}
	}

	after, err := env.store.FindByState(ctx, res.PendingRef)
	if err != nil {
		t.Fatalf("pending session lost after wrong codes: %v", err)
	}
	if !after.ExpiresAt.Equal(*before.ExpiresAt) {
		t.Fatalf("wrong codes changed the deadline: %v -> %v", *before.ExpiresAt, *after.ExpiresAt)
	}

	if _, err := env.engine.CompleteSecondFactor(ctx, res.PendingRef, good); err != nil {
		t.Fatalf("correct code after failures: %v", err)
	}
}

func TestCompleteSecondFactorExpiredPending(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	secret := env.enableSecondFactor(t, "u-alice")

	res := env.login(t, "alice")
	env.clock.Advance(300*time.Second + time.Second)

	_, err := env.engine.CompleteSecondFactor(ctx, res.PendingRef, env.currentCode(t, secret))
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	_, err = env.engine.CompleteSecondFactor(ctx, res.PendingRef, env.currentCode(t, secret))
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after lazy delete, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricSessionExpired]; got != 1 {
		t.Fatalf("expected one expired session, got %d", got)
	}
}

func TestCompleteSecondFactorAtDeadlineIsExpired(t *testing.T) {
	env := newTestEnv(t, nil)
	secret := env.enableSecondFactor(t, "u-alice")

	res := env.login(t, "alice")
	env.clock.Advance(300 * time.Second)

	_, err := env.engine.CompleteSecondFactor(context.Background(), res.PendingRef, env.currentCode(t, secret))
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired at the deadline, got %v", err)
	}
}

func TestCompleteSecondFactorRejectsDurableSessionRef(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res := env.login(t, "alice")
	claims, err := env.engine.Tokens().Verify(res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	_, err = env.engine.CompleteSecondFactor(ctx, claims.State, "123456")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for a durable session, got %v", err)
	}
}

func TestCompleteSecondFactorReplayProtection(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.TwoFactor.ReplayProtection = true })
	ctx := context.Background()
	secret := env.enableSecondFactor(t, "u-alice")

	first := env.login(t, "alice")
	second := env.login(t, "alice")
	code := env.currentCode(t, secret)

	if _, err := env.engine.CompleteSecondFactor(ctx, first.PendingRef, code); err != nil {
		t.Fatalf("first completion: %v", err)
	}
	if _, err := env.engine.CompleteSecondFactor(ctx, second.PendingRef, code); !errors.Is(err, ErrInvalidTwoFactorCode) {
		t.Fatalf("expected replayed code to fail, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricReplayRejected]; got != 1 {
		t.Fatalf("expected one replay rejection, got %d", got)
	}

	env.clock.Advance(30 * time.Second)
	if _, err := env.engine.CompleteSecondFactor(ctx, second.PendingRef, env.currentCode(t, secret)); err != nil {
		t.Fatalf("next step code: %v", err)
	}
}

func TestEnableSecondFactorTwice(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	enr, err := env.engine.EnableSecondFactor(ctx, "u-alice")
	if err != nil {
		t.Fatalf("enable: %v", err)
	}
	if !strings.HasPrefix(enr.URI, "otpauth://totp/") || !strings.Contains(enr.URI, "secret="+enr.Secret) {
		t.Fatalf("unexpected provisioning URI %q", enr.URI)
	}

	if _, err := env.engine.EnableSecondFactor(ctx, "u-alice"); !errors.Is(err, ErrAlreadyEnabled) {
		t.Fatalf("expected ErrAlreadyEnabled, got %v", err)
	}
	if got := env.users.get("u-alice").SecondFactorSecret; got != enr.Secret {
		t.Fatalf("second enable changed the secret")
	}
}

func TestEnableSecondFactorLosesConditionalUpdate(t *testing.T) {
	env := newTestEnv(t, nil)
	racing := &racingUserRepo{memUserRepo: env.users}
	env.engine.users = racing

	_, err := env.engine.EnableSecondFactor(context.Background(), "u-bob")
	if !errors.Is(err, ErrAlreadyEnabled) {
		t.Fatalf("expected ErrAlreadyEnabled, got %v", err)
	}
	if got := env.users.get("u-bob").SecondFactorSecret; got != "RACEWINNER" {
		t.Fatalf("concurrent winner's secret was replaced: %q", got)
	}
}

// racingUserRepo enables the second factor between the engine's read and its
// conditional update.
type racingUserRepo struct {
	*memUserRepo
}

func (r *racingUserRepo) Update(ctx context.Context, id string, upd UserUpdate) error {
	r.mu.Lock()
	if u, ok := r.users[id]; ok && !u.SecondFactorEnabled {
		u.SecondFactorEnabled = true
		u.SecondFactorSecret = "RACEWINNER"
	}
	r.mu.Unlock()
	return r.memUserRepo.Update(ctx, id, upd)
}

func TestDisableSecondFactor(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if err := env.engine.DisableSecondFactor(ctx, "u-alice"); !errors.Is(err, ErrNotEnabled) {
		t.Fatalf("expected ErrNotEnabled, got %v", err)
	}

	env.enableSecondFactor(t, "u-alice")
	if err := env.engine.DisableSecondFactor(ctx, "u-alice"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	u := env.users.get("u-alice")
	if u.SecondFactorEnabled || u.SecondFactorSecret != "" {
		t.Fatalf("second factor not cleared: %+v", u)
	}

	res := env.login(t, "alice")
	if res.Pending {
		t.Fatalf("login after disable must not be pending")
	}
}

func TestEnableSecondFactorUnknownUser(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.engine.EnableSecondFactor(context.Background(), "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestRequireFreshSecondFactor(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	secret := env.enableSecondFactor(t, "u-alice")

	res := env.login(t, "alice")
	pair, err := env.engine.CompleteSecondFactor(ctx, res.PendingRef, env.currentCode(t, secret))
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	auth, err := env.engine.Authorize(ctx, pair.AccessToken, RoutePolicy{RequireFreshSecondFactor: true})
	if err != nil {
		t.Fatalf("fresh route: %v", err)
	}

	env.clock.Advance(300*time.Second + time.Second)
	if err := env.engine.RequireFreshSecondFactor(auth.Session); !errors.Is(err, ErrTwoFactorRequired) {
		t.Fatalf("expected ErrTwoFactorRequired after the window, got %v", err)
	}

	// Sessions that never completed a second factor are never fresh.
	plain := env.login(t, "bob")
	bobAuth, err := env.engine.ValidateAccess(ctx, plain.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := env.engine.RequireFreshSecondFactor(bobAuth.Session); !errors.Is(err, ErrTwoFactorRequired) {
		t.Fatalf("expected ErrTwoFactorRequired, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricFreshnessRejected]; got != 2 {
		t.Fatalf("expected two freshness rejections, got %d", got)
	}
}
