package stateauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/MrEthical07/stateauth/jwt"
	"github.com/MrEthical07/stateauth/session"
)

func TestRefreshRotatesState(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res := env.login(t, "alice")
	pair, err := env.engine.Refresh(ctx, res.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	oldClaims, _ := env.engine.Tokens().Verify(res.Tokens.RefreshToken)
	newClaims, err := env.engine.Tokens().Verify(pair.RefreshToken)
	if err != nil {
		t.Fatalf("verify new refresh: %v", err)
	}
	if newClaims.State == oldClaims.State {
		t.Fatalf("refresh must rotate the session state")
	}

	sess, err := env.store.Find(ctx, session.Criteria{UserID: "u-alice"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if sess.State != newClaims.State {
		t.Fatalf("stored state %q does not match new token state %q", sess.State, newClaims.State)
	}

	// The old access token died with the old state.
	if _, err := env.engine.ValidateAccess(ctx, res.Tokens.AccessToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected old access token to be rejected, got %v", err)
	}
	if _, err := env.engine.ValidateAccess(ctx, pair.AccessToken); err != nil {
		t.Fatalf("new access token: %v", err)
	}
}

func TestRefreshReuseRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res := env.login(t, "alice")
	pair, err := env.engine.Refresh(ctx, res.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, res.Tokens.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken on reuse, got %v", err)
	}
	if _, err := env.engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("chained refresh: %v", err)
	}
}

func TestRefreshFailuresCollapse(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res := env.login(t, "alice")
	aliceClaims, _ := env.engine.Tokens().Verify(res.Tokens.RefreshToken)

	foreign, err := env.engine.Tokens().Issue(jwt.KindRefresh, "u-bob", aliceClaims.State)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	ghost, err := env.engine.Tokens().Issue(jwt.KindRefresh, "u-ghost", aliceClaims.State)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	unknownState, err := env.engine.Tokens().Issue(jwt.KindRefresh, "u-alice", "no-such-state")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	cases := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.token"},
		{"access token", res.Tokens.AccessToken},
		{"owner mismatch", foreign},
		{"unknown user", ghost},
		{"unknown state", unknownState},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.engine.Refresh(ctx, tc.token)
			if !errors.Is(err, ErrInvalidRefreshToken) {
				t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
			}
		})
	}

	// None of the rejected attempts touched alice's session.
	if _, err := env.engine.Refresh(ctx, res.Tokens.RefreshToken); err != nil {
		t.Fatalf("valid refresh after rejected attempts: %v", err)
	}
}

func TestRefreshRejectsExpiredToken(t *testing.T) {
	env := newTestEnv(t, nil)
	res := env.login(t, "alice")

	env.clock.Advance(7*24*time.Hour + time.Second)
	if _, err := env.engine.Refresh(context.Background(), res.Tokens.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
	}
}

func TestRefreshRejectsExpiredPendingSession(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.enableSecondFactor(t, "u-alice")

	res := env.login(t, "alice")
	// A validly signed refresh token bound to the pending state.
	token, err := env.engine.Tokens().Issue(jwt.KindRefresh, "u-alice", res.PendingRef)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := env.engine.Refresh(ctx, token); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("pending session must not refresh, got %v", err)
	}

	env.clock.Advance(301 * time.Second)
	if _, err := env.engine.Refresh(ctx, token); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expired session must not refresh, got %v", err)
	}
	if _, err := env.store.FindByState(ctx, res.PendingRef); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expired session should be deleted on read, got %v", err)
	}
}

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	env := newTestEnv(t, nil)
	res := env.login(t, "alice")

	success, fail := raceRefresh(t, env.engine, res.Tokens.RefreshToken, 16)
	if success != 1 {
		t.Fatalf("expected exactly one refresh success, got %d", success)
	}
	if fail != 15 {
		t.Fatalf("expected 15 refresh failures, got %d", fail)
	}
}

func TestRefreshConcurrencySingleWinnerMemoryRepository(t *testing.T) {
	defer goleak.VerifyNone(t)

	users := newMemUserRepo()
	users.add(t, "u-alice", "alice", 4)
	engine, err := New().
		WithConfig(testConfig()).
		WithUserRepository(users).
		WithSessionRepository(newMemSessionRepo()).
		WithClock(newFakeClock()).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	res, err := engine.Login(context.Background(), "alice", testPassword, session.Metadata{})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	success, fail := raceRefresh(t, engine, res.Tokens.RefreshToken, 2)
	if success != 1 || fail != 1 {
		t.Fatalf("expected one winner and one loser, got %d/%d", success, fail)
	}
}

func raceRefresh(t *testing.T, engine *Engine, token string, n int) (success, fail int) {
	t.Helper()

	var wg sync.WaitGroup
	wg.Add(n)
	start := make(chan struct{})
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			<-start
			_, err := engine.Refresh(context.Background(), token)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrInvalidRefreshToken):
			fail++
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	return success, fail
}
