package stateauth

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/stateauth/jwt"
)

func TestValidateAccess(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res := env.login(t, "alice")
	auth, err := env.engine.ValidateAccess(ctx, res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if auth.UserID != "u-alice" || auth.Username != "alice" || auth.Anonymous {
		t.Fatalf("unexpected result %+v", auth)
	}
	if auth.Session == nil || auth.Session.UserID != "u-alice" {
		t.Fatalf("expected session on result")
	}
}

func TestValidateAccessErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res := env.login(t, "alice")
	claims, _ := env.engine.Tokens().Verify(res.Tokens.AccessToken)
	mismatched, err := env.engine.Tokens().Issue(jwt.KindAccess, "u-bob", claims.State)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	cases := []struct {
		name  string
		token string
		want  error
	}{
		{"malformed", "abc", ErrInvalidToken},
		{"refresh as access", res.Tokens.RefreshToken, ErrInvalidTokenType},
		{"owner mismatch", mismatched, ErrSessionMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.engine.ValidateAccess(ctx, tc.token); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	env.users.mu.Lock()
	delete(env.users.users, "u-alice")
	env.users.mu.Unlock()
	if _, err := env.engine.ValidateAccess(ctx, res.Tokens.AccessToken); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestValidateAccessPendingSessionNeedsSecondFactor(t *testing.T) {
	env := newTestEnv(t, nil)
	env.enableSecondFactor(t, "u-alice")

	res := env.login(t, "alice")
	token, err := env.engine.Tokens().Issue(jwt.KindAccess, "u-alice", res.PendingRef)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := env.engine.ValidateAccess(context.Background(), token); !errors.Is(err, ErrTwoFactorRequired) {
		t.Fatalf("expected ErrTwoFactorRequired, got %v", err)
	}
}

func TestAuthorizePolicies(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	res := env.login(t, "alice")

	anon, err := env.engine.Authorize(ctx, "", RoutePolicy{Public: true})
	if err != nil || !anon.Anonymous {
		t.Fatalf("public route without token: %+v, %v", anon, err)
	}
	anon, err = env.engine.Authorize(ctx, "garbage", RoutePolicy{Public: true})
	if err != nil || !anon.Anonymous {
		t.Fatalf("public route with bad token: %+v, %v", anon, err)
	}
	authed, err := env.engine.Authorize(ctx, res.Tokens.AccessToken, RoutePolicy{Public: true})
	if err != nil || authed.Anonymous || authed.UserID != "u-alice" {
		t.Fatalf("public route with good token: %+v, %v", authed, err)
	}

	if _, err := env.engine.Authorize(ctx, "", RoutePolicy{}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := env.engine.Authorize(ctx, res.Tokens.AccessToken, RoutePolicy{RequireFreshSecondFactor: true}); !errors.Is(err, ErrTwoFactorRequired) {
		t.Fatalf("expected ErrTwoFactorRequired, got %v", err)
	}
}

func TestValidateLatencyHistogram(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.Metrics.EnableLatencyHistograms = true })
	res := env.login(t, "alice")

	if _, err := env.engine.ValidateAccess(context.Background(), res.Tokens.AccessToken); err != nil {
		t.Fatalf("validate: %v", err)
	}
	snap := env.engine.MetricsSnapshot()
	var total uint64
	for _, n := range snap.Histograms[MetricValidateLatency] {
		total += n
	}
	if total != 1 {
		t.Fatalf("expected one latency observation, got %d", total)
	}
	if snap.Counters[MetricValidateSuccess] != 1 {
		t.Fatalf("expected one validate success")
	}
}

func TestAuthenticators(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	res := env.login(t, "alice")

	local, err := env.engine.Authenticator(AuthenticatorLocal)
	if err != nil {
		t.Fatalf("local: %v", err)
	}
	out, err := local.Authenticate(ctx, AuthRequest{Identifier: "alice", Password: testPassword})
	if err != nil || out.UserID != "u-alice" {
		t.Fatalf("local authenticate: %+v, %v", out, err)
	}
	if _, err := local.Authenticate(ctx, AuthRequest{Identifier: "alice", Password: "x"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	kind, err := ParseAuthenticatorKind(" Bearer ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	bearer, err := env.engine.Authenticator(kind)
	if err != nil {
		t.Fatalf("bearer: %v", err)
	}
	if bearer.Kind() != AuthenticatorBearer {
		t.Fatalf("unexpected kind %q", bearer.Kind())
	}
	out, err = bearer.Authenticate(ctx, AuthRequest{BearerToken: res.Tokens.AccessToken})
	if err != nil || out.Username != "alice" {
		t.Fatalf("bearer authenticate: %+v, %v", out, err)
	}

	if _, err := ParseAuthenticatorKind("saml"); !errors.Is(err, ErrUnknownAuthenticator) {
		t.Fatalf("expected ErrUnknownAuthenticator, got %v", err)
	}
	if _, err := env.engine.Authenticator("saml"); !errors.Is(err, ErrUnknownAuthenticator) {
		t.Fatalf("expected ErrUnknownAuthenticator, got %v", err)
	}
}
