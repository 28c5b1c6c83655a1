package stateauth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/stateauth/jwt"
	"github.com/MrEthical07/stateauth/session"
)

// RoutePolicy carries the per-route capability flags checked by
// [Engine.Authorize].
type RoutePolicy struct {
	// Public routes admit anonymous callers and callers whose token fails
	// validation.
	Public bool
	// RequireFreshSecondFactor demands a second-factor verification within
	// TwoFactor.FreshnessWindow.
	RequireFreshSecondFactor bool
}

// ValidateAccess verifies an access token and resolves the session and
// user behind it. The token's state must equal the session's current state.
//
//	Docs: docs/flows.md#validate
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*AuthResult, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}

	res, err := e.validateAccess(ctx, accessToken)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		return nil, err
	}
	e.metricInc(MetricValidateSuccess)
	return res, nil
}

func (e *Engine) validateAccess(ctx context.Context, accessToken string) (*AuthResult, error) {
	claims, err := e.jwtManager.Verify(accessToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Type != jwt.KindAccess {
		return nil, ErrInvalidTokenType
	}

	sess, err := e.sessions.LoadActive(ctx, session.Criteria{State: claims.State})
	if err != nil {
		return nil, err
	}
	if sess.UserID != claims.Subject {
		return nil, ErrSessionMismatch
	}
	if sess.Pending() {
		return nil, ErrTwoFactorRequired
	}

	user, err := e.users.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		UserID:   user.ID,
		Username: user.Username,
		Session:  sess,
	}, nil
}

// Authorize applies policy to a request carrying bearerToken, which may be
// empty. Public routes never fail; they return an anonymous result when the
// token is absent or invalid.
func (e *Engine) Authorize(ctx context.Context, bearerToken string, policy RoutePolicy) (*AuthResult, error) {
	if bearerToken == "" {
		if policy.Public {
			return &AuthResult{Anonymous: true}, nil
		}
		return nil, ErrInvalidToken
	}

	res, err := e.ValidateAccess(ctx, bearerToken)
	if err != nil {
		if policy.Public && !errors.Is(err, ErrEngineNotReady) {
			return &AuthResult{Anonymous: true}, nil
		}
		return nil, err
	}

	if policy.RequireFreshSecondFactor {
		if err := e.RequireFreshSecondFactor(res.Session); err != nil {
			return nil, err
		}
	}
	return res, nil
}
