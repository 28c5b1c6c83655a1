package stateauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/stateauth/internal/flows"
	"github.com/MrEthical07/stateauth/session"
)

// Login validates identifier and password and opens a session.
//
// Without a second factor the session is durable and the result carries an
// access/refresh pair bound to its state. With a second factor enabled the
// session is pending for Session.PendingTimeout and the result carries only
// PendingRef, which [Engine.CompleteSecondFactor] accepts. Empty metadata
// fields are filled from values attached with [WithClientIP],
// [WithUserAgent] and [WithDeviceHints].
//
//	Docs: docs/flows.md#login
func (e *Engine) Login(ctx context.Context, identifier, pw string, meta session.Metadata) (*LoginResult, error) {
	if e == nil || e.credentials == nil {
		return nil, ErrEngineNotReady
	}

	res := flows.RunLogin(ctx, identifier, pw, mergeMetadata(ctx, meta), e.flowDeps.Login)
	switch res.Failure {
	case flows.LoginFailureNone:
	case flows.LoginFailureCredentials:
		e.metricInc(MetricLoginFailure)
		if errors.Is(res.Err, ErrInvalidCredentials) {
			return nil, ErrInvalidCredentials
		}
		return nil, res.Err
	default:
		e.metricInc(MetricLoginFailure)
		e.logger.ErrorContext(ctx, "login failed after credential check",
			"user_id", res.UserID, "error", res.Err)
		return nil, res.Err
	}

	if res.Pending {
		e.metricInc(MetricLoginPending)
		return &LoginResult{
			State:      StatePendingSecondFactor,
			Pending:    true,
			PendingRef: res.Session.State,
		}, nil
	}

	e.metricInc(MetricLoginSuccess)
	return &LoginResult{
		State:  StateAuthenticated,
		Tokens: toTokenPair(res.Tokens),
	}, nil
}
