package stateauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/stateauth/internal/flows"
	"github.com/MrEthical07/stateauth/internal/stores"
	"github.com/MrEthical07/stateauth/session"
)

// CompleteSecondFactor verifies code for the pending session referenced by
// pendingRef, promotes the session and returns a pair bound to its new
// state.
//
// A wrong code returns [ErrInvalidTwoFactorCode] and leaves the pending
// session and its deadline untouched. A pending session past its deadline
// returns [ErrSessionExpired] once and [ErrSessionNotFound] afterwards.
//
//	Docs: docs/flows.md#second-factor
func (e *Engine) CompleteSecondFactor(ctx context.Context, pendingRef, code string) (*TokenPair, error) {
	if e == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}

	res := flows.RunCompleteSecondFactor(ctx, pendingRef, code, e.flowDeps.SecondFactor)
	if res.Failure != flows.SecondFactorFailureNone {
		e.metricInc(MetricSecondFactorFailure)
		return nil, e.mapSecondFactorFailure(ctx, res)
	}

	e.metricInc(MetricSecondFactorSuccess)
	return toTokenPair(res.Tokens), nil
}

func (e *Engine) mapSecondFactorFailure(ctx context.Context, res flows.SecondFactorResult) error {
	switch res.Failure {
	case flows.SecondFactorFailureSession:
		return res.Err
	case flows.SecondFactorFailureNotPending:
		return ErrSessionNotFound
	case flows.SecondFactorFailureUser:
		return res.Err
	case flows.SecondFactorFailureNotEnabled:
		return ErrInvalidTwoFactorCode
	case flows.SecondFactorFailureCode:
		if errors.Is(res.Err, stores.ErrCodeCacheBackend) {
			e.logger.WarnContext(ctx, "replay cache unavailable", "user_id", res.UserID, "error", res.Err)
			return res.Err
		}
		if res.Err != nil {
			e.logger.WarnContext(ctx, "stored second-factor secret unusable", "user_id", res.UserID, "error", res.Err)
		}
		return ErrInvalidTwoFactorCode
	case flows.SecondFactorFailurePromote:
		if errors.Is(res.Err, ErrSessionStateConflict) || errors.Is(res.Err, ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return res.Err
	default:
		e.logger.ErrorContext(ctx, "second factor completion failed", "user_id", res.UserID, "error", res.Err)
		return res.Err
	}
}

// EnableSecondFactor generates a TOTP secret for userID and stores it with
// the enabled flag set. The update is conditional on the flag still being
// clear, so a concurrent enable cannot replace the first secret.
func (e *Engine) EnableSecondFactor(ctx context.Context, userID string) (*SecondFactorEnrollment, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.SecondFactorEnabled {
		return nil, ErrAlreadyEnabled
	}

	secret, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	expect := false
	err = e.users.Update(ctx, userID, UserUpdate{
		SecondFactor:              &SecondFactorChange{Enabled: true, Secret: secret},
		ExpectSecondFactorEnabled: &expect,
	})
	if err != nil {
		if errors.Is(err, ErrPreconditionFailed) {
			return nil, ErrAlreadyEnabled
		}
		return nil, err
	}

	e.metricInc(MetricSecondFactorEnabled)
	account := user.Username
	if account == "" {
		account = user.ID
	}
	return &SecondFactorEnrollment{
		Secret: secret,
		URI:    e.totp.ProvisionURI(secret, account),
	}, nil
}

// DisableSecondFactor clears the second-factor flag and secret of userID.
func (e *Engine) DisableSecondFactor(ctx context.Context, userID string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.SecondFactorEnabled {
		return ErrNotEnabled
	}

	expect := true
	err = e.users.Update(ctx, userID, UserUpdate{
		SecondFactor:              &SecondFactorChange{Enabled: false},
		ExpectSecondFactorEnabled: &expect,
	})
	if err != nil {
		if errors.Is(err, ErrPreconditionFailed) {
			return ErrNotEnabled
		}
		return err
	}

	if e.usedCodes != nil {
		if err := e.usedCodes.Forget(ctx, userID); err != nil {
			e.logger.WarnContext(ctx, "replay cache entry not cleared", "user_id", userID, "error", err)
		}
	}
	e.metricInc(MetricSecondFactorDisabled)
	return nil
}

// RequireFreshSecondFactor returns [ErrTwoFactorRequired] unless sess
// recorded a second-factor verification within TwoFactor.FreshnessWindow.
func (e *Engine) RequireFreshSecondFactor(sess *session.Session) error {
	if sess == nil || sess.LastSecondFactorAt == nil {
		e.metricInc(MetricFreshnessRejected)
		return ErrTwoFactorRequired
	}
	if e.clock.Now().Sub(*sess.LastSecondFactorAt) > e.config.TwoFactor.FreshnessWindow {
		e.metricInc(MetricFreshnessRejected)
		return ErrTwoFactorRequired
	}
	return nil
}
