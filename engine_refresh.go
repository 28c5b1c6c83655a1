package stateauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/stateauth/internal/flows"
)

// Refresh exchanges a refresh token for a new pair and rotates the session
// state, so the presented token cannot be used again. Of two concurrent
// calls with the same token exactly one succeeds.
//
// Every failure is reported as [ErrInvalidRefreshToken]. The specific cause
// is logged at debug level only.
//
//	Docs: docs/flows.md#refresh
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	res := flows.RunRefresh(ctx, refreshToken, e.flowDeps.Refresh)
	if res.Failure != flows.RefreshFailureNone {
		e.metricInc(MetricRefreshFailure)
		if errors.Is(res.Err, ErrSessionStateConflict) {
			e.metricInc(MetricRefreshConflict)
		}
		e.logger.DebugContext(ctx, "refresh rejected",
			"reason", res.Failure.String(), "user_id", res.UserID, "error", res.Err)
		return nil, ErrInvalidRefreshToken
	}

	e.metricInc(MetricRefreshSuccess)
	return toTokenPair(res.Tokens), nil
}
