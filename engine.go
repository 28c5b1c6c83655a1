package stateauth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MrEthical07/stateauth/internal/flows"
	"github.com/MrEthical07/stateauth/internal/stores"
	"github.com/MrEthical07/stateauth/jwt"
	"github.com/MrEthical07/stateauth/password"
)

// Engine is the login orchestrator. It ties the credential validator, token
// codec, second-factor verifier and session lifecycle manager into the
// login, second-factor and refresh operations.
//
// Engine instances are built once with [Builder] and are safe for
// concurrent use.
//
//	Docs: docs/engine.md
type Engine struct {
	config      Config
	clock       Clock
	logger      *slog.Logger
	metrics     *Metrics
	users       UserRepository
	sessions    *SessionManager
	credentials *CredentialValidator
	jwtManager  *jwt.Manager
	hasher      password.Hasher
	totp        *TwoFactorVerifier
	usedCodes   *stores.UsedCodeCache
	flowDeps    flows.Deps
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Sessions returns the session lifecycle manager.
func (e *Engine) Sessions() *SessionManager { return e.sessions }

// Credentials returns the credential validator.
func (e *Engine) Credentials() *CredentialValidator { return e.credentials }

// TwoFactor returns the TOTP verifier.
func (e *Engine) TwoFactor() *TwoFactorVerifier { return e.totp }

// Tokens returns the token codec.
func (e *Engine) Tokens() *jwt.Manager { return e.jwtManager }

// HashPassword hashes pw with the configured primary algorithm.
func (e *Engine) HashPassword(pw string) (string, error) {
	if e == nil || e.hasher == nil {
		return "", ErrEngineNotReady
	}
	return e.hasher.Hash(pw)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) issuePair(subject, state string) (flows.TokenPair, error) {
	access, err := e.jwtManager.Issue(jwt.KindAccess, subject, state)
	if err != nil {
		return flows.TokenPair{}, err
	}
	refresh, err := e.jwtManager.Issue(jwt.KindRefresh, subject, state)
	if err != nil {
		return flows.TokenPair{}, err
	}
	return flows.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (e *Engine) buildFlowDeps() {
	e.flowDeps = flows.Deps{
		Login: flows.LoginDeps{
			ValidateCredentials: func(ctx context.Context, identifier, pw string) (flows.LoginUser, error) {
				user, err := e.credentials.Validate(ctx, identifier, pw)
				if err != nil {
					return flows.LoginUser{}, err
				}
				return flows.LoginUser{ID: user.ID, SecondFactorEnabled: user.SecondFactorEnabled}, nil
			},
			CreateSession: e.sessions.Create,
			IssuePair:     e.issuePair,
			PendingTTL:    e.config.Session.PendingTimeout,
		},
		SecondFactor: flows.SecondFactorDeps{
			LoadSession: e.sessions.LoadActive,
			GetSecondFactor: func(ctx context.Context, userID string) (flows.SecondFactorRecord, error) {
				user, err := e.users.GetByID(ctx, userID)
				if err != nil {
					return flows.SecondFactorRecord{}, err
				}
				return flows.SecondFactorRecord{Enabled: user.SecondFactorEnabled, Secret: user.SecondFactorSecret}, nil
			},
			VerifyCode: e.verifyLoginCode,
			Promote:    e.sessions.Promote,
			IssuePair:  e.issuePair,
		},
		Refresh: flows.RefreshDeps{
			VerifyToken: func(token string) (flows.RefreshClaims, error) {
				claims, err := e.jwtManager.Verify(token)
				if err != nil {
					return flows.RefreshClaims{}, err
				}
				return flows.RefreshClaims{
					Subject: claims.Subject,
					State:   claims.State,
					Refresh: claims.Type == jwt.KindRefresh,
				}, nil
			},
			UserExists: func(ctx context.Context, userID string) error {
				_, err := e.users.GetByID(ctx, userID)
				return err
			},
			LoadSession: e.sessions.LoadActive,
			Rotate:      e.sessions.Rotate,
			IssuePair:   e.issuePair,
		},
	}
}

// verifyLoginCode checks code against secret and, when replay protection is
// on, consumes the matched time step.
func (e *Engine) verifyLoginCode(ctx context.Context, userID, secret, code string) (bool, error) {
	ok, counter, err := e.totp.VerifyStep(secret, code, e.config.TwoFactor.Window)
	if err != nil || !ok {
		return false, err
	}
	if e.usedCodes == nil {
		return true, nil
	}
	if err := e.usedCodes.Consume(ctx, userID, counter); err != nil {
		if errors.Is(err, stores.ErrCodeAlreadyUsed) {
			e.metricInc(MetricReplayRejected)
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func toTokenPair(p flows.TokenPair) *TokenPair {
	return &TokenPair{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken}
}
