package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/stateauth/session"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureCredentials
	LoginFailureCreateSession
	LoginFailureIssue
)

// LoginUser is the flow-local view of a validated user.
type LoginUser struct {
	ID                  string
	SecondFactorEnabled bool
}

// LoginResult carries either the authenticated pair, the pending session, or
// failure metadata.
type LoginResult struct {
	Failure LoginFailureKind
	Err     error
	UserID  string
	Session *session.Session
	Pending bool
	Tokens  TokenPair
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	ValidateCredentials func(ctx context.Context, identifier, password string) (LoginUser, error)
	CreateSession       func(ctx context.Context, userID string, meta session.Metadata, ttl time.Duration) (*session.Session, error)
	IssuePair           IssuePairFunc
	PendingTTL          time.Duration
}

// RunLogin validates credentials, creates a session and either issues tokens
// or leaves the session pending second-factor verification.
func RunLogin(ctx context.Context, identifier, password string, meta session.Metadata, deps LoginDeps) LoginResult {
	user, err := deps.ValidateCredentials(ctx, identifier, password)
	if err != nil {
		return LoginResult{Failure: LoginFailureCredentials, Err: err}
	}

	var ttl time.Duration
	if user.SecondFactorEnabled {
		ttl = deps.PendingTTL
	}

	sess, err := deps.CreateSession(ctx, user.ID, meta, ttl)
	if err != nil {
		return LoginResult{Failure: LoginFailureCreateSession, Err: err, UserID: user.ID}
	}

	if user.SecondFactorEnabled {
		return LoginResult{UserID: user.ID, Session: sess, Pending: true}
	}

	pair, err := deps.IssuePair(user.ID, sess.State)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, UserID: user.ID, Session: sess}
	}
	return LoginResult{UserID: user.ID, Session: sess, Tokens: pair}
}
