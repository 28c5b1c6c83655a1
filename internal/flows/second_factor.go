package flows

import (
	"context"

	"github.com/MrEthical07/stateauth/session"
)

// SecondFactorFailureKind classifies completion failures for root-level
// mapping.
type SecondFactorFailureKind int

const (
	SecondFactorFailureNone SecondFactorFailureKind = iota
	SecondFactorFailureSession
	SecondFactorFailureNotPending
	SecondFactorFailureUser
	SecondFactorFailureNotEnabled
	SecondFactorFailureCode
	SecondFactorFailurePromote
	SecondFactorFailureIssue
)

// SecondFactorRecord is the flow-local second-factor view of a user.
type SecondFactorRecord struct {
	Enabled bool
	Secret  string
}

// SecondFactorResult carries the promoted session and tokens, or failure
// metadata.
type SecondFactorResult struct {
	Failure SecondFactorFailureKind
	Err     error
	UserID  string
	Session *session.Session
	Tokens  TokenPair
}

// SecondFactorDeps captures completion flow dependencies.
type SecondFactorDeps struct {
	LoadSession     SessionLoader
	GetSecondFactor func(ctx context.Context, userID string) (SecondFactorRecord, error)
	VerifyCode      func(ctx context.Context, userID, secret, code string) (bool, error)
	Promote         SessionMutator
	IssuePair       IssuePairFunc
}

// RunCompleteSecondFactor loads the pending session referenced by
// pendingRef, verifies code, promotes the session and issues tokens bound to
// the promoted state. A wrong code leaves the pending session untouched.
func RunCompleteSecondFactor(ctx context.Context, pendingRef, code string, deps SecondFactorDeps) SecondFactorResult {
	sess, err := deps.LoadSession(ctx, session.Criteria{State: pendingRef})
	if err != nil {
		return SecondFactorResult{Failure: SecondFactorFailureSession, Err: err}
	}
	if !sess.Pending() {
		return SecondFactorResult{Failure: SecondFactorFailureNotPending, UserID: sess.UserID, Session: sess}
	}

	record, err := deps.GetSecondFactor(ctx, sess.UserID)
	if err != nil {
		return SecondFactorResult{Failure: SecondFactorFailureUser, Err: err, UserID: sess.UserID, Session: sess}
	}
	if !record.Enabled || record.Secret == "" {
		return SecondFactorResult{Failure: SecondFactorFailureNotEnabled, UserID: sess.UserID, Session: sess}
	}

	ok, err := deps.VerifyCode(ctx, sess.UserID, record.Secret, code)
	if err != nil || !ok {
		return SecondFactorResult{Failure: SecondFactorFailureCode, Err: err, UserID: sess.UserID, Session: sess}
	}

	promoted, err := deps.Promote(ctx, sess)
	if err != nil {
		return SecondFactorResult{Failure: SecondFactorFailurePromote, Err: err, UserID: sess.UserID, Session: sess}
	}

	pair, err := deps.IssuePair(promoted.UserID, promoted.State)
	if err != nil {
		return SecondFactorResult{Failure: SecondFactorFailureIssue, Err: err, UserID: sess.UserID, Session: promoted}
	}
	return SecondFactorResult{UserID: sess.UserID, Session: promoted, Tokens: pair}
}
