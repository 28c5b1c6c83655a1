package flows

import (
	"context"

	"github.com/MrEthical07/stateauth/session"
)

// RefreshFailureKind classifies refresh flow failures. Callers collapse every
// kind into one generic error and use the kind for logs and metrics only.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureToken
	RefreshFailureTokenType
	RefreshFailureUser
	RefreshFailureSession
	RefreshFailureMismatch
	RefreshFailurePending
	RefreshFailureRotate
	RefreshFailureIssue
)

var refreshFailureNames = [...]string{
	RefreshFailureNone:      "none",
	RefreshFailureToken:     "invalid_token",
	RefreshFailureTokenType: "token_type",
	RefreshFailureUser:      "user",
	RefreshFailureSession:   "session",
	RefreshFailureMismatch:  "owner_mismatch",
	RefreshFailurePending:   "pending",
	RefreshFailureRotate:    "rotate",
	RefreshFailureIssue:     "issue",
}

func (k RefreshFailureKind) String() string {
	if int(k) < len(refreshFailureNames) {
		return refreshFailureNames[k]
	}
	return "unknown"
}

// RefreshClaims is the flow-local view of verified token claims.
type RefreshClaims struct {
	Subject string
	State   string
	Refresh bool
}

// RefreshResult carries either the issued pair or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error
	UserID  string
	Session *session.Session
	Tokens  TokenPair
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	VerifyToken func(token string) (RefreshClaims, error)
	UserExists  func(ctx context.Context, userID string) error
	LoadSession SessionLoader
	Rotate      SessionMutator
	IssuePair   IssuePairFunc
}

// RunRefresh verifies a refresh token, resolves the session carrying its
// state, rotates that state with a conditional update and issues a new pair.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	claims, err := deps.VerifyToken(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureToken, Err: err}
	}
	if !claims.Refresh {
		return RefreshResult{Failure: RefreshFailureTokenType, UserID: claims.Subject}
	}

	if err := deps.UserExists(ctx, claims.Subject); err != nil {
		return RefreshResult{Failure: RefreshFailureUser, Err: err, UserID: claims.Subject}
	}

	sess, err := deps.LoadSession(ctx, session.Criteria{State: claims.State})
	if err != nil {
		return RefreshResult{Failure: RefreshFailureSession, Err: err, UserID: claims.Subject}
	}
	if sess.UserID != claims.Subject {
		return RefreshResult{Failure: RefreshFailureMismatch, UserID: claims.Subject, Session: sess}
	}
	if sess.Pending() {
		return RefreshResult{Failure: RefreshFailurePending, UserID: claims.Subject, Session: sess}
	}

	rotated, err := deps.Rotate(ctx, sess)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureRotate, Err: err, UserID: claims.Subject, Session: sess}
	}

	pair, err := deps.IssuePair(rotated.UserID, rotated.State)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, UserID: claims.Subject, Session: rotated}
	}
	return RefreshResult{UserID: claims.Subject, Session: rotated, Tokens: pair}
}
