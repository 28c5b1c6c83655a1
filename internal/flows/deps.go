package flows

import (
	"context"

	"github.com/MrEthical07/stateauth/session"
)

// Deps groups flow dependency sets. The root engine builds this once and
// delegates each operation to the matching flow implementation.
type Deps struct {
	Login        LoginDeps
	SecondFactor SecondFactorDeps
	Refresh      RefreshDeps
}

// TokenPair is the flow-local issued token pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// IssuePairFunc signs an access/refresh pair bound to a session state.
type IssuePairFunc func(subject, state string) (TokenPair, error)

// SessionLoader resolves a session through the lifecycle manager, which
// already applies lazy expiry.
type SessionLoader func(context.Context, session.Criteria) (*session.Session, error)

// SessionMutator applies a conditional state change to a loaded session.
type SessionMutator func(context.Context, *session.Session) (*session.Session, error)
