package stateauth

import (
	"context"
	"time"

	"github.com/MrEthical07/stateauth/session"
)

// User is the account record read through [UserRepository]. PasswordHash is
// populated only when requested.
//
//	Docs: docs/repositories.md
type User struct {
	ID                  string
	Username            string
	PasswordHash        string
	SecondFactorEnabled bool
	SecondFactorSecret  string
}

// SecondFactorChange sets or clears the second-factor flag and secret in one
// update.
type SecondFactorChange struct {
	Enabled bool
	Secret  string
}

// UserUpdate is a partial user update. Nil fields are left unchanged. When
// ExpectSecondFactorEnabled is set, the repository must apply the update only
// if the stored flag still equals it, and return [ErrPreconditionFailed]
// otherwise.
type UserUpdate struct {
	PasswordHash              *string
	SecondFactor              *SecondFactorChange
	ExpectSecondFactorEnabled *bool
}

// UserRepository is the user persistence collaborator.
//
//	Docs: docs/repositories.md
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	FindByIdentifier(ctx context.Context, identifier string, withPasswordHash bool) (*User, error)
	Update(ctx context.Context, id string, u UserUpdate) error
}

// SessionRepository is the session persistence collaborator. Implementations
// must make CompareAndSwap a single atomic conditional update and return
// [session.ErrStateConflict] when the expected state no longer matches.
//
//	Docs: docs/repositories.md
type SessionRepository interface {
	Create(ctx context.Context, sess *session.Session) error
	FindByID(ctx context.Context, id string) (*session.Session, error)
	FindByState(ctx context.Context, state string) (*session.Session, error)
	Find(ctx context.Context, criteria session.Criteria) (*session.Session, error)
	CompareAndSwap(ctx context.Context, id string, m session.Mutation) (*session.Session, error)
	Delete(ctx context.Context, id string) error
}

// Clock is the time source. Tests inject a controllable implementation.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to [Clock].
type ClockFunc func() time.Time

// Now returns f().
func (f ClockFunc) Now() time.Time { return f() }

// LoginState is the position of a login in the
// NoSession → PendingSecondFactor → Authenticated state machine.
type LoginState int

const (
	// StateNoSession is an exported constant or variable used by the authentication engine.
	StateNoSession LoginState = iota
	// StatePendingSecondFactor is an exported constant or variable used by the authentication engine.
	StatePendingSecondFactor
	// StateAuthenticated is an exported constant or variable used by the authentication engine.
	StateAuthenticated
)

func (s LoginState) String() string {
	switch s {
	case StatePendingSecondFactor:
		return "pending_second_factor"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "no_session"
	}
}

// TokenPair is an access token with its refresh token, both bound to the
// same session state.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// LoginResult is returned by [Engine.Login]. Exactly one of Tokens and
// PendingRef is set.
type LoginResult struct {
	State      LoginState
	Pending    bool
	Tokens     *TokenPair
	PendingRef string
}

// SecondFactorEnrollment is returned by [Engine.EnableSecondFactor].
type SecondFactorEnrollment struct {
	Secret string
	URI    string
}

// AuthResult describes an authenticated request. Anonymous results are
// produced only for public routes.
type AuthResult struct {
	Anonymous bool
	UserID    string
	Username  string
	Session   *session.Session
}
