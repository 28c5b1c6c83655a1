package stateauth

import (
	"context"
	"strings"
)

// AuthenticatorKind names one of the supported authentication strategies.
type AuthenticatorKind string

const (
	// AuthenticatorLocal checks an identifier and password.
	AuthenticatorLocal AuthenticatorKind = "local"
	// AuthenticatorBearer checks an access token.
	AuthenticatorBearer AuthenticatorKind = "bearer"
)

// ParseAuthenticatorKind maps a configuration string to a kind.
func ParseAuthenticatorKind(s string) (AuthenticatorKind, error) {
	switch k := AuthenticatorKind(strings.ToLower(strings.TrimSpace(s))); k {
	case AuthenticatorLocal, AuthenticatorBearer:
		return k, nil
	default:
		return "", ErrUnknownAuthenticator
	}
}

// AuthRequest is the input to an [Authenticator]. Each strategy reads only
// its own fields.
type AuthRequest struct {
	Identifier  string
	Password    string
	BearerToken string
}

// Authenticator is a single authentication strategy.
type Authenticator interface {
	Kind() AuthenticatorKind
	Authenticate(ctx context.Context, req AuthRequest) (*AuthResult, error)
}

// LocalAuthenticator authenticates with the credential validator. It does
// not open a session.
type LocalAuthenticator struct {
	engine *Engine
}

// Kind returns [AuthenticatorLocal].
func (LocalAuthenticator) Kind() AuthenticatorKind { return AuthenticatorLocal }

// Authenticate returns the user when the password matches.
func (a LocalAuthenticator) Authenticate(ctx context.Context, req AuthRequest) (*AuthResult, error) {
	user, err := a.engine.credentials.Validate(ctx, req.Identifier, req.Password)
	if err != nil {
		return nil, err
	}
	return &AuthResult{UserID: user.ID, Username: user.Username}, nil
}

// BearerAuthenticator authenticates with [Engine.ValidateAccess].
type BearerAuthenticator struct {
	engine *Engine
}

// Kind returns [AuthenticatorBearer].
func (BearerAuthenticator) Kind() AuthenticatorKind { return AuthenticatorBearer }

// Authenticate validates req.BearerToken.
func (a BearerAuthenticator) Authenticate(ctx context.Context, req AuthRequest) (*AuthResult, error) {
	return a.engine.ValidateAccess(ctx, req.BearerToken)
}

// Authenticator returns the strategy for kind.
func (e *Engine) Authenticator(kind AuthenticatorKind) (Authenticator, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	switch kind {
	case AuthenticatorLocal:
		return LocalAuthenticator{engine: e}, nil
	case AuthenticatorBearer:
		return BearerAuthenticator{engine: e}, nil
	default:
		return nil, ErrUnknownAuthenticator
	}
}
