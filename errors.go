package stateauth

import "errors"

var (
	// ErrInvalidCredentials is an exported constant or variable used by the authentication engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is an exported constant or variable used by the authentication engine.
	ErrUserNotFound = errors.New("user not found")
	// ErrSessionNotFound is an exported constant or variable used by the authentication engine.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is an exported constant or variable used by the authentication engine.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionMismatch is an exported constant or variable used by the authentication engine.
	ErrSessionMismatch = errors.New("session does not belong to token subject")
	// ErrInvalidTokenType is an exported constant or variable used by the authentication engine.
	ErrInvalidTokenType = errors.New("invalid token type")
	// ErrInvalidToken is an exported constant or variable used by the authentication engine.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTwoFactorRequired is an exported constant or variable used by the authentication engine.
	ErrTwoFactorRequired = errors.New("two-factor verification required")
	// ErrInvalidTwoFactorCode is an exported constant or variable used by the authentication engine.
	ErrInvalidTwoFactorCode = errors.New("invalid two-factor code")
	// ErrAlreadyEnabled is an exported constant or variable used by the authentication engine.
	ErrAlreadyEnabled = errors.New("two-factor authentication already enabled")
	// ErrNotEnabled is an exported constant or variable used by the authentication engine.
	ErrNotEnabled = errors.New("two-factor authentication not enabled")
	// ErrInvalidRefreshToken is an exported constant or variable used by the authentication engine.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrPreconditionFailed is returned by [UserRepository.Update] when the
	// update's precondition no longer holds.
	ErrPreconditionFailed = errors.New("user update precondition failed")
	// ErrSessionStateConflict reports a lost compare-and-set on session state.
	// Public operations map it to a taxonomy error before returning.
	ErrSessionStateConflict = errors.New("session state changed concurrently")
	// ErrEngineNotReady is an exported constant or variable used by the authentication engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrUnknownAuthenticator is returned for an authenticator kind outside the closed set.
	ErrUnknownAuthenticator = errors.New("unknown authenticator kind")
)
