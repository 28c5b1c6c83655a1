package middleware

import (
	"net/http"

	"github.com/MrEthical07/stateauth"
)

// RequireAuth admits any caller holding a valid access token.
func RequireAuth(engine *stateauth.Engine) func(http.Handler) http.Handler {
	return Guard(engine, stateauth.RoutePolicy{})
}

// Public admits every caller. A valid token still resolves the caller;
// anything else yields an anonymous result.
func Public(engine *stateauth.Engine) func(http.Handler) http.Handler {
	return Guard(engine, stateauth.RoutePolicy{Public: true})
}

// RequireFreshSecondFactor additionally demands a second-factor
// verification within the engine's freshness window.
//
//	Docs: docs/middleware.md, docs/two_factor.md
func RequireFreshSecondFactor(engine *stateauth.Engine) func(http.Handler) http.Handler {
	return Guard(engine, stateauth.RoutePolicy{RequireFreshSecondFactor: true})
}
