package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/stateauth"
)

// Guard returns middleware that authorizes each request against policy and
// stores the [stateauth.AuthResult] in the request context.
//
// Rejections answer 401, except a missing or stale second factor, which
// answers 403 so clients can tell a step-up apart from a bad token.
//
//	Docs: docs/middleware.md
func Guard(engine *stateauth.Engine, policy stateauth.RoutePolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok && !policy.Public {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res, err := engine.Authorize(r.Context(), token, policy)
			if err != nil {
				if errors.Is(err, stateauth.ErrTwoFactorRequired) {
					http.Error(w, "two_factor_required", http.StatusForbidden)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := stateauth.WithAuthResult(r.Context(), res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AuthResultFromContext returns the result stored by [Guard].
func AuthResultFromContext(r *http.Request) (*stateauth.AuthResult, bool) {
	return stateauth.AuthResultFromContext(r.Context())
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
