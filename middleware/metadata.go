package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/stateauth"
)

// CaptureMetadata copies the client IP, User-Agent and device hints of each
// request into its context, where [stateauth.Engine.Login] picks them up
// for the new session. The device is the Sec-CH-UA brand list when sent,
// otherwise Mobile or Desktop from Sec-CH-UA-Mobile.
//
// X-Forwarded-For is honored only when trustProxy is set.
func CaptureMetadata(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = stateauth.WithClientIP(ctx, clientIP(r, trustProxy))
			ctx = stateauth.WithUserAgent(ctx, r.UserAgent())
			ctx = stateauth.WithDeviceHints(ctx, r.Header.Get("Sec-CH-UA-Mobile"), r.Header.Get("Sec-CH-UA"))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
