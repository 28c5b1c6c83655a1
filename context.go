package stateauth

import (
	"context"

	"github.com/MrEthical07/stateauth/session"
)

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type deviceContextKey struct{}
type authResultContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. [Engine.Login]
// records it on the session when the explicit metadata leaves it empty.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithDeviceHints attaches the device label derived from client hints.
//
//	Docs: docs/session.md
func WithDeviceHints(ctx context.Context, mobileHint, deviceName string) context.Context {
	return context.WithValue(ctx, deviceContextKey{}, session.DeviceFromHints(mobileHint, deviceName))
}

// WithAuthResult stores res for downstream handlers.
func WithAuthResult(ctx context.Context, res *AuthResult) context.Context {
	return context.WithValue(ctx, authResultContextKey{}, res)
}

// AuthResultFromContext returns the result stored by [WithAuthResult].
func AuthResultFromContext(ctx context.Context) (*AuthResult, bool) {
	if ctx == nil {
		return nil, false
	}
	res, ok := ctx.Value(authResultContextKey{}).(*AuthResult)
	return res, ok && res != nil
}

// MetadataFromContext collects the connection metadata attached to ctx.
func MetadataFromContext(ctx context.Context) session.Metadata {
	if ctx == nil {
		return session.Metadata{}
	}
	var meta session.Metadata
	meta.ClientIP, _ = ctx.Value(clientIPContextKey{}).(string)
	meta.UserAgent, _ = ctx.Value(userAgentContextKey{}).(string)
	meta.Device, _ = ctx.Value(deviceContextKey{}).(string)
	return meta
}

func mergeMetadata(ctx context.Context, meta session.Metadata) session.Metadata {
	fromCtx := MetadataFromContext(ctx)
	if meta.ClientIP == "" {
		meta.ClientIP = fromCtx.ClientIP
	}
	if meta.UserAgent == "" {
		meta.UserAgent = fromCtx.UserAgent
	}
	if meta.Device == "" {
		meta.Device = fromCtx.Device
	}
	if meta.Device == "" {
		meta.Device = session.DeviceDesktop
	}
	return meta
}
