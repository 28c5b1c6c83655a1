// Package middleware adapts stateauth route policies to net/http.
//
// # Guards
//
//   - [Guard] evaluates an explicit [stateauth.RoutePolicy].
//   - [RequireAuth] demands a valid access token.
//   - [Public] resolves the caller when possible and never rejects.
//   - [RequireFreshSecondFactor] demands a recent second-factor check.
//
// [CaptureMetadata] records client IP, User-Agent and device hints so that
// sessions created during the request carry them.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. All
// authentication decisions are made by Engine.Authorize.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Touch session storage.
package middleware
