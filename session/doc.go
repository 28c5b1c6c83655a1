// Package session provides the Redis-backed session repository and the
// session model shared by every storage adapter.
//
// # Storage layout
//
// Each session is a Redis hash keyed by its ID. A string key maps the current
// state value back to the session ID, and a set per user lists the user's
// session IDs. Create, compare-and-swap and delete each run as a single Lua
// script so the hash and both indexes never disagree.
//
// Pending sessions carry an expiry timestamp. Expiry is evaluated by the
// caller on read; the Redis TTL on pending hashes only reclaims abandoned
// logins after a retention grace period.
//
// # Architecture boundaries
//
// This package owns the [Store] and the [Session] model. It does NOT
// interpret tokens, verify second factors, or decide whether an expired
// session should be removed. Those responsibilities belong to the engine.
//
// # What this package must NOT do
//
//   - Import stateauth, jwt, or password (no upward imports).
//   - Evaluate session expiry inside the compare-and-swap.
//   - Store secrets or password material in [Session] fields.
package session
