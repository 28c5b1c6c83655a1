// Package stateauth provides a credential-and-session authentication engine:
// password validation, signed access/refresh tokens bound to a rotating
// session state, compare-and-set refresh rotation, and an optional TOTP
// second factor that gates session promotion.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// stateauth is the public surface. It exposes [Engine], [Builder], [Config],
// the collaborator interfaces [UserRepository] and [SessionRepository], and
// value types. Flow orchestration lives under internal/flows; persistence
// lives in session (Redis) and store/ (SQL adapters).
//
// # What this package must NOT do
//
//   - Cache user or session records between calls. Every operation re-reads
//     from the repositories.
//   - Read-then-write session state outside a repository compare-and-swap.
//   - Import any sub-package that re-imports stateauth (no import cycles).
//
// # Anti-replay contract
//
// A token is valid only while its state claim equals the state stored on its
// session. Refresh and second-factor completion rotate that state, which
// silently invalidates every token issued before the rotation.
package stateauth
