// Package stores provides short-lived Redis records that harden the
// second-factor flow.
//
// # Design
//
// [UsedCodeCache] keeps the last accepted TOTP counter per user with a TTL
// covering the verification window. Updates use WATCH/MULTI optimistic
// transactions with bounded retry; losing the race counts as a replay.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for these records.
// It does NOT compute or compare codes. Those responsibilities belong to the
// engine and internal/flows.
//
// # What this package must NOT do
//
//   - Import stateauth or any sibling internal package.
//   - Store TOTP secrets or submitted codes.
package stores
