// Package internal holds helpers shared by the engine and its adapters:
// random session identifiers and state values, and duration parsing for
// configuration.
//
// This package is not part of the public API.
package internal
