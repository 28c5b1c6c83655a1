// Package flows contains pure-function orchestrators for the engine's login,
// second-factor completion and refresh operations.
//
// Each flow function accepts a typed dependency struct of function fields and
// returns a result carrying either the outcome or a failure kind. The engine
// maps failure kinds to its public error taxonomy, metrics and logs.
//
// # Architecture boundaries
//
// Flow functions coordinate the credential validator, session lifecycle
// manager, second-factor verifier and token codec. They do NOT own any of
// these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import stateauth (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
package flows
