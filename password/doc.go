// Package password hashes and verifies passwords with bcrypt or Argon2id.
//
// # Output formats
//
// Bcrypt hashes use the standard $2a$ modular crypt format. Argon2id hashes
// use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Multi] verifies either family and reports stored hashes from a foreign
// algorithm or weaker parameters through NeedsUpgrade, so callers can re-hash
// on the next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other stateauth package.
//   - Log plaintext passwords.
package password
