package password

import (
	"errors"
	"strings"
)

// Algorithm names a supported hash family.
type Algorithm string

const (
	// AlgorithmBcrypt is an exported constant or variable used by the authentication engine.
	AlgorithmBcrypt Algorithm = "bcrypt"
	// AlgorithmArgon2id is an exported constant or variable used by the authentication engine.
	AlgorithmArgon2id Algorithm = "argon2id"
)

// ErrMalformedHash is returned when a stored hash cannot be parsed.
var ErrMalformedHash = errors.New("malformed password hash")

// ErrUnsupportedAlgorithm is returned when no hasher handles a stored hash.
var ErrUnsupportedAlgorithm = errors.New("unsupported password hash algorithm")

// ErrPasswordTooLong is returned when a password exceeds the hasher limit.
var ErrPasswordTooLong = errors.New("password too long")

// Hasher hashes and verifies passwords. Verify returns (false, nil) for a
// wrong password and an error only for unusable hashes.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
	Algorithm() Algorithm
}

// Identify reports which algorithm produced encodedHash.
func Identify(encodedHash string) (Algorithm, bool) {
	switch {
	case strings.HasPrefix(encodedHash, "$argon2id$"):
		return AlgorithmArgon2id, true
	case strings.HasPrefix(encodedHash, "$2a$"),
		strings.HasPrefix(encodedHash, "$2b$"),
		strings.HasPrefix(encodedHash, "$2y$"):
		return AlgorithmBcrypt, true
	default:
		return "", false
	}
}

// Multi hashes with a primary hasher and verifies hashes produced by any of
// its registered hashers. Hashes from a non-primary algorithm always need an
// upgrade.
type Multi struct {
	primary Hasher
	byAlgo  map[Algorithm]Hasher
}

// NewMulti builds a [Multi] around primary plus optional legacy hashers.
func NewMulti(primary Hasher, legacy ...Hasher) *Multi {
	m := &Multi{primary: primary, byAlgo: map[Algorithm]Hasher{primary.Algorithm(): primary}}
	for _, h := range legacy {
		if _, exists := m.byAlgo[h.Algorithm()]; !exists {
			m.byAlgo[h.Algorithm()] = h
		}
	}
	return m
}

// Algorithm returns the primary algorithm.
func (m *Multi) Algorithm() Algorithm { return m.primary.Algorithm() }

// Hash uses the primary hasher.
func (m *Multi) Hash(password string) (string, error) {
	return m.primary.Hash(password)
}

// Verify routes to the hasher matching the stored hash.
func (m *Multi) Verify(password, encodedHash string) (bool, error) {
	h, err := m.route(encodedHash)
	if err != nil {
		return false, err
	}
	return h.Verify(password, encodedHash)
}

// NeedsUpgrade reports true for foreign algorithms and defers to the primary
// hasher otherwise.
func (m *Multi) NeedsUpgrade(encodedHash string) (bool, error) {
	h, err := m.route(encodedHash)
	if err != nil {
		return false, err
	}
	if h.Algorithm() != m.primary.Algorithm() {
		return true, nil
	}
	return h.NeedsUpgrade(encodedHash)
}

func (m *Multi) route(encodedHash string) (Hasher, error) {
	algo, ok := Identify(encodedHash)
	if !ok {
		return nil, ErrMalformedHash
	}
	h, ok := m.byAlgo[algo]
	if !ok {
		return nil, ErrUnsupportedAlgorithm
	}
	return h, nil
}
