package internal

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/google/uuid"
)

// StateBytes is the entropy of a session state value.
const StateBytes = 32

// NewSessionID returns a random UUIDv4 string.
func NewSessionID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewState returns StateBytes of randomness, base64url without padding.
func NewState() (string, error) {
	var raw [StateBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}
