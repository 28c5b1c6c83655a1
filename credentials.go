package stateauth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MrEthical07/stateauth/password"
)

// dummyPassword is hashed once at build time so lookups for unknown users
// still pay for one hash verification.
const dummyPassword = "stateauth-dummy-password"

// CredentialValidator checks an identifier/password pair against the user
// repository.
//
//	Docs: docs/credentials.md
type CredentialValidator struct {
	users     UserRepository
	hasher    password.Hasher
	dummyHash string
	upgrade   bool
	logger    *slog.Logger
	metrics   *Metrics
}

func newCredentialValidator(users UserRepository, hasher password.Hasher, upgrade bool, logger *slog.Logger, metrics *Metrics) (*CredentialValidator, error) {
	dummy, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, err
	}
	return &CredentialValidator{
		users:     users,
		hasher:    hasher,
		dummyHash: dummy,
		upgrade:   upgrade,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// Validate returns the user identified by identifier when password matches
// the stored hash. Every failure is [ErrInvalidCredentials], except
// repository outages which are returned as-is.
func (v *CredentialValidator) Validate(ctx context.Context, identifier, pw string) (*User, error) {
	user, err := v.users.FindByIdentifier(ctx, identifier, true)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_, _ = v.hasher.Verify(pw, v.dummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if user == nil || user.PasswordHash == "" {
		_, _ = v.hasher.Verify(pw, v.dummyHash)
		return nil, ErrInvalidCredentials
	}

	ok, err := v.hasher.Verify(pw, user.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}

	if v.upgrade {
		v.maybeUpgrade(ctx, user, pw)
	}

	out := *user
	out.PasswordHash = ""
	return &out, nil
}

func (v *CredentialValidator) maybeUpgrade(ctx context.Context, user *User, pw string) {
	needs, err := v.hasher.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return
	}
	newHash, err := v.hasher.Hash(pw)
	if err != nil {
		v.logger.WarnContext(ctx, "password rehash failed", "user_id", user.ID, "error", err)
		return
	}
	if err := v.users.Update(ctx, user.ID, UserUpdate{PasswordHash: &newHash}); err != nil {
		v.logger.WarnContext(ctx, "password upgrade not persisted", "user_id", user.ID, "error", err)
		return
	}
	v.metrics.Inc(MetricPasswordUpgraded)
}
