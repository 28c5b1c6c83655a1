package stateauth

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/MrEthical07/stateauth/password"
)

// Config is the complete engine configuration. Every option is explicit and
// passed at construction; nothing is read from the process environment here.
//
//	Docs: docs/config.md
type Config struct {
	JWT       JWTConfig
	Session   SessionConfig
	TwoFactor TwoFactorConfig
	Password  PasswordConfig
	Metrics   MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig defines a public type used by stateauth APIs.
//
// JWTConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte // HS256 secret or Ed25519 private key
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	// VerifyKeys maps kid to verification key. When set, tokens must carry
	// a kid found here, so keys retired from signing keep verifying until
	// removed. KeyID must be one of them.
	VerifyKeys map[string][]byte
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by stateauth APIs.
type SessionConfig struct {
	RedisPrefix string
	// PendingTimeout bounds how long a login may wait for its second factor.
	PendingTimeout time.Duration
	// PendingRetention is extra Redis lifetime for abandoned pending
	// sessions. Expiry itself is always evaluated on read.
	PendingRetention time.Duration
}

/*
====================================
TWO-FACTOR CONFIG
====================================
*/

// TwoFactorConfig defines a public type used by stateauth APIs.
type TwoFactorConfig struct {
	Issuer    string
	Digits    int
	Period    int
	Algorithm string
	// Window is the number of time steps accepted on either side of now.
	Window int
	// FreshnessWindow is how recent a second-factor verification must be
	// for routes that demand one.
	FreshnessWindow time.Duration
	// ReplayProtection rejects a code whose time step was already consumed.
	ReplayProtection bool
	ReplayPrefix     string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig defines a public type used by stateauth APIs.
type PasswordConfig struct {
	Algorithm      string // "bcrypt" (default) or "argon2id"
	BcryptCost     int
	Argon2         password.Argon2Config
	UpgradeOnLogin bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig defines a public type used by stateauth APIs.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the documented defaults. JWT.PrivateKey is left
// empty and must be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
		},
		Session: SessionConfig{
			RedisPrefix:      "sa",
			PendingTimeout:   300 * time.Second,
			PendingRetention: time.Minute,
		},
		TwoFactor: TwoFactorConfig{
			Issuer:          "stateauth",
			Digits:          6,
			Period:          30,
			Algorithm:       "SHA1",
			Window:          1,
			FreshnessWindow: 300 * time.Second,
			ReplayPrefix:    "sa:otp",
		},
		Password: PasswordConfig{
			Algorithm:      string(password.AlgorithmBcrypt),
			BcryptCost:     password.DefaultBcryptCost,
			Argon2:         password.DefaultArgon2Config(),
			UpgradeOnLogin: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	hs256 := c.JWT.SigningMethod == "hs256"
	if err := validation.ValidateStruct(&c.JWT,
		validation.Field(&c.JWT.AccessTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.JWT.RefreshTTL, validation.Required, validation.Min(c.JWT.AccessTTL)),
		validation.Field(&c.JWT.SigningMethod, validation.Required, validation.In("hs256", "ed25519")),
		validation.Field(&c.JWT.PrivateKey,
			validation.When(hs256, validation.Required, validation.Length(32, 0)),
		),
		validation.Field(&c.JWT.PublicKey, validation.When(!hs256 && len(c.JWT.VerifyKeys) == 0, validation.Required)),
		validation.Field(&c.JWT.Leeway, validation.Min(time.Duration(0)), validation.Max(2*time.Minute)),
	); err != nil {
		return sectionError("jwt", err)
	}

	if err := validation.ValidateStruct(&c.Session,
		validation.Field(&c.Session.RedisPrefix, validation.Required),
		validation.Field(&c.Session.PendingTimeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.Session.PendingRetention, validation.Min(time.Duration(0))),
	); err != nil {
		return sectionError("session", err)
	}

	if err := validation.ValidateStruct(&c.TwoFactor,
		validation.Field(&c.TwoFactor.Issuer, validation.Required),
		validation.Field(&c.TwoFactor.Digits, validation.Required, validation.In(6, 8)),
		validation.Field(&c.TwoFactor.Period, validation.Required, validation.Min(15), validation.Max(120)),
		validation.Field(&c.TwoFactor.Algorithm, validation.Required, validation.In("SHA1", "SHA256", "SHA512")),
		validation.Field(&c.TwoFactor.Window, validation.Min(0), validation.Max(10)),
		validation.Field(&c.TwoFactor.FreshnessWindow, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.TwoFactor.ReplayPrefix, validation.When(c.TwoFactor.ReplayProtection, validation.Required)),
	); err != nil {
		return sectionError("two_factor", err)
	}

	bcryptSelected := c.Password.Algorithm == string(password.AlgorithmBcrypt)
	if err := validation.ValidateStruct(&c.Password,
		validation.Field(&c.Password.Algorithm, validation.Required,
			validation.In(string(password.AlgorithmBcrypt), string(password.AlgorithmArgon2id))),
		validation.Field(&c.Password.BcryptCost,
			validation.When(bcryptSelected, validation.Required, validation.Min(4), validation.Max(31))),
	); err != nil {
		return sectionError("password", err)
	}

	return nil
}

type configError struct {
	section string
	err     error
}

func (e *configError) Error() string { return "config " + e.section + ": " + e.err.Error() }

func (e *configError) Unwrap() error { return e.err }

func sectionError(section string, err error) error {
	return &configError{section: section, err: err}
}
