// Package config loads process settings from the environment, an optional
// .env or YAML file and command-line flags using Viper, and converts them
// into a [stateauth.Config].
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/MrEthical07/stateauth"
	"github.com/MrEthical07/stateauth/internal"
)

// Settings holds the raw process configuration. Durations are strings that
// accept Go syntax, bare seconds, and the d, w and y units.
type Settings struct {
	JWTSecret            string `mapstructure:"JWT_SECRET"`
	JWTPrivateKey        string `mapstructure:"JWT_PRIVATE_KEY"`
	JWTPublicKey         string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTSigningMethod     string `mapstructure:"JWT_SIGNING_METHOD"`
	JWTExpiration        string `mapstructure:"JWT_EXPIRATION"`
	JWTRefreshExpiration string `mapstructure:"JWT_REFRESH_EXPIRATION"`
	JWTIssuer            string `mapstructure:"JWT_ISSUER"`
	JWTAudience          string `mapstructure:"JWT_AUDIENCE"`

	PasswordAlgorithm string `mapstructure:"PASSWORD_ALGORITHM"`
	BcryptSaltRounds  int    `mapstructure:"BCRYPT_SALT_ROUNDS"`

	// AppIssuer is the issuer shown by authenticator apps.
	AppIssuer                 string `mapstructure:"APP_ISSUER"`
	TwoFactorWindow           int    `mapstructure:"2FA_WINDOW"`
	TwoFactorTimeout          string `mapstructure:"2FA_TIMEOUT"`
	TwoFactorValidTimeout     string `mapstructure:"2FA_VALID_TIMEOUT"`
	TwoFactorReplayProtection bool   `mapstructure:"2FA_REPLAY_PROTECTION"`

	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	RedisPrefix string `mapstructure:"REDIS_PREFIX"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	HTTPAddr  string `mapstructure:"HTTP_ADDR"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
}

// Options controls where [Load] looks for settings.
type Options struct {
	// File is a .env or YAML file. Empty means ".env" in the working
	// directory, which may be absent.
	File string
	// Flags, when set, override file and environment values for the flags
	// it defines (see FlagKeys).
	Flags *pflag.FlagSet
}

// FlagKeys maps command-line flag names to setting keys.
var FlagKeys = map[string]string{
	"redis-addr":   "REDIS_ADDR",
	"database-url": "DATABASE_URL",
	"log-format":   "LOG_FORMAT",
	"log-level":    "LOG_LEVEL",
	"http-addr":    "HTTP_ADDR",
	"jwt-secret":   "JWT_SECRET",
}

// Load reads the optional file, then the environment, then flags. Later
// sources win.
func Load(opts Options) (*Settings, error) {
	v := viper.New()

	if opts.File == "" {
		v.SetConfigFile(".env")
		v.SetConfigType("env")
		_ = v.ReadInConfig() // a missing .env is fine
	} else {
		v.SetConfigFile(opts.File)
		if strings.HasSuffix(opts.File, ".env") {
			v.SetConfigType("env")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", opts.File, err)
		}
	}

	v.AutomaticEnv()

	defaults := stateauth.DefaultConfig()
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_SIGNING_METHOD", defaults.JWT.SigningMethod)
	v.SetDefault("JWT_EXPIRATION", "1m")
	v.SetDefault("JWT_REFRESH_EXPIRATION", "7d")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")
	v.SetDefault("PASSWORD_ALGORITHM", defaults.Password.Algorithm)
	v.SetDefault("BCRYPT_SALT_ROUNDS", defaults.Password.BcryptCost)
	v.SetDefault("APP_ISSUER", defaults.TwoFactor.Issuer)
	v.SetDefault("2FA_WINDOW", defaults.TwoFactor.Window)
	v.SetDefault("2FA_TIMEOUT", "300s")
	v.SetDefault("2FA_VALID_TIMEOUT", "300s")
	v.SetDefault("2FA_REPLAY_PROTECTION", false)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PREFIX", defaults.Session.RedisPrefix)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_LEVEL", "info")

	if opts.Flags != nil {
		for name, key := range FlagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("config: bind flag %s: %w", name, err)
				}
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, err
	}

	if s.TwoFactorWindow < 0 {
		return nil, errors.New("config: 2FA_WINDOW must not be negative")
	}
	if s.BcryptSaltRounds < 4 || s.BcryptSaltRounds > 31 {
		return nil, errors.New("config: BCRYPT_SALT_ROUNDS must be between 4 and 31")
	}
	return &s, nil
}

// EngineConfig converts s into an engine configuration. Key settings that
// name an existing file are read from that file.
func (s *Settings) EngineConfig() (stateauth.Config, error) {
	cfg := stateauth.DefaultConfig()

	var err error
	if cfg.JWT.AccessTTL, err = duration("JWT_EXPIRATION", s.JWTExpiration); err != nil {
		return cfg, err
	}
	if cfg.JWT.RefreshTTL, err = duration("JWT_REFRESH_EXPIRATION", s.JWTRefreshExpiration); err != nil {
		return cfg, err
	}
	if cfg.Session.PendingTimeout, err = duration("2FA_TIMEOUT", s.TwoFactorTimeout); err != nil {
		return cfg, err
	}
	if cfg.TwoFactor.FreshnessWindow, err = duration("2FA_VALID_TIMEOUT", s.TwoFactorValidTimeout); err != nil {
		return cfg, err
	}

	cfg.JWT.SigningMethod = strings.ToLower(s.JWTSigningMethod)
	cfg.JWT.Issuer = s.JWTIssuer
	cfg.JWT.Audience = s.JWTAudience
	if cfg.JWT.SigningMethod == "ed25519" {
		if cfg.JWT.PrivateKey, err = keyMaterial(s.JWTPrivateKey); err != nil {
			return cfg, err
		}
		if cfg.JWT.PublicKey, err = keyMaterial(s.JWTPublicKey); err != nil {
			return cfg, err
		}
	} else if s.JWTSecret != "" {
		cfg.JWT.PrivateKey = []byte(s.JWTSecret)
	}

	cfg.Password.Algorithm = s.PasswordAlgorithm
	cfg.Password.BcryptCost = s.BcryptSaltRounds

	cfg.TwoFactor.Issuer = s.AppIssuer
	cfg.TwoFactor.Window = s.TwoFactorWindow
	cfg.TwoFactor.ReplayProtection = s.TwoFactorReplayProtection
	if s.RedisPrefix != "" {
		cfg.Session.RedisPrefix = s.RedisPrefix
		cfg.TwoFactor.ReplayPrefix = s.RedisPrefix + ":otp"
	}

	return cfg, cfg.Validate()
}

func duration(key, raw string) (time.Duration, error) {
	d, err := internal.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func keyMaterial(v string) ([]byte, error) {
	if v == "" {
		return nil, nil
	}
	if strings.Contains(v, "-----BEGIN") {
		return []byte(v), nil
	}
	b, err := os.ReadFile(v)
	if err != nil {
		return nil, fmt.Errorf("config: read key file: %w", err)
	}
	return b, nil
}
