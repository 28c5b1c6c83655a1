package stateauth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/stateauth/internal/stores"
	"github.com/MrEthical07/stateauth/jwt"
	"github.com/MrEthical07/stateauth/password"
	"github.com/MrEthical07/stateauth/session"
)

// Builder assembles an [Engine]. A builder can be used once.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config   Config
	redis    redis.UniversalClient
	users    UserRepository
	sessions SessionRepository
	clock    Clock
	logger   *slog.Logger

	built bool
}

// New describes the new operation and its observable behavior.
//
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client. When no session repository is supplied,
// sessions are stored in Redis. Replay protection also requires it.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserRepository describes the withuserrepository operation and its observable behavior.
func (b *Builder) WithUserRepository(users UserRepository) *Builder {
	b.users = users
	return b
}

// WithSessionRepository overrides the Redis session store, for example with
// a SQL-backed repository.
func (b *Builder) WithSessionRepository(sessions SessionRepository) *Builder {
	b.sessions = sessions
	return b
}

// WithClock describes the withclock operation and its observable behavior.
func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

// WithLogger sets the engine logger. The default discards everything.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.users == nil {
		return nil, errors.New("user repository required")
	}

	sessions := b.sessions
	if sessions == nil {
		if b.redis == nil {
			return nil, errors.New("session repository or redis client required")
		}
		sessions = session.NewStore(b.redis, cfg.Session.RedisPrefix, cfg.Session.PendingRetention)
	}
	if cfg.TwoFactor.ReplayProtection && b.redis == nil {
		return nil, errors.New("two-factor replay protection requires redis client")
	}

	clock := b.clock
	if clock == nil {
		clock = systemClock{}
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cfg.JWT.PrivateKey,
		PublicKey:     cfg.JWT.PublicKey,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		VerifyKeys:    cfg.JWT.VerifyKeys,
		Now:           clock.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}

	hasher, err := newPasswordHasher(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("password: %w", err)
	}

	metrics := NewMetrics(cfg.Metrics)

	credentials, err := newCredentialValidator(b.users, hasher, cfg.Password.UpgradeOnLogin, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("password: %w", err)
	}

	e := &Engine{
		config:      cfg,
		clock:       clock,
		logger:      logger,
		metrics:     metrics,
		users:       b.users,
		sessions:    newSessionManager(sessions, clock, logger, metrics),
		credentials: credentials,
		jwtManager:  jm,
		hasher:      hasher,
		totp:        NewTwoFactorVerifier(cfg.TwoFactor, clock),
	}
	if cfg.TwoFactor.ReplayProtection {
		// A step stays acceptable for 2*Window+1 periods.
		ttl := e.totp.Period() * time.Duration(2*cfg.TwoFactor.Window+2)
		e.usedCodes = stores.NewUsedCodeCache(b.redis, cfg.TwoFactor.ReplayPrefix, ttl)
	}
	e.buildFlowDeps()

	b.built = true
	return e, nil
}

// newPasswordHasher returns the configured primary hasher wrapped so hashes
// from the other family still verify and are flagged for upgrade.
func newPasswordHasher(cfg PasswordConfig) (password.Hasher, error) {
	bc, err := newBcryptOrDefault(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	argonCfg := cfg.Argon2
	if argonCfg == (password.Argon2Config{}) {
		argonCfg = password.DefaultArgon2Config()
	}
	ag, err := password.NewArgon2(argonCfg)
	if err != nil {
		return nil, err
	}

	switch password.Algorithm(cfg.Algorithm) {
	case password.AlgorithmArgon2id:
		return password.NewMulti(ag, bc), nil
	case password.AlgorithmBcrypt, "":
		return password.NewMulti(bc, ag), nil
	default:
		return nil, password.ErrUnsupportedAlgorithm
	}
}

func newBcryptOrDefault(cost int) (*password.Bcrypt, error) {
	if cost == 0 {
		cost = password.DefaultBcryptCost
	}
	return password.NewBcrypt(cost)
}
