package bentoauth

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ProjectSCARS/bentoauth/internal/rate"
	"github.com/ProjectSCARS/bentoauth/password"
	"github.com/ProjectSCARS/bentoauth/permission"
	"github.com/ProjectSCARS/bentoauth/token"
)

// Builder assembles an [Engine]. Collaborators are injected with the
// With* methods; Build validates the configuration and wires everything
// together exactly once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store    Store
	sessions SessionStore
	notifier Notifier

	auditSink AuditSink
	logger    *zap.Logger
	clock     func() time.Time

	built bool
}

// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the entire configuration tree.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore injects the identity, attempt, and MFA secret persistence.
func (b *Builder) WithStore(store Store) *Builder {
	b.store = store
	return b
}

// WithSessionStore injects the refresh session registry.
func (b *Builder) WithSessionStore(sessions SessionStore) *Builder {
	b.sessions = sessions
	return b
}

// WithRedis injects the Redis client backing rate limiting and the
// password reset code store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithNotifier injects the out-of-band notification collaborator. Nil
// disables anomaly notifications and password reset delivery.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink injects the audit event consumer.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger injects the structured logger. Nil means no logging.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the engine clock, used by tests to control token
// expiry and TOTP steps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// Build validates the configuration and returns a ready [Engine].
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}
	if b.sessions == nil {
		return nil, errors.New("session store required")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	registry, roleManager, err := permission.NewDefaultRegistry()
	if err != nil {
		return nil, err
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := &Engine{
		config:      cfg,
		registry:    registry,
		roleManager: roleManager,
		store:       b.store,
		sessions:    b.sessions,
		notifier:    b.notifier,
		logger:      logger,
		now:         clock,
	}

	engine.rateLimiter = rate.New(b.redis, rate.Config{
		EnableIPThrottle:        cfg.RateLimit.EnableIPThrottle,
		EnableRefreshThrottle:   cfg.RateLimit.EnableRefreshThrottle,
		MaxLoginAttempts:        cfg.RateLimit.MaxLoginAttempts,
		LoginCooldownDuration:   cfg.RateLimit.LoginCooldown,
		MaxRefreshAttempts:      cfg.RateLimit.MaxRefreshAttempts,
		RefreshCooldownDuration: cfg.RateLimit.RefreshCooldown,
		MaxTOTPAttempts:         cfg.TOTP.MaxVerifyAttempts,
		TOTPCooldownDuration:    cfg.TOTP.VerifyAttemptWindow,
	})
	if cfg.PasswordReset.Enabled {
		engine.resetStore = newPasswordResetStore(b.redis)
	}
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.totp = newTOTPManager(cfg.TOTP)

	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	// Unknown usernames verify against this throwaway hash so the
	// credential path costs the same whether or not the account exists.
	decoy, err := ph.Hash(uuid.NewString())
	if err != nil {
		return nil, err
	}
	engine.decoyHash = decoy

	tm, err := token.NewManager(token.Config{
		AccessTTL:     cfg.Token.AccessTTL,
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
		PublicKey:     cloneBytes(cfg.Token.PublicKey),
		Issuer:        cfg.Token.Issuer,
		Leeway:        cfg.Token.Leeway,
		EncryptClaims: cfg.Token.EncryptClaims,
		EncryptionKey: cloneBytes(cfg.Token.EncryptionKey),
		Now:           clock,
	})
	if err != nil {
		return nil, err
	}
	engine.tokens = tm

	b.built = true

	return engine, nil
}
