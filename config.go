package bentoauth

import (
	"errors"
	"time"
)

// Config is the typed configuration tree for [Engine]. Build validates it
// fail-fast; a zero Config is not usable, start from [DefaultConfig].
type Config struct {
	Token          TokenConfig
	Session        SessionConfig
	Password       PasswordConfig
	PasswordReset  PasswordResetConfig
	Anomaly        AnomalyConfig
	TOTP           TOTPConfig
	RateLimit      RateLimitConfig
	Audit          AuditConfig
	Metrics        MetricsConfig
	ValidationMode ValidationMode
}

// TokenConfig controls access-token minting and verification.
type TokenConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
	// EncryptClaims seals the role and school claims in a
	// chacha20poly1305 envelope inside the signed token.
	EncryptClaims bool
	EncryptionKey []byte // 32 bytes when EncryptClaims is set
}

// SessionConfig controls the refresh-token session registry.
type SessionConfig struct {
	RefreshTTL time.Duration
	// MaxActivePerIdentity caps live sessions per account at login.
	// Zero disables the cap.
	MaxActivePerIdentity int
}

// PasswordConfig holds Argon2id parameters.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

// PasswordResetConfig controls the one-time reset code flow.
type PasswordResetConfig struct {
	Enabled     bool
	CodeTTL     time.Duration
	CodeDigits  int
	MaxAttempts int
}

// AnomalyConfig controls the failed-login tracker.
type AnomalyConfig struct {
	Enabled bool
	// Threshold is the consecutive-failure count that marks an account
	// Locked and triggers the notification. Locked accounts may still log
	// in; the tracker warns rather than blocks.
	Threshold     int
	NotifyTimeout time.Duration
}

// TOTPConfig controls the time-based one-time code second factor.
type TOTPConfig struct {
	Issuer    string
	Digits    int
	Period    int // seconds per step
	Skew      int // accepted steps of clock drift in each direction
	Algorithm string
	// EnforceReplayProtection rejects a code at or below the last
	// accepted counter.
	EnforceReplayProtection bool
	MaxVerifyAttempts       int
	VerifyAttemptWindow     time.Duration
}

// RateLimitConfig holds the Redis fixed-window throttle budgets.
type RateLimitConfig struct {
	MaxLoginAttempts      int
	LoginCooldown         time.Duration
	EnableIPThrottle      bool
	EnableRefreshThrottle bool
	MaxRefreshAttempts    int
	RefreshCooldown       time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking when the buffer is full.
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// ValidationMode selects how much state [Engine.Validate] consults.
type ValidationMode int

const (
	// ModeInherit resolves to the engine-wide default mode.
	ModeInherit ValidationMode = iota
	// ModeJWTOnly validates signature and expiry only.
	ModeJWTOnly
	// ModeHybrid adds the identity deactivation check.
	ModeHybrid
	// ModeStrict additionally requires a live session record.
	ModeStrict
)

// RouteMode is a per-call override for [Engine.Validate].
type RouteMode = ValidationMode

// DefaultConfig returns the BENTO defaults: 30-minute access tokens,
// 7-day refresh sessions, a failure threshold of 5, and 6-digit TOTP with
// a 30-second step tolerant of one step of drift.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     30 * time.Minute,
			SigningMethod: "ed25519",
			Issuer:        "bentoauth",
		},
		Session: SessionConfig{
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		PasswordReset: PasswordResetConfig{
			Enabled:     true,
			CodeTTL:     15 * time.Minute,
			CodeDigits:  6,
			MaxAttempts: 5,
		},
		Anomaly: AnomalyConfig{
			Enabled:       true,
			Threshold:     5,
			NotifyTimeout: 10 * time.Second,
		},
		TOTP: TOTPConfig{
			Issuer:                  "BENTO",
			Digits:                  6,
			Period:                  30,
			Skew:                    1,
			Algorithm:               "SHA1",
			EnforceReplayProtection: true,
			MaxVerifyAttempts:       5,
			VerifyAttemptWindow:     5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			MaxLoginAttempts:      10,
			LoginCooldown:         15 * time.Minute,
			EnableIPThrottle:      true,
			EnableRefreshThrottle: true,
			MaxRefreshAttempts:    30,
			RefreshCooldown:       time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		ValidationMode: ModeHybrid,
	}
}

// Validate checks the configuration and returns the first violation found.
func (c *Config) Validate() error {
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token.AccessTTL must be > 0")
	}
	if c.Token.SigningMethod != "ed25519" && c.Token.SigningMethod != "hs256" {
		return errors.New("Token.SigningMethod must be ed25519 or hs256")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("Token.Leeway must be in [0, 2m]")
	}
	if c.Token.EncryptClaims && len(c.Token.EncryptionKey) != 32 {
		return errors.New("Token.EncryptionKey must be 32 bytes when EncryptClaims is set")
	}
	if c.Session.RefreshTTL <= 0 {
		return errors.New("Session.RefreshTTL must be > 0")
	}
	if c.Session.RefreshTTL <= c.Token.AccessTTL {
		return errors.New("Session.RefreshTTL must exceed Token.AccessTTL")
	}
	if c.Session.MaxActivePerIdentity < 0 {
		return errors.New("Session.MaxActivePerIdentity must be >= 0")
	}
	if c.Anomaly.Enabled && c.Anomaly.Threshold <= 0 {
		return errors.New("Anomaly.Threshold must be > 0 when enabled")
	}
	if c.Anomaly.Enabled && c.Anomaly.NotifyTimeout <= 0 {
		return errors.New("Anomaly.NotifyTimeout must be > 0 when enabled")
	}
	if c.PasswordReset.Enabled {
		if c.PasswordReset.CodeTTL <= 0 {
			return errors.New("PasswordReset.CodeTTL must be > 0 when enabled")
		}
		if c.PasswordReset.CodeDigits < 6 || c.PasswordReset.CodeDigits > 10 {
			return errors.New("PasswordReset.CodeDigits must be in [6, 10]")
		}
		if c.PasswordReset.MaxAttempts <= 0 {
			return errors.New("PasswordReset.MaxAttempts must be > 0 when enabled")
		}
	}
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 8 {
		return errors.New("TOTP.Digits must be in [6, 8]")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("TOTP.Period must be > 0")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 2 {
		return errors.New("TOTP.Skew must be in [0, 2]")
	}
	switch c.TOTP.Algorithm {
	case "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("TOTP.Algorithm must be SHA1, SHA256, or SHA512")
	}
	if c.TOTP.MaxVerifyAttempts <= 0 {
		return errors.New("TOTP.MaxVerifyAttempts must be > 0")
	}
	if c.TOTP.VerifyAttemptWindow <= 0 {
		return errors.New("TOTP.VerifyAttemptWindow must be > 0")
	}
	if c.RateLimit.MaxLoginAttempts <= 0 {
		return errors.New("RateLimit.MaxLoginAttempts must be > 0")
	}
	if c.RateLimit.LoginCooldown <= 0 {
		return errors.New("RateLimit.LoginCooldown must be > 0")
	}
	if c.RateLimit.EnableRefreshThrottle {
		if c.RateLimit.MaxRefreshAttempts <= 0 {
			return errors.New("RateLimit.MaxRefreshAttempts must be > 0 when refresh throttling is enabled")
		}
		if c.RateLimit.RefreshCooldown <= 0 {
			return errors.New("RateLimit.RefreshCooldown must be > 0 when refresh throttling is enabled")
		}
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit.BufferSize must be > 0 when enabled")
	}
	switch c.ValidationMode {
	case ModeJWTOnly, ModeHybrid, ModeStrict:
	default:
		return errors.New("ValidationMode must be JWTOnly, Hybrid, or Strict")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	out.Token.EncryptionKey = cloneBytes(cfg.Token.EncryptionKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
