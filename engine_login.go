package bentoauth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ProjectSCARS/bentoauth/internal"
	"github.com/ProjectSCARS/bentoauth/session"
)

// Login verifies the credentials and, when the account has no enabled
// second factor, issues a token pair. Accounts with MFA enabled get
// [ErrMFARequired]; retry with [Engine.LoginWithMFA].
func (e *Engine) Login(ctx context.Context, username, passphrase string) (*LoginResult, error) {
	return e.loginInternal(ctx, username, passphrase, "")
}

// LoginWithMFA verifies the credentials and the TOTP code in one step.
func (e *Engine) LoginWithMFA(ctx context.Context, username, passphrase, code string) (*LoginResult, error) {
	return e.loginInternal(ctx, username, passphrase, code)
}

func (e *Engine) loginInternal(ctx context.Context, username, passphrase, mfaCode string) (*LoginResult, error) {
	if e == nil || e.passwordHash == nil || e.store == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	ip := clientIPFromContext(ctx)

	if err := e.rateLimiter.CheckLogin(ctx, username, ip); err != nil {
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", ErrRateLimited, func() map[string]string {
			return map[string]string{"username": username}
		})
		e.emitRateLimit(ctx, "login", func() map[string]string {
			return map[string]string{"username": username}
		})
		return nil, ErrRateLimited
	}

	if passphrase == "" {
		e.countThrottledFailure(ctx, username, ip)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"username": username, "reason": "empty_password"}
		})
		return nil, ErrInvalidCredentials
	}

	identity, err := e.store.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, ErrIdentityNotFound) {
			return nil, ErrStoreUnavailable
		}
		// Unknown usernames burn a full verify against the decoy hash and
		// the same throttle budget, but leave no durable attempt row;
		// there is no identity to attach one to.
		_, _ = e.passwordHash.Verify(passphrase, e.decoyHash)
		e.countThrottledFailure(ctx, username, ip)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"username": username, "reason": "unknown_username"}
		})
		return nil, ErrInvalidCredentials
	}

	if identity.Deactivated {
		e.metricInc(MetricLoginDeactivated)
		e.emitAudit(ctx, auditEventLoginFailure, false, identity.ID, "", ErrAccountDeactivated, func() map[string]string {
			return map[string]string{"username": username, "reason": "deactivated"}
		})
		return nil, ErrAccountDeactivated
	}

	ok, err := e.passwordHash.Verify(passphrase, identity.PasswordHash)
	if err != nil || !ok {
		e.countThrottledFailure(ctx, username, ip)
		e.handleFailedAttempt(ctx, identity)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, identity.ID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"username": username, "reason": "password_mismatch"}
		})
		return nil, ErrInvalidCredentials
	}

	if err := e.enforceMFAGate(ctx, identity, mfaCode); err != nil {
		return nil, err
	}

	if e.config.Password.UpgradeOnLogin {
		e.rehashOnLogin(ctx, identity, passphrase)
	}
	passphrase = ""

	if limit := e.config.Session.MaxActivePerIdentity; limit > 0 {
		active, err := e.sessions.ActiveCount(ctx, identity.ID)
		if err != nil {
			return nil, ErrStoreUnavailable
		}
		if active >= limit {
			e.metricInc(MetricSessionLimitDenied)
			e.emitAudit(ctx, auditEventLoginFailure, false, identity.ID, "", ErrSessionLimitExceeded, func() map[string]string {
				return map[string]string{"username": username, "reason": "session_limit"}
			})
			return nil, ErrSessionLimitExceeded
		}
	}

	result, sessionID, err := e.issueSession(ctx, identity)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, identity.ID, "", err, func() map[string]string {
			return map[string]string{"username": username, "reason": "session_issue_failed"}
		})
		return nil, err
	}

	// Post-success cleanup is best-effort: the user holds valid tokens
	// at this point regardless.
	if e.config.Anomaly.Enabled {
		if err := e.store.ResetFailures(ctx, identity.ID); err != nil {
			e.logger.Warn("failed-attempt counter reset failed",
				zap.String("identity_id", identity.ID),
				zap.Error(err))
		}
	}
	if err := e.rateLimiter.ResetLogin(ctx, username, ip); err != nil {
		e.logger.Warn("login limiter reset failed",
			zap.String("identity_id", identity.ID),
			zap.Error(err))
	}
	if err := e.store.StampLastLogin(ctx, identity.ID, e.now(), ip); err != nil {
		e.logger.Warn("last login stamp failed",
			zap.String("identity_id", identity.ID),
			zap.Error(err))
	}

	e.metricInc(MetricSessionCreated)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, identity.ID, sessionID, nil, func() map[string]string {
		return map[string]string{"username": username}
	})

	return result, nil
}

// countThrottledFailure bumps the Redis window counters. Limiter errors
// are logged and swallowed; the durable anomaly count is separate.
func (e *Engine) countThrottledFailure(ctx context.Context, username, ip string) {
	if err := e.rateLimiter.IncrementLogin(ctx, username, ip); err != nil {
		e.logger.Warn("login throttle increment failed",
			zap.String("username", username),
			zap.Error(err))
	}
}

func (e *Engine) enforceMFAGate(ctx context.Context, identity *Identity, code string) error {
	secret, err := e.store.GetSecret(ctx, identity.ID)
	if err != nil {
		return ErrStoreUnavailable
	}
	if secret == nil || !secret.Enabled {
		return nil
	}

	if code == "" {
		e.metricInc(MetricMFARequired)
		e.emitAudit(ctx, auditEventLoginMFARequired, false, identity.ID, "", ErrMFARequired, nil)
		return ErrMFARequired
	}

	return e.verifyMFACode(ctx, identity, secret, code)
}

func (e *Engine) verifyMFACode(ctx context.Context, identity *Identity, secret *MFASecret, code string) error {
	if err := e.rateLimiter.CheckTOTP(ctx, identity.ID); err != nil {
		e.metricInc(MetricMFARateLimited)
		e.emitAudit(ctx, auditEventMFARateLimited, false, identity.ID, "", ErrMFARateLimited, nil)
		return ErrMFARateLimited
	}

	ok, counter, err := e.totp.VerifyCode(secret.Secret, code, e.now())
	if err != nil {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, identity.ID, "", ErrMFAInvalidCode, nil)
		return ErrMFAInvalidCode
	}
	if !ok {
		e.recordMFAFailure(ctx, identity)
		return ErrMFAInvalidCode
	}

	if e.config.TOTP.EnforceReplayProtection {
		if counter <= secret.LastUsedCounter {
			e.metricInc(MetricMFAReplayAttempt)
			e.recordMFAFailure(ctx, identity)
			return ErrMFAInvalidCode
		}
		if err := e.store.UpdateSecretLastUsed(ctx, identity.ID, counter); err != nil {
			return ErrStoreUnavailable
		}
	}

	if err := e.rateLimiter.ResetTOTP(ctx, identity.ID); err != nil {
		e.logger.Warn("totp limiter reset failed",
			zap.String("identity_id", identity.ID),
			zap.Error(err))
	}

	e.metricInc(MetricMFASuccess)
	e.emitAudit(ctx, auditEventMFASuccess, true, identity.ID, "", nil, nil)
	return nil
}

func (e *Engine) recordMFAFailure(ctx context.Context, identity *Identity) {
	e.metricInc(MetricMFAFailure)
	e.handleFailedAttempt(ctx, identity)
	if err := e.rateLimiter.RecordTOTPFailure(ctx, identity.ID); err != nil {
		e.logger.Warn("totp failure count failed",
			zap.String("identity_id", identity.ID),
			zap.Error(err))
	}
	e.emitAudit(ctx, auditEventMFAFailure, false, identity.ID, "", ErrMFAInvalidCode, nil)
}

func (e *Engine) rehashOnLogin(ctx context.Context, identity *Identity, passphrase string) {
	needsUpgrade, err := e.passwordHash.NeedsUpgrade(identity.PasswordHash)
	if err != nil || !needsUpgrade {
		return
	}

	// Rehash is best-effort and must not block a successful login.
	upgraded, err := e.passwordHash.Hash(passphrase)
	if err != nil {
		e.logger.Warn("password rehash generation failed",
			zap.String("identity_id", identity.ID),
			zap.Error(err))
		return
	}
	if err := e.store.UpdatePasswordHash(ctx, identity.ID, upgraded); err != nil {
		e.logger.Warn("password rehash update failed",
			zap.String("identity_id", identity.ID),
			zap.Error(err))
		return
	}
	identity.PasswordHash = upgraded
	e.metricInc(MetricPasswordRehashed)
}

// issueSession creates a session row, mints the access token, and
// encodes the opaque refresh token.
func (e *Engine) issueSession(ctx context.Context, identity *Identity) (*LoginResult, string, error) {
	sessionID := uuid.New()
	refreshSecret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, "", err
	}

	now := e.now()
	sess := &session.Session{
		ID:          sessionID.String(),
		IdentityID:  identity.ID,
		RefreshHash: internal.HashRefreshSecret(refreshSecret),
		UserAgent:   userAgentFromContext(ctx),
		IPAddress:   clientIPFromContext(ctx),
		CreatedAt:   now,
		RotatedAt:   now,
		ExpiresAt:   e.sessionExpiry(now),
	}

	if err := e.sessions.Create(ctx, sess); err != nil {
		return nil, "", ErrStoreUnavailable
	}

	access, err := e.tokens.Mint(identity.ID, sess.ID, uint8(identity.RoleLevel), identity.SchoolID)
	if err != nil {
		return nil, "", err
	}

	refresh, err := internal.EncodeRefreshToken(sessionID, refreshSecret)
	if err != nil {
		return nil, "", err
	}

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		Identity:     identity,
	}, sess.ID, nil
}
