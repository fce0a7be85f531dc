package bentoauth

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ProjectSCARS/bentoauth/internal"
	"github.com/ProjectSCARS/bentoauth/session"
)

// Refresh rotates the presented refresh token and returns a fresh token
// pair. The old refresh token is dead afterwards; presenting it again is
// treated as theft evidence and revokes the whole session.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (string, string, error) {
	if e == nil || e.tokens == nil || e.sessions == nil {
		return "", "", ErrEngineNotReady
	}

	sessionID, providedSecret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrTokenMalformed, func() map[string]string {
			return map[string]string{"reason": "decode_failed"}
		})
		return "", "", ErrTokenMalformed
	}

	if err := e.rateLimiter.CheckRefresh(ctx, sessionID.String()); err != nil {
		e.metricInc(MetricRefreshRateLimited)
		e.emitAudit(ctx, auditEventRefreshRateLimited, false, "", sessionID.String(), ErrRateLimited, nil)
		e.emitRateLimit(ctx, "refresh", func() map[string]string {
			return map[string]string{"session_id": sessionID.String()}
		})
		return "", "", ErrRateLimited
	}

	nextSecret, err := internal.NewRefreshSecret()
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return "", "", err
	}

	now := e.now()
	sess, err := e.sessions.Rotate(
		ctx,
		sessionID.String(),
		internal.HashRefreshSecret(providedSecret),
		internal.HashRefreshSecret(nextSecret),
		e.sessionExpiry(now),
	)
	if err != nil {
		return "", "", e.handleRotateFailure(ctx, sessionID.String(), err)
	}

	identity, err := e.store.GetByID(ctx, sess.IdentityID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		if errors.Is(err, ErrIdentityNotFound) {
			return "", "", ErrTokenMalformed
		}
		return "", "", ErrStoreUnavailable
	}
	if identity.Deactivated {
		// The account went away under a live session. Close it out.
		if err := e.sessions.Revoke(ctx, sess.ID, now); err != nil {
			e.logger.Warn("session revoke after deactivation failed",
				zap.String("session_id", sess.ID),
				zap.Error(err))
		}
		e.metricInc(MetricSessionRevoked)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, identity.ID, sess.ID, ErrAccountDeactivated, func() map[string]string {
			return map[string]string{"reason": "deactivated"}
		})
		return "", "", ErrAccountDeactivated
	}

	access, err := e.tokens.Mint(identity.ID, sess.ID, uint8(identity.RoleLevel), identity.SchoolID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return "", "", err
	}

	refresh, err := internal.EncodeRefreshToken(sessionID, nextSecret)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return "", "", err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, identity.ID, sess.ID, nil, nil)

	return access, refresh, nil
}

func (e *Engine) handleRotateFailure(ctx context.Context, sessionID string, err error) error {
	switch {
	case errors.Is(err, session.ErrRefreshReuse):
		// A stale secret means the token was used twice. Whoever holds
		// the live one may be an attacker, so the session dies.
		e.metricInc(MetricRefreshReuseDetected)
		if revokeErr := e.sessions.Revoke(ctx, sessionID, e.now()); revokeErr != nil {
			e.logger.Warn("session revoke after reuse failed",
				zap.String("session_id", sessionID),
				zap.Error(revokeErr))
		} else {
			e.metricInc(MetricSessionRevoked)
		}
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, "", sessionID, ErrRefreshReuse, nil)
		return ErrRefreshReuse
	case errors.Is(err, session.ErrRevoked):
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", sessionID, ErrTokenRevoked, nil)
		return ErrTokenRevoked
	case errors.Is(err, session.ErrExpired):
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", sessionID, ErrTokenExpired, nil)
		return ErrTokenExpired
	case errors.Is(err, session.ErrNotFound):
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", sessionID, ErrTokenMalformed, func() map[string]string {
			return map[string]string{"reason": "session_not_found"}
		})
		return ErrTokenMalformed
	default:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", sessionID, ErrStoreUnavailable, nil)
		return ErrStoreUnavailable
	}
}

func (e *Engine) mapSessionError(err error) error {
	switch {
	case errors.Is(err, session.ErrRevoked):
		return ErrTokenRevoked
	case errors.Is(err, session.ErrRefreshReuse):
		return ErrRefreshReuse
	case errors.Is(err, session.ErrExpired):
		return ErrTokenExpired
	case errors.Is(err, session.ErrNotFound):
		return ErrTokenMalformed
	default:
		return ErrStoreUnavailable
	}
}

// Logout revokes one session by ID. Idempotent: revoking an already
// closed or unknown session succeeds.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}

	err := e.sessions.Revoke(ctx, sessionID, e.now())
	if err == nil {
		e.metricInc(MetricLogout)
		e.metricInc(MetricSessionRevoked)
	}
	e.emitAudit(ctx, auditEventLogoutSession, err == nil, "", sessionID, err, nil)
	return err
}

// LogoutByAccessToken resolves the session from a verified access token
// and revokes it.
func (e *Engine) LogoutByAccessToken(ctx context.Context, tokenStr string) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}

	claims, err := e.tokens.Parse(tokenStr)
	if err != nil {
		e.emitAudit(ctx, auditEventLogoutSession, false, "", "", ErrTokenMalformed, func() map[string]string {
			return map[string]string{"reason": "invalid_access_token"}
		})
		return ErrTokenMalformed
	}

	return e.Logout(ctx, claims.SID)
}

// LogoutByRefreshToken decodes the presented refresh token and revokes its
// session. The stored secret hash is not checked; a stale rotated-away
// token still closes the session it names.
func (e *Engine) LogoutByRefreshToken(ctx context.Context, refreshToken string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}

	sessionID, _, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		e.emitAudit(ctx, auditEventLogoutSession, false, "", "", ErrTokenMalformed, func() map[string]string {
			return map[string]string{"reason": "decode_failed"}
		})
		return ErrTokenMalformed
	}

	return e.Logout(ctx, sessionID.String())
}

// LogoutAll revokes every live session of the identity.
func (e *Engine) LogoutAll(ctx context.Context, identityID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}

	err := e.sessions.RevokeAllForIdentity(ctx, identityID, e.now())
	if err == nil {
		e.metricInc(MetricLogoutAll)
		e.metricInc(MetricSessionRevoked)
	}
	e.emitAudit(ctx, auditEventLogoutAll, err == nil, identityID, "", err, nil)
	return err
}
