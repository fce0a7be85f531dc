package bentoauth

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ProjectSCARS/bentoauth/password"
)

// ChangePassword replaces the identity's password after verifying the
// current one. Every live session is revoked on success, forcing fresh
// logins with the new credential.
func (e *Engine) ChangePassword(ctx context.Context, identityID, oldPassword, newPassword string) error {
	if e == nil || e.store == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}
	if identityID == "" || oldPassword == "" {
		return ErrInvalidCredentials
	}
	if err := password.ValidatePassword(newPassword); err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, identityID, "", ErrPasswordPolicy, func() map[string]string {
			return map[string]string{"reason": "password_policy"}
		})
		return ErrPasswordPolicy
	}

	identity, err := e.store.GetByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			e.emitAudit(ctx, auditEventPasswordChangeFailure, false, identityID, "", ErrIdentityNotFound, nil)
			return ErrIdentityNotFound
		}
		return ErrStoreUnavailable
	}
	if identity.Deactivated {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, identityID, "", ErrAccountDeactivated, nil)
		return ErrAccountDeactivated
	}

	oldOK, err := e.passwordHash.Verify(oldPassword, identity.PasswordHash)
	if err != nil || !oldOK {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, identityID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "invalid_old_password"}
		})
		return ErrInvalidCredentials
	}

	same, err := e.passwordHash.Verify(newPassword, identity.PasswordHash)
	if err == nil && same {
		e.metricInc(MetricPasswordChangeReuseRejected)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, identityID, "", ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	return e.applyNewPassword(ctx, identity, newPassword, auditEventPasswordChangeSuccess)
}

// applyNewPassword hashes and stores the password, then revokes every
// live session and clears the failure counters.
func (e *Engine) applyNewPassword(ctx context.Context, identity *Identity, newPassword string, auditEvent string) error {
	newHash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.store.UpdatePasswordHash(ctx, identity.ID, newHash); err != nil {
		return ErrStoreUnavailable
	}

	if err := e.sessions.RevokeAllForIdentity(ctx, identity.ID, e.now()); err != nil {
		e.logger.Warn("session revocation after password update failed",
			zap.String("identity_id", identity.ID),
			zap.Error(err))
		return ErrStoreUnavailable
	}
	e.metricInc(MetricSessionRevoked)

	if e.config.Anomaly.Enabled {
		if err := e.store.ResetFailures(ctx, identity.ID); err != nil {
			e.logger.Warn("failed-attempt counter reset failed",
				zap.String("identity_id", identity.ID),
				zap.Error(err))
		}
	}
	if err := e.rateLimiter.ResetLogin(ctx, identity.Username, clientIPFromContext(ctx)); err != nil {
		e.logger.Warn("login limiter reset failed",
			zap.String("identity_id", identity.ID),
			zap.Error(err))
	}

	if auditEvent == auditEventPasswordChangeSuccess {
		e.metricInc(MetricPasswordChangeSuccess)
	} else {
		e.metricInc(MetricPasswordResetConfirmed)
	}
	e.emitAudit(ctx, auditEvent, true, identity.ID, "", nil, nil)
	return nil
}
