package bentoauth

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// BeginMFAEnrollment generates a fresh TOTP secret for the identity and
// stores it in pending state. The returned provisioning material is shown
// to the user once; the raw secret is never retrievable afterwards.
// Restarting enrollment replaces an unconfirmed secret.
func (e *Engine) BeginMFAEnrollment(ctx context.Context, identityID string) (*MFAProvision, error) {
	if e == nil || e.store == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}

	identity, err := e.store.GetByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, ErrStoreUnavailable
	}
	if identity.Deactivated {
		return nil, ErrAccountDeactivated
	}

	existing, err := e.store.GetSecret(ctx, identityID)
	if err != nil {
		return nil, ErrStoreUnavailable
	}
	if existing != nil && existing.Enabled {
		e.emitAudit(ctx, auditEventMFAEnrollmentStarted, false, identityID, "", ErrMFAAlreadyEnabled, nil)
		return nil, ErrMFAAlreadyEnabled
	}
	if existing != nil {
		if err := e.store.DeleteSecret(ctx, identityID); err != nil {
			return nil, ErrStoreUnavailable
		}
	}

	raw, encoded, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	if err := e.store.CreatePendingSecret(ctx, identityID, raw, e.now()); err != nil {
		return nil, ErrStoreUnavailable
	}

	e.metricInc(MetricMFAEnrollmentStarted)
	e.emitAudit(ctx, auditEventMFAEnrollmentStarted, true, identityID, "", nil, nil)

	return &MFAProvision{
		SecretBase32: encoded,
		URI:          e.totp.ProvisionURI(encoded, identity.Username),
	}, nil
}

// ConfirmMFAEnrollment proves the user's authenticator produces valid
// codes and flips the pending secret to enabled. Until this succeeds the
// login flow ignores the secret entirely.
func (e *Engine) ConfirmMFAEnrollment(ctx context.Context, identityID, code string) error {
	if e == nil || e.store == nil || e.totp == nil {
		return ErrEngineNotReady
	}

	secret, err := e.store.GetSecret(ctx, identityID)
	if err != nil {
		return ErrStoreUnavailable
	}
	if secret == nil {
		return ErrMFANotEnrolled
	}
	if secret.Enabled {
		return ErrMFAAlreadyEnabled
	}

	if err := e.rateLimiter.CheckTOTP(ctx, identityID); err != nil {
		e.metricInc(MetricMFARateLimited)
		e.emitAudit(ctx, auditEventMFARateLimited, false, identityID, "", ErrMFARateLimited, nil)
		return ErrMFARateLimited
	}

	ok, counter, err := e.totp.VerifyCode(secret.Secret, code, e.now())
	if err != nil || !ok {
		if limitErr := e.rateLimiter.RecordTOTPFailure(ctx, identityID); limitErr != nil {
			e.logger.Warn("totp failure count failed",
				zap.String("identity_id", identityID),
				zap.Error(limitErr))
		}
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, identityID, "", ErrMFAInvalidCode, func() map[string]string {
			return map[string]string{"phase": "enrollment"}
		})
		return ErrMFAInvalidCode
	}

	if err := e.store.ConfirmSecret(ctx, identityID, e.now()); err != nil {
		return ErrStoreUnavailable
	}
	if e.config.TOTP.EnforceReplayProtection {
		if err := e.store.UpdateSecretLastUsed(ctx, identityID, counter); err != nil {
			return ErrStoreUnavailable
		}
	}
	if err := e.rateLimiter.ResetTOTP(ctx, identityID); err != nil {
		e.logger.Warn("totp limiter reset failed",
			zap.String("identity_id", identityID),
			zap.Error(err))
	}

	e.metricInc(MetricMFAEnabled)
	e.emitAudit(ctx, auditEventMFAEnabled, true, identityID, "", nil, nil)
	return nil
}

// DisableMFA removes the identity's second factor after proving either
// the account password or a currently valid code. Failed proof leaves
// the secret fully intact.
func (e *Engine) DisableMFA(ctx context.Context, identityID, passphrase, code string) error {
	if e == nil || e.store == nil || e.totp == nil {
		return ErrEngineNotReady
	}

	secret, err := e.store.GetSecret(ctx, identityID)
	if err != nil {
		return ErrStoreUnavailable
	}
	if secret == nil || !secret.Enabled {
		return ErrMFANotEnrolled
	}

	identity, err := e.store.GetByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return ErrIdentityNotFound
		}
		return ErrStoreUnavailable
	}

	switch {
	case passphrase != "":
		ok, err := e.passwordHash.Verify(passphrase, identity.PasswordHash)
		if err != nil || !ok {
			e.emitAudit(ctx, auditEventMFADisabled, false, identityID, "", ErrInvalidCredentials, nil)
			return ErrInvalidCredentials
		}
	case code != "":
		if err := e.verifyMFACode(ctx, identity, secret, code); err != nil {
			e.emitAudit(ctx, auditEventMFADisabled, false, identityID, "", err, nil)
			return err
		}
	default:
		return ErrInvalidCredentials
	}

	if err := e.store.DeleteSecret(ctx, identityID); err != nil {
		return ErrStoreUnavailable
	}

	e.metricInc(MetricMFADisabled)
	e.emitAudit(ctx, auditEventMFADisabled, true, identityID, "", nil, nil)
	return nil
}

// VerifyMFACode is a standalone step-up check against the identity's
// enabled secret, with the same rate limiting and replay protection as
// the login gate.
func (e *Engine) VerifyMFACode(ctx context.Context, identityID, code string) error {
	if e == nil || e.store == nil || e.totp == nil {
		return ErrEngineNotReady
	}

	secret, err := e.store.GetSecret(ctx, identityID)
	if err != nil {
		return ErrStoreUnavailable
	}
	if secret == nil || !secret.Enabled {
		return ErrMFANotEnrolled
	}

	identity, err := e.store.GetByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return ErrIdentityNotFound
		}
		return ErrStoreUnavailable
	}

	return e.verifyMFACode(ctx, identity, secret, code)
}
