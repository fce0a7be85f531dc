package bentoauth

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/ProjectSCARS/bentoauth/internal"
	"github.com/ProjectSCARS/bentoauth/password"
)

// RequestPasswordReset mints a one-time numeric code for the account and
// hands it to the [Notifier] for out-of-band delivery. The call is
// enumeration safe: unknown and deactivated usernames burn a jittered
// delay plus decoy code generation and return nil exactly like known
// ones, and only the code's hash ever reaches Redis.
func (e *Engine) RequestPasswordReset(ctx context.Context, username string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if e.resetStore == nil {
		return ErrEngineNotReady
	}

	identity, err := e.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return e.fakeResetRequest(ctx)
		}
		return ErrStoreUnavailable
	}
	if identity.Deactivated {
		return e.fakeResetRequest(ctx)
	}

	code, err := internal.NewOTP(e.config.PasswordReset.CodeDigits)
	if err != nil {
		return err
	}

	expiresAt := e.now().Add(e.config.PasswordReset.CodeTTL)
	record := &passwordResetRecord{
		CodeHash:  internal.HashCodeString(code),
		ExpiresAt: expiresAt.Unix(),
	}
	if err := e.resetStore.Save(ctx, identity.ID, record, time.Until(expiresAt)); err != nil {
		return ErrStoreUnavailable
	}

	if e.notifier != nil {
		deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.Anomaly.NotifyTimeout)
		defer cancel()
		err := e.notifier.DeliverPasswordReset(deliverCtx, PasswordResetDelivery{
			Identity:  identity,
			Code:      code,
			ExpiresAt: expiresAt,
		})
		if err != nil {
			e.logger.Warn("password reset delivery failed",
				zap.String("identity_id", identity.ID),
				zap.Error(err))
		}
	}

	e.metricInc(MetricPasswordResetRequested)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, identity.ID, "", nil, nil)
	return nil
}

// fakeResetRequest is the unknown-account path of RequestPasswordReset.
// It sleeps a jittered delay and burns a code generation so the response
// is shaped and timed like the real one, then reports success.
func (e *Engine) fakeResetRequest(ctx context.Context) error {
	if err := sleepEnumerationDelay(ctx); err != nil {
		return err
	}
	code, err := internal.NewOTP(e.config.PasswordReset.CodeDigits)
	if err != nil {
		return err
	}
	internal.HashCodeString(code)

	e.emitAudit(ctx, auditEventPasswordResetRequest, true, "", "", nil, func() map[string]string {
		return map[string]string{"known_account": "false"}
	})
	return nil
}

func sleepEnumerationDelay(ctx context.Context) error {
	minMs := int64(20)
	maxMs := int64(40)

	n, err := rand.Int(rand.Reader, big.NewInt(maxMs-minMs+1))
	if err != nil {
		return err
	}

	timer := time.NewTimer(time.Duration(minMs+n.Int64()) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConfirmPasswordReset redeems a reset code and installs the new
// password. Codes are single use; a wrong code burns one of the bounded
// confirmation attempts and hitting the budget invalidates the code.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, username, code, newPassword string) error {
	if e == nil || e.store == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}
	if e.resetStore == nil {
		return ErrEngineNotReady
	}

	if err := password.ValidatePassword(newPassword); err != nil {
		return ErrPasswordPolicy
	}

	identity, err := e.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			e.metricInc(MetricPasswordResetRejected)
			e.emitAudit(ctx, auditEventPasswordResetRejected, false, "", "", ErrResetInvalid, nil)
			return ErrResetInvalid
		}
		return ErrStoreUnavailable
	}
	if identity.Deactivated {
		e.metricInc(MetricPasswordResetRejected)
		e.emitAudit(ctx, auditEventPasswordResetRejected, false, identity.ID, "", ErrResetInvalid, nil)
		return ErrResetInvalid
	}

	err = e.resetStore.Consume(ctx, identity.ID, internal.HashCodeString(code), e.config.PasswordReset.MaxAttempts)
	if err != nil {
		switch {
		case errors.Is(err, errResetAttemptsExceeded):
			e.metricInc(MetricPasswordResetAttemptsExceeded)
			e.emitAudit(ctx, auditEventPasswordResetRejected, false, identity.ID, "", ErrResetAttempts, nil)
			return ErrResetAttempts
		case errors.Is(err, errResetNotFound), errors.Is(err, errResetCodeMismatch):
			e.metricInc(MetricPasswordResetRejected)
			e.emitAudit(ctx, auditEventPasswordResetRejected, false, identity.ID, "", ErrResetInvalid, nil)
			return ErrResetInvalid
		default:
			return ErrStoreUnavailable
		}
	}

	return e.applyNewPassword(ctx, identity, newPassword, auditEventPasswordResetConfirm)
}
