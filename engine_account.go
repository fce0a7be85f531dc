package bentoauth

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ProjectSCARS/bentoauth/password"
)

// CreateAccount provisions a new identity after validating the BENTO
// credential policy and role level. The stored identity carries only the
// password's Argon2id hash.
func (e *Engine) CreateAccount(ctx context.Context, req CreateAccountRequest) (*Identity, error) {
	if e == nil || e.store == nil || e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}

	if err := password.ValidateUsername(req.Username); err != nil {
		e.metricInc(MetricAccountCreationRejected)
		e.emitAudit(ctx, auditEventAccountCreationRejected, false, "", "", ErrUsernamePolicy, func() map[string]string {
			return map[string]string{"username": req.Username, "reason": "username_policy"}
		})
		return nil, ErrUsernamePolicy
	}
	if err := password.ValidatePassword(req.Password); err != nil {
		e.metricInc(MetricAccountCreationRejected)
		e.emitAudit(ctx, auditEventAccountCreationRejected, false, "", "", ErrPasswordPolicy, func() map[string]string {
			return map[string]string{"username": req.Username, "reason": "password_policy"}
		})
		return nil, ErrPasswordPolicy
	}
	if !req.RoleLevel.Valid() {
		e.metricInc(MetricAccountCreationRejected)
		e.emitAudit(ctx, auditEventAccountCreationRejected, false, "", "", ErrUnknownRole, func() map[string]string {
			return map[string]string{"username": req.Username, "reason": "unknown_role"}
		})
		return nil, ErrUnknownRole
	}

	hash, err := e.passwordHash.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := e.now()
	identity := &Identity{
		ID:           uuid.New().String(),
		Username:     req.Username,
		PasswordHash: hash,
		RoleLevel:    req.RoleLevel,
		SchoolID:     req.SchoolID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := e.store.Create(ctx, identity); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			e.metricInc(MetricAccountCreationRejected)
			e.emitAudit(ctx, auditEventAccountCreationRejected, false, "", "", ErrUsernameTaken, func() map[string]string {
				return map[string]string{"username": req.Username, "reason": "duplicate"}
			})
			return nil, ErrUsernameTaken
		}
		return nil, ErrStoreUnavailable
	}

	e.metricInc(MetricAccountCreated)
	e.emitAudit(ctx, auditEventAccountCreated, true, identity.ID, "", nil, func() map[string]string {
		return map[string]string{
			"username": identity.Username,
			"role":     identity.RoleLevel.String(),
		}
	})

	return identity, nil
}

// DeactivateAccount soft-deactivates the identity and revokes all of its
// live sessions. Deactivating the last active administrator-level account
// is refused so the system can never lock every admin out.
func (e *Engine) DeactivateAccount(ctx context.Context, identityID string) error {
	if e == nil || e.store == nil || e.sessions == nil {
		return ErrEngineNotReady
	}

	identity, err := e.store.GetByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return ErrIdentityNotFound
		}
		return ErrStoreUnavailable
	}
	if identity.Deactivated {
		// Idempotent: the target state already holds.
		return nil
	}

	if identity.RoleLevel.Admin() {
		others, err := e.store.CountOtherActiveAdmins(ctx, identityID)
		if err != nil {
			return ErrStoreUnavailable
		}
		if others == 0 {
			e.emitAudit(ctx, auditEventAccountDeactivated, false, identityID, "", ErrLastAdmin, nil)
			return ErrLastAdmin
		}
	}

	if err := e.store.SetDeactivated(ctx, identityID, true); err != nil {
		return ErrStoreUnavailable
	}
	if err := e.sessions.RevokeAllForIdentity(ctx, identityID, e.now()); err != nil {
		// The account is already off; surface the session failure so the
		// caller can retry the revocation.
		e.emitAudit(ctx, auditEventAccountDeactivated, false, identityID, "", ErrStoreUnavailable, func() map[string]string {
			return map[string]string{"reason": "session_revocation_failed"}
		})
		return ErrStoreUnavailable
	}

	e.metricInc(MetricAccountDeactivated)
	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventAccountDeactivated, true, identityID, "", nil, nil)
	return nil
}

// ReactivateAccount lifts a soft deactivation. Sessions revoked on the
// way down stay revoked; the user logs in fresh.
func (e *Engine) ReactivateAccount(ctx context.Context, identityID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	identity, err := e.store.GetByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return ErrIdentityNotFound
		}
		return ErrStoreUnavailable
	}
	if !identity.Deactivated {
		return nil
	}

	if err := e.store.SetDeactivated(ctx, identityID, false); err != nil {
		return ErrStoreUnavailable
	}

	e.metricInc(MetricAccountReactivated)
	e.emitAudit(ctx, auditEventAccountReactivated, true, identityID, "", nil, nil)
	return nil
}
