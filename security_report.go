package bentoauth

import (
	"context"
	"errors"
	"time"
)

// SecurityReport summarizes an account's security posture for the
// administrator view: anomaly state, live sessions, and MFA status.
type SecurityReport struct {
	IdentityID        string
	Username          string
	AnomalyState      AnomalyState
	FailedAttempts    int
	LastFailureAt     time.Time
	LastFailureSource string
	ActiveSessions    int
	MFAEnabled        bool
	Deactivated       bool
	LastLoginAt       time.Time
	LastLoginSource   string
}

// SecurityReport assembles the per-account security summary.
func (e *Engine) SecurityReport(ctx context.Context, identityID string) (*SecurityReport, error) {
	if e == nil || e.store == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	identity, err := e.store.GetByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, ErrStoreUnavailable
	}

	record, err := e.store.GetAttempts(ctx, identityID)
	if err != nil {
		return nil, ErrStoreUnavailable
	}

	active, err := e.sessions.ActiveCount(ctx, identityID)
	if err != nil {
		return nil, ErrStoreUnavailable
	}

	secret, err := e.store.GetSecret(ctx, identityID)
	if err != nil {
		return nil, ErrStoreUnavailable
	}

	return &SecurityReport{
		IdentityID:        identity.ID,
		Username:          identity.Username,
		AnomalyState:      record.State(e.config.Anomaly.Threshold),
		FailedAttempts:    record.FailedCount,
		LastFailureAt:     record.LastFailureAt,
		LastFailureSource: record.LastFailureSource,
		ActiveSessions:    active,
		MFAEnabled:        secret != nil && secret.Enabled,
		Deactivated:       identity.Deactivated,
		LastLoginAt:       identity.LastLoginAt,
		LastLoginSource:   identity.LastLoginSource,
	}, nil
}
