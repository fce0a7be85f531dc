package bentoauth

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess            = "login_success"
	auditEventLoginFailure            = "login_failure"
	auditEventLoginRateLimited        = "login_rate_limited"
	auditEventLoginMFARequired        = "login_mfa_required"
	auditEventAnomalyThreshold        = "anomaly_threshold_crossed"
	auditEventAnomalyNotified         = "anomaly_notification_sent"
	auditEventRefreshSuccess          = "refresh_success"
	auditEventRefreshInvalid          = "refresh_invalid"
	auditEventRefreshRateLimited      = "refresh_rate_limited"
	auditEventRefreshReuseDetected    = "refresh_reuse_detected"
	auditEventLogoutSession           = "logout_session"
	auditEventLogoutAll               = "logout_all"
	auditEventMFAEnrollmentStarted    = "mfa_enrollment_started"
	auditEventMFAEnabled              = "mfa_enabled"
	auditEventMFADisabled             = "mfa_disabled"
	auditEventMFASuccess              = "mfa_success"
	auditEventMFAFailure              = "mfa_failure"
	auditEventMFARateLimited          = "mfa_rate_limited"
	auditEventAccountCreated          = "account_created"
	auditEventAccountCreationRejected = "account_creation_rejected"
	auditEventAccountDeactivated      = "account_deactivated"
	auditEventAccountReactivated      = "account_reactivated"
	auditEventPasswordChangeSuccess   = "password_change_success"
	auditEventPasswordChangeFailure   = "password_change_failure"
	auditEventPasswordResetRequest    = "password_reset_request"
	auditEventPasswordResetConfirm    = "password_reset_confirm"
	auditEventPasswordResetRejected   = "password_reset_rejected"
	auditEventRateLimitTriggered      = "rate_limit_triggered"
)

// AuditErrorCode is the normalized error label recorded on audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials   AuditErrorCode = "invalid_credentials"
	auditErrAccountDeactivated   AuditErrorCode = "account_deactivated"
	auditErrRateLimited          AuditErrorCode = "rate_limited"
	auditErrRefreshReuse         AuditErrorCode = "refresh_reuse"
	auditErrTokenMalformed       AuditErrorCode = "token_malformed"
	auditErrTokenExpired         AuditErrorCode = "token_expired"
	auditErrTokenRevoked         AuditErrorCode = "token_revoked"
	auditErrIdentityNotFound     AuditErrorCode = "identity_not_found"
	auditErrUsernameTaken        AuditErrorCode = "username_taken"
	auditErrCredentialPolicy     AuditErrorCode = "credential_policy"
	auditErrPasswordReuse        AuditErrorCode = "password_reuse"
	auditErrLastAdmin            AuditErrorCode = "last_admin"
	auditErrUnknownRole          AuditErrorCode = "unknown_role"
	auditErrMFARequired          AuditErrorCode = "mfa_required"
	auditErrMFAInvalid           AuditErrorCode = "mfa_invalid"
	auditErrMFANotEnrolled       AuditErrorCode = "mfa_not_enrolled"
	auditErrMFAAlreadyEnabled    AuditErrorCode = "mfa_already_enabled"
	auditErrMFARateLimited       AuditErrorCode = "mfa_rate_limited"
	auditErrResetInvalid         AuditErrorCode = "reset_invalid"
	auditErrResetAttempts        AuditErrorCode = "reset_attempts_exceeded"
	auditErrSessionLimitExceeded AuditErrorCode = "session_limit_exceeded"
	auditErrUnavailable          AuditErrorCode = "backend_unavailable"
	auditErrInternal             AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	identityID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:  time.Now().UTC(),
		EventType:  eventType,
		IdentityID: identityID,
		SessionID:  sessionID,
		IP:         clientIPFromContext(ctx),
		Success:    success,
		Metadata:   metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string, metadataBuilder func() map[string]string) {
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", nil, func() map[string]string {
		base := map[string]string{
			"scope": scope,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountDeactivated):
		return auditErrAccountDeactivated
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrRefreshReuse):
		return auditErrRefreshReuse
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenMalformed):
		return auditErrTokenMalformed
	case errors.Is(err, ErrIdentityNotFound):
		return auditErrIdentityNotFound
	case errors.Is(err, ErrUsernameTaken):
		return auditErrUsernameTaken
	case errors.Is(err, ErrUsernamePolicy),
		errors.Is(err, ErrPasswordPolicy):
		return auditErrCredentialPolicy
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrLastAdmin):
		return auditErrLastAdmin
	case errors.Is(err, ErrUnknownRole):
		return auditErrUnknownRole
	case errors.Is(err, ErrMFARequired):
		return auditErrMFARequired
	case errors.Is(err, ErrMFAInvalidCode):
		return auditErrMFAInvalid
	case errors.Is(err, ErrMFANotEnrolled):
		return auditErrMFANotEnrolled
	case errors.Is(err, ErrMFAAlreadyEnabled):
		return auditErrMFAAlreadyEnabled
	case errors.Is(err, ErrMFARateLimited):
		return auditErrMFARateLimited
	case errors.Is(err, ErrResetInvalid):
		return auditErrResetInvalid
	case errors.Is(err, ErrResetAttempts):
		return auditErrResetAttempts
	case errors.Is(err, ErrSessionLimitExceeded):
		return auditErrSessionLimitExceeded
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
