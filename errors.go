package bentoauth

import "errors"

var (
	// ErrInvalidCredentials covers unknown usernames and password mismatches.
	// The two cases are never distinguished to callers.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDeactivated is returned for soft-deactivated accounts.
	ErrAccountDeactivated = errors.New("account deactivated")
	// ErrMFARequired signals that the account has an enabled second factor
	// and no code was supplied with the login.
	ErrMFARequired = errors.New("mfa code required")
	// ErrMFAInvalidCode covers mismatched, replayed, and out-of-window codes.
	ErrMFAInvalidCode = errors.New("invalid mfa code")
	// ErrMFANotEnrolled is returned when an MFA operation targets an account
	// without a configured secret.
	ErrMFANotEnrolled = errors.New("mfa not enrolled")
	// ErrMFAAlreadyEnabled is returned when enrollment is started for an
	// account that already has a confirmed secret.
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
	// ErrMFARateLimited is returned when code verification attempts exceed
	// the per-account budget.
	ErrMFARateLimited = errors.New("mfa attempts rate limited")
	// ErrTokenMalformed is returned when a token fails structural or
	// signature verification, or references no known session.
	ErrTokenMalformed = errors.New("malformed token")
	// ErrTokenExpired is returned for tokens past their expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned when the session backing a refresh token
	// has been revoked. Revocation takes precedence over expiry.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrRefreshReuse is returned when a refresh token that was already
	// rotated away is presented again. The session is revoked as a side
	// effect.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrRateLimited is returned when a login or refresh throttle denies
	// the request.
	ErrRateLimited = errors.New("rate limited")
	// ErrIdentityNotFound is returned by identity lookups for absent IDs.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrUsernameTaken is returned on duplicate account creation.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrUsernamePolicy is returned when a username violates the BENTO
	// credential policy.
	ErrUsernamePolicy = errors.New("username policy violation")
	// ErrPasswordPolicy is returned when a password violates the BENTO
	// credential policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when a password change supplies the
	// current password as the new one.
	ErrPasswordReuse = errors.New("new password must differ from current password")
	// ErrLastAdmin is returned when deactivation would remove the last
	// active administrator-level account.
	ErrLastAdmin = errors.New("cannot deactivate the last admin account")
	// ErrUnknownRole is returned for role levels outside the BENTO set.
	ErrUnknownRole = errors.New("unknown role level")
	// ErrResetInvalid covers unknown, expired, and mismatched password
	// reset codes.
	ErrResetInvalid = errors.New("password reset code invalid")
	// ErrResetAttempts is returned when reset code confirmation attempts
	// exceed the per-code budget.
	ErrResetAttempts = errors.New("password reset attempts exceeded")
	// ErrSessionLimitExceeded is returned when the per-identity active
	// session cap denies a login.
	ErrSessionLimitExceeded = errors.New("session limit exceeded")
	// ErrStoreUnavailable wraps storage backend failures.
	ErrStoreUnavailable = errors.New("storage backend unavailable")
	// ErrEngineNotReady is returned when the engine is used before Build
	// wired its collaborators.
	ErrEngineNotReady = errors.New("engine not initialized")
)
