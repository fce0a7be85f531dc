package bentoauth

import (
	"context"
	"time"

	"github.com/ProjectSCARS/bentoauth/permission"
	"github.com/ProjectSCARS/bentoauth/session"
)

// Identity is an account record capable of authenticating. Accounts are
// soft-deactivated, never hard-deleted.
type Identity struct {
	ID           string
	Username     string
	PasswordHash string
	RoleLevel    permission.RoleLevel
	SchoolID     string

	Deactivated       bool
	FinishedTutorials bool

	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastLoginAt     time.Time
	LastLoginSource string
}

// AnomalyState is the derived state of a [LoginAttemptRecord].
type AnomalyState uint8

const (
	// AnomalyClean means no consecutive failures are on record.
	AnomalyClean AnomalyState = iota
	// AnomalyWarning means failures are on record but below the threshold.
	AnomalyWarning
	// AnomalyLocked means the failure count reached the threshold. Locked
	// is warn-only: it never blocks a login attempt.
	AnomalyLocked
)

func (s AnomalyState) String() string {
	switch s {
	case AnomalyClean:
		return "clean"
	case AnomalyWarning:
		return "warning"
	case AnomalyLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// LoginAttemptRecord tracks consecutive failed logins for one identity.
// The count resets to zero on any successful login.
type LoginAttemptRecord struct {
	IdentityID        string
	FailedCount       int
	LastFailureAt     time.Time
	LastFailureSource string
}

// State derives the anomaly state from the failure count and threshold.
func (r LoginAttemptRecord) State(threshold int) AnomalyState {
	switch {
	case r.FailedCount <= 0:
		return AnomalyClean
	case threshold > 0 && r.FailedCount >= threshold:
		return AnomalyLocked
	default:
		return AnomalyWarning
	}
}

// MFASecret is the per-identity TOTP shared secret. A secret is pending
// between enrollment start and confirmation; only confirmed (Enabled)
// secrets gate logins.
type MFASecret struct {
	IdentityID string
	Secret     []byte
	Enabled    bool
	// LastUsedCounter guards against replay of an already-accepted code.
	LastUsedCounter int64
	CreatedAt       time.Time
	ConfirmedAt     time.Time
}

// Principal is the resolved identity reference returned by [Engine.Validate].
type Principal struct {
	IdentityID string
	SessionID  string
	RoleLevel  permission.RoleLevel
	SchoolID   string
}

// LoginResult is returned by [Engine.Login].
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	Identity     *Identity
}

// MFAProvision holds the one-time enrollment material returned by
// [Engine.BeginMFAEnrollment]. The raw secret is never retrievable again.
type MFAProvision struct {
	SecretBase32 string
	URI          string
}

// CreateAccountRequest is the input for [Engine.CreateAccount].
type CreateAccountRequest struct {
	Username  string
	Password  string
	RoleLevel permission.RoleLevel
	SchoolID  string
}

// AnomalyNotification carries the failed-login summary handed to the
// [Notifier] when an account crosses the failure threshold.
type AnomalyNotification struct {
	Identity          *Identity
	FailedAttempts    int
	LastAttemptTime   time.Time
	LastAttemptSource string
}

// PasswordResetDelivery carries a freshly minted reset code to the
// [Notifier] for out-of-band delivery.
type PasswordResetDelivery struct {
	Identity  *Identity
	Code      string
	ExpiresAt time.Time
}

// Notifier is the outbound notification collaborator. Implementations
// deliver email or other out-of-band messages; delivery failures are logged
// by the engine and never propagated to the triggering request.
type Notifier interface {
	NotifyAnomalousLogin(ctx context.Context, n AnomalyNotification) error
	DeliverPasswordReset(ctx context.Context, d PasswordResetDelivery) error
}

// IdentityStore persists [Identity] records.
type IdentityStore interface {
	// GetByUsername resolves a case-sensitive exact username match.
	// Returns ErrIdentityNotFound when absent.
	GetByUsername(ctx context.Context, username string) (*Identity, error)
	GetByID(ctx context.Context, id string) (*Identity, error)
	// Create inserts a new identity. Returns ErrUsernameTaken on duplicate.
	Create(ctx context.Context, identity *Identity) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	SetDeactivated(ctx context.Context, id string, deactivated bool) error
	// StampLastLogin records the login time and source address. Best-effort
	// from the engine's perspective.
	StampLastLogin(ctx context.Context, id string, at time.Time, source string) error
	// CountOtherActiveAdmins counts active administrator-level accounts
	// excluding the given identity. Used by the last-admin guard.
	CountOtherActiveAdmins(ctx context.Context, excludeID string) (int, error)
}

// AttemptStore persists [LoginAttemptRecord] rows. RecordFailure must be an
// atomic read-increment-write so that concurrent failures serialize and
// exactly one caller observes the threshold-crossing count.
type AttemptStore interface {
	RecordFailure(ctx context.Context, identityID, source string, at time.Time) (LoginAttemptRecord, error)
	ResetFailures(ctx context.Context, identityID string) error
	GetAttempts(ctx context.Context, identityID string) (LoginAttemptRecord, error)
}

// MFASecretStore persists [MFASecret] records.
type MFASecretStore interface {
	// GetSecret returns nil, nil when no secret exists for the identity.
	GetSecret(ctx context.Context, identityID string) (*MFASecret, error)
	CreatePendingSecret(ctx context.Context, identityID string, secret []byte, at time.Time) error
	ConfirmSecret(ctx context.Context, identityID string, at time.Time) error
	DeleteSecret(ctx context.Context, identityID string) error
	UpdateSecretLastUsed(ctx context.Context, identityID string, counter int64) error
}

// Store is the composite persistence interface the engine requires.
// postgres.Store implements it.
type Store interface {
	IdentityStore
	AttemptStore
	MFASecretStore
}

// SessionStore is the server-side revocation registry for refresh tokens.
// session.Store implements it on PostgreSQL.
type SessionStore interface {
	Create(ctx context.Context, s *session.Session) error
	Get(ctx context.Context, id string) (*session.Session, error)
	// Rotate atomically swaps the refresh hash when the provided hash
	// matches the live one. Failure classification follows the precedence
	// revoked > reuse > expired > not-found via the session package
	// sentinel errors.
	Rotate(ctx context.Context, id string, providedHash, nextHash [32]byte, expiresAt time.Time) (*session.Session, error)
	// Revoke is idempotent: revoking an already-revoked or absent session
	// succeeds.
	Revoke(ctx context.Context, id string, at time.Time) error
	RevokeAllForIdentity(ctx context.Context, identityID string, at time.Time) error
	ActiveCount(ctx context.Context, identityID string) (int, error)
}
