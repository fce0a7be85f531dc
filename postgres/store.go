package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ProjectSCARS/bentoauth"
	"github.com/ProjectSCARS/bentoauth/permission"
)

// uniqueViolation is the PostgreSQL error code for duplicate keys.
const uniqueViolation = "23505"

// DB is the subset of pgxpool.Pool the store needs. Satisfied by
// *pgxpool.Pool.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store implements bentoauth.Store on PostgreSQL.
type Store struct {
	db DB
}

// NewStore creates a [Store] over the given database handle.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const identityColumns = `id, username, password_hash, role_level, school_id, deactivated, finished_tutorials, created_at, updated_at, last_login_at, last_login_source`

// GetByUsername resolves a case-sensitive exact username match.
func (s *Store) GetByUsername(ctx context.Context, username string) (*bentoauth.Identity, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE username = $1
	`, username)
	return scanIdentity(row)
}

// GetByID loads an identity by its UUID.
func (s *Store) GetByID(ctx context.Context, id string) (*bentoauth.Identity, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE id = $1
	`, id)
	return scanIdentity(row)
}

// Create inserts a new identity row.
func (s *Store) Create(ctx context.Context, identity *bentoauth.Identity) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO identities (id, username, password_hash, role_level, school_id, deactivated, finished_tutorials, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, identity.ID, identity.Username, identity.PasswordHash, uint8(identity.RoleLevel),
		nullString(identity.SchoolID), identity.Deactivated, identity.FinishedTutorials,
		identity.CreatedAt, identity.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return bentoauth.ErrUsernameTaken
		}
		return fmt.Errorf("%w: %v", bentoauth.ErrStoreUnavailable, err)
	}
	return nil
}

// UpdatePasswordHash replaces the stored credential hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE identities
		SET password_hash = $2, updated_at = NOW()
		WHERE id = $1
	`, id, hash)
	if err != nil {
		return fmt.Errorf("%w: %v", bentoauth.ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return bentoauth.ErrIdentityNotFound
	}
	return nil
}

// SetDeactivated flips the soft-deactivation flag.
func (s *Store) SetDeactivated(ctx context.Context, id string, deactivated bool) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE identities
		SET deactivated = $2, updated_at = NOW()
		WHERE id = $1
	`, id, deactivated)
	if err != nil {
		return fmt.Errorf("%w: %v", bentoauth.ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return bentoauth.ErrIdentityNotFound
	}
	return nil
}

// StampLastLogin records the login time and source address.
func (s *Store) StampLastLogin(ctx context.Context, id string, at time.Time, source string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE identities
		SET last_login_at = $2, last_login_source = $3
		WHERE id = $1
	`, id, at, nullString(source))
	if err != nil {
		return fmt.Errorf("%w: %v", bentoauth.ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return bentoauth.ErrIdentityNotFound
	}
	return nil
}

// CountOtherActiveAdmins counts active administrator-level accounts other
// than the given identity.
func (s *Store) CountOtherActiveAdmins(ctx context.Context, excludeID string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM identities
		WHERE id <> $1 AND deactivated = FALSE AND role_level IN (1, 2)
	`, excludeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", bentoauth.ErrStoreUnavailable, err)
	}
	return count, nil
}

// RecordFailure atomically increments the consecutive-failure counter and
// returns the post-increment record. Concurrent failures serialize on the
// row, so exactly one caller sees the threshold-crossing count.
func (s *Store) RecordFailure(ctx context.Context, identityID, source string, at time.Time) (bentoauth.LoginAttemptRecord, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO login_attempts (identity_id, failed_count, last_failure_at, last_failure_source)
		VALUES ($1, 1, $2, $3)
		ON CONFLICT (identity_id) DO UPDATE
		SET failed_count = login_attempts.failed_count + 1,
		    last_failure_at = EXCLUDED.last_failure_at,
		    last_failure_source = EXCLUDED.last_failure_source
		RETURNING identity_id, failed_count, last_failure_at, last_failure_source
	`, identityID, at, nullString(source))

	var (
		record bentoauth.LoginAttemptRecord
		src    *string
	)
	if err := row.Scan(&record.IdentityID, &record.FailedCount, &record.LastFailureAt, &src); err != nil {
		return bentoauth.LoginAttemptRecord{}, fmt.Errorf("%w: %v", bentoauth.ErrStoreUnavailable, err)
	}
	if src != nil {
		record.LastFailureSource = *src
	}
	return record, nil
}

// ResetFailures clears the failure counter after a successful login.
func (s *Store) ResetFailures(ctx context.Context, identityID string) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM login_attempts
		WHERE identity_id = $1
	`, identityID)
	if err != nil {
		return fmt.Errorf("%w: %v", bentoauth.ErrStoreUnavailable, err)
	}
	return nil
}

// GetAttempts reads the current failure record. Absent rows return a zero
// record, not an error.
func (s *Store) GetAttempts(ctx context.Context, identityID string) (bentoauth.LoginAttemptRecord, error) {
	row := s.db.QueryRow(ctx, `
		SELECT identity_id, failed_count, last_failure_at, last_failure_source
		FROM login_attempts
		WHERE identity_id = $1
	`, identityID)

	var (
		record bentoauth.LoginAttemptRecord
		src    *string
	)
	err := row.Scan(&record.IdentityID, &record.FailedCount, &record.LastFailureAt, &src)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return bentoauth.LoginAttemptRecord{IdentityID: identityID}, nil
		}
		return bentoauth.LoginAttemptRecord{}, fmt.Errorf("%w: %v", bentoauth.ErrStoreUnavailable, err)
	}
	if src != nil {
		record.LastFailureSource = *src
	}
	return record, nil
}

// GetSecret loads the identity's TOTP secret, or nil when none exists.
func (s *Store) GetSecret(ctx context.Context, identityID string) (*bentoauth.MFASecret, error) {
	row := s.db.QueryRow(ctx, `
		SELECT identity_id, secret, enabled, last_used_counter, created_at, confirmed_at
		FROM mfa_secrets
		WHERE identity_id = $1
	`, identityID)

	var (
		secret      bentoauth.MFASecret
		confirmedAt *time.Time
	)
	err := row.Scan(&secret.IdentityID, &secret.Secret, &secret.Enabled,
		&secret.LastUsedCounter, &secret.CreatedAt, &confirmedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", bentoauth.ErrStoreUnavailable, err)
	}
	if confirmedAt != nil {
		secret.ConfirmedAt = *confirmedAt
	}
	return &secret, nil
}

// CreatePendingSecret stores a fresh unconfirmed secret, replacing any
// previous one for the identity.
func (s *Store) CreatePendingSecret(ctx context.Context, identityID string, secret []byte, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO mfa_secrets (identity_id, secret, enabled, last_used_counter, created_at)
		VALUES ($1, $2, FALSE, 0, $3)
		ON CONFLICT (identity_id) DO UPDATE
		SET secret = EXCLUDED.secret,
		    enabled = FALSE,
		    last_used_counter = 0,
		    created_at = EXCLUDED.created_at,
		    confirmed_at = NULL
	`, identityID, secret, at)
	if err != nil {
		return fmt.Errorf("%w: %v", bentoauth.ErrStoreUnavailable, err)
	}
	return nil
}

// ConfirmSecret flips the pending secret to enabled.
func (s *Store) ConfirmSecret(ctx context.Context, identityID string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE mfa_secrets
		SET enabled = TRUE, confirmed_at = $2
		WHERE identity_id = $1
	`, identityID, at)
	if err != nil {
		return fmt.Errorf("%w: %v", bentoauth.ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return bentoauth.ErrMFANotEnrolled
	}
	return nil
}

// DeleteSecret removes the identity's secret. Idempotent.
func (s *Store) DeleteSecret(ctx context.Context, identityID string) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM mfa_secrets
		WHERE identity_id = $1
	`, identityID)
	if err != nil {
		return fmt.Errorf("%w: %v", bentoauth.ErrStoreUnavailable, err)
	}
	return nil
}

// UpdateSecretLastUsed advances the replay-protection counter.
func (s *Store) UpdateSecretLastUsed(ctx context.Context, identityID string, counter int64) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE mfa_secrets
		SET last_used_counter = $2
		WHERE identity_id = $1
	`, identityID, counter)
	if err != nil {
		return fmt.Errorf("%w: %v", bentoauth.ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return bentoauth.ErrMFANotEnrolled
	}
	return nil
}

func scanIdentity(row pgx.Row) (*bentoauth.Identity, error) {
	var (
		identity    bentoauth.Identity
		roleLevel   uint8
		schoolID    *string
		lastLoginAt *time.Time
		lastSource  *string
	)
	err := row.Scan(
		&identity.ID,
		&identity.Username,
		&identity.PasswordHash,
		&roleLevel,
		&schoolID,
		&identity.Deactivated,
		&identity.FinishedTutorials,
		&identity.CreatedAt,
		&identity.UpdatedAt,
		&lastLoginAt,
		&lastSource,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bentoauth.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("%w: %v", bentoauth.ErrStoreUnavailable, err)
	}

	identity.RoleLevel = permission.RoleLevel(roleLevel)
	if schoolID != nil {
		identity.SchoolID = *schoolID
	}
	if lastLoginAt != nil {
		identity.LastLoginAt = *lastLoginAt
	}
	if lastSource != nil {
		identity.LastLoginSource = *lastSource
	}
	return &identity, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
