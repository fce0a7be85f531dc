package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when no session row exists for the identifier.
var ErrNotFound = errors.New("session not found")

// ErrRevoked is returned when the session has been invalidated.
var ErrRevoked = errors.New("session revoked")

// ErrRefreshReuse is returned when the provided refresh hash does not match
// the live one, meaning a rotated-away token was presented again.
var ErrRefreshReuse = errors.New("refresh hash mismatch")

// ErrExpired is returned when the session is past its expiry.
var ErrExpired = errors.New("session expired")

// ErrDatabaseUnavailable wraps backend failures.
var ErrDatabaseUnavailable = errors.New("session database unavailable")

// DB is the subset of pgxpool.Pool the store needs. Satisfied by
// *pgxpool.Pool.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is the PostgreSQL session registry.
type Store struct {
	db  DB
	now func() time.Time
}

// NewStore creates a session [Store] over the given database handle. A nil
// now falls back to time.Now.
func NewStore(db DB, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, now: now}
}

// Create inserts a new session row.
func (s *Store) Create(ctx context.Context, sess *Session) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO auth_sessions (id, identity_id, refresh_hash, user_agent, ip_address, created_at, rotated_at, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL)
	`, sess.ID, sess.IdentityID, sess.RefreshHash[:], sess.UserAgent, sess.IPAddress, sess.CreatedAt, sess.RotatedAt, sess.ExpiresAt)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	return nil
}

// Get loads a session row by identifier.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, identity_id, refresh_hash, user_agent, ip_address, created_at, rotated_at, expires_at, revoked_at
		FROM auth_sessions
		WHERE id = $1
	`, id)
	return scanSession(row)
}

// Rotate performs the compare-and-swap refresh rotation. The swap succeeds
// only when providedHash matches the stored hash and the session is live;
// otherwise the miss is classified as ErrRevoked, ErrRefreshReuse,
// ErrExpired, or ErrNotFound, in that precedence.
func (s *Store) Rotate(ctx context.Context, id string, providedHash, nextHash [32]byte, expiresAt time.Time) (*Session, error) {
	now := s.now().UTC()
	row := s.db.QueryRow(ctx, `
		UPDATE auth_sessions
		SET refresh_hash = $3, rotated_at = $4, expires_at = $5
		WHERE id = $1 AND refresh_hash = $2 AND revoked_at IS NULL AND expires_at > $4
		RETURNING id, identity_id, refresh_hash, user_agent, ip_address, created_at, rotated_at, expires_at, revoked_at
	`, id, providedHash[:], nextHash[:], now, expiresAt)

	sess, err := scanSession(row)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// CAS missed: read the row back to classify why.
	current, getErr := s.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	switch {
	case current.Revoked():
		return nil, ErrRevoked
	case current.RefreshHash != providedHash:
		return nil, ErrRefreshReuse
	case current.Expired(now):
		return nil, ErrExpired
	default:
		// The row changed between the CAS and the read; a concurrent
		// rotation won. Treat it as reuse of a stale secret.
		return nil, ErrRefreshReuse
	}
}

// Revoke marks the session revoked. Idempotent: revoking an already-revoked
// or absent session succeeds.
func (s *Store) Revoke(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE auth_sessions
		SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`, id, at)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	return nil
}

// RevokeAllForIdentity revokes every live session belonging to the identity.
func (s *Store) RevokeAllForIdentity(ctx context.Context, identityID string, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE auth_sessions
		SET revoked_at = $2
		WHERE identity_id = $1 AND revoked_at IS NULL
	`, identityID, at)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	return nil
}

// ActiveCount counts live, unexpired sessions for the identity.
func (s *Store) ActiveCount(ctx context.Context, identityID string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM auth_sessions
		WHERE identity_id = $1 AND revoked_at IS NULL AND expires_at > $2
	`, identityID, s.now().UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	return count, nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var (
		sess Session
		hash []byte
	)
	err := row.Scan(
		&sess.ID,
		&sess.IdentityID,
		&hash,
		&sess.UserAgent,
		&sess.IPAddress,
		&sess.CreatedAt,
		&sess.RotatedAt,
		&sess.ExpiresAt,
		&sess.RevokedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	if len(hash) != 32 {
		return nil, fmt.Errorf("%w: refresh hash length %d", ErrDatabaseUnavailable, len(hash))
	}
	copy(sess.RefreshHash[:], hash)
	return &sess, nil
}
