// Package memstore provides in-memory implementations of the engine's
// storage interfaces. Intended for tests, examples, and single-process
// deployments where persistence is not required; production servers use
// the postgres and session packages.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/ProjectSCARS/bentoauth"
	"github.com/ProjectSCARS/bentoauth/session"
)

// Store implements bentoauth.Store over mutex-protected maps. Semantics
// match the PostgreSQL store, including the atomic post-increment
// failure counter.
type Store struct {
	mu         sync.Mutex
	identities map[string]*bentoauth.Identity
	byUsername map[string]string
	attempts   map[string]bentoauth.LoginAttemptRecord
	secrets    map[string]*bentoauth.MFASecret
}

// NewStore creates an empty [Store].
func NewStore() *Store {
	return &Store{
		identities: make(map[string]*bentoauth.Identity),
		byUsername: make(map[string]string),
		attempts:   make(map[string]bentoauth.LoginAttemptRecord),
		secrets:    make(map[string]*bentoauth.MFASecret),
	}
}

func (s *Store) GetByUsername(_ context.Context, username string) (*bentoauth.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byUsername[username]
	if !ok {
		return nil, bentoauth.ErrIdentityNotFound
	}
	cp := *s.identities[id]
	return &cp, nil
}

func (s *Store) GetByID(_ context.Context, id string) (*bentoauth.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return nil, bentoauth.ErrIdentityNotFound
	}
	cp := *identity
	return &cp, nil
}

func (s *Store) Create(_ context.Context, identity *bentoauth.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byUsername[identity.Username]; taken {
		return bentoauth.ErrUsernameTaken
	}
	cp := *identity
	s.identities[identity.ID] = &cp
	s.byUsername[identity.Username] = identity.ID
	return nil
}

func (s *Store) UpdatePasswordHash(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return bentoauth.ErrIdentityNotFound
	}
	identity.PasswordHash = hash
	identity.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) SetDeactivated(_ context.Context, id string, deactivated bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return bentoauth.ErrIdentityNotFound
	}
	identity.Deactivated = deactivated
	identity.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) StampLastLogin(_ context.Context, id string, at time.Time, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return bentoauth.ErrIdentityNotFound
	}
	identity.LastLoginAt = at
	identity.LastLoginSource = source
	return nil
}

func (s *Store) CountOtherActiveAdmins(_ context.Context, excludeID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, identity := range s.identities {
		if id == excludeID || identity.Deactivated {
			continue
		}
		if identity.RoleLevel.Admin() {
			count++
		}
	}
	return count, nil
}

func (s *Store) RecordFailure(_ context.Context, identityID, source string, at time.Time) (bentoauth.LoginAttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := s.attempts[identityID]
	record.IdentityID = identityID
	record.FailedCount++
	record.LastFailureAt = at
	record.LastFailureSource = source
	s.attempts[identityID] = record
	return record, nil
}

func (s *Store) ResetFailures(_ context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, identityID)
	return nil
}

func (s *Store) GetAttempts(_ context.Context, identityID string) (bentoauth.LoginAttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := s.attempts[identityID]
	record.IdentityID = identityID
	return record, nil
}

func (s *Store) GetSecret(_ context.Context, identityID string) (*bentoauth.MFASecret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	secret, ok := s.secrets[identityID]
	if !ok {
		return nil, nil
	}
	cp := *secret
	cp.Secret = append([]byte(nil), secret.Secret...)
	return &cp, nil
}

func (s *Store) CreatePendingSecret(_ context.Context, identityID string, secret []byte, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[identityID] = &bentoauth.MFASecret{
		IdentityID: identityID,
		Secret:     append([]byte(nil), secret...),
		CreatedAt:  at,
	}
	return nil
}

func (s *Store) ConfirmSecret(_ context.Context, identityID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	secret, ok := s.secrets[identityID]
	if !ok {
		return bentoauth.ErrMFANotEnrolled
	}
	secret.Enabled = true
	secret.ConfirmedAt = at
	return nil
}

func (s *Store) DeleteSecret(_ context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.secrets, identityID)
	return nil
}

func (s *Store) UpdateSecretLastUsed(_ context.Context, identityID string, counter int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	secret, ok := s.secrets[identityID]
	if !ok {
		return bentoauth.ErrMFANotEnrolled
	}
	secret.LastUsedCounter = counter
	return nil
}

// SessionStore implements bentoauth.SessionStore in memory with the same
// compare-and-swap rotation and failure precedence as the PostgreSQL
// registry.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	now      func() time.Time
}

// NewSessionStore creates an empty [SessionStore]. A nil clock means
// time.Now.
func NewSessionStore(now func() time.Time) *SessionStore {
	if now == nil {
		now = time.Now
	}
	return &SessionStore{
		sessions: make(map[string]*session.Session),
		now:      now,
	}
}

func (s *SessionStore) Create(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *SessionStore) Get(_ context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *SessionStore) Rotate(_ context.Context, id string, providedHash, nextHash [32]byte, expiresAt time.Time) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	switch {
	case sess.Revoked():
		return nil, session.ErrRevoked
	case sess.RefreshHash != providedHash:
		return nil, session.ErrRefreshReuse
	case sess.Expired(s.now()):
		return nil, session.ErrExpired
	}
	sess.RefreshHash = nextHash
	sess.RotatedAt = s.now()
	sess.ExpiresAt = expiresAt
	cp := *sess
	return &cp, nil
}

func (s *SessionStore) Revoke(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.RevokedAt != nil {
		return nil
	}
	revokedAt := at
	sess.RevokedAt = &revokedAt
	return nil
}

func (s *SessionStore) RevokeAllForIdentity(_ context.Context, identityID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.IdentityID == identityID && sess.RevokedAt == nil {
			revokedAt := at
			sess.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (s *SessionStore) ActiveCount(_ context.Context, identityID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	now := s.now()
	for _, sess := range s.sessions {
		if sess.IdentityID == identityID && !sess.Revoked() && !sess.Expired(now) {
			count++
		}
	}
	return count, nil
}
