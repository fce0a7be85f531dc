package bentoauth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ProjectSCARS/bentoauth/password"
	"github.com/ProjectSCARS/bentoauth/permission"
	"github.com/ProjectSCARS/bentoauth/session"
)

func newTestHasher(memoryKB uint32) (*password.Argon2, error) {
	return password.NewArgon2(password.Config{
		Memory:      memoryKB,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
}

// testPassword satisfies the BENTO credential policy.
const testPassword = "Correct-Horse-1"

// fakeStore is an in-memory Store for engine tests.
type fakeStore struct {
	mu         sync.Mutex
	identities map[string]*Identity
	byUsername map[string]string
	attempts   map[string]LoginAttemptRecord
	secrets    map[string]*MFASecret

	recordFailureErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		identities: map[string]*Identity{},
		byUsername: map[string]string{},
		attempts:   map[string]LoginAttemptRecord{},
		secrets:    map[string]*MFASecret{},
	}
}

func (s *fakeStore) addIdentity(identity *Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *identity
	s.identities[identity.ID] = &cp
	s.byUsername[identity.Username] = identity.ID
}

func (s *fakeStore) GetByUsername(_ context.Context, username string) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byUsername[username]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	cp := *s.identities[id]
	return &cp, nil
}

func (s *fakeStore) GetByID(_ context.Context, id string) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	cp := *identity
	return &cp, nil
}

func (s *fakeStore) Create(_ context.Context, identity *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byUsername[identity.Username]; taken {
		return ErrUsernameTaken
	}
	cp := *identity
	s.identities[identity.ID] = &cp
	s.byUsername[identity.Username] = identity.ID
	return nil
}

func (s *fakeStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return ErrIdentityNotFound
	}
	identity.PasswordHash = hash
	return nil
}

func (s *fakeStore) SetDeactivated(_ context.Context, id string, deactivated bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return ErrIdentityNotFound
	}
	identity.Deactivated = deactivated
	return nil
}

func (s *fakeStore) StampLastLogin(_ context.Context, id string, at time.Time, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return ErrIdentityNotFound
	}
	identity.LastLoginAt = at
	identity.LastLoginSource = source
	return nil
}

func (s *fakeStore) CountOtherActiveAdmins(_ context.Context, excludeID string) (int, error) {
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

func (s *fakeStore) RecordFailure(_ context.Context, identityID, source string, at time.Time) (LoginAttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordFailureErr != nil {
		return LoginAttemptRecord{}, s.recordFailureErr
	}
	record := s.attempts[identityID]
	record.IdentityID = identityID
	record.FailedCount++
	record.LastFailureAt = at
	record.LastFailureSource = source
	s.attempts[identityID] = record
	return record, nil
}

func (s *fakeStore) ResetFailures(_ context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, identityID)
	return nil
}

func (s *fakeStore) GetAttempts(_ context.Context, identityID string) (LoginAttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := s.attempts[identityID]
	record.IdentityID = identityID
	return record, nil
}

func (s *fakeStore) GetSecret(_ context.Context, identityID string) (*MFASecret, error) {
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

func (s *fakeStore) CreatePendingSecret(_ context.Context, identityID string, secret []byte, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[identityID] = &MFASecret{
		IdentityID: identityID,
		Secret:     append([]byte(nil), secret...),
		CreatedAt:  at,
	}
	return nil
}

func (s *fakeStore) ConfirmSecret(_ context.Context, identityID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	secret, ok := s.secrets[identityID]
	if !ok {
		return ErrMFANotEnrolled
	}
	secret.Enabled = true
	secret.ConfirmedAt = at
	return nil
}

func (s *fakeStore) DeleteSecret(_ context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.secrets, identityID)
	return nil
}

func (s *fakeStore) UpdateSecretLastUsed(_ context.Context, identityID string, counter int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	secret, ok := s.secrets[identityID]
	if !ok {
		return ErrMFANotEnrolled
	}
	secret.LastUsedCounter = counter
	return nil
}

// fakeSessionStore implements SessionStore in memory with the same CAS
// rotation and failure precedence as the PostgreSQL store.
type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	now      func() time.Time
}

func newFakeSessionStore(now func() time.Time) *fakeSessionStore {
	return &fakeSessionStore{
		sessions: map[string]*session.Session{},
		now:      now,
	}
}

func (s *fakeSessionStore) Create(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *fakeSessionStore) Get(_ context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *fakeSessionStore) Rotate(_ context.Context, id string, providedHash, nextHash [32]byte, expiresAt time.Time) (*session.Session, error) {
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

func (s *fakeSessionStore) Revoke(_ context.Context, id string, at time.Time) error {
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

func (s *fakeSessionStore) RevokeAllForIdentity(_ context.Context, identityID string, at time.Time) error {
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

func (s *fakeSessionStore) ActiveCount(_ context.Context, identityID string) (int, error) {
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

// fakeNotifier records deliveries for assertion.
type fakeNotifier struct {
	mu        sync.Mutex
	anomalies []AnomalyNotification
	resets    []PasswordResetDelivery
	err       error
}

func (n *fakeNotifier) NotifyAnomalousLogin(_ context.Context, notification AnomalyNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.anomalies = append(n.anomalies, notification)
	return nil
}

func (n *fakeNotifier) DeliverPasswordReset(_ context.Context, delivery PasswordResetDelivery) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.resets = append(n.resets, delivery)
	return nil
}

func (n *fakeNotifier) anomalyCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.anomalies)
}

func (n *fakeNotifier) resetCodes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	codes := make([]string, 0, len(n.resets))
	for _, d := range n.resets {
		codes = append(codes, d.Code)
	}
	return codes
}

// testClock is a settable clock shared by the engine and assertions.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	engine   *Engine
	store    *fakeStore
	sessions *fakeSessionStore
	notifier *fakeNotifier
	clock    *testClock
	redis    *miniredis.Miniredis
}

func engineTestConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	// Low-cost hashing keeps the suite fast.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	// Generous throttle so anomaly tests exercise the durable counter,
	// not the Redis window.
	cfg.RateLimit.MaxLoginAttempts = 100
	return cfg
}

func newTestEngine(t *testing.T, cfg Config) *testEnv {
	return newTestEngineWithSink(t, cfg, nil)
}

func newTestEngineWithSink(t *testing.T, cfg Config, sink AuditSink) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	clock := newTestClock()
	store := newFakeStore()
	sessions := newFakeSessionStore(clock.Now)
	notifier := &fakeNotifier{}

	builder := New().
		WithConfig(cfg).
		WithStore(store).
		WithSessionStore(sessions).
		WithRedis(client).
		WithNotifier(notifier).
		WithClock(clock.Now)
	if sink != nil {
		builder = builder.WithAuditSink(sink)
	}
	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{
		engine:   engine,
		store:    store,
		sessions: sessions,
		notifier: notifier,
		clock:    clock,
		redis:    mr,
	}
}

// seedIdentity creates an active account with the given role and the
// shared test password.
func (env *testEnv) seedIdentity(t *testing.T, username string, role permission.RoleLevel) *Identity {
	t.Helper()
	hash, err := env.engine.passwordHash.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	identity := &Identity{
		ID:           "id-" + username,
		Username:     username,
		PasswordHash: hash,
		RoleLevel:    role,
		SchoolID:     "school-1",
		CreatedAt:    env.clock.Now(),
		UpdatedAt:    env.clock.Now(),
	}
	env.store.addIdentity(identity)
	return identity
}
