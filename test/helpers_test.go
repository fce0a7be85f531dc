//go:build integration
// +build integration

package test

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ProjectSCARS/bentoauth"
	"github.com/ProjectSCARS/bentoauth/memstore"
	"github.com/ProjectSCARS/bentoauth/permission"
)

const integrationPassword = "Correct-Horse-1"

type countingNotifier struct {
	mu        sync.Mutex
	anomalies []bentoauth.AnomalyNotification
}

func (n *countingNotifier) NotifyAnomalousLogin(_ context.Context, an bentoauth.AnomalyNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.anomalies = append(n.anomalies, an)
	return nil
}

func (n *countingNotifier) DeliverPasswordReset(context.Context, bentoauth.PasswordResetDelivery) error {
	return nil
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.anomalies)
}

type integrationEnv struct {
	engine   *bentoauth.Engine
	store    *memstore.Store
	sessions *memstore.SessionStore
	notifier *countingNotifier
}

func newIntegrationEnv(t *testing.T) *integrationEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := bentoauth.DefaultConfig()
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	// Keep the Redis throttle out of the way so the durable counter and
	// the notification path carry the race tests.
	cfg.RateLimit.MaxLoginAttempts = 1000
	cfg.RateLimit.MaxRefreshAttempts = 1000

	store := memstore.NewStore()
	sessions := memstore.NewSessionStore(nil)
	notifier := &countingNotifier{}

	engine, err := bentoauth.New().
		WithConfig(cfg).
		WithStore(store).
		WithSessionStore(sessions).
		WithRedis(rdb).
		WithNotifier(notifier).
		Build()
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &integrationEnv{
		engine:   engine,
		store:    store,
		sessions: sessions,
		notifier: notifier,
	}
}

func (env *integrationEnv) createAccount(t *testing.T, username string, role permission.RoleLevel) string {
	t.Helper()

	identity, err := env.engine.CreateAccount(context.Background(), bentoauth.CreateAccountRequest{
		Username:  username,
		Password:  integrationPassword,
		RoleLevel: role,
		SchoolID:  "school-1",
	})
	if err != nil {
		t.Fatalf("create account %s: %v", username, err)
	}
	return identity.ID
}
