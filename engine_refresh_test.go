package bentoauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ProjectSCARS/bentoauth/internal"
)

func loginForRefresh(t *testing.T, env *testEnv) (*LoginResult, string) {
	t.Helper()
	env.seedIdentity(t, "refresher", 3)
	result, err := env.engine.Login(context.Background(), "refresher", testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	sessionID, _, err := internal.DecodeRefreshToken(result.RefreshToken)
	if err != nil {
		t.Fatalf("DecodeRefreshToken: %v", err)
	}
	return result, sessionID.String()
}

func TestRefresh_RotatesTokenPair(t *testing.T) {
	env := newTestEngine(t, engineTestConfig())
	result, sessionID := loginForRefresh(t, env)

	access, refresh, err := env.engine.Refresh(context.Background(), result.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if access == "" || refresh == "" {
		t.Fatal("expected a full token pair")
	}
	if refresh == result.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}

	principal, err := env.engine.Validate(context.Background(), access, ModeStrict)
	if err != nil {
		t.Fatalf("Validate after refresh: %v", err)
	}
	if principal.SessionID != sessionID {
		t.Fatalf("SessionID = %q, want %q", principal.SessionID, sessionID)
	}

	// The new refresh token stays bound to the same session.
	rotatedID, _, err := internal.DecodeRefreshToken(refresh)
	if err != nil {
		t.Fatalf("DecodeRefreshToken: %v", err)
	}
	if rotatedID.String() != sessionID {
		t.Fatalf("rotated session ID = %q, want %q", rotatedID, sessionID)
	}
}

func TestRefresh_ReuseRevokesSession(t *testing.T) {
	env := newTestEngine(t, engineTestConfig())
	result, _ := loginForRefresh(t, env)

	_, fresh, err := env.engine.Refresh(context.Background(), result.RefreshToken)
	if err != nil {
		t.Fatalf("first Refresh: %v", err)
	}

	// Presenting the consumed token is treated as theft evidence.
	if _, _, err := env.engine.Refresh(context.Background(), result.RefreshToken); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("reused token: err = %v, want ErrRefreshReuse", err)
	}

	// The whole session died, so the legitimately rotated token is dead too.
	if _, _, err := env.engine.Refresh(context.Background(), fresh); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("rotated token after reuse: err = %v, want ErrTokenRevoked", err)
	}
}

func TestRefresh_RevokedSession(t *testing.T) {
	env := newTestEngine(t, engineTestConfig())
	result, sessionID := loginForRefresh(t, env)

	if err := env.engine.Logout(context.Background(), sessionID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, _, err := env.engine.Refresh(context.Background(), result.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("err = %v, want ErrTokenRevoked", err)
	}
}

func TestRefresh_ExpiredSession(t *testing.T) {
	cfg := engineTestConfig()
	env := newTestEngine(t, cfg)
	result, _ := loginForRefresh(t, env)

	env.clock.Advance(cfg.Session.RefreshTTL + time.Minute)
	if _, _, err := env.engine.Refresh(context.Background(), result.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
}

func TestRefresh_Malformed(t *testing.T) {
	env := newTestEngine(t, engineTestConfig())

	for _, token := range []string{"", "not-a-token", "YWJj"} {
		if _, _, err := env.engine.Refresh(context.Background(), token); !errors.Is(err, ErrTokenMalformed) {
			t.Fatalf("Refresh(%q): err = %v, want ErrTokenMalformed", token, err)
		}
	}

	// Well-formed token for a session that does not exist.
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		t.Fatalf("NewRefreshSecret: %v", err)
	}
	orphan, err := internal.EncodeRefreshToken(uuid.New(), secret)
	if err != nil {
		t.Fatalf("EncodeRefreshToken: %v", err)
	}
	if _, _, err := env.engine.Refresh(context.Background(), orphan); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("orphan token: err = %v, want ErrTokenMalformed", err)
	}
}

func TestRefresh_DeactivatedAccount(t *testing.T) {
	env := newTestEngine(t, engineTestConfig())
	result, sessionID := loginForRefresh(t, env)

	if err := env.store.SetDeactivated(context.Background(), result.Identity.ID, true); err != nil {
		t.Fatalf("SetDeactivated: %v", err)
	}
	if _, _, err := env.engine.Refresh(context.Background(), result.RefreshToken); !errors.Is(err, ErrAccountDeactivated) {
		t.Fatalf("err = %v, want ErrAccountDeactivated", err)
	}

	// The session was closed out as a side effect.
	sess, err := env.sessions.Get(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !sess.Revoked() {
		t.Fatal("session should be revoked after deactivation surfaced on refresh")
	}
}

func TestRefresh_RateLimited(t *testing.T) {
	cfg := engineTestConfig()
	cfg.RateLimit.MaxRefreshAttempts = 2
	cfg.RateLimit.RefreshCooldown = time.Minute
	env := newTestEngine(t, cfg)
	result, _ := loginForRefresh(t, env)

	refresh := result.RefreshToken
	for i := 0; i < 2; i++ {
		_, next, err := env.engine.Refresh(context.Background(), refresh)
		if err != nil {
			t.Fatalf("Refresh %d: %v", i, err)
		}
		refresh = next
	}
	if _, _, err := env.engine.Refresh(context.Background(), refresh); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}

	// A valid token survives the throttle window.
	env.redis.FastForward(2 * time.Minute)
	if _, _, err := env.engine.Refresh(context.Background(), refresh); err != nil {
		t.Fatalf("Refresh after window: %v", err)
	}
}

func TestLogout_Idempotent(t *testing.T) {
	env := newTestEngine(t, engineTestConfig())
	_, sessionID := loginForRefresh(t, env)

	if err := env.engine.Logout(context.Background(), sessionID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if err := env.engine.Logout(context.Background(), sessionID); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
	if err := env.engine.Logout(context.Background(), "no-such-session"); err != nil {
		t.Fatalf("Logout unknown session: %v", err)
	}
}

func TestLogoutByAccessToken(t *testing.T) {
	env := newTestEngine(t, engineTestConfig())
	result, _ := loginForRefresh(t, env)

	if err := env.engine.LogoutByAccessToken(context.Background(), result.AccessToken); err != nil {
		t.Fatalf("LogoutByAccessToken: %v", err)
	}
	if _, _, err := env.engine.Refresh(context.Background(), result.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("err = %v, want ErrTokenRevoked", err)
	}

	if err := env.engine.LogoutByAccessToken(context.Background(), "garbage"); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("err = %v, want ErrTokenMalformed", err)
	}
}

func TestLogoutAll(t *testing.T) {
	env := newTestEngine(t, engineTestConfig())
	identity := env.seedIdentity(t, "multisession", 4)

	var refreshTokens []string
	for i := 0; i < 3; i++ {
		result, err := env.engine.Login(context.Background(), "multisession", testPassword)
		if err != nil {
			t.Fatalf("Login %d: %v", i, err)
		}
		refreshTokens = append(refreshTokens, result.RefreshToken)
	}

	if err := env.engine.LogoutAll(context.Background(), identity.ID); err != nil {
		t.Fatalf("LogoutAll: %v", err)
	}
	count, err := env.sessions.ActiveCount(context.Background(), identity.ID)
	if err != nil {
		t.Fatalf("ActiveCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("ActiveCount = %d, want 0", count)
	}
	for i, refresh := range refreshTokens {
		if _, _, err := env.engine.Refresh(context.Background(), refresh); !errors.Is(err, ErrTokenRevoked) {
			t.Fatalf("token %d: err = %v, want ErrTokenRevoked", i, err)
		}
	}
}
