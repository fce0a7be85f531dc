package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ProjectSCARS/bentoauth"
	"github.com/ProjectSCARS/bentoauth/memstore"
	"github.com/ProjectSCARS/bentoauth/permission"
)

const apiTestPassword = "Correct-Horse-1"

type captureNotifier struct {
	mu         sync.Mutex
	resetCodes map[string]string
}

func (n *captureNotifier) NotifyAnomalousLogin(context.Context, bentoauth.AnomalyNotification) error {
	return nil
}

func (n *captureNotifier) DeliverPasswordReset(_ context.Context, d bentoauth.PasswordResetDelivery) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.resetCodes == nil {
		n.resetCodes = make(map[string]string)
	}
	n.resetCodes[d.Identity.Username] = d.Code
	return nil
}

func (n *captureNotifier) codeFor(username string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.resetCodes[username]
}

type apiEnv struct {
	engine   *bentoauth.Engine
	router   http.Handler
	notifier *captureNotifier
	store    *memstore.Store
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := bentoauth.DefaultConfig()
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.RateLimit.MaxLoginAttempts = 100

	store := memstore.NewStore()
	notifier := &captureNotifier{}
	engine, err := bentoauth.New().
		WithConfig(cfg).
		WithStore(store).
		WithSessionStore(memstore.NewSessionStore(nil)).
		WithRedis(client).
		WithNotifier(notifier).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	return &apiEnv{
		engine:   engine,
		router:   NewServer(engine, nil).Router(),
		notifier: notifier,
		store:    store,
	}
}

func (env *apiEnv) createAccount(t *testing.T, username string, role permission.RoleLevel) {
	t.Helper()
	_, err := env.engine.CreateAccount(context.Background(), bentoauth.CreateAccountRequest{
		Username:  username,
		Password:  apiTestPassword,
		RoleLevel: role,
		SchoolID:  "school-1",
	})
	if err != nil {
		t.Fatalf("create account %s: %v", username, err)
	}
}

func (env *apiEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "198.51.100.7:54321"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func (env *apiEnv) loginPair(t *testing.T, username string) tokenPairResponse {
	t.Helper()

	rec := env.do(t, http.MethodPost, "/v1/auth/token", "", loginRequest{
		Username: username,
		Password: apiTestPassword,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}

	var pair tokenPairResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &pair); err != nil {
		t.Fatalf("decode pair: %v", err)
	}
	return pair
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp.Error
}

func TestHealthcheck(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/healthcheck", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["message"] != "Healthy" {
		t.Fatalf("message = %q, want %q", body["message"], "Healthy")
	}
}

func TestLoginEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	env.createAccount(t, "jdoe", permission.RolePrincipal)

	pair := env.loginPair(t, "jdoe")
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("empty token pair")
	}
}

func TestLoginEndpoint_EnumerationSafe(t *testing.T) {
	env := newAPIEnv(t)
	env.createAccount(t, "known", permission.RolePrincipal)

	wrongPassword := env.do(t, http.MethodPost, "/v1/auth/token", "", loginRequest{
		Username: "known",
		Password: "Wrong-Horse-2",
	})
	unknownUser := env.do(t, http.MethodPost, "/v1/auth/token", "", loginRequest{
		Username: "ghost",
		Password: "Wrong-Horse-2",
	})

	for name, rec := range map[string]*httptest.ResponseRecorder{
		"wrong password": wrongPassword,
		"unknown user":   unknownUser,
	} {
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d, want %d", name, rec.Code, http.StatusUnauthorized)
		}
		if code := errorCode(t, rec); code != "invalid_credentials" {
			t.Fatalf("%s: code = %q, want invalid_credentials", name, code)
		}
	}
	if wrongPassword.Body.String() != unknownUser.Body.String() {
		t.Fatal("failure responses must be indistinguishable")
	}
}

func TestLoginEndpoint_MalformedBody(t *testing.T) {
	env := newAPIEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/token", strings.NewReader(`{"username": "a", "extra": true}`))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if code := errorCode(t, rec); code != "malformed_request" {
		t.Fatalf("code = %q", code)
	}
}

func TestRefreshEndpoint_RotatesPair(t *testing.T) {
	env := newAPIEnv(t)
	env.createAccount(t, "refresher", permission.RolePrincipal)
	pair := env.loginPair(t, "refresher")

	rec := env.do(t, http.MethodPost, "/v1/auth/refresh", "", refreshRequest{RefreshToken: pair.RefreshToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var next tokenPairResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &next); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh token not rotated")
	}

	// The rotated-away token is now theft evidence.
	rec = env.do(t, http.MethodPost, "/v1/auth/refresh", "", refreshRequest{RefreshToken: pair.RefreshToken})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("reuse status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if code := errorCode(t, rec); code != "refresh_reuse" {
		t.Fatalf("reuse code = %q", code)
	}
}

func TestRefreshEndpoint_Malformed(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/auth/refresh", "", refreshRequest{RefreshToken: "garbage"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if code := errorCode(t, rec); code != "token_malformed" {
		t.Fatalf("code = %q", code)
	}
}

func TestLogoutEndpoint_Idempotent(t *testing.T) {
	env := newAPIEnv(t)
	env.createAccount(t, "leaver", permission.RolePrincipal)
	pair := env.loginPair(t, "leaver")

	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, "/v1/auth/logout", "", refreshRequest{RefreshToken: pair.RefreshToken})
		if rec.Code != http.StatusNoContent {
			t.Fatalf("logout %d status = %d, want %d", i+1, rec.Code, http.StatusNoContent)
		}
	}

	rec := env.do(t, http.MethodPost, "/v1/auth/refresh", "", refreshRequest{RefreshToken: pair.RefreshToken})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout status = %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "token_revoked" {
		t.Fatalf("code = %q, want token_revoked", code)
	}
}

func TestLogoutAllEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	env.createAccount(t, "everywhere", permission.RolePrincipal)
	first := env.loginPair(t, "everywhere")
	second := env.loginPair(t, "everywhere")

	rec := env.do(t, http.MethodPost, "/v1/auth/logout/all", first.AccessToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	for i, pair := range []tokenPairResponse{first, second} {
		rec := env.do(t, http.MethodPost, "/v1/auth/refresh", "", refreshRequest{RefreshToken: pair.RefreshToken})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("session %d refresh status = %d, want %d", i+1, rec.Code, http.StatusUnauthorized)
		}
	}
}

func TestGuardedEndpointsRequireAuth(t *testing.T) {
	env := newAPIEnv(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/v1/auth/logout/all"},
		{http.MethodGet, "/v1/auth/security-report"},
		{http.MethodPost, "/v1/auth/mfa/enroll"},
		{http.MethodPost, "/v1/auth/password/change"},
		{http.MethodPost, "/v1/users/"},
	}
	for _, p := range paths {
		rec := env.do(t, p.method, p.path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s status = %d, want %d", p.method, p.path, rec.Code, http.StatusUnauthorized)
		}
	}
}

func TestCreateUserEndpoint_Permissions(t *testing.T) {
	env := newAPIEnv(t)
	env.createAccount(t, "root", permission.RoleSuperintendent)
	env.createAccount(t, "cook", permission.RoleCanteenManager)
	rootToken := env.loginPair(t, "root").AccessToken
	cookToken := env.loginPair(t, "cook").AccessToken

	newUser := createUserRequest{
		Username:  "newprincipal",
		Password:  apiTestPassword,
		RoleLevel: uint8(permission.RolePrincipal),
		SchoolID:  "school-9",
	}

	rec := env.do(t, http.MethodPost, "/v1/users/", cookToken, newUser)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("canteen manager status = %d, want %d", rec.Code, http.StatusForbidden)
	}

	rec = env.do(t, http.MethodPost, "/v1/users/", rootToken, newUser)
	if rec.Code != http.StatusCreated {
		t.Fatalf("superintendent status = %d, body %s", rec.Code, rec.Body.String())
	}

	var created userResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" || created.Username != "newprincipal" {
		t.Fatalf("created = %+v", created)
	}

	// Duplicate username.
	rec = env.do(t, http.MethodPost, "/v1/users/", rootToken, newUser)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if code := errorCode(t, rec); code != "username_taken" {
		t.Fatalf("duplicate code = %q", code)
	}
}

func TestDeactivateUserEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	env.createAccount(t, "admin", permission.RoleAdministrator)
	env.createAccount(t, "target", permission.RolePrincipal)
	adminToken := env.loginPair(t, "admin").AccessToken

	identity, err := env.store.GetByUsername(context.Background(), "target")
	if err != nil {
		t.Fatalf("resolve target: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/v1/users/"+identity.ID+"/deactivate", adminToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("deactivate status = %d, body %s", rec.Code, rec.Body.String())
	}

	login := env.do(t, http.MethodPost, "/v1/auth/token", "", loginRequest{
		Username: "target",
		Password: apiTestPassword,
	})
	if login.Code != http.StatusForbidden {
		t.Fatalf("login status = %d, want %d", login.Code, http.StatusForbidden)
	}
	if code := errorCode(t, login); code != "account_deactivated" {
		t.Fatalf("login code = %q", code)
	}

	rec = env.do(t, http.MethodPost, "/v1/users/"+identity.ID+"/reactivate", adminToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("reactivate status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/v1/auth/token", "", loginRequest{
		Username: "target",
		Password: apiTestPassword,
	}); rec.Code != http.StatusOK {
		t.Fatalf("post-reactivate login status = %d", rec.Code)
	}
}

func TestPasswordResetEndpoints(t *testing.T) {
	env := newAPIEnv(t)
	env.createAccount(t, "forgetful", permission.RolePrincipal)

	rec := env.do(t, http.MethodPost, "/v1/auth/password/reset/request", "", resetRequestBody{Username: "forgetful"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("request status = %d", rec.Code)
	}

	// Unknown usernames get the same response shape.
	rec = env.do(t, http.MethodPost, "/v1/auth/password/reset/request", "", resetRequestBody{Username: "ghost"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("unknown username status = %d, want %d", rec.Code, http.StatusAccepted)
	}

	code := env.notifier.codeFor("forgetful")
	if code == "" {
		t.Fatal("no reset code delivered")
	}

	rec = env.do(t, http.MethodPost, "/v1/auth/password/reset/confirm", "", resetConfirmBody{
		Username:    "forgetful",
		Code:        code,
		NewPassword: "Different-Horse-2",
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("confirm status = %d, body %s", rec.Code, rec.Body.String())
	}

	// The code is single use.
	rec = env.do(t, http.MethodPost, "/v1/auth/password/reset/confirm", "", resetConfirmBody{
		Username:    "forgetful",
		Code:        code,
		NewPassword: "Third-Horse-3",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("replayed confirm status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if got := errorCode(t, rec); got != "reset_invalid" {
		t.Fatalf("replayed confirm code = %q", got)
	}
}

func TestPasswordChangeEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	env.createAccount(t, "rotator", permission.RolePrincipal)
	token := env.loginPair(t, "rotator").AccessToken

	rec := env.do(t, http.MethodPost, "/v1/auth/password/change", token, passwordChangeRequest{
		OldPassword: apiTestPassword,
		NewPassword: "Different-Horse-2",
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	login := env.do(t, http.MethodPost, "/v1/auth/token", "", loginRequest{
		Username: "rotator",
		Password: "Different-Horse-2",
	})
	if login.Code != http.StatusOK {
		t.Fatalf("login with new password status = %d", login.Code)
	}
}

func TestSecurityReportEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	env.createAccount(t, "watched", permission.RolePrincipal)
	token := env.loginPair(t, "watched").AccessToken

	rec := env.do(t, http.MethodGet, "/v1/auth/security-report", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var report securityReportResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Username != "watched" {
		t.Fatalf("username = %q", report.Username)
	}
	if report.AnomalyState != "clean" {
		t.Fatalf("anomaly state = %q", report.AnomalyState)
	}
	if report.ActiveSessions != 1 {
		t.Fatalf("active sessions = %d, want 1", report.ActiveSessions)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	env.createAccount(t, "metered", permission.RolePrincipal)
	env.loginPair(t, "metered")

	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "bentoauth_login_success_total 1") {
		t.Fatalf("scrape missing login counter:\n%s", rec.Body.String())
	}
}
