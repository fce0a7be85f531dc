package bentoauth

import (
	"context"
	"errors"
	"testing"

	"github.com/ProjectSCARS/bentoauth/permission"
)

func TestCreateAccount(t *testing.T) {
	env := newTestEngine(t, engineTestConfig())

	identity, err := env.engine.CreateAccount(context.Background(), CreateAccountRequest{
		Username:  "canteen_mgr",
		Password:  testPassword,
		RoleLevel: permission.RoleCanteenManager,
		SchoolID:  "school-7",
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if identity.ID == "" {
		t.Fatal("empty identity ID")
	}
	if identity.PasswordHash == testPassword {
		t.Fatal("password stored in the clear")
	}

	result, err := env.engine.Login(context.Background(), "canteen_mgr", testPassword)
	if err != nil {
		t.Fatalf("Login as new account: %v", err)
	}
	if result.Identity.SchoolID != "school-7" {
		t.Fatalf("SchoolID = %q, want school-7", result.Identity.SchoolID)
	}
}

func TestCreateAccount_Rejections(t *testing.T) {
	env := newTestEngine(t, engineTestConfig())
	env.seedIdentity(t, "taken", 3)

	cases := []struct {
		name string
		req  CreateAccountRequest
		want error
	}{
		{"short username", CreateAccountRequest{Username: "ab", Password: testPassword, RoleLevel: 3}, ErrUsernamePolicy},
		{"bad username chars", CreateAccountRequest{Username: "no spaces", Password: testPassword, RoleLevel: 3}, ErrUsernamePolicy},
		{"weak password", CreateAccountRequest{Username: "valid_name", Password: "alllowercase", RoleLevel: 3}, ErrPasswordPolicy},
		{"short password", CreateAccountRequest{Username: "valid_name", Password: "Ab1", RoleLevel: 3}, ErrPasswordPolicy},
		{"zero role", CreateAccountRequest{Username: "valid_name", Password: testPassword, RoleLevel: 0}, ErrUnknownRole},
		{"unknown role", CreateAccountRequest{Username: "valid_name", Password: testPassword, RoleLevel: 9}, ErrUnknownRole},
		{"duplicate username", CreateAccountRequest{Username: "taken", Password: testPassword, RoleLevel: 3}, ErrUsernameTaken},
	}
	for _, tc := range cases {
		if _, err := env.engine.CreateAccount(context.Background(), tc.req); !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestDeactivateAccount(t *testing.T) {
	env := newTestEngine(t, engineTestConfig())
	env.seedIdentity(t, "super", permission.RoleSuperintendent)
	principal := env.seedIdentity(t, "principal", permission.RolePrincipal)

	result, err := env.engine.Login(context.Background(), "principal", testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := env.engine.DeactivateAccount(context.Background(), principal.ID); err != nil {
		t.Fatalf("DeactivateAccount: %v", err)
	}
	// Idempotent second call.
	if err := env.engine.DeactivateAccount(context.Background(), principal.ID); err != nil {
		t.Fatalf("second DeactivateAccount: %v", err)
	}

	if _, err := env.engine.Login(context.Background(), "principal", testPassword); !errors.Is(err, ErrAccountDeactivated) {
		t.Fatalf("Login: err = %v, want ErrAccountDeactivated", err)
	}
	if _, _, err := env.engine.Refresh(context.Background(), result.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("Refresh: err = %v, want ErrTokenRevoked", err)
	}
}

func TestDeactivateAccount_LastAdminGuard(t *testing.T) {
	env := newTestEngine(t, engineTestConfig())
	admin := env.seedIdentity(t, "only_admin", permission.RoleAdministrator)
	env.seedIdentity(t, "principal", permission.RolePrincipal)

	if err := env.engine.DeactivateAccount(context.Background(), admin.ID); !errors.Is(err, ErrLastAdmin) {
		t.Fatalf("err = %v, want ErrLastAdmin", err)
	}

	// A second admin-level account unlocks the deactivation.
	env.seedIdentity(t, "super", permission.RoleSuperintendent)
	if err := env.engine.DeactivateAccount(context.Background(), admin.ID); err != nil {
		t.Fatalf("DeactivateAccount with backup admin: %v", err)
	}

	// And the remaining one is now protected.
	remaining, err := env.store.GetByUsername(context.Background(), "super")
	if err != nil {
		t.Fatalf("GetByUsername: %v", err)
	}
	if err := env.engine.DeactivateAccount(context.Background(), remaining.ID); !errors.Is(err, ErrLastAdmin) {
		t.Fatalf("err = %v, want ErrLastAdmin", err)
	}
}

func TestReactivateAccount(t *testing.T) {
	env := newTestEngine(t, engineTestConfig())
	env.seedIdentity(t, "super", permission.RoleSuperintendent)
	manager := env.seedIdentity(t, "manager", permission.RoleCanteenManager)

	if err := env.engine.DeactivateAccount(context.Background(), manager.ID); err != nil {
		t.Fatalf("DeactivateAccount: %v", err)
	}
	if err := env.engine.ReactivateAccount(context.Background(), manager.ID); err != nil {
		t.Fatalf("ReactivateAccount: %v", err)
	}
	// Idempotent on an already active account.
	if err := env.engine.ReactivateAccount(context.Background(), manager.ID); err != nil {
		t.Fatalf("second ReactivateAccount: %v", err)
	}

	if _, err := env.engine.Login(context.Background(), "manager", testPassword); err != nil {
		t.Fatalf("Login after reactivation: %v", err)
	}

	if err := env.engine.ReactivateAccount(context.Background(), "ghost"); !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("err = %v, want ErrIdentityNotFound", err)
	}
}
