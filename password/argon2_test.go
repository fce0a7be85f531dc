package password

import (
	"strings"
	"testing"
)

func testConfig() Config {
	// Low-cost parameters to keep the suite fast.
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestHashVerify_RoundTrip(t *testing.T) {
	a, err := NewArgon2(testConfig())
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}

	hash, err := a.Hash("Correct-Horse-1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("hash must be PHC formatted, got %q", hash)
	}

	ok, err := a.Verify("Correct-Horse-1", hash)
	if err != nil || !ok {
		t.Fatalf("verify(correct) = %v, %v", ok, err)
	}

	ok, err = a.Verify("Wrong-Horse-1", hash)
	if err != nil {
		t.Fatalf("verify(wrong): %v", err)
	}
	if ok {
		t.Fatal("wrong password must not verify")
	}
}

func TestHash_SaltsDiffer(t *testing.T) {
	a, _ := NewArgon2(testConfig())
	h1, err := a.Hash("Same-Password-1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := a.Hash("Same-Password-1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 == h2 {
		t.Fatal("two hashes of the same password must use distinct salts")
	}
}

func TestVerify_RejectsMangledPHC(t *testing.T) {
	a, _ := NewArgon2(testConfig())
	hash, _ := a.Hash("Correct-Horse-1")

	for _, mangled := range []string{
		"",
		"not-a-phc",
		strings.Replace(hash, "argon2id", "argon2i", 1),
		strings.Replace(hash, "v=19", "v=18", 1),
		"$argon2id$v=19$m=8192,t=1$short$short",
	} {
		if _, err := a.Verify("Correct-Horse-1", mangled); err == nil {
			t.Fatalf("mangled hash %q must not parse", mangled)
		}
	}
}

func TestNeedsUpgrade(t *testing.T) {
	weak, _ := NewArgon2(testConfig())
	hash, err := weak.Hash("Correct-Horse-1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	strongCfg := testConfig()
	strongCfg.Memory = 64 * 1024
	strong, _ := NewArgon2(strongCfg)

	needs, err := strong.NeedsUpgrade(hash)
	if err != nil {
		t.Fatalf("NeedsUpgrade: %v", err)
	}
	if !needs {
		t.Fatal("hash below configured memory must need upgrade")
	}

	needs, err = weak.NeedsUpgrade(hash)
	if err != nil {
		t.Fatalf("NeedsUpgrade: %v", err)
	}
	if needs {
		t.Fatal("hash at configured parameters must not need upgrade")
	}
}

func TestValidateUsername(t *testing.T) {
	for _, valid := range []string{"bento_admin", "a-1", "Canteen-Manager-22"} {
		if err := ValidateUsername(valid); err != nil {
			t.Fatalf("username %q must pass: %v", valid, err)
		}
	}
	for _, invalid := range []string{"", "ab", "has space", "way-too-long-username-abc", "emoji😀"} {
		if err := ValidateUsername(invalid); err == nil {
			t.Fatalf("username %q must fail", invalid)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("Abcdef12"); err != nil {
		t.Fatalf("compliant password must pass: %v", err)
	}
	for _, invalid := range []string{"Short1a", "alllower1", "ALLUPPER1", "NoDigitsHere"} {
		if err := ValidatePassword(invalid); err == nil {
			t.Fatalf("password %q must fail", invalid)
		}
	}
}
