package password

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// testConfig keeps Argon2id cheap enough for unit tests.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func TestHashAndVerify_OK(t *testing.T) {
	cfg := testConfig()

	h, err := cfg.Hash("this is a strong password 123!")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(h, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected encoding: %s", h)
	}
	if !cfg.Verify(h, "this is a strong password 123!") {
		t.Fatalf("expected match")
	}
	if err := cfg.Compare(h, "this is a strong password 123!"); err != nil {
		t.Fatalf("Compare error: %v", err)
	}
}

func TestHash_SaltedPerCall(t *testing.T) {
	cfg := testConfig()

	a, err := cfg.Hash("same input")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	b, err := cfg.Hash("same input")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct hashes for the same password")
	}
	if !cfg.Verify(a, "same input") || !cfg.Verify(b, "same input") {
		t.Fatalf("both hashes must verify")
	}
}

func TestVerify_WrongPassword(t *testing.T) {
	cfg := testConfig()

	h, err := cfg.Hash("this is a strong password 123!")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if cfg.Verify(h, "wrong password") {
		t.Fatalf("expected mismatch")
	}
	if err := cfg.Compare(h, "wrong password"); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
}

func TestVerify_InvalidHash(t *testing.T) {
	cfg := testConfig()

	valid, err := cfg.Hash("whatever")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	parts := strings.Split(valid, "$")

	cases := map[string]string{
		"empty":          "",
		"garbage":        "not-a-hash",
		"wrong alg":      strings.Replace(valid, "argon2id", "argon2i", 1),
		"wrong version":  strings.Replace(valid, "v=19", "v=16", 1),
		"bad params":     "$argon2id$v=19$m=x,t=1,p=1$" + parts[4] + "$" + parts[5],
		"zero memory":    "$argon2id$v=19$m=0,t=1,p=1$" + parts[4] + "$" + parts[5],
		"bad salt b64":   "$argon2id$v=19$m=8192,t=1,p=1$!!!$" + parts[5],
		"missing key":    "$argon2id$v=19$m=8192,t=1,p=1$" + parts[4] + "$",
		"huge memory":    "$argon2id$v=19$m=4194304,t=1,p=1$" + parts[4] + "$" + parts[5],
		"huge iteration": "$argon2id$v=19$m=8192,t=1000,p=1$" + parts[4] + "$" + parts[5],
		"bcrypt garbage": "$2b$xx$nonsense",
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			if cfg.Verify(h, "whatever") {
				t.Fatalf("expected false")
			}
			if err := cfg.Compare(h, "whatever"); !errors.Is(err, ErrInvalidHash) {
				t.Fatalf("expected ErrInvalidHash, got %v", err)
			}
		})
	}
}

func TestVerify_LegacyBcrypt(t *testing.T) {
	cfg := testConfig()

	raw, err := bcrypt.GenerateFromPassword([]byte("legacy secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	h := string(raw)

	if !cfg.Verify(h, "legacy secret") {
		t.Fatalf("expected legacy match")
	}
	if cfg.Verify(h, "other secret") {
		t.Fatalf("expected legacy mismatch")
	}
	if err := cfg.Compare(h, "other secret"); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}

	// Same hash under the $2y$ prefix used by other bcrypt implementations.
	if !cfg.Verify("$2y$"+strings.TrimPrefix(h, "$2a$"), "legacy secret") {
		t.Fatalf("expected $2y$ match")
	}
}

func TestVerify_BcryptCostBound(t *testing.T) {
	cfg := testConfig()
	cfg.BcryptMaxCost = 5

	raw, err := bcrypt.GenerateFromPassword([]byte("pw"), 6)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if err := cfg.Compare(string(raw), "pw"); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
}

func TestNeedsRehash(t *testing.T) {
	weak := testConfig()
	strong := testConfig()
	strong.Params.Iterations = 2

	h, err := weak.Hash("pw")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if weak.NeedsRehash(h) {
		t.Fatalf("hash made with current params must not need rehash")
	}
	if !strong.NeedsRehash(h) {
		t.Fatalf("hash weaker than current params must need rehash")
	}

	raw, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if !weak.NeedsRehash(string(raw)) {
		t.Fatalf("bcrypt hashes must need rehash")
	}
	if weak.NeedsRehash("not-a-hash") {
		t.Fatalf("undecodable hash must not report rehash")
	}
}

func TestValidate_MinMax(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy.MinLength = 12
	cfg.Policy.MaxLength = 16

	if err := cfg.Validate("short"); err != ErrPasswordTooShort {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	if err := cfg.Validate("this password is definitely too long"); err != ErrPasswordTooLong {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
	if err := cfg.Validate("goodpassw0rd!"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	// Runes, not bytes.
	if err := cfg.Validate(strings.Repeat("ж", 14)); err != nil {
		t.Fatalf("expected ok for 14 runes, got %v", err)
	}
}

func TestValidate_DefaultPolicyPermissive(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate("x"); err != nil {
		t.Fatalf("expected single char ok, got %v", err)
	}
	if err := cfg.Validate(""); !IsPolicyViolation(err) {
		t.Fatalf("expected policy violation for empty password, got %v", err)
	}
}

func TestPolicy_RejectVeryWeak(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy.RejectVeryWeak = true
	cfg.Policy.MinLength = 8

	for _, pw := range []string{"password", "11111111", "aaaaaaaaa", "12345678901", "QWERTY123"} {
		if err := cfg.Validate(pw); err != ErrWeakPassword {
			t.Fatalf("%q: expected ErrWeakPassword, got %v", pw, err)
		}
	}
	if err := cfg.Validate("a-very-ok-pass"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}
