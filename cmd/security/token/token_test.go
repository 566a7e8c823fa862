package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{Secret: testSecret})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	m := newTestManager(t)
	now := time.Unix(1_700_000_000, 0)

	tok, exp, err := m.Issue("alice", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if want := now.Add(DefaultTTL); !exp.Equal(want) {
		t.Fatalf("exp = %v, want %v", exp, want)
	}

	for _, at := range []time.Time{now, now.Add(time.Hour), exp.Add(-time.Second)} {
		sub, err := m.Verify(tok, at)
		if err != nil {
			t.Fatalf("Verify at %v: %v", at, err)
		}
		if sub != "alice" {
			t.Fatalf("subject = %q", sub)
		}
	}
}

func TestVerifyClaims_IssuedAt(t *testing.T) {
	m := newTestManager(t)
	now := time.Unix(1_700_000_000, 500_000_000)

	tok, _, err := m.Issue("alice", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	c, err := m.VerifyClaims(tok, now)
	if err != nil {
		t.Fatalf("VerifyClaims: %v", err)
	}
	if c.Subject != "alice" {
		t.Fatalf("subject = %q", c.Subject)
	}
	if want := now.Truncate(time.Second); !c.IssuedAt.Equal(want) {
		t.Fatalf("iat = %v, want %v", c.IssuedAt, want)
	}

	noIat, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "alice",
		Issuer:    DefaultIssuer,
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	c, err = m.VerifyClaims(noIat, now)
	if err != nil {
		t.Fatalf("VerifyClaims without iat: %v", err)
	}
	if !c.IssuedAt.IsZero() {
		t.Fatalf("iat = %v, want zero", c.IssuedAt)
	}
}

func TestVerify_ExpiredAtAndAfterTTL(t *testing.T) {
	m := newTestManager(t)
	now := time.Unix(1_700_000_000, 0)

	tok, exp, err := m.Issue("alice", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	for _, at := range []time.Time{exp, exp.Add(time.Second), now.Add(DefaultTTL + 24*time.Hour)} {
		if _, err := m.Verify(tok, at); !errors.Is(err, ErrExpired) {
			t.Fatalf("Verify at %v: want ErrExpired, got %v", at, err)
		}
	}
}

func TestVerify_CustomTTL(t *testing.T) {
	m, err := NewManager(Config{Secret: testSecret, TTL: time.Minute})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	tok, _, err := m.Issue("bob", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := m.Verify(tok, now.Add(2*time.Minute)); !errors.Is(err, ErrExpired) {
		t.Fatalf("want ErrExpired, got %v", err)
	}
}

func TestVerify_EverySingleBitFlipIsInvalid(t *testing.T) {
	m := newTestManager(t)
	now := time.Unix(1_700_000_000, 0)

	tok, _, err := m.Issue("alice", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	raw := []byte(tok)
	for i := range raw {
		for bit := 0; bit < 8; bit++ {
			mut := make([]byte, len(raw))
			copy(mut, raw)
			mut[i] ^= 1 << bit

			_, err := m.Verify(string(mut), now)
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("byte %d bit %d: want ErrInvalid, got %v", i, bit, err)
			}
		}
	}
}

func TestVerify_InvalidBeatsExpired(t *testing.T) {
	m := newTestManager(t)
	now := time.Unix(1_700_000_000, 0)

	tok, exp, err := m.Issue("alice", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	tampered := tok[:len(tok)-2] + flipChar(tok[len(tok)-2]) + tok[len(tok)-1:]

	if _, err := m.Verify(tampered, exp.Add(time.Hour)); !errors.Is(err, ErrInvalid) {
		t.Fatalf("want ErrInvalid, got %v", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	m := newTestManager(t)
	other, err := NewManager(Config{Secret: []byte("another-secret-another-secret-xx")})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	now := time.Unix(1_700_000_000, 0)

	tok, _, err := other.Issue("alice", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := m.Verify(tok, now); !errors.Is(err, ErrInvalid) {
		t.Fatalf("want ErrInvalid, got %v", err)
	}
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	m := newTestManager(t)
	now := time.Unix(1_700_000_000, 0)
	claims := jwt.RegisteredClaims{
		Subject:   "alice",
		Issuer:    DefaultIssuer,
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	for name, tok := range map[string]string{"HS512": hs512, "none": none} {
		if _, err := m.Verify(tok, now); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: want ErrInvalid, got %v", name, err)
		}
	}
}

func TestVerify_Malformed(t *testing.T) {
	m := newTestManager(t)
	now := time.Unix(1_700_000_000, 0)

	sign := func(c jwt.RegisteredClaims) string {
		t.Helper()
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(testSecret)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}

	noExp := sign(jwt.RegisteredClaims{Subject: "alice", Issuer: DefaultIssuer})
	if _, err := m.Verify(noExp, now); !errors.Is(err, ErrMalformed) {
		t.Fatalf("missing exp: want ErrMalformed, got %v", err)
	}

	noSub := sign(jwt.RegisteredClaims{Issuer: DefaultIssuer, ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))})
	if _, err := m.Verify(noSub, now); !errors.Is(err, ErrMalformed) {
		t.Fatalf("missing sub: want ErrMalformed, got %v", err)
	}

	// Expiry is checked before subject.
	expiredNoSub := sign(jwt.RegisteredClaims{Issuer: DefaultIssuer, ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour))})
	if _, err := m.Verify(expiredNoSub, now); !errors.Is(err, ErrExpired) {
		t.Fatalf("expired without sub: want ErrExpired, got %v", err)
	}

	wrongIssuer := sign(jwt.RegisteredClaims{Subject: "alice", Issuer: "someone-else", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))})
	if _, err := m.Verify(wrongIssuer, now); !errors.Is(err, ErrInvalid) {
		t.Fatalf("wrong issuer: want ErrInvalid, got %v", err)
	}
}

func TestVerify_Garbage(t *testing.T) {
	m := newTestManager(t)
	for _, raw := range []string{"", "abc", "a.b.c", strings.Repeat(".", 5), "Bearer x.y.z"} {
		if _, err := m.Verify(raw, time.Now()); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%q: want ErrInvalid, got %v", raw, err)
		}
	}
}

func TestIssue_EmptySubject(t *testing.T) {
	m := newTestManager(t)
	if _, _, err := m.Issue("", time.Now()); err == nil {
		t.Fatalf("expected error for empty subject")
	}
}

func TestNewManager_RequiresSecret(t *testing.T) {
	if _, err := NewManager(Config{}); !errors.Is(err, ErrSecretMissing) {
		t.Fatalf("want ErrSecretMissing, got %v", err)
	}
}

func TestValidateSecret(t *testing.T) {
	if err := ValidateSecret(nil, MinSecretBytes); !errors.Is(err, ErrSecretMissing) {
		t.Fatalf("want ErrSecretMissing, got %v", err)
	}
	if err := ValidateSecret([]byte("short"), MinSecretBytes); !errors.Is(err, ErrSecretTooShort) {
		t.Fatalf("want ErrSecretTooShort, got %v", err)
	}
	if err := ValidateSecret(testSecret, MinSecretBytes); err != nil {
		t.Fatalf("want nil, got %v", err)
	}
	if err := ValidateSecret([]byte("short"), 0); err != nil {
		t.Fatalf("no minimum: want nil, got %v", err)
	}
}

func TestFingerprint(t *testing.T) {
	a, b := Fingerprint("token-a"), Fingerprint("token-b")
	if len(a) != 12 || a == b {
		t.Fatalf("unexpected fingerprints %q %q", a, b)
	}
	if Fingerprint("token-a") != a {
		t.Fatalf("fingerprint must be stable")
	}
}

func flipChar(c byte) string {
	if c == 'A' {
		return "B"
	}
	return "A"
}
