package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultTTL is the lifetime of an access token.
	DefaultTTL = 48 * time.Hour

	// MinSecretBytes is the minimum secret size accepted in strict mode.
	MinSecretBytes = 32

	// DefaultIssuer is written to the iss claim when no issuer is configured.
	DefaultIssuer = "adboard"
)

var signingMethod = jwt.SigningMethodHS256

// Config configures a Manager.
type Config struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
}

// Manager issues and verifies access tokens. Safe for concurrent use.
type Manager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	parser *jwt.Parser
}

// NewManager builds a Manager. The secret must be non-empty; minimum length policy
// is the caller's concern (see ValidateSecret).
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrSecretMissing
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = DefaultIssuer
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	return &Manager{
		secret: secret,
		ttl:    ttl,
		issuer: issuer,
		// Claims are checked by Verify in a fixed order, so the parser only
		// handles structure and signature.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{signingMethod.Alg()}),
			jwt.WithStrictDecoding(),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// TTL returns the configured token lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue mints a token for subject. The returned expiry is the exact value
// encoded in the token (second precision).
func (m *Manager) Issue(subject string, issuedAt time.Time) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, fmt.Errorf("issue token: %w", ErrMalformed)
	}

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(m.ttl)),
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Claims are the verified contents of a token that callers act on.
type Claims struct {
	Subject string
	// IssuedAt is zero when the token carries no iat claim.
	IssuedAt time.Time
}

// Verify validates raw and returns its subject.
// Errors are ErrInvalid, ErrExpired or ErrMalformed (possibly wrapping a parser cause).
func (m *Manager) Verify(raw string, now time.Time) (string, error) {
	c, err := m.VerifyClaims(raw, now)
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}

// VerifyClaims is Verify returning the issue time along with the subject.
func (m *Manager) VerifyClaims(raw string, now time.Time) (Claims, error) {
	var claims jwt.RegisteredClaims
	_, err := m.parser.ParseWithClaims(raw, &claims, m.keyFunc)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if claims.Issuer != m.issuer {
		return Claims{}, fmt.Errorf("%w: unexpected issuer", ErrInvalid)
	}

	if claims.ExpiresAt == nil {
		return Claims{}, fmt.Errorf("%w: missing exp", ErrMalformed)
	}
	if !now.Before(claims.ExpiresAt.Time) {
		return Claims{}, ErrExpired
	}

	if claims.Subject == "" {
		return Claims{}, fmt.Errorf("%w: missing sub", ErrMalformed)
	}

	out := Claims{Subject: claims.Subject}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}

func (m *Manager) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.New("unexpected signing method")
	}
	return m.secret, nil
}

// ValidateSecret enforces the minimum secret size for strict mode.
func ValidateSecret(secret []byte, minBytes int) error {
	if len(secret) == 0 {
		return ErrSecretMissing
	}
	if minBytes > 0 && len(secret) < minBytes {
		return ErrSecretTooShort
	}
	return nil
}

// Fingerprint returns a short, non-reversible identifier for raw suitable for logs.
func Fingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:6])
}
