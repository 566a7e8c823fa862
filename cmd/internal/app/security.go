package app

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"

	"adboard/cmd/security/token"
)

// TokenConfig enforces adboard's signing-secret policy and returns the token settings.
//
// With RequireStrongSecret the secret must be set and at least token.MinSecretBytes long.
// Otherwise a short secret is accepted with a warning, and a missing one is replaced by a
// random per-process secret so tokens do not survive a restart.
func TokenConfig(cfg Config, log *slog.Logger) (token.Config, error) {
	secret := []byte(cfg.TokenSecret)
	out := token.Config{TTL: cfg.TokenTTL, Issuer: cfg.TokenIssuer}

	minBytes := 0
	if cfg.RequireStrongSecret {
		minBytes = token.MinSecretBytes
	}

	switch err := token.ValidateSecret(secret, minBytes); {
	case err == nil:
	case errors.Is(err, token.ErrSecretMissing) && !cfg.RequireStrongSecret:
		log.Warn("security.token_secret.ephemeral", "reason", "ADBOARD_TOKEN_SECRET unset")
		secret = make([]byte, token.MinSecretBytes)
		if _, err := rand.Read(secret); err != nil {
			return token.Config{}, fmt.Errorf("generate token secret: %w", err)
		}
	case errors.Is(err, token.ErrSecretMissing):
		return token.Config{}, errors.New("security policy: ADBOARD_REQUIRE_STRONG_SECRET=true but ADBOARD_TOKEN_SECRET is missing")
	case errors.Is(err, token.ErrSecretTooShort):
		return token.Config{}, fmt.Errorf("security policy: ADBOARD_REQUIRE_STRONG_SECRET=true but ADBOARD_TOKEN_SECRET is too short (min %d bytes)", token.MinSecretBytes)
	default:
		return token.Config{}, err
	}

	if len(secret) < token.MinSecretBytes {
		log.Warn("security.token_secret.weak", "bytes", len(secret), "min_bytes", token.MinSecretBytes)
	}

	out.Secret = secret
	return out, nil
}
