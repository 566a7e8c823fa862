package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Hashes written by the previous service use the modular-crypt bcrypt format.
var bcryptPrefixes = []string{"$2a$", "$2b$", "$2y$"}

func isBcrypt(encoded string) bool {
	for _, p := range bcryptPrefixes {
		if strings.HasPrefix(encoded, p) {
			return true
		}
	}
	return false
}

func (c Config) compareBcrypt(encodedHash, password string) error {
	cost, err := bcrypt.Cost([]byte(encodedHash))
	if err != nil {
		return ErrInvalidHash
	}
	maxCost := c.BcryptMaxCost
	if maxCost <= 0 {
		maxCost = DefaultConfig().BcryptMaxCost
	}
	if cost > maxCost {
		return ErrInvalidHash
	}

	err = bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrMismatch
	default:
		return ErrInvalidHash
	}
}
