package identity

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxUsernameLength bounds usernames in runes.
const MaxUsernameLength = 64

// NormalizeUsername performs case-insensitive canonicalization.
// The normalized form backs the unique index; the display form is stored as given.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateUsername checks a trimmed username.
func ValidateUsername(s string) error {
	const op = "identity.ValidateUsername"

	n := utf8.RuneCountInString(s)
	if n == 0 {
		return invalid(op, "username is required")
	}
	if n > MaxUsernameLength {
		return invalid(op, "username too long")
	}
	if !utf8.ValidString(s) {
		return invalid(op, "username is not valid utf-8")
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return invalid(op, "username contains control characters")
		}
	}
	return nil
}
