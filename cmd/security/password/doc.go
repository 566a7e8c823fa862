// Package password provides password hashing and verification utilities for adboard.
//
// It implements Argon2id hashing using a PHC-like encoded string format and includes:
// - Configurable Argon2id parameters (via environment variables)
// - Password policy validation
// - Strict hash decoding and verification with anti-DoS bounds
// - Verification of legacy bcrypt hashes carried over from earlier deployments
//
// Security notes:
// - Hash strings are treated as untrusted input during Verify and are validated accordingly.
// - Verification refuses hashes with parameters that exceed reasonable bounds.
// - Verify never returns an error: a malformed hash simply does not match.
package password
