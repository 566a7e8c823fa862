package password

import (
	"fmt"
	"math"
	"runtime"

	"github.com/caarlos0/env/v11"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy controls password validation and anti-DoS boundaries.
type Policy struct {
	MinLength int
	MaxLength int
	// If true, enable an extra, minimal weak-pattern rejection.
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy

	// BcryptMaxCost bounds the cost of legacy bcrypt hashes accepted by Verify.
	BcryptMaxCost int
}

// DefaultConfig returns the baseline used when no env overrides are present.
// The length policy is permissive: accounts created by the previous service
// had no minimum, and those users must still be able to log in and re-register.
func DefaultConfig() Config {
	// CPU-aware parallelism, clamped to [1..4] to keep usage predictable in containers.
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024, // 64 MiB
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      1,
			MaxLength:      256,
			RejectVeryWeak: false,
		},
		BcryptMaxCost: 14,
	}
}

// envConfig mirrors Config for env decoding. Fields keep their pre-populated
// value when the variable is unset.
type envConfig struct {
	MinLength      int    `env:"ADBOARD_PASSWORD_MIN_LEN"`
	MaxLength      int    `env:"ADBOARD_PASSWORD_MAX_LEN"`
	RejectVeryWeak bool   `env:"ADBOARD_PASSWORD_REJECT_VERY_WEAK"`
	MemoryKiB      uint32 `env:"ADBOARD_ARGON2_MEMORY_KIB"`
	Iterations     uint32 `env:"ADBOARD_ARGON2_ITERATIONS"`
	Parallelism    uint32 `env:"ADBOARD_ARGON2_PARALLELISM"`
	SaltLength     uint32 `env:"ADBOARD_ARGON2_SALT_LEN"`
	KeyLength      uint32 `env:"ADBOARD_ARGON2_KEY_LEN"`
	BcryptMaxCost  int    `env:"ADBOARD_BCRYPT_MAX_COST"`
}

// FromEnv loads config from environment variables.
//
// Env surface:
// - ADBOARD_PASSWORD_MIN_LEN
// - ADBOARD_PASSWORD_MAX_LEN
// - ADBOARD_PASSWORD_REJECT_VERY_WEAK (true/false)
// - ADBOARD_ARGON2_MEMORY_KIB
// - ADBOARD_ARGON2_ITERATIONS
// - ADBOARD_ARGON2_PARALLELISM
// - ADBOARD_ARGON2_SALT_LEN
// - ADBOARD_ARGON2_KEY_LEN
// - ADBOARD_BCRYPT_MAX_COST
func FromEnv() (Config, error) {
	def := DefaultConfig()
	ec := envConfig{
		MinLength:      def.Policy.MinLength,
		MaxLength:      def.Policy.MaxLength,
		RejectVeryWeak: def.Policy.RejectVeryWeak,
		MemoryKiB:      def.Params.MemoryKiB,
		Iterations:     def.Params.Iterations,
		Parallelism:    uint32(def.Params.Parallelism),
		SaltLength:     def.Params.SaltLength,
		KeyLength:      def.Params.KeyLength,
		BcryptMaxCost:  def.BcryptMaxCost,
	}
	if err := env.Parse(&ec); err != nil {
		return Config{}, fmt.Errorf("password config: %w", err)
	}

	checks := []struct {
		key      string
		val      int64
		min, max int64
	}{
		{"ADBOARD_PASSWORD_MIN_LEN", int64(ec.MinLength), 1, 1024},
		{"ADBOARD_PASSWORD_MAX_LEN", int64(ec.MaxLength), 1, 4096},
		{"ADBOARD_ARGON2_MEMORY_KIB", int64(ec.MemoryKiB), 8 * 1024, 1024 * 1024}, // 8 MiB .. 1 GiB
		{"ADBOARD_ARGON2_ITERATIONS", int64(ec.Iterations), 1, 20},
		{"ADBOARD_ARGON2_PARALLELISM", int64(ec.Parallelism), 1, 64},
		{"ADBOARD_ARGON2_SALT_LEN", int64(ec.SaltLength), 8, 64},
		{"ADBOARD_ARGON2_KEY_LEN", int64(ec.KeyLength), 16, 64},
		{"ADBOARD_BCRYPT_MAX_COST", int64(ec.BcryptMaxCost), 4, 31},
	}
	for _, c := range checks {
		if c.val < c.min || c.val > c.max {
			return Config{}, fmt.Errorf("%s: out of range [%d..%d]", c.key, c.min, c.max)
		}
	}

	par, err := u32ToU8(ec.Parallelism)
	if err != nil {
		return Config{}, fmt.Errorf("ADBOARD_ARGON2_PARALLELISM: %w", err)
	}

	if ec.MinLength > ec.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			ec.MinLength,
			ec.MaxLength,
		)
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   ec.MemoryKiB,
			Iterations:  ec.Iterations,
			Parallelism: par,
			SaltLength:  ec.SaltLength,
			KeyLength:   ec.KeyLength,
		},
		Policy: Policy{
			MinLength:      ec.MinLength,
			MaxLength:      ec.MaxLength,
			RejectVeryWeak: ec.RejectVeryWeak,
		},
		BcryptMaxCost: ec.BcryptMaxCost,
	}, nil
}

func u32ToU8(u uint32) (uint8, error) {
	if u > math.MaxUint8 {
		return 0, fmt.Errorf("out of range [0..%d]", math.MaxUint8)
	}
	return uint8(u), nil
}
