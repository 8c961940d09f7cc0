package password

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
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

	// AcceptBcrypt allows Verify to check $2a$/$2b$/$2y$ hashes written by
	// the previous user store. New hashes are always Argon2id.
	AcceptBcrypt bool

	// MaxBcryptCost caps the cost of bcrypt hashes Verify will evaluate.
	MaxBcryptCost int
}

// DefaultConfig returns the baseline: Argon2id at 64 MiB / 3 passes and an
// 8..256 character policy.
func DefaultConfig() Config {
	// Parallelism follows the host but stays within [1..4] for containers.
	threads := min(max(runtime.NumCPU(), 1), 4)

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above; safe conversion.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      8,
			MaxLength:      256,
			RejectVeryWeak: false,
		},
		AcceptBcrypt:  true,
		MaxBcryptCost: 14,
	}
}

// FromEnv loads config from environment variables.
//
// Env surface:
//   - TEKAUTH_PASSWORD_MIN_LEN
//   - TEKAUTH_PASSWORD_MAX_LEN
//   - TEKAUTH_PASSWORD_REJECT_VERY_WEAK (true/false)
//   - TEKAUTH_PASSWORD_ACCEPT_BCRYPT (true/false)
//   - TEKAUTH_ARGON2_MEMORY_KIB
//   - TEKAUTH_ARGON2_ITERATIONS
//   - TEKAUTH_ARGON2_PARALLELISM
//   - TEKAUTH_ARGON2_SALT_LEN
//   - TEKAUTH_ARGON2_KEY_LEN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	ints := []struct {
		key      string
		min, max int
		set      func(int) error
	}{
		{"TEKAUTH_PASSWORD_MIN_LEN", 1, 1024, func(n int) error { cfg.Policy.MinLength = n; return nil }},
		{"TEKAUTH_PASSWORD_MAX_LEN", 1, 4096, func(n int) error { cfg.Policy.MaxLength = n; return nil }},
		{"TEKAUTH_ARGON2_MEMORY_KIB", 8 * 1024, 1024 * 1024, func(n int) error { cfg.Params.MemoryKiB = uint32(n); return nil }}, // #nosec G115 -- range-checked.
		{"TEKAUTH_ARGON2_ITERATIONS", 1, 20, func(n int) error { cfg.Params.Iterations = uint32(n); return nil }},           // #nosec G115 -- range-checked.
		{"TEKAUTH_ARGON2_PARALLELISM", 1, 64, func(n int) error {
			p, err := toU8(n)
			cfg.Params.Parallelism = p
			return err
		}},
		{"TEKAUTH_ARGON2_SALT_LEN", 8, 64, func(n int) error { cfg.Params.SaltLength = uint32(n); return nil }}, // #nosec G115 -- range-checked.
		{"TEKAUTH_ARGON2_KEY_LEN", 16, 64, func(n int) error { cfg.Params.KeyLength = uint32(n); return nil }},  // #nosec G115 -- range-checked.
	}
	for _, e := range ints {
		v, ok := os.LookupEnv(e.key)
		if !ok {
			continue
		}
		n, err := atoiInRange(v, e.min, e.max)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", e.key, err)
		}
		if err := e.set(n); err != nil {
			return Config{}, fmt.Errorf("%s: %w", e.key, err)
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"TEKAUTH_PASSWORD_REJECT_VERY_WEAK", &cfg.Policy.RejectVeryWeak},
		{"TEKAUTH_PASSWORD_ACCEPT_BCRYPT", &cfg.AcceptBcrypt},
	}
	for _, e := range bools {
		v, ok := os.LookupEnv(e.key)
		if !ok {
			continue
		}
		b, err := parseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", e.key, err)
		}
		*e.dst = b
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}

	return cfg, nil
}

func atoiInRange(s string, minVal, maxVal int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}
	if n < minVal || n > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return n, nil
}

func toU8(n int) (uint8, error) {
	if n < 0 || n > math.MaxUint8 {
		return 0, fmt.Errorf("out of range [0..%d]", math.MaxUint8)
	}
	return uint8(n), nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean")
	}
}
