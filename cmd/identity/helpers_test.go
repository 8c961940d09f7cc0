package identity

import (
	"testing"

	"tekauth/cmd/security/password"
)

// fastPasswords keeps Argon2id cheap enough for unit tests.
func fastPasswords() password.Config {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func mustHash(t *testing.T, cfg password.Config, plain string) string {
	t.Helper()
	h, err := cfg.Hash(plain)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return h
}
